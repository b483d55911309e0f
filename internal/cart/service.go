package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/catalog"
	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/pricing"
)

// ErrInvalidInput is returned when the provided identifiers are invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrItemNotFound is returned when the requested catalog item does not exist.
var ErrItemNotFound = errors.New("catalog item not found")

// Catalog resolves billable items.
type Catalog interface {
	Lookup(ctx context.Context, domain billing.Domain, id int64) (catalog.Item, error)
}

// Service applies cart operations against the session store.
type Service struct {
	Store   Store
	Catalog Catalog
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

func checkKey(domain billing.Domain, visitID int64) error {
	if !domain.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidInput, billing.ErrUnknownDomain)
	}
	if visitID <= 0 {
		return fmt.Errorf("%w: visit id must be positive", ErrInvalidInput)
	}
	return nil
}

// Get returns the current cart, empty when none has been stored.
func (s *Service) Get(ctx context.Context, domain billing.Domain, visitID int64) (*Cart, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := checkKey(domain, visitID); err != nil {
		return nil, err
	}
	return s.Store.Load(ctx, domain, visitID)
}

// mutate loads the cart, applies fn and persists the result only when fn accepts it.
// Cart methods leave the cart untouched when they reject.
func (s *Service) mutate(ctx context.Context, domain billing.Domain, visitID int64, op string, fn func(*Cart) (Outcome, error)) (*Cart, Outcome, error) {
	c, err := s.Get(ctx, domain, visitID)
	if err != nil {
		return nil, Outcome{}, err
	}
	outcome, err := fn(c)
	if err != nil {
		return nil, Outcome{}, err
	}
	obs.RecordCartMutation(string(domain), op, outcome.String())
	if !outcome.Accepted {
		s.Logger.Debug().Str("domain", string(domain)).Int64("visit_id", visitID).Str("op", op).
			Str("reason", string(outcome.Reason)).Msg("cart mutation rejected")
		return c, outcome, nil
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.Store.Save(ctx, c); err != nil {
		return nil, Outcome{}, fmt.Errorf("cart: save: %w", err)
	}
	return c, outcome, nil
}

func (s *Service) lookup(ctx context.Context, domain billing.Domain, itemID int64) (catalog.Item, error) {
	if s.Catalog == nil {
		return catalog.Item{}, errors.New("cart catalog not configured")
	}
	item, err := s.Catalog.Lookup(ctx, domain, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Item{}, fmt.Errorf("%w: %s/%d", ErrItemNotFound, domain, itemID)
		}
		return catalog.Item{}, err
	}
	return item, nil
}

// AddItem adds a catalog item to the cart. Quantity is forced to 1 for lab tests and scans.
func (s *Service) AddItem(ctx context.Context, domain billing.Domain, visitID, itemID int64, qty int) (*Cart, Outcome, error) {
	return s.mutate(ctx, domain, visitID, "add_item", func(c *Cart) (Outcome, error) {
		item, err := s.lookup(ctx, domain, itemID)
		if err != nil {
			return Outcome{}, err
		}
		if domain.TracksStock() && item.Expired(s.now()) {
			return Rejected(ReasonExpired), nil
		}
		if !domain.TracksStock() {
			qty = 1
		}
		return c.Add(lineFromItem(item), qty), nil
	})
}

// RemoveItem drops a line and its item discount.
func (s *Service) RemoveItem(ctx context.Context, domain billing.Domain, visitID, itemID int64) (*Cart, Outcome, error) {
	return s.mutate(ctx, domain, visitID, "remove_item", func(c *Cart) (Outcome, error) {
		return c.Remove(itemID), nil
	})
}

// SetQuantity changes a pharmacy line quantity against the lot's current stock.
func (s *Service) SetQuantity(ctx context.Context, domain billing.Domain, visitID, itemID int64, qty int) (*Cart, Outcome, error) {
	return s.mutate(ctx, domain, visitID, "set_quantity", func(c *Cart) (Outcome, error) {
		if !domain.TracksStock() {
			return Rejected(ReasonNotSupported), nil
		}
		if _, ok := c.Line(itemID); !ok {
			return Rejected(ReasonNotInCart), nil
		}
		item, err := s.lookup(ctx, domain, itemID)
		if err != nil {
			return Outcome{}, err
		}
		return c.SetQuantity(itemID, qty, item.AvailableStock), nil
	})
}

// SetItemDiscount sets or clears a line discount.
func (s *Service) SetItemDiscount(ctx context.Context, domain billing.Domain, visitID, itemID int64, d pricing.Discount) (*Cart, Outcome, error) {
	return s.mutate(ctx, domain, visitID, "set_item_discount", func(c *Cart) (Outcome, error) {
		return c.SetItemDiscount(itemID, d), nil
	})
}

// ApplyDiscount sets or clears the whole-cart discount.
func (s *Service) ApplyDiscount(ctx context.Context, domain billing.Domain, visitID int64, d pricing.Discount) (*Cart, Outcome, error) {
	return s.mutate(ctx, domain, visitID, "apply_discount", func(c *Cart) (Outcome, error) {
		return c.ApplyDiscount(d), nil
	})
}

// Clear discards the cart so a new bill can be started.
func (s *Service) Clear(ctx context.Context, domain billing.Domain, visitID int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := checkKey(domain, visitID); err != nil {
		return err
	}
	obs.RecordCartMutation(string(domain), "clear", "accepted")
	return s.Store.Delete(ctx, domain, visitID)
}

func lineFromItem(item catalog.Item) Line {
	return Line{
		ItemID:         item.ID,
		Name:           item.Name,
		UnitPrice:      item.UnitPrice,
		GSTBps:         item.GSTBps,
		BatchNo:        item.BatchNo,
		ExpiryDate:     item.ExpiryDate,
		CostPrice:      item.CostPrice,
		AvailableStock: item.AvailableStock,
		FormFRequired:  item.FormFRequired,
	}
}
