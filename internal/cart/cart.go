package cart

import (
	"time"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/pricing"
)

// Reason explains why a cart mutation was rejected.
type Reason string

const (
	ReasonDuplicateItem      Reason = "duplicate_item"
	ReasonInsufficientStock  Reason = "insufficient_stock"
	ReasonQuantityOutOfRange Reason = "quantity_out_of_range"
	ReasonNotSupported       Reason = "not_supported"
	ReasonNotInCart          Reason = "not_in_cart"
	ReasonInvalidDiscount    Reason = "invalid_discount"
	ReasonExpired            Reason = "expired_stock"
)

// Outcome is the result of a cart mutation. A rejected mutation leaves the cart unchanged.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
}

// Accepted reports a successful mutation.
func Accepted() Outcome { return Outcome{Accepted: true} }

// Rejected reports a refused mutation.
func Rejected(reason Reason) Outcome { return Outcome{Reason: reason} }

func (o Outcome) String() string {
	if o.Accepted {
		return "accepted"
	}
	return string(o.Reason)
}

// Line is one billable row of a cart.
type Line struct {
	ItemID         int64  `json:"itemId"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	GSTBps         int32  `json:"gstBps,omitempty"`
	BatchNo        string `json:"batchNo,omitempty"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
	CostPrice      int64  `json:"costPrice,omitempty"`
	AvailableStock int    `json:"availableStock,omitempty"`
	FormFRequired  bool   `json:"formFRequired,omitempty"`
}

// Cart is the working set of lines for one visit at one billing desk.
type Cart struct {
	Domain        billing.Domain             `json:"domain"`
	VisitID       int64                      `json:"visitId"`
	Items         []Line                     `json:"items"`
	WholeDiscount *pricing.Discount          `json:"wholeDiscount,omitempty"`
	ItemDiscounts map[int64]pricing.Discount `json:"itemDiscounts,omitempty"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}

// New returns an empty cart.
func New(domain billing.Domain, visitID int64) *Cart {
	return &Cart{Domain: domain, VisitID: visitID, Items: []Line{}}
}

func (c *Cart) index(itemID int64) int {
	for i := range c.Items {
		if c.Items[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// Line returns the line for itemID.
func (c *Cart) Line(itemID int64) (Line, bool) {
	if i := c.index(itemID); i >= 0 {
		return c.Items[i], true
	}
	return Line{}, false
}

// Add appends a line. Lab and ultrasound reject an item already present; pharmacy increments
// the existing quantity while stock allows.
func (c *Cart) Add(line Line, qty int) Outcome {
	if qty < 1 {
		return Rejected(ReasonQuantityOutOfRange)
	}
	if i := c.index(line.ItemID); i >= 0 {
		if !c.Domain.IncrementsOnAdd() {
			return Rejected(ReasonDuplicateItem)
		}
		want := c.Items[i].Quantity + qty
		if want > line.AvailableStock {
			return Rejected(ReasonInsufficientStock)
		}
		c.Items[i].Quantity = want
		c.Items[i].AvailableStock = line.AvailableStock
		return Accepted()
	}
	if c.Domain.TracksStock() {
		if qty > line.AvailableStock {
			return Rejected(ReasonInsufficientStock)
		}
	} else {
		qty = 1
	}
	line.Quantity = qty
	c.Items = append(c.Items, line)
	return Accepted()
}

// Remove drops a line together with its item discount.
func (c *Cart) Remove(itemID int64) Outcome {
	i := c.index(itemID)
	if i < 0 {
		return Rejected(ReasonNotInCart)
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	delete(c.ItemDiscounts, itemID)
	return Accepted()
}

// SetQuantity changes a pharmacy line's quantity within [1, available].
func (c *Cart) SetQuantity(itemID int64, qty, available int) Outcome {
	if !c.Domain.TracksStock() {
		return Rejected(ReasonNotSupported)
	}
	i := c.index(itemID)
	if i < 0 {
		return Rejected(ReasonNotInCart)
	}
	if qty < 1 || qty > available {
		return Rejected(ReasonQuantityOutOfRange)
	}
	c.Items[i].Quantity = qty
	c.Items[i].AvailableStock = available
	return Accepted()
}

// SetItemDiscount sets or clears a line discount. A non-zero item discount removes any
// whole-cart discount.
func (c *Cart) SetItemDiscount(itemID int64, d pricing.Discount) Outcome {
	if c.index(itemID) < 0 {
		return Rejected(ReasonNotInCart)
	}
	if err := d.Validate(); err != nil {
		return Rejected(ReasonInvalidDiscount)
	}
	if d.IsZero() {
		delete(c.ItemDiscounts, itemID)
		return Accepted()
	}
	if c.ItemDiscounts == nil {
		c.ItemDiscounts = map[int64]pricing.Discount{}
	}
	c.ItemDiscounts[itemID] = d
	c.WholeDiscount = nil
	return Accepted()
}

// ApplyDiscount sets or clears the whole-cart discount. A non-zero whole-cart discount wipes
// every item discount.
func (c *Cart) ApplyDiscount(d pricing.Discount) Outcome {
	if err := d.Validate(); err != nil {
		return Rejected(ReasonInvalidDiscount)
	}
	if d.IsZero() {
		c.WholeDiscount = nil
		return Accepted()
	}
	c.ItemDiscounts = nil
	c.WholeDiscount = &d
	return Accepted()
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []Line{}
	c.WholeDiscount = nil
	c.ItemDiscounts = nil
}

// IsEmpty reports whether the cart has no billable quantity.
func (c *Cart) IsEmpty() bool {
	for _, it := range c.Items {
		if it.Quantity > 0 {
			return false
		}
	}
	return true
}

// PricingItems converts lines into pricing inputs. GST only applies to pharmacy lines.
func (c *Cart) PricingItems() []pricing.Item {
	items := make([]pricing.Item, 0, len(c.Items))
	for _, it := range c.Items {
		p := pricing.Item{ItemID: it.ItemID, Qty: it.Quantity, UnitPrice: it.UnitPrice}
		if c.Domain.TracksStock() {
			p.GSTBps = it.GSTBps
		}
		items = append(items, p)
	}
	return items
}

// Quote recomputes all totals from the current cart state.
func (c *Cart) Quote() pricing.Summary {
	var whole pricing.Discount
	if c.WholeDiscount != nil {
		whole = *c.WholeDiscount
	}
	return pricing.Resolve(c.PricingItems(), c.ItemDiscounts, whole)
}

// HasFormFItems reports whether any line needs a Form F consent record.
func (c *Cart) HasFormFItems() bool {
	for _, it := range c.Items {
		if it.FormFRequired {
			return true
		}
	}
	return false
}
