package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/store"
)

// ErrNotFound is returned when a catalog item does not exist or is inactive.
var ErrNotFound = errors.New("catalog item not found")

const dateLayout = "2006-01-02"

// Item is a billable catalog entry: a lab test, an ultrasound scan, or a pharmacy stock lot.
type Item struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unitPrice"`
	GSTBps         int32  `json:"gstBps,omitempty"`
	BatchNo        string `json:"batchNo,omitempty"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
	CostPrice      int64  `json:"costPrice,omitempty"`
	AvailableStock int    `json:"availableStock,omitempty"`
	FormFRequired  bool   `json:"formFRequired,omitempty"`
}

// Expired reports whether a stock lot is past its expiry date on day now.
func (i Item) Expired(now time.Time) bool {
	if i.ExpiryDate == "" {
		return false
	}
	exp, err := time.Parse(dateLayout, i.ExpiryDate)
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return exp.Before(today)
}

type queryProvider interface {
	GetCatalogItem(ctx context.Context, domain billing.Domain, id int64) (store.CatalogItem, error)
	SearchCatalog(ctx context.Context, domain billing.Domain, term string, limit int32) ([]store.CatalogItem, error)
}

// Service reads the per-domain catalogs.
type Service struct {
	queries      queryProvider
	cache        *Cache
	logger       zerolog.Logger
	defaultLimit int
	maxLimit     int
}

// ServiceConfig configures the catalog service.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	Logger       *zerolog.Logger
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs a catalog Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog queries dependency is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		logger:       logger,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}, nil
}

// Lookup returns one item. Lab tests and scans are served from cache when possible;
// pharmacy lots always hit the database because their stock moves.
func (s *Service) Lookup(ctx context.Context, domain billing.Domain, id int64) (Item, error) {
	if !domain.Valid() {
		return Item{}, badRequest("domain", "unknown billing domain", billing.ErrUnknownDomain)
	}
	if cached, hit, err := s.cache.Get(ctx, domain, id); err != nil {
		s.logger.Warn().Err(err).Str("domain", string(domain)).Int64("item_id", id).Msg("catalog cache read failed")
	} else if hit {
		return cached, nil
	}

	row, err := s.queries.GetCatalogItem(ctx, domain, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("catalog: lookup %s/%d: %w", domain, id, err)
	}
	item := fromRow(row)
	if err := s.cache.Put(ctx, domain, item); err != nil {
		s.logger.Warn().Err(err).Str("domain", string(domain)).Int64("item_id", id).Msg("catalog cache write failed")
	}
	return item, nil
}

// Search lists items of the domain matching term by name (or batch number for pharmacy).
func (s *Service) Search(ctx context.Context, domain billing.Domain, term string, limit int) ([]Item, error) {
	if !domain.Valid() {
		return nil, badRequest("domain", "unknown billing domain", billing.ErrUnknownDomain)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	rows, err := s.queries.SearchCatalog(ctx, domain, strings.TrimSpace(term), int32(limit))
	if err != nil {
		return nil, fmt.Errorf("catalog: search %s: %w", domain, err)
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromRow(row))
	}
	return items, nil
}

func fromRow(row store.CatalogItem) Item {
	item := Item{
		ID:             row.ID,
		Name:           row.Name,
		UnitPrice:      row.UnitPrice,
		GSTBps:         row.GstBps,
		BatchNo:        row.BatchNo,
		CostPrice:      row.CostPrice,
		AvailableStock: int(row.AvailableStock),
		FormFRequired:  row.FormFRequired,
	}
	if row.ExpiryDate.Valid {
		item.ExpiryDate = row.ExpiryDate.Time.Format(dateLayout)
	}
	return item
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
