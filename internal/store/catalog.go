package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

const getLabTest = `-- name: GetLabTest :one
SELECT id, name, unit_price FROM lab_tests WHERE id = $1 AND active
`

const getUltrasoundScan = `-- name: GetUltrasoundScan :one
SELECT id, name, unit_price, form_f_required FROM ultrasound_scans WHERE id = $1 AND active
`

const getStockLot = `-- name: GetStockLot :one
SELECT s.id, m.name, s.unit_price, m.gst_bps, s.batch_no, s.expiry_date, s.cost_price, s.quantity
FROM pharmacy_stock s
JOIN medicines m ON m.id = s.medicine_id
WHERE s.id = $1 AND m.active
`

// GetCatalogItem loads one billable item of the domain catalog.
func (q *Queries) GetCatalogItem(ctx context.Context, domain billing.Domain, id int64) (CatalogItem, error) {
	var i CatalogItem
	switch domain {
	case billing.DomainLab:
		err := q.db.QueryRow(ctx, getLabTest, id).Scan(&i.ID, &i.Name, &i.UnitPrice)
		return i, err
	case billing.DomainUltrasound:
		err := q.db.QueryRow(ctx, getUltrasoundScan, id).Scan(&i.ID, &i.Name, &i.UnitPrice, &i.FormFRequired)
		return i, err
	case billing.DomainPharmacy:
		err := q.db.QueryRow(ctx, getStockLot, id).Scan(
			&i.ID, &i.Name, &i.UnitPrice, &i.GstBps, &i.BatchNo, &i.ExpiryDate, &i.CostPrice, &i.AvailableStock,
		)
		return i, err
	default:
		return i, ErrUnknownTable
	}
}

const searchLabTests = `-- name: SearchLabTests :many
SELECT id, name, unit_price FROM lab_tests
WHERE active AND name ILIKE '%' || $1 || '%'
ORDER BY name
LIMIT $2
`

const searchUltrasoundScans = `-- name: SearchUltrasoundScans :many
SELECT id, name, unit_price, form_f_required FROM ultrasound_scans
WHERE active AND name ILIKE '%' || $1 || '%'
ORDER BY name
LIMIT $2
`

const searchStockLots = `-- name: SearchStockLots :many
SELECT s.id, m.name, s.unit_price, m.gst_bps, s.batch_no, s.expiry_date, s.cost_price, s.quantity
FROM pharmacy_stock s
JOIN medicines m ON m.id = s.medicine_id
WHERE m.active AND s.quantity > 0 AND s.expiry_date >= CURRENT_DATE
  AND (m.name ILIKE '%' || $1 || '%' OR s.batch_no ILIKE '%' || $1 || '%')
ORDER BY m.name, s.expiry_date
LIMIT $2
`

// SearchCatalog lists catalog items whose name matches term.
func (q *Queries) SearchCatalog(ctx context.Context, domain billing.Domain, term string, limit int32) ([]CatalogItem, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch domain {
	case billing.DomainLab:
		rows, err = q.db.Query(ctx, searchLabTests, term, limit)
	case billing.DomainUltrasound:
		rows, err = q.db.Query(ctx, searchUltrasoundScans, term, limit)
	case billing.DomainPharmacy:
		rows, err = q.db.Query(ctx, searchStockLots, term, limit)
	default:
		return nil, ErrUnknownTable
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CatalogItem
	for rows.Next() {
		var i CatalogItem
		switch domain {
		case billing.DomainLab:
			err = rows.Scan(&i.ID, &i.Name, &i.UnitPrice)
		case billing.DomainUltrasound:
			err = rows.Scan(&i.ID, &i.Name, &i.UnitPrice, &i.FormFRequired)
		default:
			err = rows.Scan(&i.ID, &i.Name, &i.UnitPrice, &i.GstBps, &i.BatchNo, &i.ExpiryDate, &i.CostPrice, &i.AvailableStock)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const decrementStock = `-- name: DecrementStock :execrows
UPDATE pharmacy_stock SET quantity = quantity - $2
WHERE id = $1 AND quantity >= $2
`

// DecrementStock removes qty units from a stock lot only when enough remain.
// It reports the number of rows updated; zero means the lot was short.
func (q *Queries) DecrementStock(ctx context.Context, stockID int64, qty int32) (int64, error) {
	tag, err := q.db.Exec(ctx, decrementStock, stockID, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertStockLog = `-- name: InsertStockLog :exec
INSERT INTO pharmacy_stock_log (stock_id, change, reason, reference) VALUES ($1, $2, $3, $4)
`

type InsertStockLogParams struct {
	StockID   int64
	Change    int32
	Reason    string
	Reference string
}

func (q *Queries) InsertStockLog(ctx context.Context, arg InsertStockLogParams) error {
	_, err := q.db.Exec(ctx, insertStockLog, arg.StockID, arg.Change, arg.Reason, arg.Reference)
	return err
}
