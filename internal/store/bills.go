package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

// maxSuffixSQL selects the highest trailing number among invoice numbers starting with $1.
// Rows whose suffix does not parse are ignored.
const maxSuffixSQL = `SELECT COALESCE(MAX(CAST(SUBSTRING(%[2]s FROM '([0-9]+)$') AS BIGINT)), 0)
FROM %[1]s
WHERE starts_with(%[2]s, $1) AND %[2]s ~ ('^' || $2 || '[0-9]+$')`

// MaxInvoiceSuffix returns the highest issued sequence number for prefix in the domain, or 0.
// regexPrefix must be the regex-escaped form of prefix.
func (q *Queries) MaxInvoiceSuffix(ctx context.Context, domain billing.Domain, prefix, regexPrefix string) (int64, error) {
	t, err := tablesFor(domain)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.db.QueryRow(ctx, fmt.Sprintf(maxSuffixSQL, t.bills, "invoice_number"), prefix, regexPrefix).Scan(&n)
	return n, err
}

// MaxFormFSuffix returns the highest Form F sequence number issued under prefix, or 0.
func (q *Queries) MaxFormFSuffix(ctx context.Context, prefix, regexPrefix string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, fmt.Sprintf(maxSuffixSQL, "form_f_records", "form_number"), prefix, regexPrefix).Scan(&n)
	return n, err
}

const billColumns = `id, invoice_number, visit_id, subtotal, discount_type, discount_value, item_discount_total,
cart_discount_amount, discounted_total, tax_total, payment_mode, referring_doctor_id, created_at`

const billItemColumns = `id, bill_id, item_id, name, quantity, unit_price, item_discount, cart_discount, net_amount,
base_amount, gst_bps, gst_amount, batch_no, expiry_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (Bill, error) {
	var b Bill
	err := row.Scan(
		&b.ID, &b.InvoiceNumber, &b.VisitID, &b.Subtotal, &b.DiscountType, &b.DiscountValue, &b.ItemDiscountTotal,
		&b.CartDiscountAmount, &b.DiscountedTotal, &b.TaxTotal, &b.PaymentMode, &b.ReferringDoctorID, &b.CreatedAt,
	)
	return b, err
}

func scanBillItem(row rowScanner) (BillItem, error) {
	var i BillItem
	err := row.Scan(
		&i.ID, &i.BillID, &i.ItemID, &i.Name, &i.Quantity, &i.UnitPrice, &i.ItemDiscount, &i.CartDiscount, &i.NetAmount,
		&i.BaseAmount, &i.GstBps, &i.GstAmount, &i.BatchNo, &i.ExpiryDate,
	)
	return i, err
}

type InsertBillParams struct {
	InvoiceNumber      string
	VisitID            int64
	Subtotal           int64
	DiscountType       string
	DiscountValue      int64
	ItemDiscountTotal  int64
	CartDiscountAmount int64
	DiscountedTotal    int64
	TaxTotal           int64
	PaymentMode        string
	ReferringDoctorID  pgtype.Int8
}

func (q *Queries) InsertBill(ctx context.Context, domain billing.Domain, arg InsertBillParams) (Bill, error) {
	t, err := tablesFor(domain)
	if err != nil {
		return Bill{}, err
	}
	sql := `INSERT INTO ` + t.bills + ` (invoice_number, visit_id, subtotal, discount_type, discount_value,
item_discount_total, cart_discount_amount, discounted_total, tax_total, payment_mode, referring_doctor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + billColumns
	return scanBill(q.db.QueryRow(ctx, sql,
		arg.InvoiceNumber, arg.VisitID, arg.Subtotal, arg.DiscountType, arg.DiscountValue,
		arg.ItemDiscountTotal, arg.CartDiscountAmount, arg.DiscountedTotal, arg.TaxTotal, arg.PaymentMode, arg.ReferringDoctorID,
	))
}

type InsertBillItemParams struct {
	BillID       int64
	ItemID       int64
	Name         string
	Quantity     int32
	UnitPrice    int64
	ItemDiscount int64
	CartDiscount int64
	NetAmount    int64
	BaseAmount   int64
	GstBps       int32
	GstAmount    int64
	BatchNo      string
	ExpiryDate   pgtype.Date
}

func (q *Queries) InsertBillItem(ctx context.Context, domain billing.Domain, arg InsertBillItemParams) (BillItem, error) {
	t, err := tablesFor(domain)
	if err != nil {
		return BillItem{}, err
	}
	sql := `INSERT INTO ` + t.items + ` (bill_id, item_id, name, quantity, unit_price, item_discount, cart_discount,
net_amount, base_amount, gst_bps, gst_amount, batch_no, expiry_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + billItemColumns
	return scanBillItem(q.db.QueryRow(ctx, sql,
		arg.BillID, arg.ItemID, arg.Name, arg.Quantity, arg.UnitPrice, arg.ItemDiscount, arg.CartDiscount,
		arg.NetAmount, arg.BaseAmount, arg.GstBps, arg.GstAmount, arg.BatchNo, arg.ExpiryDate,
	))
}

func (q *Queries) GetBillByInvoice(ctx context.Context, domain billing.Domain, invoiceNumber string) (Bill, error) {
	t, err := tablesFor(domain)
	if err != nil {
		return Bill{}, err
	}
	return scanBill(q.db.QueryRow(ctx, `SELECT `+billColumns+` FROM `+t.bills+` WHERE invoice_number = $1`, invoiceNumber))
}

func (q *Queries) ListBillItems(ctx context.Context, domain billing.Domain, billID int64) ([]BillItem, error) {
	t, err := tablesFor(domain)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+billItemColumns+` FROM `+t.items+` WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillItem
	for rows.Next() {
		i, err := scanBillItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) ListBillsByVisit(ctx context.Context, domain billing.Domain, visitID int64) ([]Bill, error) {
	t, err := tablesFor(domain)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+billColumns+` FROM `+t.bills+` WHERE visit_id = $1 ORDER BY created_at DESC, id DESC`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

const insertFormFRecord = `-- name: InsertFormFRecord :one
INSERT INTO form_f_records (form_number, bill_id, visit_id) VALUES ($1, $2, $3)
RETURNING id, form_number, bill_id, visit_id, status, created_at
`

type InsertFormFRecordParams struct {
	FormNumber string
	BillID     int64
	VisitID    int64
}

func (q *Queries) InsertFormFRecord(ctx context.Context, arg InsertFormFRecordParams) (FormFRecord, error) {
	var f FormFRecord
	err := q.db.QueryRow(ctx, insertFormFRecord, arg.FormNumber, arg.BillID, arg.VisitID).Scan(
		&f.ID, &f.FormNumber, &f.BillID, &f.VisitID, &f.Status, &f.CreatedAt,
	)
	return f, err
}

const getFormFRecordByBill = `-- name: GetFormFRecordByBill :one
SELECT id, form_number, bill_id, visit_id, status, created_at FROM form_f_records WHERE bill_id = $1
`

func (q *Queries) GetFormFRecordByBill(ctx context.Context, billID int64) (FormFRecord, error) {
	var f FormFRecord
	err := q.db.QueryRow(ctx, getFormFRecordByBill, billID).Scan(
		&f.ID, &f.FormNumber, &f.BillID, &f.VisitID, &f.Status, &f.CreatedAt,
	)
	return f, err
}
