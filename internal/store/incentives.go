package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getReferringDoctor = `-- name: GetReferringDoctor :one
SELECT id, name, incentive_bps, active FROM referring_doctors WHERE id = $1
`

func (q *Queries) GetReferringDoctor(ctx context.Context, id int64) (ReferringDoctor, error) {
	var d ReferringDoctor
	err := q.db.QueryRow(ctx, getReferringDoctor, id).Scan(&d.ID, &d.Name, &d.IncentiveBps, &d.Active)
	return d, err
}

const listReferringDoctors = `-- name: ListReferringDoctors :many
SELECT id, name, incentive_bps, active FROM referring_doctors
WHERE active OR NOT $1::boolean
ORDER BY name
`

func (q *Queries) ListReferringDoctors(ctx context.Context, activeOnly bool) ([]ReferringDoctor, error) {
	rows, err := q.db.Query(ctx, listReferringDoctors, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReferringDoctor
	for rows.Next() {
		var d ReferringDoctor
		if err := rows.Scan(&d.ID, &d.Name, &d.IncentiveBps, &d.Active); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const incentiveColumns = `id, referring_doctor_id, bill_id, invoice_number, bill_total, incentive_bps, amount, paid,
paid_on, payment_mode, notes, created_at`

func scanIncentive(row rowScanner) (DoctorIncentive, error) {
	var i DoctorIncentive
	err := row.Scan(
		&i.ID, &i.ReferringDoctorID, &i.BillID, &i.InvoiceNumber, &i.BillTotal, &i.IncentiveBps, &i.Amount, &i.Paid,
		&i.PaidOn, &i.PaymentMode, &i.Notes, &i.CreatedAt,
	)
	return i, err
}

const insertDoctorIncentive = `-- name: InsertDoctorIncentive :one
INSERT INTO doctor_incentives (referring_doctor_id, bill_id, invoice_number, bill_total, incentive_bps, amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + incentiveColumns

type InsertDoctorIncentiveParams struct {
	ReferringDoctorID int64
	BillID            int64
	InvoiceNumber     string
	BillTotal         int64
	IncentiveBps      int32
	Amount            int64
}

func (q *Queries) InsertDoctorIncentive(ctx context.Context, arg InsertDoctorIncentiveParams) (DoctorIncentive, error) {
	return scanIncentive(q.db.QueryRow(ctx, insertDoctorIncentive,
		arg.ReferringDoctorID, arg.BillID, arg.InvoiceNumber, arg.BillTotal, arg.IncentiveBps, arg.Amount,
	))
}

const getDoctorIncentive = `-- name: GetDoctorIncentive :one
SELECT ` + incentiveColumns + ` FROM doctor_incentives WHERE id = $1`

func (q *Queries) GetDoctorIncentive(ctx context.Context, id int64) (DoctorIncentive, error) {
	return scanIncentive(q.db.QueryRow(ctx, getDoctorIncentive, id))
}

const getDoctorIncentiveByBill = `-- name: GetDoctorIncentiveByBill :one
SELECT ` + incentiveColumns + ` FROM doctor_incentives WHERE bill_id = $1 ORDER BY id LIMIT 1`

func (q *Queries) GetDoctorIncentiveByBill(ctx context.Context, billID int64) (DoctorIncentive, error) {
	return scanIncentive(q.db.QueryRow(ctx, getDoctorIncentiveByBill, billID))
}

const listDoctorIncentives = `-- name: ListDoctorIncentives :many
SELECT ` + incentiveColumns + ` FROM doctor_incentives
WHERE ($1::boolean IS NULL OR paid = $1::boolean)
  AND ($2::bigint IS NULL OR referring_doctor_id = $2::bigint)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`

type ListDoctorIncentivesParams struct {
	Paid              pgtype.Bool
	ReferringDoctorID pgtype.Int8
	Limit             int32
	Offset            int32
}

func (q *Queries) ListDoctorIncentives(ctx context.Context, arg ListDoctorIncentivesParams) ([]DoctorIncentive, error) {
	rows, err := q.db.Query(ctx, listDoctorIncentives, arg.Paid, arg.ReferringDoctorID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DoctorIncentive
	for rows.Next() {
		i, err := scanIncentive(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const markIncentivePaid = `-- name: MarkIncentivePaid :one
UPDATE doctor_incentives SET paid = TRUE, paid_on = $2, payment_mode = $3, notes = $4
WHERE id = $1 AND NOT paid
RETURNING ` + incentiveColumns

type MarkIncentivePaidParams struct {
	ID          int64
	PaidOn      pgtype.Date
	PaymentMode string
	Notes       string
}

// MarkIncentivePaid flips a pending incentive to paid. It returns pgx.ErrNoRows when the row
// is missing or already paid.
func (q *Queries) MarkIncentivePaid(ctx context.Context, arg MarkIncentivePaidParams) (DoctorIncentive, error) {
	return scanIncentive(q.db.QueryRow(ctx, markIncentivePaid, arg.ID, arg.PaidOn, arg.PaymentMode, arg.Notes))
}
