package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries groups the SQL statements used by the billing services.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q that runs every statement inside tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// ErrUnknownTable is returned when a domain has no backing bill tables.
var ErrUnknownTable = errors.New("store: unknown billing domain")

type billTables struct {
	bills string
	items string
}

func tablesFor(d billing.Domain) (billTables, error) {
	if !d.Valid() {
		return billTables{}, fmt.Errorf("%w: %q", ErrUnknownTable, d)
	}
	return billTables{
		bills: pgx.Identifier{string(d) + "_bills"}.Sanitize(),
		items: pgx.Identifier{string(d) + "_bill_items"}.Sanitize(),
	}, nil
}

// IsUniqueViolation reports whether err is a Postgres unique violation, optionally on a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// InvoiceConstraint names the unique constraint guarding invoice numbers of a domain.
func InvoiceConstraint(d billing.Domain) string {
	return string(d) + "_bills_invoice_number_key"
}

// FormFConstraint names the unique constraint guarding Form F numbers.
const FormFConstraint = "form_f_records_form_number_key"
