package store

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

func TestTablesForDomain(t *testing.T) {
	tables, err := tablesFor(billing.DomainPharmacy)
	require.NoError(t, err)
	require.Equal(t, `"pharmacy_bills"`, tables.bills)
	require.Equal(t, `"pharmacy_bill_items"`, tables.items)

	_, err = tablesFor(billing.Domain("x; DROP TABLE lab_bills"))
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert bill: %w", &pgconn.PgError{Code: "23505", ConstraintName: "lab_bills_invoice_number_key"})
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, InvoiceConstraint(billing.DomainLab)))
	require.False(t, IsUniqueViolation(err, InvoiceConstraint(billing.DomainPharmacy)))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
}

func TestPgx5URL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/klinik", pgx5URL("postgres://u:p@localhost:5432/klinik"))
	require.Equal(t, "pgx5://localhost/klinik", pgx5URL("postgresql://localhost/klinik"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 6)
}
