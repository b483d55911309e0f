package settlement

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/store"
)

// Querier is the store surface used while committing a bill.
type Querier interface {
	MaxInvoiceSuffix(ctx context.Context, domain billing.Domain, prefix, regexPrefix string) (int64, error)
	MaxFormFSuffix(ctx context.Context, prefix, regexPrefix string) (int64, error)
	InsertBill(ctx context.Context, domain billing.Domain, arg store.InsertBillParams) (store.Bill, error)
	InsertBillItem(ctx context.Context, domain billing.Domain, arg store.InsertBillItemParams) (store.BillItem, error)
	DecrementStock(ctx context.Context, stockID int64, qty int32) (int64, error)
	InsertStockLog(ctx context.Context, arg store.InsertStockLogParams) error
	InsertDoctorIncentive(ctx context.Context, arg store.InsertDoctorIncentiveParams) (store.DoctorIncentive, error)
	InsertFormFRecord(ctx context.Context, arg store.InsertFormFRecordParams) (store.FormFRecord, error)
	InsertDomainEvent(ctx context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error)
}

// Reader is the store surface used outside transactions.
type Reader interface {
	GetReferringDoctor(ctx context.Context, id int64) (store.ReferringDoctor, error)
	GetBillByInvoice(ctx context.Context, domain billing.Domain, invoiceNumber string) (store.Bill, error)
	ListBillItems(ctx context.Context, domain billing.Domain, billID int64) ([]store.BillItem, error)
	ListBillsByVisit(ctx context.Context, domain billing.Domain, visitID int64) ([]store.Bill, error)
	GetFormFRecordByBill(ctx context.Context, billID int64) (store.FormFRecord, error)
	GetDoctorIncentiveByBill(ctx context.Context, billID int64) (store.DoctorIncentive, error)
}

// TxRunner runs fn inside one database transaction. A non-nil error from fn rolls back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Querier) error) error
}

// PoolTx implements TxRunner over a pgx pool.
type PoolTx struct {
	Pool *pgxpool.Pool
	Q    *store.Queries
}

// InTx implements TxRunner.
func (p PoolTx) InTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	q := p.Q
	if q == nil {
		q = store.New(p.Pool)
	}
	if err := fn(q.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
