package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/store"
)

var (
	// ErrInvalidSale is returned for sales that cannot be journaled.
	ErrInvalidSale = errors.New("ledger: invalid sale")
	// ErrUnbalanced is returned when debits and credits differ.
	ErrUnbalanced = errors.New("ledger: entry not balanced")
	// ErrAlreadyPosted is returned when the bill already has a journal entry.
	ErrAlreadyPosted = errors.New("ledger: sale already posted")
)

// Sale is one finalized bill as seen by the ledger. Amounts are in paise and
// NetAmount includes TaxAmount.
type Sale struct {
	Domain      billing.Domain      `json:"domain"`
	BillID      int64               `json:"billId"`
	Reference   string              `json:"reference"`
	Date        time.Time           `json:"date"`
	NetAmount   int64               `json:"netAmount"`
	TaxAmount   int64               `json:"taxAmount"`
	CostOfGoods int64               `json:"costOfGoods"`
	PaymentMode billing.PaymentMode `json:"paymentMode"`
}

// Poster records sales in the accounting ledger.
type Poster interface {
	RecordSale(ctx context.Context, sale Sale) error
}

// Line is one side of a journal entry.
type Line struct {
	Account string `json:"account"`
	Debit   int64  `json:"debit"`
	Credit  int64  `json:"credit"`
}

// Entries builds the balanced journal lines of a sale. Zero-amount lines are omitted.
func Entries(s Sale) ([]Line, error) {
	revenue, ok := RevenueAccount(s.Domain)
	if !ok {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidSale, s.Domain)
	}
	if s.NetAmount < 0 || s.TaxAmount < 0 || s.CostOfGoods < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidSale)
	}
	if s.TaxAmount > s.NetAmount {
		return nil, fmt.Errorf("%w: tax exceeds net amount", ErrInvalidSale)
	}

	var lines []Line
	add := func(l Line) {
		if l.Debit != 0 || l.Credit != 0 {
			lines = append(lines, l)
		}
	}
	add(Line{Account: SettlementAccount(s.PaymentMode), Debit: s.NetAmount})
	add(Line{Account: revenue, Credit: s.NetAmount - s.TaxAmount})
	add(Line{Account: AccountGSTPayable, Credit: s.TaxAmount})
	add(Line{Account: AccountCOGS, Debit: s.CostOfGoods})
	add(Line{Account: AccountInventory, Credit: s.CostOfGoods})

	var debit, credit int64
	for _, l := range lines {
		debit += l.Debit
		credit += l.Credit
	}
	if debit != credit {
		return nil, fmt.Errorf("%w: debit %d credit %d", ErrUnbalanced, debit, credit)
	}
	return lines, nil
}

// Querier is the store surface used to write journal entries.
type Querier interface {
	InsertJournalEntry(ctx context.Context, arg store.InsertJournalEntryParams) (store.JournalEntry, error)
	InsertJournalLine(ctx context.Context, arg store.InsertJournalLineParams) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Querier) error) error
}

// PoolTx implements TxRunner over a pgx pool.
type PoolTx struct {
	Pool *pgxpool.Pool
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
	if err := fn(store.New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PGPoster writes one journal entry per bill into the local ledger tables.
type PGPoster struct {
	Tx     TxRunner
	Logger zerolog.Logger
}

// RecordSale implements Poster. Posting the same bill twice returns ErrAlreadyPosted.
func (p *PGPoster) RecordSale(ctx context.Context, s Sale) error {
	if p == nil || p.Tx == nil {
		return errors.New("ledger: poster not configured")
	}
	lines, err := Entries(s)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		p.Logger.Debug().Str("reference", s.Reference).Msg("zero value sale, nothing to post")
		return nil
	}
	date := s.Date
	if date.IsZero() {
		date = time.Now()
	}
	return p.Tx.InTx(ctx, func(q Querier) error {
		entry, err := q.InsertJournalEntry(ctx, store.InsertJournalEntryParams{
			SourceDomain: string(s.Domain),
			SourceID:     s.BillID,
			Reference:    s.Reference,
			EntryDate:    date,
			Memo:         fmt.Sprintf("%s sale %s (%s)", s.Domain, s.Reference, s.PaymentMode),
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAlreadyPosted
			}
			return fmt.Errorf("ledger: insert entry: %w", err)
		}
		for _, l := range lines {
			if err := q.InsertJournalLine(ctx, store.InsertJournalLineParams{
				EntryID:     entry.ID,
				AccountCode: l.Account,
				Debit:       l.Debit,
				Credit:      l.Credit,
			}); err != nil {
				return fmt.Errorf("ledger: insert line %s: %w", l.Account, err)
			}
		}
		return nil
	})
}
