package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-klinik/internal/store"
)

// ErrInvalidPeriod is returned when a report period ends before it starts.
var ErrInvalidPeriod = errors.New("ledger: period end before start")

const dateLayout = "2006-01-02"

// BalanceReader sums journal lines per account.
type BalanceReader interface {
	AccountBalances(ctx context.Context, arg store.AccountBalancesParams) ([]store.AccountBalanceRow, error)
}

// AccountBalance is one account row of a report.
type AccountBalance struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Debit  int64  `json:"debit"`
	Credit int64  `json:"credit"`
}

// TrialBalance lists the closing balance of every account as of a date.
type TrialBalance struct {
	AsOf        string           `json:"asOf"`
	Accounts    []AccountBalance `json:"accounts"`
	TotalDebit  int64            `json:"totalDebit"`
	TotalCredit int64            `json:"totalCredit"`
	Balanced    bool             `json:"balanced"`
}

// ProfitAndLoss summarizes income and expense accounts over a period.
type ProfitAndLoss struct {
	From         string           `json:"from,omitempty"`
	To           string           `json:"to"`
	Income       []AccountBalance `json:"income"`
	Expenses     []AccountBalance `json:"expenses"`
	TotalIncome  int64            `json:"totalIncome"`
	TotalExpense int64            `json:"totalExpense"`
	NetProfit    int64            `json:"netProfit"`
}

// BuildTrialBalance nets each account to a single debit or credit figure.
func BuildTrialBalance(rows []store.AccountBalanceRow, asOf time.Time) TrialBalance {
	tb := TrialBalance{AsOf: asOf.Format(dateLayout), Accounts: []AccountBalance{}}
	for _, r := range rows {
		b := AccountBalance{Code: r.Code, Name: r.Name, Kind: r.Kind}
		if net := r.Debit - r.Credit; net >= 0 {
			b.Debit = net
		} else {
			b.Credit = -net
		}
		tb.TotalDebit += b.Debit
		tb.TotalCredit += b.Credit
		tb.Accounts = append(tb.Accounts, b)
	}
	tb.Balanced = tb.TotalDebit == tb.TotalCredit
	return tb
}

// BuildProfitAndLoss keeps income and expense accounts. Income is credit minus debit and
// expense is debit minus credit.
func BuildProfitAndLoss(rows []store.AccountBalanceRow, from, to time.Time) ProfitAndLoss {
	pl := ProfitAndLoss{To: to.Format(dateLayout), Income: []AccountBalance{}, Expenses: []AccountBalance{}}
	if !from.IsZero() {
		pl.From = from.Format(dateLayout)
	}
	for _, r := range rows {
		b := AccountBalance{Code: r.Code, Name: r.Name, Kind: r.Kind}
		switch r.Kind {
		case KindIncome:
			b.Credit = r.Credit - r.Debit
			pl.TotalIncome += b.Credit
			pl.Income = append(pl.Income, b)
		case KindExpense:
			b.Debit = r.Debit - r.Credit
			pl.TotalExpense += b.Debit
			pl.Expenses = append(pl.Expenses, b)
		}
	}
	pl.NetProfit = pl.TotalIncome - pl.TotalExpense
	return pl
}

// Reports reads account balances from the ledger tables.
type Reports struct {
	Q BalanceReader
}

func pgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// TrialBalance returns balances over every entry dated on or before asOf.
func (r *Reports) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	rows, err := r.Q.AccountBalances(ctx, store.AccountBalancesParams{To: pgDate(asOf)})
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(rows, asOf), nil
}

// ProfitAndLoss returns income and expenses for entries dated within [from, to].
// A zero from leaves the start open.
func (r *Reports) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	if !from.IsZero() && to.Before(from) {
		return ProfitAndLoss{}, ErrInvalidPeriod
	}
	rows, err := r.Q.AccountBalances(ctx, store.AccountBalancesParams{From: pgDate(from), To: pgDate(to)})
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(rows, from, to), nil
}
