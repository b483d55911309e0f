package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertJournalEntry = `-- name: InsertJournalEntry :one
INSERT INTO journal_entries (source_domain, source_id, reference, entry_date, memo)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source_domain, source_id) DO NOTHING
RETURNING id, source_domain, source_id, reference, entry_date, memo
`

type InsertJournalEntryParams struct {
	SourceDomain string
	SourceID     int64
	Reference    string
	EntryDate    time.Time
	Memo         string
}

// InsertJournalEntry returns pgx.ErrNoRows when an entry for the same source already exists.
func (q *Queries) InsertJournalEntry(ctx context.Context, arg InsertJournalEntryParams) (JournalEntry, error) {
	var e JournalEntry
	err := q.db.QueryRow(ctx, insertJournalEntry, arg.SourceDomain, arg.SourceID, arg.Reference, arg.EntryDate, arg.Memo).Scan(
		&e.ID, &e.SourceDomain, &e.SourceID, &e.Reference, &e.EntryDate, &e.Memo,
	)
	return e, err
}

const insertJournalLine = `-- name: InsertJournalLine :exec
INSERT INTO journal_lines (entry_id, account_code, debit, credit) VALUES ($1, $2, $3, $4)
`

type InsertJournalLineParams struct {
	EntryID     int64
	AccountCode string
	Debit       int64
	Credit      int64
}

func (q *Queries) InsertJournalLine(ctx context.Context, arg InsertJournalLineParams) error {
	_, err := q.db.Exec(ctx, insertJournalLine, arg.EntryID, arg.AccountCode, arg.Debit, arg.Credit)
	return err
}

const accountBalances = `-- name: AccountBalances :many
SELECT a.code, a.name, a.kind,
       COALESCE(SUM(x.debit), 0)::bigint  AS debit,
       COALESCE(SUM(x.credit), 0)::bigint AS credit
FROM ledger_accounts a
LEFT JOIN (
    SELECT l.account_code, l.debit, l.credit
    FROM journal_lines l
    JOIN journal_entries e ON e.id = l.entry_id
    WHERE ($1::date IS NULL OR e.entry_date >= $1::date)
      AND ($2::date IS NULL OR e.entry_date <= $2::date)
) x ON x.account_code = a.code
GROUP BY a.code, a.name, a.kind
ORDER BY a.code
`

type AccountBalancesParams struct {
	From pgtype.Date
	To   pgtype.Date
}

// AccountBalances sums debits and credits per account for entries dated within [From, To].
// Null bounds are open.
func (q *Queries) AccountBalances(ctx context.Context, arg AccountBalancesParams) ([]AccountBalanceRow, error) {
	rows, err := q.db.Query(ctx, accountBalances, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AccountBalanceRow
	for rows.Next() {
		var r AccountBalanceRow
		if err := rows.Scan(&r.Code, &r.Name, &r.Kind, &r.Debit, &r.Credit); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
