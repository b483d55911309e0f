package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/events"
	"github.com/noah-isme/backend-klinik/internal/ledger"
	"github.com/noah-isme/backend-klinik/internal/resilience"
	"github.com/noah-isme/backend-klinik/internal/store"
)

func balance(t *testing.T, lines []ledger.Line) {
	t.Helper()
	var d, c int64
	for _, l := range lines {
		d += l.Debit
		c += l.Credit
	}
	require.Equal(t, d, c)
}

func TestEntriesPharmacySale(t *testing.T) {
	lines, err := ledger.Entries(ledger.Sale{
		Domain: billing.DomainPharmacy, BillID: 1, Reference: "PHR-00001",
		NetAmount: 28000, TaxAmount: 3000, CostOfGoods: 20000, PaymentMode: billing.PaymentUPI,
	})
	require.NoError(t, err)
	balance(t, lines)
	require.Equal(t, []ledger.Line{
		{Account: ledger.AccountBank, Debit: 28000},
		{Account: ledger.AccountPharmacyRevenue, Credit: 25000},
		{Account: ledger.AccountGSTPayable, Credit: 3000},
		{Account: ledger.AccountCOGS, Debit: 20000},
		{Account: ledger.AccountInventory, Credit: 20000},
	}, lines)
}

func TestEntriesLabCashSaleSkipsZeroLines(t *testing.T) {
	lines, err := ledger.Entries(ledger.Sale{Domain: billing.DomainLab, NetAmount: 45000, PaymentMode: billing.PaymentCash})
	require.NoError(t, err)
	require.Equal(t, []ledger.Line{
		{Account: ledger.AccountCash, Debit: 45000},
		{Account: ledger.AccountLabRevenue, Credit: 45000},
	}, lines)

	lines, err = ledger.Entries(ledger.Sale{Domain: billing.DomainUltrasound})
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestEntriesRejectsBadSales(t *testing.T) {
	_, err := ledger.Entries(ledger.Sale{Domain: "radiology", NetAmount: 1})
	require.ErrorIs(t, err, ledger.ErrInvalidSale)
	_, err = ledger.Entries(ledger.Sale{Domain: billing.DomainLab, NetAmount: 100, TaxAmount: 200})
	require.ErrorIs(t, err, ledger.ErrInvalidSale)
	_, err = ledger.Entries(ledger.Sale{Domain: billing.DomainLab, NetAmount: -1})
	require.ErrorIs(t, err, ledger.ErrInvalidSale)
}

type memJournal struct {
	entries map[string]store.JournalEntry
	lines   []store.InsertJournalLineParams
	failOn  string
}

type memTx struct {
	db      *memJournal
	entries map[string]store.JournalEntry
	lines   []store.InsertJournalLineParams
}

func (m *memJournal) InTx(_ context.Context, fn func(ledger.Querier) error) error {
	tx := &memTx{db: m, entries: map[string]store.JournalEntry{}}
	for k, v := range m.entries {
		tx.entries[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.entries = tx.entries
	m.lines = append(m.lines, tx.lines...)
	return nil
}

func (t *memTx) InsertJournalEntry(_ context.Context, arg store.InsertJournalEntryParams) (store.JournalEntry, error) {
	key := arg.SourceDomain + "/" + arg.Reference
	if _, ok := t.entries[key]; ok {
		return store.JournalEntry{}, pgx.ErrNoRows
	}
	e := store.JournalEntry{ID: int64(len(t.entries) + 1), SourceDomain: arg.SourceDomain, SourceID: arg.SourceID, Reference: arg.Reference, EntryDate: arg.EntryDate, Memo: arg.Memo}
	t.entries[key] = e
	return e, nil
}

func (t *memTx) InsertJournalLine(_ context.Context, arg store.InsertJournalLineParams) error {
	if arg.AccountCode == t.db.failOn {
		return errors.New("fk violation")
	}
	t.lines = append(t.lines, arg)
	return nil
}

func TestPGPosterIsIdempotent(t *testing.T) {
	db := &memJournal{entries: map[string]store.JournalEntry{}}
	p := &ledger.PGPoster{Tx: db}
	sale := ledger.Sale{Domain: billing.DomainLab, BillID: 7, Reference: "LAB-00007", NetAmount: 5000, PaymentMode: billing.PaymentCard}

	require.NoError(t, p.RecordSale(context.Background(), sale))
	require.Len(t, db.lines, 2)
	require.ErrorIs(t, p.RecordSale(context.Background(), sale), ledger.ErrAlreadyPosted)
	require.Len(t, db.lines, 2)
}

func TestPGPosterRollsBackOnLineFailure(t *testing.T) {
	db := &memJournal{entries: map[string]store.JournalEntry{}, failOn: ledger.AccountGSTPayable}
	p := &ledger.PGPoster{Tx: db}
	err := p.RecordSale(context.Background(), ledger.Sale{Domain: billing.DomainPharmacy, BillID: 1, Reference: "PHR-00001", NetAmount: 1120, TaxAmount: 120})
	require.Error(t, err)
	require.Empty(t, db.entries)
	require.Empty(t, db.lines)
}

var sampleRows = []store.AccountBalanceRow{
	{Code: "1000", Name: "Cash in Hand", Kind: "asset", Debit: 45000},
	{Code: "1010", Name: "Bank", Kind: "asset", Debit: 28000},
	{Code: "1200", Name: "Pharmacy Inventory", Kind: "asset", Credit: 20000},
	{Code: "2100", Name: "GST Payable", Kind: "liability", Credit: 3000},
	{Code: "4000", Name: "Laboratory Revenue", Kind: "income", Credit: 45000},
	{Code: "4010", Name: "Pharmacy Sales", Kind: "income", Credit: 25000},
	{Code: "4020", Name: "Ultrasound Revenue", Kind: "income"},
	{Code: "5000", Name: "Cost of Goods Sold", Kind: "expense", Debit: 20000},
}

func TestBuildTrialBalance(t *testing.T) {
	tb := ledger.BuildTrialBalance(sampleRows, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "2026-10-17", tb.AsOf)
	require.True(t, tb.Balanced)
	require.Equal(t, int64(93000), tb.TotalDebit)
	require.Equal(t, int64(20000), tb.Accounts[2].Credit)
}

func TestBuildProfitAndLoss(t *testing.T) {
	pl := ledger.BuildProfitAndLoss(sampleRows, time.Time{}, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	require.Empty(t, pl.From)
	require.Len(t, pl.Income, 3)
	require.Len(t, pl.Expenses, 1)
	require.Equal(t, int64(70000), pl.TotalIncome)
	require.Equal(t, int64(20000), pl.TotalExpense)
	require.Equal(t, int64(50000), pl.NetProfit)
}

type rowsReader struct {
	last store.AccountBalancesParams
}

func (r *rowsReader) AccountBalances(_ context.Context, arg store.AccountBalancesParams) ([]store.AccountBalanceRow, error) {
	r.last = arg
	return sampleRows, nil
}

func TestReportHandlers(t *testing.T) {
	reader := &rowsReader{}
	h := &ledger.Handler{
		Reports: &ledger.Reports{Q: reader},
		Now:     func() time.Time { return time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC) },
	}
	r := chi.NewRouter()
	r.Route("/reports", h.Routes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/trial-balance", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, reader.last.From.Valid)
	require.Equal(t, "2026-10-17", reader.last.To.Time.Format("2006-01-02"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/profit-and-loss?from=2026-10-01&to=2026-10-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data ledger.ProfitAndLoss `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2026-10-01", body.Data.From)
	require.Equal(t, int64(50000), body.Data.NetProfit)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/profit-and-loss?from=2026-10-31&to=2026-10-01", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/trial-balance?asOf=17-10-2026", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubPoster struct {
	err   error
	sales []ledger.Sale
}

func (s *stubPoster) RecordSale(_ context.Context, sale ledger.Sale) error {
	s.sales = append(s.sales, sale)
	return s.err
}

func billTask(t *testing.T, ev events.BillFinalized) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return asynq.NewTask(events.TaskType(events.TopicBillFinalized), payload)
}

func TestTaskHandlerPostsSale(t *testing.T) {
	poster := &stubPoster{}
	h := &ledger.TaskHandler{Poster: poster}
	at := time.Date(2026, 10, 17, 11, 0, 0, 0, time.UTC)
	err := h.ProcessTask(context.Background(), billTask(t, events.BillFinalized{
		Domain: "pharmacy", BillID: 3, InvoiceNumber: "PHR-00003", NetAmount: 1120, TaxAmount: 120,
		CostOfGoods: 800, PaymentMode: "upi", FinalizedAt: at,
	}))
	require.NoError(t, err)
	require.Len(t, poster.sales, 1)
	require.Equal(t, billing.PaymentUPI, poster.sales[0].PaymentMode)
	require.Equal(t, at, poster.sales[0].Date)

	poster.err = ledger.ErrAlreadyPosted
	require.NoError(t, h.ProcessTask(context.Background(), billTask(t, events.BillFinalized{Domain: "lab", BillID: 3, InvoiceNumber: "LAB-00003"})))
}

func TestTaskHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := &ledger.TaskHandler{Poster: &stubPoster{}}
	err := h.ProcessTask(context.Background(), asynq.NewTask(events.TaskType(events.TopicBillFinalized), []byte(`{"domain":"lab"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), billTask(t, events.BillFinalized{Domain: "lab", BillID: 1, PaymentMode: "cheque"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskHandlerOpensBreaker(t *testing.T) {
	poster := &stubPoster{err: errors.New("db down")}
	h := &ledger.TaskHandler{Poster: poster, Breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "ledger_test", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute})}
	task := billTask(t, events.BillFinalized{Domain: "lab", BillID: 1, InvoiceNumber: "LAB-00001", NetAmount: 100})

	require.Error(t, h.ProcessTask(context.Background(), task))
	require.Error(t, h.ProcessTask(context.Background(), task))
	err := h.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Len(t, poster.sales, 2)
}

func TestTaskHandlerRejectedProbeClosesBreaker(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name: "ledger_test", MinRequests: 1, FailureRatio: 0.5, OpenFor: time.Minute,
		Now: func() time.Time { return now },
	})
	poster := &stubPoster{err: errors.New("db down")}
	h := &ledger.TaskHandler{Poster: poster, Breaker: breaker}
	task := billTask(t, events.BillFinalized{Domain: "lab", BillID: 1, InvoiceNumber: "LAB-00001", NetAmount: 100})

	require.Error(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, resilience.Open, breaker.State())

	now = now.Add(2 * time.Minute)
	poster.err = fmt.Errorf("%w: bad", ledger.ErrInvalidSale)
	require.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)
	require.Equal(t, resilience.Closed, breaker.State())

	poster.err = nil
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, poster.sales, 3)
}

func TestHTTPPosterSignsAndMapsConflict(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "lab:9", r.Header.Get("X-Idempotency-Key"))
		require.Equal(t, ledger.Signature("s3cret", 1760000000, "LAB-00009", body), r.Header.Get("X-Signature"))
		if n > 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := &ledger.HTTPPoster{
		URL:    srv.URL,
		Secret: "s3cret",
		Client: resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		Now:    func() time.Time { return time.Unix(1760000000, 0) },
	}
	sale := ledger.Sale{Domain: billing.DomainLab, BillID: 9, Reference: "LAB-00009", NetAmount: 100}
	require.NoError(t, p.RecordSale(context.Background(), sale))
	require.ErrorIs(t, p.RecordSale(context.Background(), sale), ledger.ErrAlreadyPosted)
}

func TestHTTPPosterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &ledger.HTTPPoster{
		URL:    srv.URL,
		Client: resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond},
	}
	require.NoError(t, p.RecordSale(context.Background(), ledger.Sale{Domain: billing.DomainLab, BillID: 1, Reference: "LAB-00001"}))
	require.Equal(t, int32(3), calls.Load())
}
