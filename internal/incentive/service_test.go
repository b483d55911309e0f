package incentive_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/incentive"
	"github.com/noah-isme/backend-klinik/internal/store"
)

type memIncentives struct {
	doctors    []store.ReferringDoctor
	rows       map[int64]store.DoctorIncentive
	lastParams store.ListDoctorIncentivesParams
}

func newMem() *memIncentives {
	return &memIncentives{
		doctors: []store.ReferringDoctor{
			{ID: 1, Name: "Dr. Rao", IncentiveBps: 1000, Active: true},
			{ID: 2, Name: "Dr. Iyer", IncentiveBps: 0, Active: false},
		},
		rows: map[int64]store.DoctorIncentive{
			10: {ID: 10, ReferringDoctorID: 1, BillID: 4, InvoiceNumber: "USG-00004", BillTotal: 120000, IncentiveBps: 1000, Amount: 12000},
		},
	}
}

func (m *memIncentives) ListReferringDoctors(_ context.Context, activeOnly bool) ([]store.ReferringDoctor, error) {
	var out []store.ReferringDoctor
	for _, d := range m.doctors {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *memIncentives) ListDoctorIncentives(_ context.Context, arg store.ListDoctorIncentivesParams) ([]store.DoctorIncentive, error) {
	m.lastParams = arg
	var out []store.DoctorIncentive
	for _, r := range m.rows {
		if arg.Paid.Valid && r.Paid != arg.Paid.Bool {
			continue
		}
		if arg.ReferringDoctorID.Valid && r.ReferringDoctorID != arg.ReferringDoctorID.Int64 {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memIncentives) GetDoctorIncentive(_ context.Context, id int64) (store.DoctorIncentive, error) {
	r, ok := m.rows[id]
	if !ok {
		return store.DoctorIncentive{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memIncentives) MarkIncentivePaid(_ context.Context, arg store.MarkIncentivePaidParams) (store.DoctorIncentive, error) {
	r, ok := m.rows[arg.ID]
	if !ok || r.Paid {
		return store.DoctorIncentive{}, pgx.ErrNoRows
	}
	r.Paid = true
	r.PaidOn = arg.PaidOn
	r.PaymentMode = arg.PaymentMode
	r.Notes = arg.Notes
	m.rows[arg.ID] = r
	return r, nil
}

func TestCompute(t *testing.T) {
	require.Equal(t, int64(12000), incentive.Compute(120000, 1000))
	// 333.35 rupees at 10% is 3333.5 paise, rounded half up.
	require.Equal(t, int64(3334), incentive.Compute(33335, 1000))
	require.Zero(t, incentive.Compute(120000, 0))
	require.Zero(t, incentive.Compute(0, 1500))
}

func TestMarkPaidTransitionsOnce(t *testing.T) {
	mem := newMem()
	svc := &incentive.Service{Q: mem, Now: func() time.Time { return time.Date(2026, 10, 17, 18, 30, 0, 0, time.UTC) }}

	paid, err := svc.MarkPaid(context.Background(), 10, incentive.PayInput{PaymentMode: "upi", Notes: " october "})
	require.NoError(t, err)
	require.True(t, paid.Paid)
	require.Equal(t, "2026-10-17", *paid.PaidOn)
	require.Equal(t, "upi", paid.PaymentMode)
	require.Equal(t, "october", paid.Notes)

	_, err = svc.MarkPaid(context.Background(), 10, incentive.PayInput{})
	require.ErrorIs(t, err, incentive.ErrAlreadyPaid)

	_, err = svc.MarkPaid(context.Background(), 99, incentive.PayInput{})
	require.ErrorIs(t, err, incentive.ErrNotFound)

	_, err = svc.MarkPaid(context.Background(), 10, incentive.PayInput{PaymentMode: "barter"})
	require.ErrorIs(t, err, incentive.ErrInvalidInput)
}

func TestListIncentivesFilters(t *testing.T) {
	mem := newMem()
	svc := &incentive.Service{Q: mem}

	rows, err := svc.ListIncentives(context.Background(), incentive.Filter{Status: incentive.StatusPending, DoctorID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, mem.lastParams.Paid.Valid)
	require.False(t, mem.lastParams.Paid.Bool)
	require.Equal(t, pgtype.Int8{Int64: 1, Valid: true}, mem.lastParams.ReferringDoctorID)
	require.Equal(t, int32(50), mem.lastParams.Limit)

	_, err = svc.ListIncentives(context.Background(), incentive.Filter{Status: "overdue"})
	require.ErrorIs(t, err, incentive.ErrInvalidFilter)
}

func TestIncentiveHandlers(t *testing.T) {
	mem := newMem()
	h := &incentive.Handler{Svc: &incentive.Service{Q: mem}, Validate: common.NewValidator()}
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/referring-doctors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doctors struct {
		Data []incentive.Doctor `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doctors))
	require.Len(t, doctors.Data, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incentives?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pendingSum":12000`)

	pay := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/incentives/10/pay", strings.NewReader(`{"paidOn":"2026-10-01","paymentMode":"cash"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, pay())
	require.Equal(t, http.StatusConflict, pay())
	require.Equal(t, "2026-10-01", mem.rows[10].PaidOn.Time.Format("2006-01-02"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incentives?status=late", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
