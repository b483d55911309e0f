package settlement_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/lock"
	"github.com/noah-isme/backend-klinik/internal/settlement"
)

func newRouter(f *fixture) http.Handler {
	h := &settlement.Handler{Svc: f.svc, Validate: common.NewValidator()}
	r := chi.NewRouter()
	r.Post("/visits/{visitId}/carts/{domain}/finalize", h.Finalize)
	r.Get("/visits/{visitId}/bills/{domain}", h.ListByVisit)
	r.Get("/bills/{domain}/{invoiceNumber}", h.Get)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestFinalizeHandlerFlow(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	rec := do(t, router, http.MethodPost, "/visits/42/carts/lab/finalize", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "EMPTY_CART", errorCode(t, rec))

	f.seed(t, labCart(42))
	rec = do(t, router, http.MethodPost, "/visits/42/carts/lab/finalize", `{"paymentMode":"upi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data settlement.Bill `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "LAB-00001", created.Data.InvoiceNumber)
	require.Equal(t, int64(45000), created.Data.DiscountedTotal)

	rec = do(t, router, http.MethodGet, "/bills/lab/LAB-00001", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/visits/42/bills/lab", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []settlement.Bill `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)

	rec = do(t, router, http.MethodGet, "/bills/lab/LAB-00099", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinalizeHandlerRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	rec := do(t, router, http.MethodPost, "/visits/42/carts/radiology/finalize", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/visits/42/carts/lab/finalize", `{"paymentMode":"cheque"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, rec))

	f.seed(t, ultrasoundCart(9))
	rec = do(t, router, http.MethodPost, "/visits/9/carts/ultrasound/finalize", `{"paymentMode":"cash"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "DOCTOR_REQUIRED", errorCode(t, rec))
}

func TestFinalizeHandlerReportsHeldLock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, labCart(42))
	f.svc.Locker = lock.Locker{R: f.rdb, RetryBackoff: 5 * time.Millisecond, MaxWait: 25 * time.Millisecond}
	require.NoError(t, f.mr.Set(settlement.LockKey(billing.DomainLab, 42), "other-request"))

	rec := do(t, newRouter(f), http.MethodPost, "/visits/42/carts/lab/finalize", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "FINALIZE_IN_PROGRESS", errorCode(t, rec))
	require.Zero(t, f.db.attempts)

	cur, err := f.carts.Load(context.Background(), billing.DomainLab, 42)
	require.NoError(t, err)
	require.False(t, cur.IsEmpty())
}
