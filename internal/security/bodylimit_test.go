package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/common"
)

type addItem struct {
	ItemID int64 `json:"itemId"`
}

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 64}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits/1/carts/lab/items", strings.NewReader(`{"itemId":3}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"itemId":3}`, captured)
}

func TestBodyLimitStreamedOverflowSurfacesFromDecode(t *testing.T) {
	var decodeErr error
	handler := BodyLimit{Max: 5}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p addItem
		decodeErr = common.DecodeJSON(r, nil, &p)
	}))

	req := httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader(`{"itemId":12345}`))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var appErr *common.AppError
	require.ErrorAs(t, decodeErr, &appErr)
	require.Equal(t, "PAYLOAD_TOO_LARGE", appErr.Code)
	require.Equal(t, http.StatusRequestEntityTooLarge, appErr.HTTPStatus)
}

func TestBodyLimitRejectsDeclaredContentLength(t *testing.T) {
	called := false
	handler := BodyLimit{Max: 5}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader("content"))
	req.ContentLength = 100
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.JSONEq(t, `{"error":{"code":"PAYLOAD_TOO_LARGE","message":"request entity too large","details":{"maxBytes":5}}}`, rr.Body.String())
	require.False(t, called)
}

func TestBodyLimitSkipsWhenDisabled(t *testing.T) {
	handler := BodyLimit{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payload", strings.NewReader(strings.Repeat("x", 1024))))
	require.Equal(t, http.StatusNoContent, rr.Code)
}
