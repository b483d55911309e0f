package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/catalog"
	"github.com/noah-isme/backend-klinik/internal/store"
)

type fakeCatalogQueries struct {
	items     map[billing.Domain]map[int64]store.CatalogItem
	gets      int
	lastLimit int32
}

func newFakeCatalogQueries() *fakeCatalogQueries {
	return &fakeCatalogQueries{items: map[billing.Domain]map[int64]store.CatalogItem{
		billing.DomainLab: {
			1: {ID: 1, Name: "CBC", UnitPrice: 30000},
		},
		billing.DomainUltrasound: {
			7: {ID: 7, Name: "Obstetric scan", UnitPrice: 120000, FormFRequired: true},
		},
		billing.DomainPharmacy: {
			11: {
				ID: 11, Name: "Paracetamol 500", UnitPrice: 2000, GstBps: 1200, BatchNo: "B-77",
				ExpiryDate:     pgtype.Date{Time: time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC), Valid: true},
				CostPrice:      1400,
				AvailableStock: 40,
			},
		},
	}}
}

func (f *fakeCatalogQueries) GetCatalogItem(_ context.Context, domain billing.Domain, id int64) (store.CatalogItem, error) {
	f.gets++
	item, ok := f.items[domain][id]
	if !ok {
		return store.CatalogItem{}, pgx.ErrNoRows
	}
	return item, nil
}

func (f *fakeCatalogQueries) SearchCatalog(_ context.Context, domain billing.Domain, _ string, limit int32) ([]store.CatalogItem, error) {
	f.lastLimit = limit
	var out []store.CatalogItem
	for _, item := range f.items[domain] {
		out = append(out, item)
	}
	return out, nil
}

func newCache(t *testing.T) *catalog.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return catalog.NewCache(client, time.Minute)
}

func TestLookupCachesLabButNotPharmacy(t *testing.T) {
	q := newFakeCatalogQueries()
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: q, Cache: newCache(t)})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		item, err := svc.Lookup(ctx, billing.DomainLab, 1)
		require.NoError(t, err)
		require.Equal(t, "CBC", item.Name)
	}
	require.Equal(t, 1, q.gets)

	for i := 0; i < 2; i++ {
		item, err := svc.Lookup(ctx, billing.DomainPharmacy, 11)
		require.NoError(t, err)
		require.Equal(t, 40, item.AvailableStock)
		require.Equal(t, "2027-03-31", item.ExpiryDate)
		require.Equal(t, int32(1200), item.GSTBps)
	}
	require.Equal(t, 3, q.gets)
}

func TestLookupAfterInvalidateReadsDatabase(t *testing.T) {
	q := newFakeCatalogQueries()
	cache := newCache(t)
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: q, Cache: cache})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Lookup(ctx, billing.DomainUltrasound, 7)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, billing.DomainUltrasound, 7))
	item, err := svc.Lookup(ctx, billing.DomainUltrasound, 7)
	require.NoError(t, err)
	require.True(t, item.FormFRequired)
	require.Equal(t, 2, q.gets)
}

func TestLookupNotFound(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: newFakeCatalogQueries()})
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), billing.DomainLab, 999)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSearchClampsLimit(t *testing.T) {
	q := newFakeCatalogQueries()
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: q, DefaultLimit: 10, MaxLimit: 50})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), billing.DomainLab, "cbc", 0)
	require.NoError(t, err)
	require.Equal(t, int32(10), q.lastLimit)

	_, err = svc.Search(context.Background(), billing.DomainLab, "cbc", 500)
	require.NoError(t, err)
	require.Equal(t, int32(50), q.lastLimit)
}

func TestItemExpired(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	require.False(t, catalog.Item{ExpiryDate: "2026-10-17"}.Expired(now))
	require.True(t, catalog.Item{ExpiryDate: "2026-10-16"}.Expired(now))
	require.False(t, catalog.Item{}.Expired(now))
}

func TestCatalogHandlers(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: newFakeCatalogQueries(), Cache: newCache(t)})
	require.NoError(t, err)
	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)

	t.Run("search", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/pharmacy?search=para", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data []catalog.Item `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 1)
		require.Equal(t, "B-77", body.Data[0].BatchNo)
	})

	t.Run("unknown domain", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/xray", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("item not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/lab/404", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/lab?limit=abc", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
