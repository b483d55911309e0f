package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-klinik/internal/common"
)

// Handler serves the accounting reports.
type Handler struct {
	Reports *Reports
	Now     func() time.Time
}

// Routes mounts the report endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/profit-and-loss", h.ProfitAndLoss)
}

func (h *Handler) today() time.Time {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	t := now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDate(r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func badDate(w http.ResponseWriter, field string) {
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "date must be YYYY-MM-DD", map[string]any{"field": field})
}

// TrialBalance handles GET /reports/trial-balance?asOf=.
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseDate(r, "asOf", h.today())
	if !ok {
		badDate(w, "asOf")
		return
	}
	tb, err := h.Reports.TrialBalance(r.Context(), asOf)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to build trial balance", nil)
		return
	}
	common.Data(w, http.StatusOK, tb)
}

// ProfitAndLoss handles GET /reports/profit-and-loss?from=&to=.
func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, ok := parseDate(r, "from", time.Time{})
	if !ok {
		badDate(w, "from")
		return
	}
	to, ok := parseDate(r, "to", h.today())
	if !ok {
		badDate(w, "to")
		return
	}
	pl, err := h.Reports.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidPeriod) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), map[string]any{"field": "to"})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to build profit and loss", nil)
		return
	}
	common.Data(w, http.StatusOK, pl)
}
