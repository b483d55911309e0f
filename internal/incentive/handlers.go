package incentive

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-klinik/internal/common"
)

// Handler exposes referring doctor and incentive endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type payPayload struct {
	PaidOn      string `json:"paidOn" validate:"omitempty,datetime=2006-01-02"`
	PaymentMode string `json:"paymentMode" validate:"omitempty,oneof=cash card upi"`
	Notes       string `json:"notes" validate:"max=500"`
}

// Routes mounts the endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/referring-doctors", h.Doctors)
	r.Get("/incentives", h.List)
	r.Post("/incentives/{id}/pay", h.Pay)
}

// Doctors handles GET /referring-doctors?active=true.
func (h *Handler) Doctors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	rows, err := h.Svc.ListDoctors(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// List handles GET /incentives?status=pending|paid&doctorId=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status, err := ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	doctorID, err := common.PositiveID(r.URL.Query().Get("doctorId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "doctorId must be a positive integer", map[string]any{"field": "doctorId"})
		return
	}
	page := common.ParsePage(r, 50, 200)
	rows, err := h.Svc.ListIncentives(r.Context(), Filter{
		Status:   status,
		DoctorID: doctorID,
		Limit:    page.PerPage,
		Offset:   page.Offset(),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	var owed int64
	for _, row := range rows {
		if !row.Paid {
			owed += row.Amount
		}
	}
	common.JSON(w, http.StatusOK, struct {
		Data       []Incentive     `json:"data"`
		PendingSum int64           `json:"pendingSum"`
		Page       common.PageMeta `json:"page"`
	}{rows, owed, page.Meta(len(rows))})
}

// Pay handles POST /incentives/{id}/pay.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := common.PositiveID(chi.URLParam(r, "id"))
	if err != nil || id == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "incentive id must be a positive integer", map[string]any{"field": "id"})
		return
	}
	var payload payPayload
	if err := common.DecodeJSON(r, h.Validate, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	in := PayInput{PaymentMode: payload.PaymentMode, Notes: payload.Notes}
	if payload.PaidOn != "" {
		in.PaidOn, _ = time.Parse("2006-01-02", payload.PaidOn)
	}
	row, err := h.Svc.MarkPaid(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, row)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrAlreadyPaid):
		common.JSONError(w, http.StatusConflict, "ALREADY_PAID", err.Error(), nil)
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
