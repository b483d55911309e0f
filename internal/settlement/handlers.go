package settlement

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/lock"
)

// Handler exposes finalize and bill lookup endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type finalizePayload struct {
	PaymentMode       string `json:"paymentMode" validate:"omitempty,oneof=cash card upi"`
	ReferringDoctorID *int64 `json:"referringDoctorId" validate:"omitempty,gt=0"`
}

// Finalize handles POST /visits/{visitId}/carts/{domain}/finalize.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	var payload finalizePayload
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, h.Validate, &payload); err != nil {
			h.writeError(w, err)
			return
		}
	}
	bill, err := h.Svc.Finalize(r.Context(), FinalizeInput{
		Domain:            domain,
		VisitID:           visitID,
		PaymentMode:       payload.PaymentMode,
		ReferringDoctorID: payload.ReferringDoctorID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, bill)
}

// ListByVisit handles GET /visits/{visitId}/bills/{domain}.
func (h *Handler) ListByVisit(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	bills, err := h.Svc.ListBills(r.Context(), domain, visitID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, bills)
}

// Get handles GET /bills/{domain}/{invoiceNumber}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	domain, err := billing.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), map[string]any{"field": "domain"})
		return
	}
	bill, err := h.Svc.GetBill(r.Context(), domain, chi.URLParam(r, "invoiceNumber"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, bill)
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (billing.Domain, int64, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return "", 0, false
	}
	domain, err := billing.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), map[string]any{"field": "domain"})
		return "", 0, false
	}
	visitID, err := common.PositiveID(chi.URLParam(r, "visitId"))
	if err != nil || visitID == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "visit id must be a positive integer", map[string]any{"field": "visitId"})
		return "", 0, false
	}
	return domain, visitID, true
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
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", ErrEmptyCart.Error(), nil)
	case errors.Is(err, ErrDoctorRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "DOCTOR_REQUIRED", ErrDoctorRequired.Error(), map[string]any{"field": "referringDoctorId"})
	case errors.Is(err, ErrDoctorNotFound):
		common.JSONError(w, http.StatusUnprocessableEntity, "DOCTOR_NOT_FOUND", ErrDoctorNotFound.Error(), map[string]any{"field": "referringDoctorId"})
	case errors.Is(err, ErrInsufficientStock):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrBillNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, lock.ErrLockTimeout):
		common.JSONError(w, http.StatusConflict, "FINALIZE_IN_PROGRESS", "another finalize for this cart is in progress", nil)
	case errors.Is(err, ErrFinalizeFailed):
		common.JSONError(w, http.StatusInternalServerError, "FINALIZE_FAILED", ErrFinalizeFailed.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
