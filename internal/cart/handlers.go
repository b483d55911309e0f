package cart

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type addItemPayload struct {
	ItemID   int64 `json:"itemId" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"omitempty,gte=1"`
}

type quantityPayload struct {
	Quantity int `json:"quantity"`
}

type discountPayload struct {
	Kind  string `json:"kind" validate:"required,oneof=percent fixed_amount"`
	Value int64  `json:"value" validate:"gte=0"`
}

func (p discountPayload) discount() pricing.Discount {
	return pricing.Discount{Kind: pricing.DiscountKind(p.Kind), Value: p.Value}
}

// LineView is one cart line with its resolved figures.
type LineView struct {
	Line
	LineTotal    int64 `json:"lineTotal"`
	ItemDiscount int64 `json:"itemDiscount"`
	CartDiscount int64 `json:"cartDiscount"`
	Net          int64 `json:"net"`
	Base         int64 `json:"taxableValue"`
	GST          int64 `json:"gst"`
}

// View is the recomputed cart returned by every cart endpoint.
type View struct {
	Domain                   billing.Domain             `json:"domain"`
	VisitID                  int64                      `json:"visitId"`
	Items                    []LineView                 `json:"items"`
	WholeDiscount            *pricing.Discount          `json:"wholeDiscount,omitempty"`
	ItemDiscounts            map[int64]pricing.Discount `json:"itemDiscounts,omitempty"`
	Subtotal                 int64                      `json:"subtotal"`
	ItemDiscountTotal        int64                      `json:"itemDiscountTotal"`
	CartDiscount             int64                      `json:"cartDiscount"`
	DiscountedTotal          int64                      `json:"discountedTotal"`
	TaxTotal                 int64                      `json:"taxTotal"`
	EffectiveDiscountPercent float64                    `json:"effectiveDiscountPercent"`
	FormFRequired            bool                       `json:"formFRequired,omitempty"`
	UpdatedAt                *time.Time                 `json:"updatedAt,omitempty"`
}

// NewView resolves pricing for c.
func NewView(c *Cart) View {
	sum := c.Quote()
	byID := make(map[int64]pricing.Line, len(sum.Lines))
	for _, l := range sum.Lines {
		byID[l.ItemID] = l
	}
	v := View{
		Domain:                   c.Domain,
		VisitID:                  c.VisitID,
		Items:                    make([]LineView, 0, len(c.Items)),
		WholeDiscount:            c.WholeDiscount,
		ItemDiscounts:            c.ItemDiscounts,
		Subtotal:                 sum.Subtotal,
		ItemDiscountTotal:        sum.ItemDiscountTotal,
		CartDiscount:             sum.CartDiscount,
		DiscountedTotal:          sum.DiscountedTotal,
		TaxTotal:                 sum.TaxTotal,
		EffectiveDiscountPercent: sum.EffectiveDiscountPercent,
		FormFRequired:            c.HasFormFItems(),
	}
	if !c.UpdatedAt.IsZero() {
		ts := c.UpdatedAt
		v.UpdatedAt = &ts
	}
	for _, it := range c.Items {
		l := byID[it.ItemID]
		v.Items = append(v.Items, LineView{
			Line:         it,
			LineTotal:    l.LineTotal,
			ItemDiscount: l.ItemDiscount,
			CartDiscount: l.CartDiscount,
			Net:          l.Net,
			Base:         l.Base,
			GST:          l.GST,
		})
	}
	return v
}

// Routes mounts the cart endpoints below /visits/{visitId}/carts/{domain}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Clear)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{itemId}", h.SetQuantity)
	r.Delete("/items/{itemId}", h.RemoveItem)
	r.Put("/items/{itemId}/discount", h.SetItemDiscount)
	r.Put("/discount", h.ApplyDiscount)
}

// Get returns the cart with recomputed totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), domain, visitID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

// AddItem adds a catalog item to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	var payload addItemPayload
	if err := common.DecodeJSON(r, h.Validate, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	c, outcome, err := h.Svc.AddItem(r.Context(), domain, visitID, payload.ItemID, payload.Quantity)
	h.respond(w, c, outcome, err)
}

// SetQuantity changes a pharmacy line quantity.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var payload quantityPayload
	if err := common.DecodeJSON(r, h.Validate, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, outcome, err := h.Svc.SetQuantity(r.Context(), domain, visitID, itemID, payload.Quantity)
	h.respond(w, c, outcome, err)
}

// RemoveItem drops a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	c, outcome, err := h.Svc.RemoveItem(r.Context(), domain, visitID, itemID)
	h.respond(w, c, outcome, err)
}

// SetItemDiscount sets a line discount. A zero value clears it.
func (h *Handler) SetItemDiscount(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var payload discountPayload
	if err := common.DecodeJSON(r, h.Validate, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, outcome, err := h.Svc.SetItemDiscount(r.Context(), domain, visitID, itemID, payload.discount())
	h.respond(w, c, outcome, err)
}

// ApplyDiscount sets the whole-cart discount. A zero value clears it.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	var payload discountPayload
	if err := common.DecodeJSON(r, h.Validate, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, outcome, err := h.Svc.ApplyDiscount(r.Context(), domain, visitID, payload.discount())
	h.respond(w, c, outcome, err)
}

// Clear discards the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	domain, visitID, ok := h.key(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), domain, visitID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respond(w http.ResponseWriter, c *Cart, outcome Outcome, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !outcome.Accepted {
		common.JSONError(w, http.StatusConflict, "CART_REJECTED", "cart change rejected", map[string]any{
			"reason": outcome.Reason,
			"cart":   NewView(c),
		})
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (billing.Domain, int64, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
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

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := common.PositiveID(chi.URLParam(r, "itemId"))
	if err != nil || id == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "item id must be a positive integer", map[string]any{"field": "itemId"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
