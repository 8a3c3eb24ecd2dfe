package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

type menuItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	Available   *bool  `json:"available"`
}

func (req menuItemRequest) item(id int64) model.MenuItem {
	item := model.MenuItem{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Available:   true,
	}
	if req.Available != nil {
		item.Available = *req.Available
	}
	return item
}

// CreateMenuItem добавляет позицию меню.
func (h *Handler) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	h.saveMenuItem(w, r, 0, http.StatusCreated)
}

// UpdateMenuItem заменяет позицию меню, в том числе её доступность.
func (h *Handler) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.saveMenuItem(w, r, id, http.StatusOK)
}

func (h *Handler) saveMenuItem(w http.ResponseWriter, r *http.Request, id int64, status int) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req menuItemRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.UpsertMenuItem(r.Context(), actor, req.item(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, item)
}

type createPromoRequest struct {
	Code           string             `json:"code"`
	Kind           promo.DiscountKind `json:"kind"`
	Rate           decimal.Decimal    `json:"rate"`
	Amount         int64              `json:"amount"`
	MinOrder       int64              `json:"min_order"`
	StartsAt       *time.Time         `json:"starts_at"`
	EndsAt         *time.Time         `json:"ends_at"`
	MaxUses        int                `json:"max_uses"`
	MaxUsesPerUser int                `json:"max_uses_per_user"`
}

// CreatePromo создаёт промокод.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createPromoRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	c := promo.Code{
		Code:           req.Code,
		Kind:           req.Kind,
		Rate:           req.Rate,
		Amount:         req.Amount,
		MinOrder:       req.MinOrder,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
	}
	if req.StartsAt != nil {
		c.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		c.EndsAt = *req.EndsAt
	}

	created, err := h.service.CreatePromo(r.Context(), actor, c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListPromos возвращает все промокоды.
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	codes, err := h.service.Promos(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if codes == nil {
		codes = []promo.Code{}
	}
	writeJSON(w, http.StatusOK, codes)
}

// DeactivatePromo выключает промокод.
func (h *Handler) DeactivatePromo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.service.DeactivatePromo(r.Context(), actor, chi.URLParam(r, "code")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOrdersByStatus возвращает заказы в статусе ?status=.
func (h *Handler) ListOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	orders, err := h.service.OrdersByStatus(r.Context(), actor, r.URL.Query().Get("status"))
	h.respondOrders(w, r, orders, err)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// TransitionOrder переводит заказ в новый статус.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.TransitionOrder(r.Context(), actor, id, req.Status)
	h.respondOrder(w, r, o, err)
}
