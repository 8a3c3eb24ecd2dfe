// Package handler содержит HTTP-обработчики API ядра заказов. Фронтенд чат-бота передаёт
// уже разобранные намерения пользователя в виде JSON.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/middleware"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/order"
	"github.com/mmeshcher/gopherfood/internal/promo"
	"github.com/mmeshcher/gopherfood/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Menu(ctx context.Context, category string) ([]model.MenuItem, error)
	MenuItem(ctx context.Context, id int64) (model.MenuItem, error)
	UpsertMenuItem(ctx context.Context, actor model.Actor, item model.MenuItem) (model.MenuItem, error)

	ViewCart(ctx context.Context, userID int64) (service.CartView, error)
	AddToCart(ctx context.Context, userID, itemID int64, quantity int, notes string) (service.CartView, error)
	AdjustLine(ctx context.Context, userID, lineID int64, delta int) (service.CartView, error)
	RemoveLine(ctx context.Context, userID, lineID int64) (service.CartView, error)
	ClearCart(ctx context.Context, userID int64) (service.CartView, error)
	ApplyPromo(ctx context.Context, userID int64, code string) (service.CartView, error)
	RemovePromo(ctx context.Context, userID int64) (service.CartView, error)
	Checkout(ctx context.Context, userID int64, redeemPoints int64) (*order.Order, error)

	Orders(ctx context.Context, userID int64) ([]*order.Order, error)
	Order(ctx context.Context, actor model.Actor, id int64) (*order.Order, error)
	TransitionOrder(ctx context.Context, actor model.Actor, id int64, target string) (*order.Order, error)
	CancelOrder(ctx context.Context, actor model.Actor, id int64) (*order.Order, error)
	RecordPayment(ctx context.Context, actor model.Actor, id int64, reference string) (*order.Order, error)

	Balance(ctx context.Context, userID int64) (loyalty.Account, error)
	LoyaltyHistory(ctx context.Context, userID int64) ([]loyalty.Event, error)

	CreatePromo(ctx context.Context, actor model.Actor, c promo.Code) (promo.Code, error)
	DeactivatePromo(ctx context.Context, actor model.Actor, code string) error
	Promos(ctx context.Context, actor model.Actor) ([]promo.Code, error)
	OrdersByStatus(ctx context.Context, actor model.Actor, status string) ([]*order.Order, error)
}

// Handler реализует HTTP-обработчики API ядра заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// rejectedAsUnprocessable — отказы, которые фронтенд показывает как ошибку введённых данных.
var rejectedAsUnprocessable = []error{
	promo.ErrInvalid,
	promo.ErrExpired,
	promo.ErrMinimumNotMet,
	promo.ErrUsageLimitReached,
	loyalty.ErrInsufficientPoints,
}

func statusFor(err error, de *model.Error) int {
	switch de.Kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindRejected:
		for _, target := range rejectedAsUnprocessable {
			if errors.Is(err, target) {
				return http.StatusUnprocessableEntity
			}
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает машинным кодом доменной ошибки. Прочие ошибки логируются
// и не раскрываются клиенту.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := model.AsError(err)
	if !ok {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal",
			Message: http.StatusText(http.StatusInternalServerError),
		})
		return
	}

	writeJSON(w, statusFor(err, de), errorResponse{Error: de.Code, Message: de.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON разбирает тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return model.ErrInvalidInput
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.ErrInvalidInput
	}
	return id, nil
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return model.Actor{}, false
	}
	return actor, true
}

// Menu возвращает меню, при заданном ?category= — только одну категорию.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Menu(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.MenuItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MenuItem возвращает позицию меню.
func (h *Handler) MenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.MenuItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r)(h.service.ViewCart(r.Context(), actor.UserID))
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request) func(service.CartView, error) {
	return func(view service.CartView, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type addItemRequest struct {
	ItemID   int64  `json:"item_id"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

// AddCartItem добавляет позицию меню в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respondCart(w, r)(h.service.AddToCart(r.Context(), actor.UserID, req.ItemID, req.Quantity, req.Notes))
}

type adjustLineRequest struct {
	Delta int `json:"delta"`
}

// AdjustCartLine изменяет количество позиции на delta.
func (h *Handler) AdjustCartLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	lineID, err := pathID(r, "lineID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req adjustLineRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respondCart(w, r)(h.service.AdjustLine(r.Context(), actor.UserID, lineID, req.Delta))
}

// RemoveCartLine удаляет позицию из корзины.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	lineID, err := pathID(r, "lineID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respondCart(w, r)(h.service.RemoveLine(r.Context(), actor.UserID, lineID))
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r)(h.service.ClearCart(r.Context(), actor.UserID))
}

type promoRequest struct {
	Code string `json:"code"`
}

// ApplyPromo применяет промокод к корзине.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req promoRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respondCart(w, r)(h.service.ApplyPromo(r.Context(), actor.UserID, req.Code))
}

// RemovePromo снимает промокод с корзины.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r)(h.service.RemovePromo(r.Context(), actor.UserID))
}

type checkoutRequest struct {
	RedeemPoints int64 `json:"redeem_points"`
}

// Checkout оформляет заказ из корзины.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.Checkout(r.Context(), actor.UserID, req.RedeemPoints)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

type statusChangeResponse struct {
	Status  string `json:"status"`
	At      string `json:"at"`
	ActorID int64  `json:"actor_id"`
}

type orderResponse struct {
	ID            int64                  `json:"id"`
	UserID        int64                  `json:"user_id"`
	Status        string                 `json:"status"`
	Lines         []order.Line           `json:"lines"`
	Subtotal      int64                  `json:"subtotal"`
	Discount      int64                  `json:"discount"`
	PromoCode     string                 `json:"promo_code,omitempty"`
	LoyaltyPoints int64                  `json:"loyalty_points"`
	LoyaltyValue  int64                  `json:"loyalty_value"`
	Total         int64                  `json:"total"`
	AccruedPoints int64                  `json:"accrued_points"`
	PaymentRef    string                 `json:"payment_ref,omitempty"`
	History       []statusChangeResponse `json:"history"`
	CreatedAt     string                 `json:"created_at"`
	UpdatedAt     string                 `json:"updated_at"`
}

func newOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		Lines:         o.Lines,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		PromoCode:     o.PromoCode,
		LoyaltyPoints: o.LoyaltyPoints,
		LoyaltyValue:  o.LoyaltyValue,
		Total:         o.Total,
		AccruedPoints: o.AccruedPoints,
		PaymentRef:    o.PaymentRef,
		History:       make([]statusChangeResponse, 0, len(o.History)),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
	}
	for _, h := range o.History {
		resp.History = append(resp.History, statusChangeResponse{
			Status:  string(h.Status),
			At:      h.At.Format(time.RFC3339),
			ActorID: h.ActorID,
		})
	}
	return resp
}

func (h *Handler) respondOrders(w http.ResponseWriter, r *http.Request, orders []*order.Order, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// GetOrders возвращает историю заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	orders, err := h.service.Orders(r.Context(), actor.UserID)
	h.respondOrders(w, r, orders, err)
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.Order(r.Context(), actor, id)
	h.respondOrder(w, r, o, err)
}

// CancelOrder отменяет заказ.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.CancelOrder(r.Context(), actor, id)
	h.respondOrder(w, r, o, err)
}

type paymentRequest struct {
	Reference string `json:"reference"`
}

// RecordPayment сохраняет платёжную ссылку заказа.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.RecordPayment(r.Context(), actor, id, req.Reference)
	h.respondOrder(w, r, o, err)
}

// GetBalance возвращает бонусный счёт текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	acc, err := h.service.Balance(r.Context(), actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GetLoyaltyEvents возвращает журнал баллов текущего пользователя.
func (h *Handler) GetLoyaltyEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	events, err := h.service.LoyaltyHistory(r.Context(), actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
