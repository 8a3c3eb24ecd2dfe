// Package order содержит заказ, таблицу допустимых переходов статусов и жизненный цикл заказа.
package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/mmeshcher/gopherfood/internal/model"
)

// Status — статус заказа.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Statuses перечисляет все статусы в порядке жизненного цикла.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusDelivered,
	StatusCancelled,
}

// forward — единственный следующий статус прямого пути. Отмена допустима из любого нетерминального.
var forward = map[Status]Status{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

var (
	// ErrIllegalTransition возвращается при недопустимом переходе статуса.
	ErrIllegalTransition = model.NewError(model.KindRejected, "illegal_transition", "illegal status transition")
	// ErrCancellationWindowExpired возвращается при отмене после окна отмены без прав администратора.
	ErrCancellationWindowExpired = model.NewError(model.KindRejected, "cancellation_window_expired", "cancellation window expired")
	// ErrMinimumOrderNotMet возвращается, если сумма корзины меньше минимальной суммы заказа.
	ErrMinimumOrderNotMet = model.NewError(model.KindRejected, "minimum_order_not_met", "order amount is below minimum")
	// ErrNotFound возвращается, если заказ не найден.
	ErrNotFound = model.NewError(model.KindNotFound, "order_not_found", "order not found")
	// ErrInvalidStatus возвращается для неизвестного статуса.
	ErrInvalidStatus = model.NewError(model.KindValidation, "invalid_status", "unknown order status")
	// ErrPaymentNotAllowed возвращается при записи платежа для отменённого заказа.
	ErrPaymentNotAllowed = model.NewError(model.KindRejected, "payment_not_allowed", "payment cannot be recorded for this order")
	// ErrPaymentAlreadyRecorded возвращается при попытке заменить сохранённую платёжную ссылку.
	ErrPaymentAlreadyRecorded = model.NewError(model.KindRejected, "payment_already_recorded", "payment reference already recorded")
)

// ParseStatus разбирает строковое представление статуса.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !slices.Contains(Statuses, st) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition проверяет переход по таблице статусов.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	next, ok := forward[from]
	return ok && next == to
}

// Line — неизменяемая позиция заказа, скопированная из корзины.
type Line struct {
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Notes     string `json:"notes,omitempty"`
}

// StatusChange — запись истории статусов.
type StatusChange struct {
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	ActorID int64     `json:"actor_id"`
}

// Order — оформленный заказ. Total = Subtotal − Discount − LoyaltyValue, не меньше нуля.
type Order struct {
	ID            int64
	UserID        int64
	Lines         []Line
	Subtotal      int64
	Discount      int64
	PromoCode     string
	LoyaltyPoints int64
	LoyaltyValue  int64
	Total         int64
	Status        Status
	History       []StatusChange
	PaymentRef    string
	AccruedPoints int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone возвращает глубокую копию заказа.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	cp.History = slices.Clone(o.History)
	return &cp
}

func (o *Order) advance(to Status, actorID int64, now time.Time) Status {
	from := o.Status
	o.Status = to
	o.History = append(o.History, StatusChange{Status: to, At: now, ActorID: actorID})
	o.UpdatedAt = now
	return from
}
