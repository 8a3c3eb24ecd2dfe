// Package loyalty ведёт баланс баллов пользователей и журнал их движения.
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/gopherfood/internal/model"
)

var (
	// ErrInsufficientPoints возвращается при попытке списать больше баллов, чем есть на балансе.
	ErrInsufficientPoints = model.NewError(model.KindRejected, "insufficient_points", "insufficient loyalty points")
	// ErrInvalidPoints возвращается для неположительного количества баллов.
	ErrInvalidPoints = model.NewError(model.KindValidation, "invalid_points", "points must be positive")
)

// EventKind — вид записи журнала баллов.
type EventKind string

const (
	EventEarn   EventKind = "earn"
	EventRedeem EventKind = "redeem"
	EventRefund EventKind = "refund"
)

// Event — запись журнала. Delta положительна для начислений и возвратов, отрицательна для списаний.
type Event struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      EventKind `json:"kind"`
	Delta     int64     `json:"delta"`
	OrderID   int64     `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Account — бонусный счёт пользователя. Balance равен сумме Delta всех записей журнала.
type Account struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

// Store описывает хранилище счетов. Внутри транзакции GetLoyaltyAccount блокирует счёт,
// AppendLoyaltyEvent сохраняет запись и новый баланс вместе.
type Store interface {
	GetLoyaltyAccount(ctx context.Context, userID int64) (*Account, error)
	AppendLoyaltyEvent(ctx context.Context, ev Event, newBalance int64) (int64, error)
}

// Ledger начисляет и списывает баллы.
type Ledger struct {
	store Store
}

// NewLedger создаёт журнал поверх хранилища.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Accrue начисляет баллы за доставленный заказ.
func (l *Ledger) Accrue(ctx context.Context, userID, points, orderID int64, now time.Time) (Event, error) {
	return l.apply(ctx, userID, EventEarn, points, orderID, now)
}

// Redeem списывает баллы при оформлении заказа.
func (l *Ledger) Redeem(ctx context.Context, userID, points, orderID int64, now time.Time) (Event, error) {
	return l.apply(ctx, userID, EventRedeem, -points, orderID, now)
}

// Refund возвращает ранее списанные баллы при отмене заказа.
func (l *Ledger) Refund(ctx context.Context, userID, points, orderID int64, now time.Time) (Event, error) {
	return l.apply(ctx, userID, EventRefund, points, orderID, now)
}

// Balance возвращает текущий баланс пользователя.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	acc, err := l.store.GetLoyaltyAccount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get loyalty account: %w", err)
	}
	return acc.Balance, nil
}

func (l *Ledger) apply(ctx context.Context, userID int64, kind EventKind, delta, orderID int64, now time.Time) (Event, error) {
	if delta == 0 || (kind == EventRedeem) != (delta < 0) {
		return Event{}, ErrInvalidPoints
	}

	acc, err := l.store.GetLoyaltyAccount(ctx, userID)
	if err != nil {
		return Event{}, fmt.Errorf("get loyalty account: %w", err)
	}

	balance := acc.Balance + delta
	if balance < 0 {
		return Event{}, ErrInsufficientPoints
	}

	ev := Event{
		UserID:    userID,
		Kind:      kind,
		Delta:     delta,
		OrderID:   orderID,
		CreatedAt: now,
	}
	id, err := l.store.AppendLoyaltyEvent(ctx, ev, balance)
	if err != nil {
		return Event{}, fmt.Errorf("append loyalty event: %w", err)
	}
	ev.ID = id

	return ev, nil
}
