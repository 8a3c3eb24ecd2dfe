package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/pricing"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

// Store описывает операции хранилища, доступные внутри транзакции жизненного цикла.
type Store interface {
	promo.Store
	loyalty.Store
	CreateOrder(ctx context.Context, o *Order) (int64, error)
	// GetOrder внутри транзакции блокирует заказ до её завершения.
	GetOrder(ctx context.Context, id int64) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
	DeleteCart(ctx context.Context, userID int64) error
}

// Transactor выполняет fn атомарно: при ошибке все изменения откатываются.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Publisher принимает события после фиксации транзакции.
type Publisher interface {
	Publish(ctx context.Context, events ...model.Event)
}

// Policy — настраиваемые правила оформления и отмены.
type Policy struct {
	MinOrderAmount int64
	CancelWindow   time.Duration
}

// Lifecycle управляет созданием заказов и переходами статусов.
type Lifecycle struct {
	tx        Transactor
	pricing   pricing.Engine
	policy    Policy
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option настраивает Lifecycle.
type Option func(*Lifecycle)

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// NewLifecycle создаёт жизненный цикл заказов.
func NewLifecycle(tx Transactor, engine pricing.Engine, policy Policy, publisher Publisher, logger *zap.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		tx:        tx,
		pricing:   engine,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func atStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return &stepError{step: step, err: err}
}

// Create оформляет заказ из снимка корзины. Создание заказа, учёт промокода, списание баллов
// и очистка корзины фиксируются одной транзакцией.
func (l *Lifecycle) Create(ctx context.Context, snap cart.Snapshot, redeemPoints int64) (*Order, error) {
	now := l.now()

	if len(snap.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}
	if redeemPoints < 0 {
		return nil, loyalty.ErrInvalidPoints
	}

	subtotal := l.pricing.Subtotal(snap.Lines)
	if subtotal < l.policy.MinOrderAmount {
		return nil, ErrMinimumOrderNotMet
	}

	var (
		created *Order
		events  []model.Event
	)

	err := l.tx.WithinTx(ctx, func(ctx context.Context, s Store) error {
		events = events[:0]
		registry := promo.NewRegistry(s)
		ledger := loyalty.NewLedger(s)

		var code *promo.Code
		if snap.PromoCode != "" {
			c, err := registry.Validate(ctx, snap.PromoCode, subtotal, snap.UserID, now)
			if err != nil {
				return atStep("validate promo", err)
			}
			code = c
		}
		discount := l.pricing.Discount(subtotal, code)

		var points, value int64
		if redeemPoints > 0 {
			balance, err := ledger.Balance(ctx, snap.UserID)
			if err != nil {
				return atStep("load loyalty balance", err)
			}
			points, value, err = l.pricing.Redemption(redeemPoints, balance, subtotal-discount)
			if err != nil {
				return atStep("redemption value", err)
			}
		}

		o := &Order{
			UserID:        snap.UserID,
			Lines:         linesFromCart(snap.Lines),
			Subtotal:      subtotal,
			Discount:      discount,
			LoyaltyPoints: points,
			LoyaltyValue:  value,
			Total:         l.pricing.Total(subtotal, discount, value),
			Status:        StatusPending,
			History:       []StatusChange{{Status: StatusPending, At: now, ActorID: snap.UserID}},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if code != nil {
			o.PromoCode = code.Code
		}

		id, err := s.CreateOrder(ctx, o)
		if err != nil {
			return atStep("create order", err)
		}
		o.ID = id
		events = append(events, model.OrderCreated{
			OrderID:   o.ID,
			UserID:    o.UserID,
			Subtotal:  o.Subtotal,
			Discount:  o.Discount,
			Total:     o.Total,
			Timestamp: now,
		})

		if code != nil {
			if err := registry.Consume(ctx, code.Code, o.UserID); err != nil {
				return atStep("consume promo", err)
			}
			events = append(events, model.PromoApplied{
				Code:           code.Code,
				OrderID:        o.ID,
				DiscountAmount: o.Discount,
				Timestamp:      now,
			})
		}

		if points > 0 {
			if _, err := ledger.Redeem(ctx, o.UserID, points, o.ID, now); err != nil {
				return atStep("redeem points", err)
			}
			events = append(events, model.LoyaltyRedeemed{
				UserID:    o.UserID,
				Points:    points,
				OrderID:   o.ID,
				Timestamp: now,
			})
		}

		if err := s.DeleteCart(ctx, o.UserID); err != nil {
			return atStep("clear cart", err)
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, l.checkoutError(snap.UserID, err)
	}

	l.publisher.Publish(ctx, events...)
	return created, nil
}

// checkoutError пропускает бизнес-отказы как есть, а прочие сбои логирует с шагом и
// заменяет общей ошибкой оформления.
func (l *Lifecycle) checkoutError(userID int64, err error) error {
	step := "commit"
	var se *stepError
	if errors.As(err, &se) {
		step = se.step
		err = se.err
	}

	if de, ok := model.AsError(err); ok && de.Kind != model.KindConsistency {
		return err
	}

	l.logger.Error("checkout failed",
		zap.String("step", step),
		zap.Int64("userID", userID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s", model.ErrCheckoutFailed, step)
}

// Transition переводит заказ в статус target. Доставка начисляет баллы, отмена возвращает
// списанные при оформлении баллы.
func (l *Lifecycle) Transition(ctx context.Context, orderID int64, target Status, actor model.Actor) (*Order, error) {
	now := l.now()

	var (
		updated *Order
		events  []model.Event
	)

	err := l.tx.WithinTx(ctx, func(ctx context.Context, s Store) error {
		events = events[:0]

		o, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(o.UserID) {
			return model.ErrForbidden
		}
		if !CanTransition(o.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, target)
		}
		if target != StatusCancelled && !actor.Admin {
			return model.ErrForbidden
		}
		if target == StatusCancelled && !actor.Admin && l.policy.CancelWindow > 0 &&
			now.Sub(o.CreatedAt) > l.policy.CancelWindow {
			return ErrCancellationWindowExpired
		}

		from := o.advance(target, actor.UserID, now)
		events = append(events, model.OrderStatusChanged{
			OrderID:   o.ID,
			UserID:    o.UserID,
			From:      string(from),
			To:        string(target),
			ActorID:   actor.UserID,
			Timestamp: now,
		})

		ledger := loyalty.NewLedger(s)
		switch target {
		case StatusDelivered:
			if points := l.pricing.Accrual(o.Total); points > 0 {
				if _, err := ledger.Accrue(ctx, o.UserID, points, o.ID, now); err != nil {
					return fmt.Errorf("accrue points: %w", err)
				}
				o.AccruedPoints = points
				events = append(events, model.LoyaltyAccrued{
					UserID:    o.UserID,
					Points:    points,
					OrderID:   o.ID,
					Timestamp: now,
				})
			}
		case StatusCancelled:
			if o.LoyaltyPoints > 0 {
				if _, err := ledger.Refund(ctx, o.UserID, o.LoyaltyPoints, o.ID, now); err != nil {
					return fmt.Errorf("refund points: %w", err)
				}
				events = append(events, model.LoyaltyRefunded{
					UserID:    o.UserID,
					Points:    o.LoyaltyPoints,
					OrderID:   o.ID,
					Timestamp: now,
				})
			}
		}

		if err := s.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.publisher.Publish(ctx, events...)
	return updated, nil
}

// Cancel отменяет заказ.
func (l *Lifecycle) Cancel(ctx context.Context, orderID int64, actor model.Actor) (*Order, error) {
	return l.Transition(ctx, orderID, StatusCancelled, actor)
}

// RecordPayment сохраняет платёжную ссылку заказа. Повторная запись той же ссылки не является ошибкой.
func (l *Lifecycle) RecordPayment(ctx context.Context, orderID int64, reference string, actor model.Actor) (*Order, error) {
	now := l.now()

	var (
		updated  *Order
		recorded bool
	)

	err := l.tx.WithinTx(ctx, func(ctx context.Context, s Store) error {
		o, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(o.UserID) {
			return model.ErrForbidden
		}
		if o.Status == StatusCancelled {
			return ErrPaymentNotAllowed
		}

		switch o.PaymentRef {
		case reference:
			recorded = false
		case "":
			o.PaymentRef = reference
			o.UpdatedAt = now
			if err := s.UpdateOrder(ctx, o); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
			recorded = true
		default:
			return ErrPaymentAlreadyRecorded
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if recorded {
		l.publisher.Publish(ctx, model.PaymentRecorded{OrderID: orderID, Reference: reference, Timestamp: now})
	}
	return updated, nil
}

func linesFromCart(lines []cart.Line) []Line {
	res := make([]Line, 0, len(lines))
	for _, l := range lines {
		res = append(res, Line{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Notes:     l.Notes,
		})
	}
	return res
}
