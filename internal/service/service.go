// Package service реализует входящие операции ядра заказов: меню, корзина, оформление,
// статусы заказов, баллы лояльности и администрирование промокодов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/order"
	"github.com/mmeshcher/gopherfood/internal/pricing"
	"github.com/mmeshcher/gopherfood/internal/promo"
	"github.com/mmeshcher/gopherfood/internal/repository"
	"github.com/mmeshcher/gopherfood/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	order.Transactor
	promo.Store
	loyalty.Store
	Close() error

	ListMenu(ctx context.Context, category string) ([]model.MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (model.MenuItem, error)
	SaveMenuItem(ctx context.Context, item model.MenuItem) (model.MenuItem, error)

	GetCart(ctx context.Context, userID int64) (*cart.Cart, error)
	SaveCart(ctx context.Context, c *cart.Cart) error
	DeleteCart(ctx context.Context, userID int64) error

	CreatePromoCode(ctx context.Context, c promo.Code) error
	SetPromoActive(ctx context.Context, code string, active bool) error
	ListPromoCodes(ctx context.Context) ([]promo.Code, error)

	ListLoyaltyEvents(ctx context.Context, userID int64) ([]loyalty.Event, error)

	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*order.Order, error)
	ListOrdersByStatus(ctx context.Context, status order.Status) ([]*order.Order, error)
}

// Options — правила ядра заказов, задаваемые конфигурацией.
type Options struct {
	CartTTL        time.Duration
	MinOrderAmount int64
	CancelWindow   time.Duration
	AccrualRate    decimal.Decimal
	PointsPerUnit  int64
}

// Service содержит бизнес-логику ядра заказов.
type Service struct {
	repo      Repository
	pricing   pricing.Engine
	lifecycle *order.Lifecycle
	registry  *promo.Registry
	ledger    *loyalty.Ledger
	locks     *userLocks
	cartTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock задаёт источник текущего времени для сервиса и жизненного цикла заказов.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт сервис. События зафиксированных операций передаются publisher.
func NewService(repo Repository, publisher order.Publisher, opts Options, logger *zap.Logger, options ...Option) *Service {
	s := &Service{
		repo:     repo,
		pricing:  pricing.NewEngine(opts.AccrualRate, opts.PointsPerUnit),
		registry: promo.NewRegistry(repo),
		ledger:   loyalty.NewLedger(repo),
		locks:    newUserLocks(),
		cartTTL:  opts.CartTTL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.lifecycle = order.NewLifecycle(repo, s.pricing,
		order.Policy{MinOrderAmount: opts.MinOrderAmount, CancelWindow: opts.CancelWindow},
		publisher, logger, order.WithClock(func() time.Time { return s.now() }))
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func requireAdmin(actor model.Actor) error {
	if !actor.Admin {
		return model.ErrForbidden
	}
	return nil
}

// Menu возвращает меню, при непустом category — только указанной категории.
func (s *Service) Menu(ctx context.Context, category string) ([]model.MenuItem, error) {
	return s.repo.ListMenu(ctx, category)
}

// MenuItem возвращает позицию меню.
func (s *Service) MenuItem(ctx context.Context, id int64) (model.MenuItem, error) {
	return s.repo.GetMenuItem(ctx, id)
}

// UpsertMenuItem создаёт позицию (ID == 0) или обновляет существующую. Только для администратора.
// Изменение цены не затрагивает строки, уже лежащие в корзинах.
func (s *Service) UpsertMenuItem(ctx context.Context, actor model.Actor, item model.MenuItem) (model.MenuItem, error) {
	if err := requireAdmin(actor); err != nil {
		return model.MenuItem{}, err
	}
	if item.Name == "" || item.Price < 0 {
		return model.MenuItem{}, fmt.Errorf("%w: name and non-negative price are required", model.ErrInvalidInput)
	}
	if item.ID != 0 {
		if _, err := s.repo.GetMenuItem(ctx, item.ID); err != nil {
			return model.MenuItem{}, err
		}
	}

	item.UpdatedAt = s.now()
	return s.repo.SaveMenuItem(ctx, item)
}

// CartView — содержимое корзины с предварительным расчётом сумм.
type CartView struct {
	UserID       int64       `json:"user_id"`
	Lines        []cart.Line `json:"lines"`
	PromoCode    string      `json:"promo_code,omitempty"`
	PromoProblem string      `json:"promo_problem,omitempty"`
	Subtotal     int64       `json:"subtotal"`
	Discount     int64       `json:"discount"`
	Total        int64       `json:"total"`
	LastModified time.Time   `json:"last_modified"`
}

// loadCart возвращает корзину пользователя. Просроченная корзина удаляется и заменяется пустой.
func (s *Service) loadCart(ctx context.Context, userID int64, now time.Time) (*cart.Cart, error) {
	c, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return cart.New(userID, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	if c.IsExpired(now, s.cartTTL) {
		s.logger.Debug("cart expired",
			zap.Int64("userID", userID),
			zap.Time("lastModified", c.LastModified),
		)
		if err := s.repo.DeleteCart(ctx, userID); err != nil {
			return nil, fmt.Errorf("delete expired cart: %w", err)
		}
		return cart.New(userID, now), nil
	}
	return c, nil
}

func (s *Service) saveCart(ctx context.Context, c *cart.Cart) error {
	if err := s.repo.SaveCart(ctx, c); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// view рассчитывает суммы корзины. Недействительный промокод не снимается с корзины,
// а помечается кодом проблемы: при оформлении он будет проверен ещё раз.
func (s *Service) view(ctx context.Context, c *cart.Cart, now time.Time) (CartView, error) {
	v := CartView{
		UserID:       c.UserID,
		Lines:        c.Lines,
		PromoCode:    c.PromoCode,
		Subtotal:     s.pricing.Subtotal(c.Lines),
		LastModified: c.LastModified,
	}
	if v.Lines == nil {
		v.Lines = []cart.Line{}
	}

	if c.PromoCode != "" {
		code, err := s.registry.Validate(ctx, c.PromoCode, v.Subtotal, c.UserID, now)
		switch de, ok := model.AsError(err); {
		case err == nil:
			v.Discount = s.pricing.Discount(v.Subtotal, code)
		case ok && de.Kind != model.KindConsistency:
			v.PromoProblem = de.Code
		default:
			return CartView{}, fmt.Errorf("validate promo: %w", err)
		}
	}

	v.Total = s.pricing.Total(v.Subtotal, v.Discount, 0)
	return v, nil
}

// ViewCart возвращает корзину пользователя.
func (s *Service) ViewCart(ctx context.Context, userID int64) (CartView, error) {
	defer s.locks.lock(userID)()

	now := s.now()
	c, err := s.loadCart(ctx, userID, now)
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, c, now)
}

// mutateCart загружает корзину под блокировкой пользователя, применяет fn и сохраняет результат.
func (s *Service) mutateCart(ctx context.Context, userID int64, fn func(c *cart.Cart, now time.Time) error) (CartView, error) {
	defer s.locks.lock(userID)()

	now := s.now()
	c, err := s.loadCart(ctx, userID, now)
	if err != nil {
		return CartView{}, err
	}
	if err := fn(c, now); err != nil {
		return CartView{}, err
	}
	if err := s.saveCart(ctx, c); err != nil {
		return CartView{}, err
	}
	return s.view(ctx, c, now)
}

// AddToCart добавляет позицию меню в корзину с текущей ценой.
func (s *Service) AddToCart(ctx context.Context, userID, itemID int64, quantity int, notes string) (CartView, error) {
	notes, err := validation.Notes(notes)
	if err != nil {
		return CartView{}, err
	}

	item, err := s.repo.GetMenuItem(ctx, itemID)
	if err != nil {
		return CartView{}, err
	}

	return s.mutateCart(ctx, userID, func(c *cart.Cart, now time.Time) error {
		_, err := c.Add(item, quantity, notes, now)
		return err
	})
}

// AdjustLine изменяет количество позиции на delta.
func (s *Service) AdjustLine(ctx context.Context, userID, lineID int64, delta int) (CartView, error) {
	return s.mutateCart(ctx, userID, func(c *cart.Cart, now time.Time) error {
		return c.Adjust(lineID, delta, now)
	})
}

// RemoveLine удаляет позицию из корзины.
func (s *Service) RemoveLine(ctx context.Context, userID, lineID int64) (CartView, error) {
	return s.mutateCart(ctx, userID, func(c *cart.Cart, now time.Time) error {
		c.Remove(lineID, now)
		return nil
	})
}

// ClearCart очищает корзину.
func (s *Service) ClearCart(ctx context.Context, userID int64) (CartView, error) {
	return s.mutateCart(ctx, userID, func(c *cart.Cart, now time.Time) error {
		c.Clear(now)
		return nil
	})
}

// ApplyPromo проверяет промокод для текущей корзины и сохраняет его. Счётчики использований
// при этом не изменяются.
func (s *Service) ApplyPromo(ctx context.Context, userID int64, code string) (CartView, error) {
	code, err := validation.PromoCode(code)
	if err != nil {
		return CartView{}, err
	}

	return s.mutateCart(ctx, userID, func(c *cart.Cart, now time.Time) error {
		p, err := s.registry.Validate(ctx, code, s.pricing.Subtotal(c.Lines), userID, now)
		if err != nil {
			return err
		}
		c.ApplyPromo(p.Code, now)
		return nil
	})
}

// RemovePromo снимает промокод с корзины.
func (s *Service) RemovePromo(ctx context.Context, userID int64) (CartView, error) {
	return s.mutateCart(ctx, userID, func(c *cart.Cart, now time.Time) error {
		c.ClearPromo(now)
		return nil
	})
}

// Checkout оформляет заказ из корзины пользователя, при redeemPoints > 0 списывая баллы.
func (s *Service) Checkout(ctx context.Context, userID int64, redeemPoints int64) (*order.Order, error) {
	defer s.locks.lock(userID)()

	now := s.now()
	c, err := s.loadCart(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	o, err := s.lifecycle.Create(ctx, c.Snapshot(now), redeemPoints)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.Int64("orderID", o.ID),
		zap.Int64("userID", userID),
		zap.Int64("total", o.Total),
	)
	return o, nil
}

// Orders возвращает историю заказов пользователя, новые первыми.
func (s *Service) Orders(ctx context.Context, userID int64) ([]*order.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// Order возвращает заказ, если участник им владеет или является администратором.
func (s *Service) Order(ctx context.Context, actor model.Actor, id int64) (*order.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, model.ErrForbidden
	}
	return o, nil
}

// TransitionOrder переводит заказ в статус target.
func (s *Service) TransitionOrder(ctx context.Context, actor model.Actor, id int64, target string) (*order.Order, error) {
	status, err := order.ParseStatus(target)
	if err != nil {
		return nil, err
	}

	o, err := s.lifecycle.Transition(ctx, id, status, actor)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.Int64("orderID", id),
		zap.String("status", string(status)),
		zap.Int64("actorID", actor.UserID),
	)
	return o, nil
}

// CancelOrder отменяет заказ.
func (s *Service) CancelOrder(ctx context.Context, actor model.Actor, id int64) (*order.Order, error) {
	return s.TransitionOrder(ctx, actor, id, string(order.StatusCancelled))
}

// RecordPayment сохраняет платёжную ссылку заказа.
func (s *Service) RecordPayment(ctx context.Context, actor model.Actor, id int64, reference string) (*order.Order, error) {
	reference, err := validation.PaymentReference(reference)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.RecordPayment(ctx, id, reference, actor)
}

// Balance возвращает бонусный счёт пользователя.
func (s *Service) Balance(ctx context.Context, userID int64) (loyalty.Account, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return loyalty.Account{}, err
	}
	return loyalty.Account{UserID: userID, Balance: balance}, nil
}

// LoyaltyHistory возвращает журнал баллов пользователя, новые записи первыми.
func (s *Service) LoyaltyHistory(ctx context.Context, userID int64) ([]loyalty.Event, error) {
	return s.repo.ListLoyaltyEvents(ctx, userID)
}

// CreatePromo создаёт промокод. Только для администратора.
func (s *Service) CreatePromo(ctx context.Context, actor model.Actor, c promo.Code) (promo.Code, error) {
	if err := requireAdmin(actor); err != nil {
		return promo.Code{}, err
	}

	code, err := validation.PromoCode(c.Code)
	if err != nil {
		return promo.Code{}, err
	}
	c.Code = code
	if err := c.Check(); err != nil {
		return promo.Code{}, err
	}

	c.UsedCount = 0
	c.Active = true
	c.CreatedAt = s.now()
	if err := s.repo.CreatePromoCode(ctx, c); err != nil {
		return promo.Code{}, err
	}

	s.logger.Info("promo code created", zap.String("code", c.Code), zap.Int64("actorID", actor.UserID))
	return c, nil
}

// DeactivatePromo выключает промокод. Только для администратора.
func (s *Service) DeactivatePromo(ctx context.Context, actor model.Actor, code string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.repo.SetPromoActive(ctx, promo.Normalize(code), false)
}

// Promos возвращает все промокоды. Только для администратора.
func (s *Service) Promos(ctx context.Context, actor model.Actor) ([]promo.Code, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.repo.ListPromoCodes(ctx)
}

// OrdersByStatus возвращает заказы в указанном статусе. Только для администратора.
func (s *Service) OrdersByStatus(ctx context.Context, actor model.Actor, status string) ([]*order.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	st, err := order.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOrdersByStatus(ctx, st)
}
