package repository

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/order"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

// memState — снимок данных in-memory хранилища. Сохранённые значения не изменяются на месте,
// поэтому для транзакции достаточно поверхностной копии карт.
type memState struct {
	menu          map[int64]model.MenuItem
	nextMenuID    int64
	carts         map[int64]*cart.Cart
	promos        map[string]promo.Code
	promoUsage    map[usageKey]int
	balances      map[int64]int64
	loyaltyEvents []loyalty.Event
	orders        map[int64]*order.Order
	nextOrderID   int64
}

func newMemState() *memState {
	return &memState{
		menu:        map[int64]model.MenuItem{},
		nextMenuID:  1,
		carts:       map[int64]*cart.Cart{},
		promos:      map[string]promo.Code{},
		promoUsage:  map[usageKey]int{},
		balances:    map[int64]int64{},
		orders:      map[int64]*order.Order{},
		nextOrderID: 1,
	}
}

func (s *memState) clone() *memState {
	return &memState{
		menu:          maps.Clone(s.menu),
		nextMenuID:    s.nextMenuID,
		carts:         maps.Clone(s.carts),
		promos:        maps.Clone(s.promos),
		promoUsage:    maps.Clone(s.promoUsage),
		balances:      maps.Clone(s.balances),
		loyaltyEvents: slices.Clone(s.loyaltyEvents),
		orders:        maps.Clone(s.orders),
		nextOrderID:   s.nextOrderID,
	}
}

// MemoryRepository — хранилище в памяти процесса. Транзакции выполняются над копией
// состояния и применяются целиком только при успехе.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

// Close ничего не освобождает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// WithinTx выполняет fn над копией состояния и применяет её, если fn не вернула ошибку.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, s order.Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft := r.state.clone()
	if err := fn(ctx, draft); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.state = draft
	return nil
}

func (r *MemoryRepository) read() (*memState, func()) {
	r.mu.RLock()
	return r.state, r.mu.RUnlock
}

func (r *MemoryRepository) write(fn func(s *memState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

// ListMenu возвращает позиции меню, при непустом category — только указанной категории.
func (r *MemoryRepository) ListMenu(ctx context.Context, category string) ([]model.MenuItem, error) {
	s, unlock := r.read()
	defer unlock()

	var res []model.MenuItem
	for _, item := range s.menu {
		if category == "" || strings.EqualFold(item.Category, category) {
			res = append(res, item)
		}
	}
	slices.SortFunc(res, func(a, b model.MenuItem) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

// GetMenuItem возвращает позицию меню по идентификатору.
func (r *MemoryRepository) GetMenuItem(ctx context.Context, id int64) (model.MenuItem, error) {
	s, unlock := r.read()
	defer unlock()

	item, ok := s.menu[id]
	if !ok {
		return model.MenuItem{}, model.ErrMenuItemNotFound
	}
	return item, nil
}

// SaveMenuItem создаёт или обновляет позицию меню. Нулевой ID означает создание.
func (r *MemoryRepository) SaveMenuItem(ctx context.Context, item model.MenuItem) (model.MenuItem, error) {
	err := r.write(func(s *memState) error {
		if item.ID == 0 {
			item.ID = s.nextMenuID
		}
		s.nextMenuID = max(s.nextMenuID, item.ID+1)
		s.menu[item.ID] = item
		return nil
	})
	return item, err
}

// GetCart возвращает корзину пользователя или ErrCartNotFound.
func (r *MemoryRepository) GetCart(ctx context.Context, userID int64) (*cart.Cart, error) {
	s, unlock := r.read()
	defer unlock()

	c, ok := s.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cloneCart(c), nil
}

// SaveCart сохраняет корзину пользователя.
func (r *MemoryRepository) SaveCart(ctx context.Context, c *cart.Cart) error {
	return r.write(func(s *memState) error {
		s.carts[c.UserID] = cloneCart(c)
		return nil
	})
}

// DeleteCart удаляет корзину пользователя.
func (r *MemoryRepository) DeleteCart(ctx context.Context, userID int64) error {
	return r.write(func(s *memState) error { return s.DeleteCart(ctx, userID) })
}

// CreatePromoCode сохраняет новый промокод.
func (r *MemoryRepository) CreatePromoCode(ctx context.Context, c promo.Code) error {
	return r.write(func(s *memState) error {
		if _, ok := s.promos[c.Code]; ok {
			return promo.ErrAlreadyExists
		}
		s.promos[c.Code] = c
		return nil
	})
}

// SetPromoActive включает или выключает промокод.
func (r *MemoryRepository) SetPromoActive(ctx context.Context, code string, active bool) error {
	return r.write(func(s *memState) error {
		c, ok := s.promos[code]
		if !ok {
			return promo.ErrNotFound
		}
		c.Active = active
		s.promos[code] = c
		return nil
	})
}

// ListPromoCodes возвращает все промокоды, упорядоченные по коду.
func (r *MemoryRepository) ListPromoCodes(ctx context.Context) ([]promo.Code, error) {
	s, unlock := r.read()
	defer unlock()

	res := slices.Collect(maps.Values(s.promos))
	slices.SortFunc(res, func(a, b promo.Code) int { return cmp.Compare(a.Code, b.Code) })
	return res, nil
}

// GetPromoCode возвращает промокод.
func (r *MemoryRepository) GetPromoCode(ctx context.Context, code string) (*promo.Code, error) {
	s, unlock := r.read()
	defer unlock()
	return s.GetPromoCode(ctx, code)
}

// PromoUsageByUser возвращает число использований промокода пользователем.
func (r *MemoryRepository) PromoUsageByUser(ctx context.Context, code string, userID int64) (int, error) {
	s, unlock := r.read()
	defer unlock()
	return s.PromoUsageByUser(ctx, code, userID)
}

// IncrementPromoUsage атомарно учитывает использование промокода.
func (r *MemoryRepository) IncrementPromoUsage(ctx context.Context, code string, userID int64) error {
	return r.write(func(s *memState) error { return s.IncrementPromoUsage(ctx, code, userID) })
}

// GetLoyaltyAccount возвращает бонусный счёт пользователя.
func (r *MemoryRepository) GetLoyaltyAccount(ctx context.Context, userID int64) (*loyalty.Account, error) {
	s, unlock := r.read()
	defer unlock()
	return s.GetLoyaltyAccount(ctx, userID)
}

// AppendLoyaltyEvent добавляет запись журнала и сохраняет новый баланс.
func (r *MemoryRepository) AppendLoyaltyEvent(ctx context.Context, ev loyalty.Event, newBalance int64) (int64, error) {
	var id int64
	err := r.write(func(s *memState) error {
		var err error
		id, err = s.AppendLoyaltyEvent(ctx, ev, newBalance)
		return err
	})
	return id, err
}

// ListLoyaltyEvents возвращает журнал баллов пользователя, новые записи первыми.
func (r *MemoryRepository) ListLoyaltyEvents(ctx context.Context, userID int64) ([]loyalty.Event, error) {
	s, unlock := r.read()
	defer unlock()

	var res []loyalty.Event
	for i := len(s.loyaltyEvents) - 1; i >= 0; i-- {
		if s.loyaltyEvents[i].UserID == userID {
			res = append(res, s.loyaltyEvents[i])
		}
	}
	return res, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	s, unlock := r.read()
	defer unlock()
	return s.GetOrder(ctx, id)
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *MemoryRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	return r.listOrders(func(o *order.Order) bool { return o.UserID == userID })
}

// ListOrdersByStatus возвращает заказы в указанном статусе, новые первыми.
func (r *MemoryRepository) ListOrdersByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	return r.listOrders(func(o *order.Order) bool { return o.Status == status })
}

func (r *MemoryRepository) listOrders(match func(o *order.Order) bool) ([]*order.Order, error) {
	s, unlock := r.read()
	defer unlock()

	var res []*order.Order
	for _, o := range s.orders {
		if match(o) {
			res = append(res, cloneOrder(o))
		}
	}
	slices.SortFunc(res, func(a, b *order.Order) int { return cmp.Compare(b.ID, a.ID) })
	return res, nil
}

// Методы memState реализуют order.Store и используются как внутри, так и вне транзакций.

func (s *memState) GetPromoCode(ctx context.Context, code string) (*promo.Code, error) {
	c, ok := s.promos[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &c, nil
}

func (s *memState) PromoUsageByUser(ctx context.Context, code string, userID int64) (int, error) {
	return s.promoUsage[usageKey{code: code, userID: userID}], nil
}

func (s *memState) IncrementPromoUsage(ctx context.Context, code string, userID int64) error {
	c, ok := s.promos[code]
	if !ok {
		return promo.ErrNotFound
	}
	key := usageKey{code: code, userID: userID}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return promo.ErrUsageLimitReached
	}
	if c.MaxUsesPerUser > 0 && s.promoUsage[key] >= c.MaxUsesPerUser {
		return promo.ErrUsageLimitReached
	}
	c.UsedCount++
	s.promos[code] = c
	s.promoUsage[key]++
	return nil
}

func (s *memState) GetLoyaltyAccount(ctx context.Context, userID int64) (*loyalty.Account, error) {
	return &loyalty.Account{UserID: userID, Balance: s.balances[userID]}, nil
}

func (s *memState) AppendLoyaltyEvent(ctx context.Context, ev loyalty.Event, newBalance int64) (int64, error) {
	ev.ID = int64(len(s.loyaltyEvents) + 1)
	s.loyaltyEvents = append(s.loyaltyEvents, ev)
	s.balances[ev.UserID] = newBalance
	return ev.ID, nil
}

func (s *memState) CreateOrder(ctx context.Context, o *order.Order) (int64, error) {
	id := s.nextOrderID
	s.nextOrderID++

	stored := cloneOrder(o)
	stored.ID = id
	s.orders[id] = stored
	return id, nil
}

func (s *memState) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *memState) UpdateOrder(ctx context.Context, o *order.Order) error {
	if _, ok := s.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *memState) DeleteCart(ctx context.Context, userID int64) error {
	delete(s.carts, userID)
	return nil
}
