package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/order"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

// querier — общие методы pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries выполняет запросы через пул или внутри транзакции. Внутри транзакции
// читаемые для изменения строки блокируются.
type queries struct {
	q    querier
	inTx bool
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{queries: queries{q: pool}, pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx выполняет fn в транзакции. Конфликты сериализации и взаимоблокировки
// приводят к повтору всей транзакции.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, s order.Store) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &queries{q: tx, inTx: true}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || i == len(retryDelays) || !isRetryable(err) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// ListMenu возвращает позиции меню, при непустом category — только указанной категории.
func (r *PostgresRepository) ListMenu(ctx context.Context, category string) ([]model.MenuItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, price, category, available, updated_at
		 FROM menu_items
		 WHERE $1 = '' OR lower(category) = lower($1)
		 ORDER BY id`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("select menu: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MenuItem, error) {
		var m model.MenuItem
		err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Price, &m.Category, &m.Available, &m.UpdatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan menu: %w", err)
	}
	return items, nil
}

// GetMenuItem возвращает позицию меню по идентификатору.
func (r *PostgresRepository) GetMenuItem(ctx context.Context, id int64) (model.MenuItem, error) {
	var m model.MenuItem
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, price, category, available, updated_at FROM menu_items WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Description, &m.Price, &m.Category, &m.Available, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MenuItem{}, model.ErrMenuItemNotFound
		}
		return model.MenuItem{}, fmt.Errorf("get menu item: %w", err)
	}
	return m, nil
}

// SaveMenuItem создаёт или обновляет позицию меню. Нулевой ID означает создание.
func (r *PostgresRepository) SaveMenuItem(ctx context.Context, item model.MenuItem) (model.MenuItem, error) {
	if item.ID == 0 {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO menu_items (name, description, price, category, available, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			item.Name, item.Description, item.Price, item.Category, item.Available, item.UpdatedAt,
		).Scan(&item.ID)
		if err != nil {
			return model.MenuItem{}, fmt.Errorf("insert menu item: %w", err)
		}
		return item, nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE menu_items SET name = $2, description = $3, price = $4, category = $5, available = $6, updated_at = $7
		 WHERE id = $1`,
		item.ID, item.Name, item.Description, item.Price, item.Category, item.Available, item.UpdatedAt,
	)
	if err != nil {
		return model.MenuItem{}, fmt.Errorf("update menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.MenuItem{}, model.ErrMenuItemNotFound
	}
	return item, nil
}

// GetCart возвращает корзину пользователя или ErrCartNotFound.
func (r *PostgresRepository) GetCart(ctx context.Context, userID int64) (*cart.Cart, error) {
	c := &cart.Cart{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT lines, promo_code, next_line_id, last_modified FROM carts WHERE user_id = $1`,
		userID,
	).Scan(&c.Lines, &c.PromoCode, &c.NextLineID, &c.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return c, nil
}

// SaveCart сохраняет корзину пользователя. Строки хранятся в JSONB.
func (r *PostgresRepository) SaveCart(ctx context.Context, c *cart.Cart) error {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO carts (user_id, lines, promo_code, next_line_id, last_modified)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET lines = EXCLUDED.lines, promo_code = EXCLUDED.promo_code,
		     next_line_id = EXCLUDED.next_line_id, last_modified = EXCLUDED.last_modified`,
		c.UserID, lines, c.PromoCode, c.NextLineID, c.LastModified,
	)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// CreatePromoCode сохраняет новый промокод.
func (r *PostgresRepository) CreatePromoCode(ctx context.Context, c promo.Code) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO promo_codes (code, kind, rate, amount, min_order, starts_at, ends_at,
		                          max_uses, max_uses_per_user, used_count, active, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.Code, string(c.Kind), c.Rate.String(), c.Amount, c.MinOrder, nullTime(c.StartsAt), nullTime(c.EndsAt),
		c.MaxUses, c.MaxUsesPerUser, c.UsedCount, c.Active, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", promo.ErrAlreadyExists, c.Code)
		}
		return fmt.Errorf("create promo code: %w", err)
	}
	return nil
}

// SetPromoActive включает или выключает промокод.
func (r *PostgresRepository) SetPromoActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE promo_codes SET active = $2 WHERE code = $1`, code, active)
	if err != nil {
		return fmt.Errorf("update promo code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// ListPromoCodes возвращает все промокоды, упорядоченные по коду.
func (r *PostgresRepository) ListPromoCodes(ctx context.Context) ([]promo.Code, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("select promo codes: %w", err)
	}

	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (promo.Code, error) {
		c, err := scanPromo(row)
		if err != nil {
			return promo.Code{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan promo codes: %w", err)
	}
	return codes, nil
}

// IncrementPromoUsage атомарно учитывает использование промокода.
func (r *PostgresRepository) IncrementPromoUsage(ctx context.Context, code string, userID int64) error {
	return r.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		return s.IncrementPromoUsage(ctx, code, userID)
	})
}

// AppendLoyaltyEvent добавляет запись журнала и сохраняет новый баланс.
func (r *PostgresRepository) AppendLoyaltyEvent(ctx context.Context, ev loyalty.Event, newBalance int64) (int64, error) {
	var id int64
	err := r.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		var err error
		id, err = s.AppendLoyaltyEvent(ctx, ev, newBalance)
		return err
	})
	return id, err
}

// ListLoyaltyEvents возвращает журнал баллов пользователя, новые записи первыми.
func (r *PostgresRepository) ListLoyaltyEvents(ctx context.Context, userID int64) ([]loyalty.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, kind, delta, order_id, created_at
		 FROM loyalty_events
		 WHERE user_id = $1
		 ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select loyalty events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (loyalty.Event, error) {
		var (
			ev   loyalty.Event
			kind string
		)
		err := row.Scan(&ev.ID, &ev.UserID, &kind, &ev.Delta, &ev.OrderID, &ev.CreatedAt)
		ev.Kind = loyalty.EventKind(kind)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan loyalty events: %w", err)
	}
	return events, nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	return r.listOrders(ctx, `WHERE user_id = $1`, userID)
}

// ListOrdersByStatus возвращает заказы в указанном статусе, новые первыми.
func (r *PostgresRepository) ListOrdersByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	return r.listOrders(ctx, `WHERE status = $1`, string(status))
}

func (r *PostgresRepository) listOrders(ctx context.Context, where string, arg any) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders `+where+` ORDER BY id DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}

	for _, o := range orders {
		if err := r.loadOrderDetails(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

const promoColumns = `code, kind, rate::text, amount, min_order, starts_at, ends_at,
	max_uses, max_uses_per_user, used_count, active, created_at`

const orderColumns = `id, user_id, subtotal, discount, promo_code, loyalty_points, loyalty_value,
	total, status, payment_ref, accrued_points, created_at, updated_at`

func scanPromo(row pgx.Row) (*promo.Code, error) {
	var (
		c                promo.Code
		kind, rate       string
		startsAt, endsAt *time.Time
	)
	err := row.Scan(&c.Code, &kind, &rate, &c.Amount, &c.MinOrder, &startsAt, &endsAt,
		&c.MaxUses, &c.MaxUsesPerUser, &c.UsedCount, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Kind = promo.DiscountKind(kind)
	if c.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse promo rate: %w", err)
	}
	if startsAt != nil {
		c.StartsAt = *startsAt
	}
	if endsAt != nil {
		c.EndsAt = *endsAt
	}
	return &c, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.PromoCode, &o.LoyaltyPoints, &o.LoyaltyValue,
		&o.Total, &status, &o.PaymentRef, &o.AccruedPoints, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	return &o, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Методы queries реализуют order.Store.

func (s *queries) GetPromoCode(ctx context.Context, code string) (*promo.Code, error) {
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	c, err := scanPromo(s.q.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("get promo code: %w", err)
	}
	return c, nil
}

func (s *queries) PromoUsageByUser(ctx context.Context, code string, userID int64) (int, error) {
	var count int
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE((SELECT count FROM promo_usages WHERE code = $1 AND user_id = $2), 0)`,
		code, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get promo usage: %w", err)
	}
	return count, nil
}

// IncrementPromoUsage проверяет лимиты и увеличивает счётчики условными UPDATE,
// поэтому параллельные оформления не превышают лимит.
func (s *queries) IncrementPromoUsage(ctx context.Context, code string, userID int64) error {
	var perUser int
	err := s.q.QueryRow(ctx,
		`UPDATE promo_codes SET used_count = used_count + 1
		 WHERE code = $1 AND (max_uses = 0 OR used_count < max_uses)
		 RETURNING max_uses_per_user`,
		code,
	).Scan(&perUser)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("increment promo usage: %w", err)
		}
		var exists bool
		if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promo_codes WHERE code = $1)`, code).Scan(&exists); err != nil {
			return fmt.Errorf("check promo code: %w", err)
		}
		if !exists {
			return promo.ErrNotFound
		}
		return promo.ErrUsageLimitReached
	}

	var count int
	err = s.q.QueryRow(ctx,
		`INSERT INTO promo_usages (code, user_id, count) VALUES ($1, $2, 1)
		 ON CONFLICT (code, user_id) DO UPDATE SET count = promo_usages.count + 1
		 WHERE $3 = 0 OR promo_usages.count < $3
		 RETURNING count`,
		code, userID, perUser,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promo.ErrUsageLimitReached
		}
		return fmt.Errorf("increment user promo usage: %w", err)
	}
	return nil
}

// GetLoyaltyAccount внутри транзакции создаёт счёт при необходимости и блокирует его строку.
func (s *queries) GetLoyaltyAccount(ctx context.Context, userID int64) (*loyalty.Account, error) {
	query := `SELECT balance FROM loyalty_accounts WHERE user_id = $1`
	if s.inTx {
		if _, err := s.q.Exec(ctx,
			`INSERT INTO loyalty_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
			userID,
		); err != nil {
			return nil, fmt.Errorf("ensure loyalty account: %w", err)
		}
		query += ` FOR UPDATE`
	}

	acc := &loyalty.Account{UserID: userID}
	err := s.q.QueryRow(ctx, query, userID).Scan(&acc.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acc, nil
		}
		return nil, fmt.Errorf("get loyalty account: %w", err)
	}
	return acc, nil
}

func (s *queries) AppendLoyaltyEvent(ctx context.Context, ev loyalty.Event, newBalance int64) (int64, error) {
	_, err := s.q.Exec(ctx,
		`INSERT INTO loyalty_accounts (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`,
		ev.UserID, newBalance,
	)
	if err != nil {
		return 0, fmt.Errorf("update loyalty balance: %w", err)
	}

	var id int64
	err = s.q.QueryRow(ctx,
		`INSERT INTO loyalty_events (user_id, kind, delta, order_id, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ev.UserID, string(ev.Kind), ev.Delta, ev.OrderID, ev.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert loyalty event: %w", err)
	}
	return id, nil
}

func (s *queries) CreateOrder(ctx context.Context, o *order.Order) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO orders (user_id, subtotal, discount, promo_code, loyalty_points, loyalty_value,
		                     total, status, payment_ref, accrued_points, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		o.UserID, o.Subtotal, o.Discount, o.PromoCode, o.LoyaltyPoints, o.LoyaltyValue,
		o.Total, string(o.Status), o.PaymentRef, o.AccruedPoints, o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for i, l := range o.Lines {
		_, err := s.q.Exec(ctx,
			`INSERT INTO order_lines (order_id, position, item_id, name, quantity, unit_price, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i, l.ItemID, l.Name, l.Quantity, l.UnitPrice, l.Notes,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order line: %w", err)
		}
	}

	if err := s.insertHistory(ctx, id, o.History); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *queries) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := s.loadOrderDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *queries) UpdateOrder(ctx context.Context, o *order.Order) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE orders SET status = $2, payment_ref = $3, accrued_points = $4, updated_at = $5 WHERE id = $1`,
		o.ID, string(o.Status), o.PaymentRef, o.AccruedPoints, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	return s.insertHistory(ctx, o.ID, o.History)
}

func (s *queries) DeleteCart(ctx context.Context, userID int64) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// insertHistory дописывает историю статусов; уже сохранённые записи пропускаются по номеру.
func (s *queries) insertHistory(ctx context.Context, orderID int64, history []order.StatusChange) error {
	for i, h := range history {
		_, err := s.q.Exec(ctx,
			`INSERT INTO order_status_history (order_id, seq, status, actor_id, changed_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (order_id, seq) DO NOTHING`,
			orderID, i, string(h.Status), h.ActorID, h.At,
		)
		if err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

func (s *queries) loadOrderDetails(ctx context.Context, o *order.Order) error {
	rows, err := s.q.Query(ctx,
		`SELECT item_id, name, quantity, unit_price, notes FROM order_lines WHERE order_id = $1 ORDER BY position`,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("select order lines: %w", err)
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Line, error) {
		var l order.Line
		err := row.Scan(&l.ItemID, &l.Name, &l.Quantity, &l.UnitPrice, &l.Notes)
		return l, err
	})
	if err != nil {
		return fmt.Errorf("scan order lines: %w", err)
	}

	rows, err = s.q.Query(ctx,
		`SELECT status, actor_id, changed_at FROM order_status_history WHERE order_id = $1 ORDER BY seq`,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("select status history: %w", err)
	}
	o.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusChange, error) {
		var (
			h      order.StatusChange
			status string
		)
		err := row.Scan(&status, &h.ActorID, &h.At)
		h.Status = order.Status(status)
		return h, err
	})
	if err != nil {
		return fmt.Errorf("scan status history: %w", err)
	}
	return nil
}
