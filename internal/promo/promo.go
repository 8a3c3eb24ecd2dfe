// Package promo содержит промокоды и реестр, проверяющий и учитывающий их использование.
package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gopherfood/internal/model"
)

// DiscountKind описывает правило скидки промокода.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

var (
	// ErrInvalid — общий отказ по промокоду: код не найден или выключен.
	ErrInvalid = model.NewError(model.KindRejected, "promo_invalid", "promo code is invalid")
	// ErrNotFound возвращается, если промокода не существует.
	ErrNotFound = ErrInvalid.Derive("promo_not_found", "promo code not found")
	// ErrInactive возвращается для выключенного промокода.
	ErrInactive = ErrInvalid.Derive("promo_inactive", "promo code is inactive")
	// ErrExpired возвращается вне окна действия промокода.
	ErrExpired = model.NewError(model.KindRejected, "promo_expired", "promo code is expired")
	// ErrMinimumNotMet возвращается, если сумма корзины меньше минимальной для промокода.
	ErrMinimumNotMet = model.NewError(model.KindRejected, "promo_minimum_not_met", "order amount is below promo minimum")
	// ErrUsageLimitReached возвращается при исчерпании общего или персонального лимита.
	ErrUsageLimitReached = model.NewError(model.KindRejected, "promo_usage_exceeded", "promo code usage limit reached")
	// ErrAlreadyExists возвращается при создании промокода с занятым кодом.
	ErrAlreadyExists = model.NewError(model.KindRejected, "promo_exists", "promo code already exists")
	// ErrInvalidRule возвращается при некорректных параметрах нового промокода.
	ErrInvalidRule = model.NewError(model.KindValidation, "promo_rule_invalid", "promo code rule is invalid")
)

// Code — промокод. Коды регистронезависимы и хранятся в верхнем регистре.
type Code struct {
	Code           string          `json:"code"`
	Kind           DiscountKind    `json:"kind"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         int64           `json:"amount"`
	MinOrder       int64           `json:"min_order"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         time.Time       `json:"ends_at"`
	MaxUses        int             `json:"max_uses"`
	MaxUsesPerUser int             `json:"max_uses_per_user"`
	UsedCount      int             `json:"used_count"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Normalize приводит строку промокода к каноническому виду.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check проверяет корректность правила промокода перед сохранением.
func (c *Code) Check() error {
	if c.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidRule)
	}
	switch c.Kind {
	case DiscountPercentage:
		if !c.Rate.IsPositive() || c.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: percentage rate must be in (0, 1]", ErrInvalidRule)
		}
	case DiscountFixed:
		if c.Amount <= 0 {
			return fmt.Errorf("%w: fixed amount must be positive", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown discount kind %q", ErrInvalidRule, c.Kind)
	}
	if c.MinOrder < 0 || c.MaxUses < 0 || c.MaxUsesPerUser < 0 {
		return fmt.Errorf("%w: negative limits", ErrInvalidRule)
	}
	if !c.StartsAt.IsZero() && !c.EndsAt.IsZero() && !c.EndsAt.After(c.StartsAt) {
		return fmt.Errorf("%w: window end must follow start", ErrInvalidRule)
	}
	return nil
}

// InWindow сообщает, попадает ли момент now в окно действия [StartsAt, EndsAt].
// Нулевые границы не ограничивают окно.
func (c *Code) InWindow(now time.Time) bool {
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return false
	}
	if !c.EndsAt.IsZero() && now.After(c.EndsAt) {
		return false
	}
	return true
}

// Store описывает хранилище промокодов и счётчиков использования.
type Store interface {
	GetPromoCode(ctx context.Context, code string) (*Code, error)
	PromoUsageByUser(ctx context.Context, code string, userID int64) (int, error)
	// IncrementPromoUsage атомарно проверяет лимиты и увеличивает общий и персональный счётчики.
	IncrementPromoUsage(ctx context.Context, code string, userID int64) error
}

// Registry проверяет и учитывает промокоды.
type Registry struct {
	store Store
}

// NewRegistry создаёт реестр поверх хранилища.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Validate проверяет промокод для корзины пользователя. Счётчики не изменяются.
func (r *Registry) Validate(ctx context.Context, code string, subtotal int64, userID int64, now time.Time) (*Code, error) {
	c, err := r.store.GetPromoCode(ctx, Normalize(code))
	if err != nil {
		return nil, err
	}

	if !c.Active {
		return nil, ErrInactive
	}
	if !c.InWindow(now) {
		return nil, ErrExpired
	}
	if subtotal < c.MinOrder {
		return nil, ErrMinimumNotMet
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return nil, ErrUsageLimitReached
	}
	if c.MaxUsesPerUser > 0 {
		used, err := r.store.PromoUsageByUser(ctx, c.Code, userID)
		if err != nil {
			return nil, fmt.Errorf("promo usage by user: %w", err)
		}
		if used >= c.MaxUsesPerUser {
			return nil, ErrUsageLimitReached
		}
	}

	return c, nil
}

// Consume учитывает использование промокода. Вызывается только после создания заказа
// в той же транзакции.
func (r *Registry) Consume(ctx context.Context, code string, userID int64) error {
	return r.store.IncrementPromoUsage(ctx, Normalize(code), userID)
}
