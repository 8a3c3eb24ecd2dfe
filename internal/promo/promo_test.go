package promo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type usageKey struct {
	code   string
	userID int64
}

type fakeStore struct {
	codes map[string]*Code
	usage map[usageKey]int
}

func newFakeStore(codes ...Code) *fakeStore {
	s := &fakeStore{codes: map[string]*Code{}, usage: map[usageKey]int{}}
	for i := range codes {
		c := codes[i]
		s.codes[c.Code] = &c
	}
	return s
}

func (s *fakeStore) GetPromoCode(ctx context.Context, code string) (*Code, error) {
	c, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) PromoUsageByUser(ctx context.Context, code string, userID int64) (int, error) {
	return s.usage[usageKey{code, userID}], nil
}

func (s *fakeStore) IncrementPromoUsage(ctx context.Context, code string, userID int64) error {
	c, ok := s.codes[code]
	if !ok {
		return ErrNotFound
	}
	k := usageKey{code, userID}
	if (c.MaxUses > 0 && c.UsedCount >= c.MaxUses) || (c.MaxUsesPerUser > 0 && s.usage[k] >= c.MaxUsesPerUser) {
		return ErrUsageLimitReached
	}
	c.UsedCount++
	s.usage[k]++
	return nil
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func save10() Code {
	return Code{
		Code:     "SAVE10",
		Kind:     DiscountPercentage,
		Rate:     decimal.RequireFromString("0.10"),
		MinOrder: 1000,
		StartsAt: now.Add(-24 * time.Hour),
		EndsAt:   now.Add(24 * time.Hour),
		Active:   true,
	}
}

func TestValidate(t *testing.T) {
	inactive := save10()
	inactive.Active = false

	notStarted := save10()
	notStarted.StartsAt = now.Add(time.Hour)

	exhausted := save10()
	exhausted.MaxUses = 3
	exhausted.UsedCount = 3

	tests := []struct {
		name     string
		code     Code
		input    string
		subtotal int64
		wantErr  error
	}{
		{name: "valid, case-insensitive", code: save10(), input: " save10 ", subtotal: 1300},
		{name: "not found", code: save10(), input: "NOPE", subtotal: 1300, wantErr: ErrNotFound},
		{name: "inactive", code: inactive, input: "SAVE10", subtotal: 1300, wantErr: ErrInactive},
		{name: "not started", code: notStarted, input: "SAVE10", subtotal: 1300, wantErr: ErrExpired},
		{name: "minimum not met", code: save10(), input: "SAVE10", subtotal: 999, wantErr: ErrMinimumNotMet},
		{name: "global limit", code: exhausted, input: "SAVE10", subtotal: 1300, wantErr: ErrUsageLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(newFakeStore(tt.code))
			c, err := r.Validate(context.Background(), tt.input, tt.subtotal, 1, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "SAVE10", c.Code)
		})
	}
}

func TestValidate_NotFoundAndInactiveAreInvalid(t *testing.T) {
	assert.ErrorIs(t, ErrNotFound, ErrInvalid)
	assert.ErrorIs(t, ErrInactive, ErrInvalid)
	assert.NotErrorIs(t, ErrExpired, ErrInvalid)
}

func TestValidate_ExpiredAfterEnd(t *testing.T) {
	r := NewRegistry(newFakeStore(save10()))
	_, err := r.Validate(context.Background(), "SAVE10", 1300, 1, now.Add(25*time.Hour))
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidate_PerUserLimit(t *testing.T) {
	c := save10()
	c.MaxUsesPerUser = 1
	store := newFakeStore(c)
	r := NewRegistry(store)

	require.NoError(t, r.Consume(context.Background(), "save10", 1))

	_, err := r.Validate(context.Background(), "SAVE10", 1300, 1, now)
	require.ErrorIs(t, err, ErrUsageLimitReached)

	_, err = r.Validate(context.Background(), "SAVE10", 1300, 2, now)
	require.NoError(t, err)
}

func TestValidate_DoesNotConsume(t *testing.T) {
	store := newFakeStore(save10())
	r := NewRegistry(store)

	for i := 0; i < 3; i++ {
		_, err := r.Validate(context.Background(), "SAVE10", 1300, 1, now)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, store.codes["SAVE10"].UsedCount)

	require.NoError(t, r.Consume(context.Background(), "SAVE10", 1))
	assert.Equal(t, 1, store.codes["SAVE10"].UsedCount)
}

func TestConsume_LimitOfOne(t *testing.T) {
	c := save10()
	c.MaxUses = 1
	r := NewRegistry(newFakeStore(c))

	require.NoError(t, r.Consume(context.Background(), "SAVE10", 1))
	require.ErrorIs(t, r.Consume(context.Background(), "SAVE10", 2), ErrUsageLimitReached)
}

func TestCheck(t *testing.T) {
	valid := save10()
	require.NoError(t, valid.Check())

	fixed := Code{Code: "FIVEOFF", Kind: DiscountFixed, Amount: 500, Active: true}
	require.NoError(t, fixed.Check())

	bad := []Code{
		{Code: "", Kind: DiscountFixed, Amount: 1},
		{Code: "X", Kind: "bogus"},
		{Code: "X", Kind: DiscountPercentage, Rate: decimal.RequireFromString("1.5")},
		{Code: "X", Kind: DiscountPercentage, Rate: decimal.Zero},
		{Code: "X", Kind: DiscountFixed, Amount: 0},
		{Code: "X", Kind: DiscountFixed, Amount: 1, StartsAt: now, EndsAt: now},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Check(), ErrInvalidRule, "code %+v", c)
	}
}
