package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/order"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

func TestMemoryRepository_Menu(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	burger, err := repo.SaveMenuItem(ctx, model.MenuItem{Name: "Burger", Price: 500, Category: "Mains"})
	require.NoError(t, err)
	_, err = repo.SaveMenuItem(ctx, model.MenuItem{Name: "Cola", Price: 150, Category: "drinks"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), burger.ID)

	mains, err := repo.ListMenu(ctx, "mains")
	require.NoError(t, err)
	require.Len(t, mains, 1)
	assert.Equal(t, "Burger", mains[0].Name)

	all, err := repo.ListMenu(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetMenuItem(ctx, 42)
	assert.ErrorIs(t, err, model.ErrMenuItemNotFound)
}

func TestMemoryRepository_CartIsCopied(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()

	c := cart.New(1, now)
	_, err := c.Add(model.MenuItem{ID: 1, Name: "Burger", Price: 500, Available: true}, 1, "", now)
	require.NoError(t, err)
	require.NoError(t, repo.SaveCart(ctx, c))

	c.Clear(now)

	stored, err := repo.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stored.Lines, 1)

	require.NoError(t, repo.DeleteCart(ctx, 1))
	_, err = repo.GetCart(ctx, 1)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestMemoryRepository_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreatePromoCode(ctx, promo.Code{Code: "ONCE", Kind: promo.DiscountFixed, Amount: 100, Active: true}))

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		if err := s.IncrementPromoUsage(ctx, "ONCE", 1); err != nil {
			return err
		}
		if _, err := s.AppendLoyaltyEvent(ctx, loyalty.Event{UserID: 1, Delta: 10}, 10); err != nil {
			return err
		}
		if _, err := s.CreateOrder(ctx, &order.Order{UserID: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	c, err := repo.GetPromoCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Zero(t, c.UsedCount)

	acc, err := repo.GetLoyaltyAccount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)

	orders, err := repo.ListOrdersByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMemoryRepository_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	var id int64
	err := repo.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		var err error
		id, err = s.CreateOrder(ctx, &order.Order{UserID: 3, Status: order.StatusPending})
		return err
	})
	require.NoError(t, err)

	o, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), o.UserID)

	pending, err := repo.ListOrdersByStatus(ctx, order.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMemoryRepository_PromoUsageLimits(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreatePromoCode(ctx, promo.Code{Code: "TWICE", MaxUses: 3, MaxUsesPerUser: 2, Active: true}))

	assert.ErrorIs(t, repo.CreatePromoCode(ctx, promo.Code{Code: "TWICE"}), promo.ErrAlreadyExists)

	require.NoError(t, repo.IncrementPromoUsage(ctx, "TWICE", 1))
	require.NoError(t, repo.IncrementPromoUsage(ctx, "TWICE", 1))
	assert.ErrorIs(t, repo.IncrementPromoUsage(ctx, "TWICE", 1), promo.ErrUsageLimitReached)

	require.NoError(t, repo.IncrementPromoUsage(ctx, "TWICE", 2))
	assert.ErrorIs(t, repo.IncrementPromoUsage(ctx, "TWICE", 3), promo.ErrUsageLimitReached)

	used, err := repo.PromoUsageByUser(ctx, "TWICE", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	assert.ErrorIs(t, repo.IncrementPromoUsage(ctx, "MISSING", 1), promo.ErrNotFound)
}

func TestMemoryRepository_ConcurrentPromoUsage(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreatePromoCode(ctx, promo.Code{Code: "FIRST5", MaxUses: 5, Active: true}))

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := range 20 {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			err := repo.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
				return s.IncrementPromoUsage(ctx, "FIRST5", userID)
			})
			if err == nil {
				succeeded.Add(1)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())

	c, err := repo.GetPromoCode(ctx, "FIRST5")
	require.NoError(t, err)
	assert.Equal(t, 5, c.UsedCount)
}

func TestMemoryRepository_LoyaltyEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.AppendLoyaltyEvent(ctx, loyalty.Event{UserID: 1, Delta: 10, OrderID: 1}, 10)
	require.NoError(t, err)
	_, err = repo.AppendLoyaltyEvent(ctx, loyalty.Event{UserID: 2, Delta: 5, OrderID: 2}, 5)
	require.NoError(t, err)
	_, err = repo.AppendLoyaltyEvent(ctx, loyalty.Event{UserID: 1, Delta: -4, OrderID: 3}, 6)
	require.NoError(t, err)

	events, err := repo.ListLoyaltyEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].OrderID)
	assert.Equal(t, int64(1), events[1].OrderID)

	acc, err := repo.GetLoyaltyAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), acc.Balance)
}
