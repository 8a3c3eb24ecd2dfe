package cart

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gopherfood/internal/model"
)

var (
	t0     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pizza  = model.MenuItem{ID: 1, Name: "Margherita", Price: 500, Category: "pizza", Available: true}
	cola   = model.MenuItem{ID: 7, Name: "Coca Cola", Price: 300, Category: "drinks", Available: true}
	hidden = model.MenuItem{ID: 9, Name: "Seasonal", Price: 900, Available: false}
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		item    model.MenuItem
		qty     int
		wantErr error
	}{
		{name: "ok", item: pizza, qty: 2},
		{name: "unavailable item", item: hidden, qty: 1, wantErr: ErrItemUnavailable},
		{name: "zero quantity", item: pizza, qty: 0, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", item: pizza, qty: -3, wantErr: ErrInvalidQuantity},
		{name: "quantity above limit", item: pizza, qty: MaxLineQuantity + 1, wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(1, t0)
			_, err := c.Add(tt.item, tt.qty, "", t0.Add(time.Minute))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, c.Lines)
				assert.Equal(t, t0, c.LastModified)
				return
			}
			require.NoError(t, err)
			require.Len(t, c.Lines, 1)
			assert.Equal(t, tt.qty, c.Lines[0].Quantity)
			assert.Equal(t, tt.item.Price, c.Lines[0].UnitPrice)
			assert.Equal(t, t0.Add(time.Minute), c.LastModified)
		})
	}
}

func TestAdd_MergesSameItemAndNotes(t *testing.T) {
	c := New(1, t0)

	_, err := c.Add(pizza, 1, "extra cheese", t0)
	require.NoError(t, err)
	_, err = c.Add(pizza, 2, " extra cheese ", t0)
	require.NoError(t, err)
	_, err = c.Add(pizza, 1, "", t0)
	require.NoError(t, err)
	_, err = c.Add(cola, 1, "", t0)
	require.NoError(t, err)

	require.Len(t, c.Lines, 3)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.Equal(t, "extra cheese", c.Lines[0].Notes)
	assert.Equal(t, pizza.ID, c.Lines[1].ItemID)
	assert.Equal(t, cola.ID, c.Lines[2].ItemID)
}

func TestAdd_SnapshotsPrice(t *testing.T) {
	c := New(1, t0)
	_, err := c.Add(pizza, 1, "", t0)
	require.NoError(t, err)

	repriced := pizza
	repriced.Price = 900
	_, err = c.Add(repriced, 1, "", t0)
	require.NoError(t, err)

	assert.Equal(t, int64(500), c.Lines[0].UnitPrice)
}

func TestAdjust(t *testing.T) {
	c := New(1, t0)
	line, err := c.Add(pizza, 2, "", t0)
	require.NoError(t, err)

	require.NoError(t, c.Adjust(line.ID, 3, t0))
	assert.Equal(t, 5, c.Lines[0].Quantity)

	require.ErrorIs(t, c.Adjust(line.ID, MaxLineQuantity, t0), ErrInvalidQuantity)
	assert.Equal(t, 5, c.Lines[0].Quantity)

	require.NoError(t, c.Adjust(line.ID, -5, t0))
	assert.Empty(t, c.Lines)

	require.ErrorIs(t, c.Adjust(line.ID, 1, t0), ErrLineNotFound)
}

func TestRemove_Idempotent(t *testing.T) {
	c := New(1, t0)
	line, err := c.Add(pizza, 1, "", t0)
	require.NoError(t, err)

	c.Remove(line.ID, t0.Add(time.Second))
	c.Remove(line.ID, t0.Add(2*time.Second))

	assert.Empty(t, c.Lines)
	assert.Equal(t, t0.Add(2*time.Second), c.LastModified)
}

func TestIsExpired(t *testing.T) {
	c := New(1, t0)
	ttl := 24 * time.Hour

	assert.False(t, c.IsExpired(t0.Add(ttl), ttl))
	assert.True(t, c.IsExpired(t0.Add(ttl+time.Nanosecond), ttl))
	assert.False(t, c.IsExpired(t0.Add(1000*ttl), 0))

	_, err := c.Add(cola, 1, "", t0.Add(ttl))
	require.NoError(t, err)
	assert.False(t, c.IsExpired(t0.Add(ttl+time.Hour), ttl))
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	c := New(1, t0)
	_, err := c.Add(pizza, 2, "", t0)
	require.NoError(t, err)
	c.ApplyPromo("SAVE10", t0)

	snap := c.Snapshot(t0.Add(time.Minute))
	snap.Lines[0].Quantity = 99

	assert.Equal(t, 2, c.Lines[0].Quantity)
	assert.Equal(t, "SAVE10", snap.PromoCode)
	assert.Equal(t, t0, c.LastModified)
}

func TestApplyPromo_ReplacesPrevious(t *testing.T) {
	c := New(1, t0)
	c.ApplyPromo("SAVE10", t0)
	c.ApplyPromo("FIVEOFF", t0)
	assert.Equal(t, "FIVEOFF", c.PromoCode)

	c.ClearPromo(t0)
	assert.Empty(t, c.PromoCode)
}

func TestRandomOperations_NeverKeepNonPositiveQuantity(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 11))
	items := []model.MenuItem{pizza, cola}
	c := New(1, t0)

	for i := 0; i < 5000; i++ {
		switch rnd.IntN(3) {
		case 0:
			_, _ = c.Add(items[rnd.IntN(len(items))], rnd.IntN(7)-2, []string{"", "spicy"}[rnd.IntN(2)], t0)
		case 1:
			if len(c.Lines) > 0 {
				l := c.Lines[rnd.IntN(len(c.Lines))]
				_ = c.Adjust(l.ID, rnd.IntN(9)-5, t0)
			} else {
				_ = c.Adjust(rnd.Int64N(10), rnd.IntN(9)-5, t0)
			}
		case 2:
			c.Remove(rnd.Int64N(c.NextLineID+1), t0)
		}

		for _, l := range c.Lines {
			if l.Quantity <= 0 || l.Quantity > MaxLineQuantity {
				t.Fatalf("step %d: line %d has quantity %d", i, l.ID, l.Quantity)
			}
		}
	}
}
