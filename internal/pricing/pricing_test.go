package pricing

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

func newEngine() Engine {
	return NewEngine(decimal.NewFromInt(1), 100)
}

func TestSubtotalAndPercentageDiscount(t *testing.T) {
	e := newEngine()
	lines := []cart.Line{
		{ItemID: 1, Quantity: 2, UnitPrice: 500},
		{ItemID: 2, Quantity: 1, UnitPrice: 300},
	}
	code := &promo.Code{Code: "SAVE10", Kind: promo.DiscountPercentage, Rate: decimal.RequireFromString("0.10")}

	subtotal := e.Subtotal(lines)
	discount := e.Discount(subtotal, code)

	assert.Equal(t, int64(1300), subtotal)
	assert.Equal(t, int64(130), discount)
	assert.Equal(t, int64(1170), e.Total(subtotal, discount, 0))
}

func TestDiscount(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name     string
		subtotal int64
		code     *promo.Code
		want     int64
	}{
		{name: "no promo", subtotal: 1000, want: 0},
		{name: "percentage rounds half up", subtotal: 1005, code: &promo.Code{Kind: promo.DiscountPercentage, Rate: decimal.RequireFromString("0.1")}, want: 101},
		{name: "percentage rounds down", subtotal: 1004, code: &promo.Code{Kind: promo.DiscountPercentage, Rate: decimal.RequireFromString("0.1")}, want: 100},
		{name: "fixed below subtotal", subtotal: 1000, code: &promo.Code{Kind: promo.DiscountFixed, Amount: 250}, want: 250},
		{name: "fixed capped by subtotal", subtotal: 200, code: &promo.Code{Kind: promo.DiscountFixed, Amount: 500}, want: 200},
		{name: "full percentage", subtotal: 777, code: &promo.Code{Kind: promo.DiscountPercentage, Rate: decimal.NewFromInt(1)}, want: 777},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Discount(tt.subtotal, tt.code))
		})
	}
}

func TestRedemptionValue(t *testing.T) {
	e := newEngine()

	_, err := e.RedemptionValue(150, 50)
	require.ErrorIs(t, err, loyalty.ErrInsufficientPoints)

	v, err := e.RedemptionValue(50, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)

	v, err = e.RedemptionValue(199, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(199), v)

	coarse := NewEngine(decimal.NewFromInt(1), 300)
	v, err = coarse.RedemptionValue(100, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(33), v)
}

func TestPointsToCover(t *testing.T) {
	coarse := NewEngine(decimal.NewFromInt(1), 300)
	for _, amount := range []int64{1, 33, 34, 100, 1170} {
		p := coarse.PointsToCover(amount)
		v, err := coarse.RedemptionValue(p, p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, amount)
		if p > 0 {
			less, _ := coarse.RedemptionValue(p-1, p)
			assert.Less(t, less, amount)
		}
	}
	assert.Zero(t, coarse.PointsToCover(0))
}

func TestRedemption(t *testing.T) {
	tests := []struct {
		name          string
		pointsPerUnit int64
		requested     int64
		balance       int64
		amount        int64
		wantPoints    int64
		wantValue     int64
	}{
		{name: "fits", pointsPerUnit: 100, requested: 50, balance: 50, amount: 1000, wantPoints: 50, wantValue: 50},
		{name: "capped at amount", pointsPerUnit: 100, requested: 5000, balance: 5000, amount: 1000, wantPoints: 1000, wantValue: 1000},
		{name: "expensive points never exceed amount", pointsPerUnit: 1, requested: 10, balance: 10, amount: 150, wantPoints: 1, wantValue: 100},
		{name: "expensive points exact", pointsPerUnit: 1, requested: 10, balance: 10, amount: 300, wantPoints: 3, wantValue: 300},
		{name: "cheap point worth nothing", pointsPerUnit: 150, requested: 1, balance: 10, amount: 1000, wantPoints: 0, wantValue: 0},
		{name: "cheap points only useful part", pointsPerUnit: 150, requested: 4, balance: 10, amount: 1000, wantPoints: 3, wantValue: 2},
		{name: "nothing to pay", pointsPerUnit: 100, requested: 10, balance: 10, amount: 0, wantPoints: 0, wantValue: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(decimal.NewFromInt(1), tt.pointsPerUnit)

			points, value, err := e.Redemption(tt.requested, tt.balance, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPoints, points)
			assert.Equal(t, tt.wantValue, value)
			assert.LessOrEqual(t, value, tt.amount)

			check, err := e.RedemptionValue(points, tt.balance)
			require.NoError(t, err)
			assert.Equal(t, value, check)
		})
	}

	_, _, err := newEngine().Redemption(150, 50, 1000)
	require.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
}

func TestRedemption_InvariantHolds(t *testing.T) {
	rnd := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 5000; i++ {
		e := NewEngine(decimal.NewFromInt(1), 1+rnd.Int64N(400))
		balance := rnd.Int64N(5000)
		requested := rnd.Int64N(balance + 1)
		amount := rnd.Int64N(3000)

		points, value, err := e.Redemption(requested, balance, amount)
		require.NoError(t, err)
		if points > requested || value > amount || e.Total(amount, 0, value) != amount-value {
			t.Fatalf("Redemption(%d, %d, %d) = %d, %d", requested, balance, amount, points, value)
		}
	}
}

func TestTotalNeverNegative(t *testing.T) {
	e := newEngine()
	rnd := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		sub := rnd.Int64N(100000)
		if got := e.Total(sub, rnd.Int64N(200000), rnd.Int64N(200000)); got < 0 {
			t.Fatalf("Total(%d, ...) = %d", sub, got)
		}
	}
	assert.Equal(t, int64(0), e.Total(100, 80, 50))
}

func TestAccrualTruncates(t *testing.T) {
	e := newEngine()
	assert.Equal(t, int64(11), e.Accrual(1170))
	assert.Equal(t, int64(0), e.Accrual(99))
	assert.Equal(t, int64(0), e.Accrual(0))

	half := NewEngine(decimal.RequireFromString("1.5"), 100)
	assert.Equal(t, int64(17), half.Accrual(1170))
}
