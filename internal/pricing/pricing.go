// Package pricing рассчитывает суммы заказа, скидки и баллы лояльности. Функции не имеют состояния.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/loyalty"
	"github.com/mmeshcher/gopherfood/internal/model"
	"github.com/mmeshcher/gopherfood/internal/promo"
)

// MinorUnits — количество минимальных единиц в одной денежной единице.
const MinorUnits = 100

// Engine рассчитывает цены по заданным курсам программы лояльности.
type Engine struct {
	accrualRate   decimal.Decimal
	pointsPerUnit int64
}

// NewEngine создаёт калькулятор. accrualRate — баллов за денежную единицу итоговой суммы,
// pointsPerUnit — сколько баллов обменивается на одну денежную единицу скидки.
func NewEngine(accrualRate decimal.Decimal, pointsPerUnit int64) Engine {
	if pointsPerUnit <= 0 {
		pointsPerUnit = 100
	}
	return Engine{accrualRate: accrualRate, pointsPerUnit: pointsPerUnit}
}

// Subtotal возвращает сумму цена × количество по всем позициям.
func (Engine) Subtotal(lines []cart.Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.UnitPrice * int64(l.Quantity)
	}
	return sum
}

// Discount возвращает скидку промокода, не превышающую subtotal.
// Процентная скидка округляется до ближайшей минимальной единицы.
func (Engine) Discount(subtotal int64, code *promo.Code) int64 {
	if code == nil || subtotal <= 0 {
		return 0
	}

	var d int64
	switch code.Kind {
	case promo.DiscountPercentage:
		d = decimal.NewFromInt(subtotal).Mul(code.Rate).Round(0).IntPart()
	case promo.DiscountFixed:
		d = code.Amount
	}

	return clamp(d, 0, subtotal)
}

// RedemptionValue переводит баллы в денежную скидку с отбрасыванием дробной части.
func (e Engine) RedemptionValue(points, balance int64) (int64, error) {
	if points < 0 {
		return 0, model.ErrInvalidInput
	}
	if points > balance {
		return 0, loyalty.ErrInsufficientPoints
	}
	return points * MinorUnits / e.pointsPerUnit, nil
}

// PointsToCover возвращает минимальное число баллов, покрывающее сумму amount.
func (e Engine) PointsToCover(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*e.pointsPerUnit + MinorUnits - 1) / MinorUnits
}

// Redemption подбирает списание баллов для суммы к оплате amount: не больше requested,
// стоимость не превышает amount, и списываются только баллы, дающие вклад в стоимость.
// Если ни один балл не даёт скидки, возвращает нули.
func (e Engine) Redemption(requested, balance, amount int64) (points, value int64, err error) {
	value, err = e.RedemptionValue(requested, balance)
	if err != nil {
		return 0, 0, err
	}

	limit := min(value, max(amount, 0))
	// наибольшее число баллов, стоимость которых с округлением вниз не больше limit
	points = min(requested, ((limit+1)*e.pointsPerUnit-1)/MinorUnits)
	value = points * MinorUnits / e.pointsPerUnit

	return e.PointsToCover(value), value, nil
}

// Total возвращает max(0, subtotal − discount − redemption).
func (Engine) Total(subtotal, discount, redemption int64) int64 {
	return max(0, subtotal-discount-redemption)
}

// Accrual возвращает баллы за оплаченную сумму, округляя вниз.
func (e Engine) Accrual(total int64) int64 {
	if total <= 0 || !e.accrualRate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(total).
		Mul(e.accrualRate).
		Div(decimal.NewFromInt(MinorUnits)).
		Truncate(0).
		IntPart()
}

func clamp(v, lo, hi int64) int64 {
	return min(max(v, lo), hi)
}
