// Package cart реализует корзину пользователя: упорядоченный набор позиций до оформления заказа.
package cart

import (
	"slices"
	"strings"
	"time"

	"github.com/mmeshcher/gopherfood/internal/model"
)

// MaxLineQuantity — максимальное количество единиц в одной позиции корзины.
const MaxLineQuantity = 100

var (
	// ErrInvalidQuantity возвращается при неположительном или слишком большом количестве.
	ErrInvalidQuantity = model.NewError(model.KindValidation, "invalid_quantity", "invalid quantity")
	// ErrItemUnavailable возвращается при добавлении недоступной позиции меню.
	ErrItemUnavailable = model.NewError(model.KindValidation, "item_unavailable", "menu item is unavailable")
	// ErrLineNotFound возвращается, если позиции с указанным идентификатором нет в корзине.
	ErrLineNotFound = model.NewError(model.KindNotFound, "line_not_found", "cart line not found")
	// ErrEmptyCart возвращается при оформлении пустой корзины.
	ErrEmptyCart = model.NewError(model.KindValidation, "empty_cart", "cart is empty")
)

// Line — позиция корзины. Цена фиксируется в момент добавления.
type Line struct {
	ID        int64  `json:"id"`
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Notes     string `json:"notes,omitempty"`
}

// Cart — корзина одного пользователя.
type Cart struct {
	UserID       int64
	Lines        []Line
	PromoCode    string
	LastModified time.Time
	NextLineID   int64
}

// New создаёт пустую корзину пользователя.
func New(userID int64, now time.Time) *Cart {
	return &Cart{
		UserID:       userID,
		LastModified: now,
		NextLineID:   1,
	}
}

// Add добавляет позицию меню. Позиции с тем же товаром и комментарием объединяются.
func (c *Cart) Add(item model.MenuItem, quantity int, notes string, now time.Time) (Line, error) {
	if !item.Available {
		return Line{}, ErrItemUnavailable
	}
	if quantity <= 0 || quantity > MaxLineQuantity {
		return Line{}, ErrInvalidQuantity
	}

	notes = strings.TrimSpace(notes)
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.ItemID != item.ID || l.Notes != notes {
			continue
		}
		if l.Quantity+quantity > MaxLineQuantity {
			return Line{}, ErrInvalidQuantity
		}
		l.Quantity += quantity
		c.touch(now)
		return *l, nil
	}

	if c.NextLineID == 0 {
		c.NextLineID = 1
	}
	line := Line{
		ID:        c.NextLineID,
		ItemID:    item.ID,
		Name:      item.Name,
		Quantity:  quantity,
		UnitPrice: item.Price,
		Notes:     notes,
	}
	c.NextLineID++
	c.Lines = append(c.Lines, line)
	c.touch(now)
	return line, nil
}

// Adjust изменяет количество позиции на delta. Позиция с количеством меньше единицы удаляется.
func (c *Cart) Adjust(lineID int64, delta int, now time.Time) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}

	qty := c.Lines[idx].Quantity + delta
	switch {
	case qty < 1:
		c.Lines = slices.Delete(c.Lines, idx, idx+1)
	case qty > MaxLineQuantity:
		return ErrInvalidQuantity
	default:
		c.Lines[idx].Quantity = qty
	}

	c.touch(now)
	return nil
}

// Remove удаляет позицию. Отсутствие позиции ошибкой не считается.
func (c *Cart) Remove(lineID int64, now time.Time) {
	if idx := c.indexOf(lineID); idx >= 0 {
		c.Lines = slices.Delete(c.Lines, idx, idx+1)
	}
	c.touch(now)
}

// ApplyPromo сохраняет проверенный промокод, заменяя предыдущий.
func (c *Cart) ApplyPromo(code string, now time.Time) {
	c.PromoCode = code
	c.touch(now)
}

// ClearPromo снимает промокод с корзины.
func (c *Cart) ClearPromo(now time.Time) {
	c.PromoCode = ""
	c.touch(now)
}

// Clear удаляет все позиции и промокод.
func (c *Cart) Clear(now time.Time) {
	c.Lines = nil
	c.PromoCode = ""
	c.touch(now)
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// IsExpired сообщает, истёк ли срок жизни корзины. Неположительный ttl отключает истечение.
func (c *Cart) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.After(c.LastModified.Add(ttl))
}

// Snapshot — неизменяемая копия корзины для оформления заказа.
type Snapshot struct {
	UserID    int64
	Lines     []Line
	PromoCode string
	TakenAt   time.Time
}

// Snapshot возвращает копию позиций и промокода, не изменяя корзину.
func (c *Cart) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		UserID:    c.UserID,
		Lines:     slices.Clone(c.Lines),
		PromoCode: c.PromoCode,
		TakenAt:   now,
	}
}

// Clone возвращает глубокую копию корзины.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Lines = slices.Clone(c.Lines)
	return &cp
}

func (c *Cart) indexOf(lineID int64) int {
	return slices.IndexFunc(c.Lines, func(l Line) bool { return l.ID == lineID })
}

func (c *Cart) touch(now time.Time) {
	c.LastModified = now
}
