// Package repository содержит реализации хранилища ядра заказов: PostgreSQL и in-memory.
package repository

import (
	"errors"

	"github.com/mmeshcher/gopherfood/internal/cart"
	"github.com/mmeshcher/gopherfood/internal/order"
)

// ErrCartNotFound возвращается, если у пользователя нет сохранённой корзины.
var ErrCartNotFound = errors.New("cart not found")

type usageKey struct {
	code   string
	userID int64
}

func cloneCart(c *cart.Cart) *cart.Cart {
	if c == nil {
		return nil
	}
	return c.Clone()
}

func cloneOrder(o *order.Order) *order.Order {
	if o == nil {
		return nil
	}
	return o.Clone()
}
