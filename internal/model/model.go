// Package model содержит общие сущности ядра заказов: позиции меню, участников операций и события.
package model

import "time"

// MenuItem описывает позицию меню. Цена хранится в минимальных денежных единицах (центах).
type MenuItem struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor описывает инициатора операции над заказом.
type Actor struct {
	UserID int64
	Admin  bool
}

// CanAccess сообщает, может ли участник работать с ресурсом пользователя ownerID.
func (a Actor) CanAccess(ownerID int64) bool {
	return a.Admin || a.UserID == ownerID
}
