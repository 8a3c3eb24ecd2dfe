package model

import "time"

// EventType — тип исходящего события для коллабораторов уведомлений и администрирования.
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventLoyaltyAccrued     EventType = "loyalty.accrued"
	EventLoyaltyRedeemed    EventType = "loyalty.redeemed"
	EventLoyaltyRefunded    EventType = "loyalty.refunded"
	EventPromoApplied       EventType = "promo.applied"
	EventPaymentRecorded    EventType = "order.payment_recorded"
)

// Event — исходящее событие ядра.
type Event interface {
	Type() EventType
	OccurredAt() time.Time
}

// OrderCreated публикуется после фиксации нового заказа.
type OrderCreated struct {
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	Subtotal  int64     `json:"subtotal"`
	Discount  int64     `json:"discount"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderCreated) Type() EventType         { return EventOrderCreated }
func (e OrderCreated) OccurredAt() time.Time { return e.Timestamp }

// OrderStatusChanged публикуется после каждого успешного перехода статуса.
type OrderStatusChanged struct {
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   int64     `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderStatusChanged) Type() EventType         { return EventOrderStatusChanged }
func (e OrderStatusChanged) OccurredAt() time.Time { return e.Timestamp }

// LoyaltyAccrued публикуется при начислении баллов за доставленный заказ.
type LoyaltyAccrued struct {
	UserID    int64     `json:"user_id"`
	Points    int64     `json:"points"`
	OrderID   int64     `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (LoyaltyAccrued) Type() EventType         { return EventLoyaltyAccrued }
func (e LoyaltyAccrued) OccurredAt() time.Time { return e.Timestamp }

// LoyaltyRedeemed публикуется при списании баллов на оформлении заказа.
type LoyaltyRedeemed struct {
	UserID    int64     `json:"user_id"`
	Points    int64     `json:"points"`
	OrderID   int64     `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (LoyaltyRedeemed) Type() EventType         { return EventLoyaltyRedeemed }
func (e LoyaltyRedeemed) OccurredAt() time.Time { return e.Timestamp }

// LoyaltyRefunded публикуется при возврате списанных баллов после отмены заказа.
type LoyaltyRefunded struct {
	UserID    int64     `json:"user_id"`
	Points    int64     `json:"points"`
	OrderID   int64     `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (LoyaltyRefunded) Type() EventType         { return EventLoyaltyRefunded }
func (e LoyaltyRefunded) OccurredAt() time.Time { return e.Timestamp }

// PromoApplied публикуется, когда промокод учтён в оформленном заказе.
type PromoApplied struct {
	Code           string    `json:"code"`
	OrderID        int64     `json:"order_id"`
	DiscountAmount int64     `json:"discount_amount"`
	Timestamp      time.Time `json:"timestamp"`
}

func (PromoApplied) Type() EventType         { return EventPromoApplied }
func (e PromoApplied) OccurredAt() time.Time { return e.Timestamp }

// PaymentRecorded публикуется после сохранения платёжной ссылки заказа.
type PaymentRecorded struct {
	OrderID   int64     `json:"order_id"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

func (PaymentRecorded) Type() EventType         { return EventPaymentRecorded }
func (e PaymentRecorded) OccurredAt() time.Time { return e.Timestamp }
