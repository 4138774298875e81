package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType тип события в Kafka
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeCouponRedeemed     EventType = "coupon.redeemed"
)

// Event конверт события Kafka
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// OrderCreatedData полезная нагрузка события order.created
type OrderCreatedData struct {
	ID            uuid.UUID      `json:"id"`
	OrderID       string         `json:"orderId"`
	CustomerName  string         `json:"customerName"`
	CustomerPhone string         `json:"customerPhone"`
	TotalAmount   float64        `json:"totalAmount"`
	PaymentMethod PaymentMethod  `json:"paymentMethod"`
	Products      []OrderProduct `json:"products"`
}

// OrderStatusChangedData полезная нагрузка события order.status_changed
type OrderStatusChangedData struct {
	ID            uuid.UUID     `json:"id"`
	OrderID       string        `json:"orderId"`
	OldStatus     OrderStatus   `json:"oldStatus"`
	NewStatus     OrderStatus   `json:"newStatus"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
}

// CouponRedeemedData полезная нагрузка события coupon.redeemed
type CouponRedeemedData struct {
	CouponID       uuid.UUID `json:"couponId"`
	Code           string    `json:"code"`
	UserID         string    `json:"userId"`
	OrderID        string    `json:"orderId,omitempty"`
	DiscountAmount float64   `json:"discountAmount"`
}
