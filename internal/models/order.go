package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus статус выполнения заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid сообщает, входит ли статус в допустимый набор
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus статус оплаты заказа
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Valid сообщает, входит ли статус оплаты в допустимый набор
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusFailed
}

// PaymentMethod способ оплаты. Реально обрабатывается только cod.
type PaymentMethod string

const (
	PaymentMethodCOD            PaymentMethod = "cod"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodUPI            PaymentMethod = "upi"
	PaymentMethodCashOnDelivery PaymentMethod = "cash-on-delivery"
)

// Valid сообщает, поддерживается ли способ оплаты
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodUPI, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// Order представляет заказ покупателя
type Order struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	OrderID         string         `json:"orderId" db:"order_id"`
	FirstName       string         `json:"firstName" db:"first_name"`
	LastName        string         `json:"lastName" db:"last_name"`
	CustomerName    string         `json:"customerName" db:"customer_name"`
	CustomerEmail   string         `json:"customerEmail" db:"customer_email"`
	CustomerPhone   string         `json:"customerPhone" db:"customer_phone"`
	Address         string         `json:"address" db:"address"`
	City            string         `json:"city" db:"city"`
	State           string         `json:"state" db:"state"`
	Zipcode         string         `json:"zipcode" db:"zipcode"`
	Country         string         `json:"country" db:"country"`
	Instructions    string         `json:"instructions,omitempty" db:"instructions"`
	CustomerAddress string         `json:"customerAddress" db:"customer_address"`
	Products        []OrderProduct `json:"products" db:"products"`
	Subtotal        float64        `json:"subtotal" db:"subtotal"`
	Tax             float64        `json:"tax" db:"tax"`
	Shipping        float64        `json:"shipping" db:"shipping"`
	TotalAmount     float64        `json:"totalAmount" db:"total_amount"`
	PaymentMethod   PaymentMethod  `json:"paymentMethod" db:"payment_method"`
	OrderStatus     OrderStatus    `json:"orderStatus" db:"order_status"`
	PaymentStatus   PaymentStatus  `json:"paymentStatus" db:"payment_status"`
	Notes           string         `json:"notes,omitempty" db:"notes"`
	TrackingNumber  string         `json:"trackingNumber,omitempty" db:"tracking_number"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time      `json:"updatedAt" db:"updated_at"`
}

// OrderProduct позиция заказа; Total = Quantity * Price на момент создания
type OrderProduct struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Total     float64 `json:"total"`
}

// CreateOrderRequest тело запроса оформления заказа
type CreateOrderRequest struct {
	FirstName     string                      `json:"firstName"`
	LastName      string                      `json:"lastName"`
	Email         string                      `json:"email"`
	Phone         string                      `json:"phone"`
	Address       string                      `json:"address"`
	City          string                      `json:"city"`
	State         string                      `json:"state"`
	Zipcode       string                      `json:"zipcode"`
	Country       string                      `json:"country,omitempty"`
	Instructions  string                      `json:"instructions,omitempty"`
	Notes         string                      `json:"notes,omitempty"`
	Products      []CreateOrderProductRequest `json:"products"`
	Subtotal      float64                     `json:"subtotal"`
	Tax           float64                     `json:"tax"`
	Shipping      float64                     `json:"shipping,omitempty"`
	TotalAmount   float64                     `json:"totalAmount"`
	PaymentMethod PaymentMethod               `json:"paymentMethod,omitempty"`
}

// CreateOrderProductRequest позиция в запросе оформления заказа
type CreateOrderProductRequest struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// UpdateOrderRequest административное обновление заказа; nil поле не меняется
type UpdateOrderRequest struct {
	OrderStatus    *OrderStatus   `json:"orderStatus,omitempty"`
	PaymentStatus  *PaymentStatus `json:"paymentStatus,omitempty"`
	Notes          *string        `json:"notes,omitempty"`
	TrackingNumber *string        `json:"trackingNumber,omitempty"`
}

// Empty сообщает, что в запросе нет ни одного изменения
func (r *UpdateOrderRequest) Empty() bool {
	return r.OrderStatus == nil && r.PaymentStatus == nil && r.Notes == nil && r.TrackingNumber == nil
}

// TrackOrderRequest запрос отслеживания заказа покупателем
type TrackOrderRequest struct {
	OrderID      string `json:"orderId"`
	MobileNumber string `json:"mobileNumber"`
}

// OrderFilter параметры выборки списка заказов
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}
