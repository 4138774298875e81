package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType описывает способ расчёта скидки купона
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Valid сообщает, поддерживается ли тип скидки
func (d DiscountType) Valid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

// Coupon представляет купон магазина вместе с журналом использований
type Coupon struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	Code                 string        `json:"code" db:"code"`
	Description          string        `json:"description" db:"description"`
	DiscountType         DiscountType  `json:"discountType" db:"discount_type"`
	DiscountValue        float64       `json:"discountValue" db:"discount_value"`
	MinOrderValue        float64       `json:"minOrderValue" db:"min_order_value"`
	MaxDiscount          *float64      `json:"maxDiscount,omitempty" db:"max_discount"`
	UsageLimit           *int          `json:"usageLimit,omitempty" db:"usage_limit"`
	UsagePerUser         int           `json:"usagePerUser" db:"usage_per_user"`
	UsedCount            int           `json:"usedCount" db:"used_count"`
	UsedBy               []CouponUsage `json:"usedBy,omitempty"`
	IsActive             bool          `json:"isActive" db:"is_active"`
	ValidFrom            time.Time     `json:"validFrom" db:"valid_from"`
	ValidUntil           time.Time     `json:"validUntil" db:"valid_until"`
	ApplicableCategories []string      `json:"applicableCategories" db:"applicable_categories"`
	CreatedAt            time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time     `json:"updatedAt" db:"updated_at"`
}

// UsageFor возвращает число использований купона пользователем
func (c *Coupon) UsageFor(userID string) int {
	for _, u := range c.UsedBy {
		if u.UserID == userID {
			return u.UsedCount
		}
	}
	return 0
}

// CouponUsage запись журнала использований купона одним пользователем
type CouponUsage struct {
	UserID     string    `json:"userId" db:"user_id"`
	UsedCount  int       `json:"usedCount" db:"used_count"`
	LastUsedAt time.Time `json:"lastUsedAt" db:"last_used_at"`
}

// CreateCouponRequest запрос на создание купона
type CreateCouponRequest struct {
	Code                 string       `json:"code"`
	Description          string       `json:"description"`
	DiscountType         DiscountType `json:"discountType"`
	DiscountValue        *float64     `json:"discountValue"`
	MinOrderValue        float64      `json:"minOrderValue,omitempty"`
	MaxDiscount          *float64     `json:"maxDiscount,omitempty"`
	UsageLimit           *int         `json:"usageLimit,omitempty"`
	UsagePerUser         *int         `json:"usagePerUser,omitempty"`
	IsActive             *bool        `json:"isActive,omitempty"`
	ValidFrom            *time.Time   `json:"validFrom,omitempty"`
	ValidUntil           *time.Time   `json:"validUntil,omitempty"`
	ApplicableCategories []string     `json:"applicableCategories,omitempty"`
}

// UpdateCouponRequest частичное обновление купона; nil поле не меняется
type UpdateCouponRequest struct {
	Code                 *string       `json:"code,omitempty"`
	Description          *string       `json:"description,omitempty"`
	DiscountType         *DiscountType `json:"discountType,omitempty"`
	DiscountValue        *float64      `json:"discountValue,omitempty"`
	MinOrderValue        *float64      `json:"minOrderValue,omitempty"`
	MaxDiscount          *float64      `json:"maxDiscount,omitempty"`
	UsageLimit           *int          `json:"usageLimit,omitempty"`
	UsagePerUser         *int          `json:"usagePerUser,omitempty"`
	IsActive             *bool         `json:"isActive,omitempty"`
	ValidFrom            *time.Time    `json:"validFrom,omitempty"`
	ValidUntil           *time.Time    `json:"validUntil,omitempty"`
	ApplicableCategories *[]string     `json:"applicableCategories,omitempty"`
}

// ValidateCouponRequest запрос на проверку купона для корзины
type ValidateCouponRequest struct {
	Code        string   `json:"code"`
	OrderAmount *float64 `json:"orderAmount"`
	UserID      string   `json:"userId,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// RedeemCouponRequest запрос на погашение купона; пользователь обязателен
type RedeemCouponRequest struct {
	Code        string   `json:"code"`
	OrderAmount *float64 `json:"orderAmount"`
	UserID      string   `json:"userId"`
	Category    string   `json:"category,omitempty"`
	OrderID     string   `json:"orderId,omitempty"`
}

// CouponValidationResult результат успешной проверки купона
type CouponValidationResult struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discountType"`
	DiscountValue float64      `json:"discountValue"`
	Discount      float64      `json:"discount"`
	Description   string       `json:"description"`
}
