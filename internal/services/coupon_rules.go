package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/apperror"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
)

// Коды причин отказа при проверке купона
const (
	ReasonNotFoundOrExpired     = "not_found_or_expired"
	ReasonUsageLimitExceeded    = "usage_limit_exceeded"
	ReasonBelowMinimum          = "below_minimum"
	ReasonCategoryNotApplicable = "category_not_applicable"
	ReasonPerUserLimitExceeded  = "per_user_limit_exceeded"
)

// NormalizeCouponCode приводит код купона к каноническому виду
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EvaluateCoupon проверяет применимость купона к заказу и считает скидку.
// Функция чистая: ничего не пишет и зависит только от аргументов.
// Правила применяются по порядку, первое нарушенное возвращается как ошибка.
func EvaluateCoupon(coupon *models.Coupon, req *models.ValidateCouponRequest, now time.Time) (*models.CouponValidationResult, error) {
	if req == nil || req.OrderAmount == nil {
		return nil, apperror.Validation("orderAmount is required", nil)
	}
	orderAmount := *req.OrderAmount

	if coupon == nil || !coupon.IsActive || now.Before(coupon.ValidFrom) || now.After(coupon.ValidUntil) {
		return nil, apperror.WithReason(apperror.KindNotFound, ReasonNotFoundOrExpired, "Invalid or expired coupon")
	}

	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, apperror.BusinessRule(ReasonUsageLimitExceeded, "Coupon usage limit exceeded")
	}

	if orderAmount < coupon.MinOrderValue {
		return nil, apperror.BusinessRule(ReasonBelowMinimum,
			fmt.Sprintf("Minimum order value required: $%s", formatAmount(coupon.MinOrderValue)))
	}

	if len(coupon.ApplicableCategories) > 0 && req.Category != "" && !containsString(coupon.ApplicableCategories, req.Category) {
		return nil, apperror.BusinessRule(ReasonCategoryNotApplicable, "Coupon not applicable for this category")
	}

	if req.UserID != "" && coupon.UsageFor(req.UserID) >= coupon.UsagePerUser {
		return nil, apperror.BusinessRule(ReasonPerUserLimitExceeded, "You have reached the usage limit for this coupon")
	}

	return &models.CouponValidationResult{
		Code:          coupon.Code,
		DiscountType:  coupon.DiscountType,
		DiscountValue: coupon.DiscountValue,
		Discount:      computeDiscount(coupon, orderAmount),
		Description:   coupon.Description,
	}, nil
}

// computeDiscount считает скидку без округления. Фиксированная скидка
// не ограничивается суммой заказа.
func computeDiscount(coupon *models.Coupon, orderAmount float64) float64 {
	if coupon.DiscountType == models.DiscountTypeFixed {
		return coupon.DiscountValue
	}
	discount := orderAmount * coupon.DiscountValue / 100
	if coupon.MaxDiscount != nil {
		discount = math.Min(discount, *coupon.MaxDiscount)
	}
	return discount
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// formatAmount печатает число без лишних нулей: 100, 99.5
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
