package handlers

import (
	"context"

	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
	"github.com/Hari-prasath-6380/KCP-organics/internal/services"

	"github.com/google/uuid"
)

// ----- Coupons -----

type CouponService interface {
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error)
	GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	ListActiveCoupons(ctx context.Context) ([]*models.Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error)
	UpdateCoupon(ctx context.Context, id uuid.UUID, req *models.UpdateCouponRequest) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, id uuid.UUID) error
	ValidateCoupon(ctx context.Context, req *models.ValidateCouponRequest) (*models.CouponValidationResult, error)
	RedeemCoupon(ctx context.Context, req *models.RedeemCouponRequest) (*models.CouponValidationResult, error)
}

// ----- Orders -----

type OrderService interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	CountPendingOrders(ctx context.Context) (int64, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, req *models.UpdateOrderRequest) (*models.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	TrackOrder(ctx context.Context, req *models.TrackOrderRequest) (*models.Order, error)
}

// ----- Rate limit -----

type RateLimiter interface {
	Check(ctx context.Context, client string) (services.RateDecision, error)
	Peek(ctx context.Context, client string) (services.RateDecision, error)
	Enabled() bool
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
