package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
	"github.com/Hari-prasath-6380/KCP-organics/internal/services"

	"github.com/google/uuid"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

type stubCouponService struct {
	coupon     *models.Coupon
	coupons    []*models.Coupon
	result     *models.CouponValidationResult
	err        error
	lastLimit  int
	lastOffset int
	lastCheck  *models.ValidateCouponRequest
	lastRedeem *models.RedeemCouponRequest
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	return s.coupon, s.err
}
func (s *stubCouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return s.coupon, s.err
}
func (s *stubCouponService) ListActiveCoupons(ctx context.Context) ([]*models.Coupon, error) {
	return s.coupons, s.err
}
func (s *stubCouponService) ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error) {
	s.lastLimit, s.lastOffset = limit, offset
	return s.coupons, s.err
}
func (s *stubCouponService) UpdateCoupon(ctx context.Context, id uuid.UUID, req *models.UpdateCouponRequest) (*models.Coupon, error) {
	return s.coupon, s.err
}
func (s *stubCouponService) DeleteCoupon(ctx context.Context, id uuid.UUID) error { return s.err }
func (s *stubCouponService) ValidateCoupon(ctx context.Context, req *models.ValidateCouponRequest) (*models.CouponValidationResult, error) {
	s.lastCheck = req
	return s.result, s.err
}
func (s *stubCouponService) RedeemCoupon(ctx context.Context, req *models.RedeemCouponRequest) (*models.CouponValidationResult, error) {
	s.lastRedeem = req
	return s.result, s.err
}

type stubOrderService struct {
	order      *models.Order
	orders     []*models.Order
	count      int64
	err        error
	lastFilter models.OrderFilter
	lastTrack  *models.TrackOrderRequest
	lastID     uuid.UUID
}

func (s *stubOrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	return s.order, s.err
}
func (s *stubOrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.lastID = id
	return s.order, s.err
}
func (s *stubOrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	s.lastFilter = filter
	return s.orders, s.err
}
func (s *stubOrderService) CountPendingOrders(ctx context.Context) (int64, error) {
	return s.count, s.err
}
func (s *stubOrderService) UpdateOrder(ctx context.Context, id uuid.UUID, req *models.UpdateOrderRequest) (*models.Order, error) {
	s.lastID = id
	return s.order, s.err
}
func (s *stubOrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	s.lastID = id
	return s.err
}
func (s *stubOrderService) TrackOrder(ctx context.Context, req *models.TrackOrderRequest) (*models.Order, error) {
	s.lastTrack = req
	return s.order, s.err
}

type stubDB struct{ err error }

func (s *stubDB) Health() error { return s.err }

type stubRedisHealth struct{ err error }

func (s *stubRedisHealth) Health(ctx context.Context) error { return s.err }

type stubLimiter struct {
	enabled   bool
	decisions []services.RateDecision
	idx       int
	err       error
}

func (s *stubLimiter) Check(ctx context.Context, client string) (services.RateDecision, error) {
	if s.err != nil {
		return services.RateDecision{}, s.err
	}
	if s.idx >= len(s.decisions) {
		return services.RateDecision{Allowed: false, Limit: 1}, nil
	}
	d := s.decisions[s.idx]
	s.idx++
	return d, nil
}

func (s *stubLimiter) Peek(ctx context.Context, client string) (services.RateDecision, error) {
	if s.err != nil {
		return services.RateDecision{}, s.err
	}
	return services.RateDecision{Allowed: true, Limit: 10, Used: 3, Remaining: 7}, nil
}

func (s *stubLimiter) Enabled() bool { return s.enabled }

func newTestRouter(coupons CouponService, orders OrderService, limiter RateLimiter) http.Handler {
	log := newTestLogger()
	return NewRouter(RouterDeps{
		Coupons:     NewCouponHandler(coupons, log),
		Orders:      NewOrderHandler(orders, log),
		Health:      NewHealthHandler(&stubDB{}, &stubRedisHealth{}, nil, nil),
		RateLimit:   NewRateLimitHandler(limiter, log),
		Limiter:     limiter,
		CORSOrigins: []string{"*"},
		Log:         log,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return env
}
