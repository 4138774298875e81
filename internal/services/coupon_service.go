package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/apperror"
	"github.com/Hari-prasath-6380/KCP-organics/internal/database"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
	"github.com/Hari-prasath-6380/KCP-organics/internal/redis"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	defaultCouponValidity = 30 * 24 * time.Hour
	activeCouponsTTL      = time.Minute
)

var activeCouponsKey = redis.GenerateKey(redis.KeyPrefixCoupon, "active")

const couponColumns = `id, code, description, discount_type, discount_value, min_order_value, max_discount,
	usage_limit, usage_per_user, used_count, is_active, valid_from, valid_until, applicable_categories,
	created_at, updated_at`

// CouponCache кеш списка действующих купонов
type CouponCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// CouponEventPublisher публикует события погашения купонов
type CouponEventPublisher interface {
	PublishCouponRedeemed(data models.CouponRedeemedData) error
}

// CouponService хранит купоны, проверяет их и проводит погашение.
type CouponService struct {
	db     *database.DB
	log    *logger.Logger
	cache  CouponCache
	events CouponEventPublisher
	now    func() time.Time
}

// NewCouponService создаёт сервис купонов. cache и events могут быть nil.
func NewCouponService(db *database.DB, log *logger.Logger, cache CouponCache, events CouponEventPublisher) *CouponService {
	return &CouponService{
		db:     db,
		log:    log,
		cache:  cache,
		events: events,
		now:    time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateCoupon создаёт купон, заполняя значения по умолчанию.
func (s *CouponService) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	if req == nil || NormalizeCouponCode(req.Code) == "" || req.DiscountType == "" || req.DiscountValue == nil {
		return nil, apperror.Validation("Please provide code, discountType and discountValue", nil)
	}

	now := s.now()
	coupon := &models.Coupon{
		ID:                   uuid.New(),
		Code:                 NormalizeCouponCode(req.Code),
		Description:          req.Description,
		DiscountType:         req.DiscountType,
		DiscountValue:        *req.DiscountValue,
		MinOrderValue:        req.MinOrderValue,
		MaxDiscount:          req.MaxDiscount,
		UsageLimit:           req.UsageLimit,
		UsagePerUser:         1,
		IsActive:             true,
		ValidFrom:            now,
		ValidUntil:           now.Add(defaultCouponValidity),
		ApplicableCategories: req.ApplicableCategories,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.UsagePerUser != nil {
		coupon.UsagePerUser = *req.UsagePerUser
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		coupon.ValidUntil = *req.ValidUntil
	}
	if coupon.ApplicableCategories == nil {
		coupon.ApplicableCategories = []string{}
	}

	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO coupons (id, code, description, discount_type, discount_value, min_order_value, max_discount,
			usage_limit, usage_per_user, used_count, is_active, valid_from, valid_until, applicable_categories,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		coupon.ID, coupon.Code, coupon.Description, coupon.DiscountType, coupon.DiscountValue,
		coupon.MinOrderValue, coupon.MaxDiscount, coupon.UsageLimit, coupon.UsagePerUser,
		coupon.IsActive, coupon.ValidFrom, coupon.ValidUntil, pq.Array(coupon.ApplicableCategories),
		coupon.CreatedAt, coupon.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("Coupon already exists", err)
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.log.WithCoupon(coupon.Code).Info("Coupon created")
	s.invalidate(ctx)
	return coupon, nil
}

// GetCoupon возвращает купон по ID вместе с журналом использований.
func (s *CouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	coupon, err := scanCoupon(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Coupon not found", err)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	usages, err := s.listUsages(ctx, coupon.ID)
	if err != nil {
		return nil, err
	}
	coupon.UsedBy = usages
	return coupon, nil
}

// ListActiveCoupons возвращает действующие купоны без журнала использований.
// Список кешируется на минуту и сбрасывается при любом изменении купонов.
func (s *CouponService) ListActiveCoupons(ctx context.Context) ([]*models.Coupon, error) {
	if s.cache != nil {
		var cached []*models.Coupon
		err := s.cache.GetJSON(ctx, activeCouponsKey, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithError(err).Warn("Active coupons cache read failed")
		}
	}

	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE is_active = TRUE AND valid_from <= $1 AND valid_until >= $1
		ORDER BY created_at DESC
	`
	coupons, err := s.queryCoupons(ctx, query, s.now())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, activeCouponsKey, coupons, activeCouponsTTL); err != nil {
			s.log.WithError(err).Warn("Active coupons cache write failed")
		}
	}
	return coupons, nil
}

// HandleCouponEvent сбрасывает кеш купонов по событиям из Kafka, в том числе от других экземпляров
func (s *CouponService) HandleCouponEvent(ctx context.Context, event *models.Event) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPrefix(ctx, redis.KeyPrefixCoupon+":")
}

func (s *CouponService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, redis.KeyPrefixCoupon+":"); err != nil {
		s.log.WithError(err).Warn("Coupon cache invalidation failed")
	}
}

// ListCoupons возвращает все купоны для администратора.
func (s *CouponService) ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return s.queryCoupons(ctx, query, limit, offset)
}

// UpdateCoupon частично обновляет купон.
func (s *CouponService) UpdateCoupon(ctx context.Context, id uuid.UUID, req *models.UpdateCouponRequest) (*models.Coupon, error) {
	if req == nil {
		return nil, apperror.Validation("request body is required", nil)
	}

	coupon, err := s.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	applyCouponPatch(coupon, req)
	coupon.UpdatedAt = s.now()

	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	query := `
		UPDATE coupons
		SET code = $1, description = $2, discount_type = $3, discount_value = $4, min_order_value = $5,
			max_discount = $6, usage_limit = $7, usage_per_user = $8, is_active = $9, valid_from = $10,
			valid_until = $11, applicable_categories = $12, updated_at = $13
		WHERE id = $14
	`
	result, err := s.db.ExecContext(ctx, query,
		coupon.Code, coupon.Description, coupon.DiscountType, coupon.DiscountValue, coupon.MinOrderValue,
		coupon.MaxDiscount, coupon.UsageLimit, coupon.UsagePerUser, coupon.IsActive, coupon.ValidFrom,
		coupon.ValidUntil, pq.Array(coupon.ApplicableCategories), coupon.UpdatedAt, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("Coupon already exists", err)
		}
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, apperror.NotFound("Coupon not found", nil)
	}

	s.log.WithCoupon(coupon.Code).Info("Coupon updated")
	s.invalidate(ctx)
	return coupon, nil
}

// DeleteCoupon удаляет купон вместе с журналом использований.
func (s *CouponService) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM coupons WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("Coupon not found", nil)
	}
	s.log.WithField("coupon_id", id).Info("Coupon deleted")
	s.invalidate(ctx)
	return nil
}

// ValidateCoupon проверяет купон для корзины без записи в базу.
func (s *CouponService) ValidateCoupon(ctx context.Context, req *models.ValidateCouponRequest) (*models.CouponValidationResult, error) {
	if err := validateCouponCheck(req.Code, req.OrderAmount); err != nil {
		return nil, err
	}
	req.Code = NormalizeCouponCode(req.Code)

	coupon, err := s.loadForEvaluation(ctx, s.db, req.Code, req.UserID, false)
	if err != nil {
		return nil, err
	}
	return EvaluateCoupon(coupon, req, s.now())
}

// RedeemCoupon атомарно погашает одно использование купона пользователем.
// Строка купона блокируется на время транзакции, поэтому параллельные
// погашения не превышают лимиты.
func (s *CouponService) RedeemCoupon(ctx context.Context, req *models.RedeemCouponRequest) (*models.CouponValidationResult, error) {
	if err := validateCouponCheck(req.Code, req.OrderAmount); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, apperror.Validation("userId is required to redeem a coupon", nil)
	}
	code := NormalizeCouponCode(req.Code)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	coupon, err := s.loadForEvaluation(ctx, tx, code, req.UserID, true)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result, err := EvaluateCoupon(coupon, &models.ValidateCouponRequest{
		Code:        code,
		OrderAmount: req.OrderAmount,
		UserID:      req.UserID,
		Category:    req.Category,
	}, now)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = $1 WHERE id = $2`,
		now, coupon.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	upsert := `
		INSERT INTO coupon_usages (coupon_id, user_id, used_count, last_used_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (coupon_id, user_id)
		DO UPDATE SET used_count = coupon_usages.used_count + 1, last_used_at = EXCLUDED.last_used_at
	`
	if _, err := tx.ExecContext(ctx, upsert, coupon.ID, req.UserID, now); err != nil {
		return nil, fmt.Errorf("failed to record coupon usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit coupon redemption: %w", err)
	}

	s.log.WithCoupon(code).WithFields(map[string]interface{}{
		"user_id":  req.UserID,
		"order_id": req.OrderID,
		"discount": result.Discount,
	}).Info("Coupon redeemed")
	s.invalidate(ctx)

	if s.events != nil {
		if err := s.events.PublishCouponRedeemed(models.CouponRedeemedData{
			CouponID:       coupon.ID,
			Code:           code,
			UserID:         req.UserID,
			OrderID:        req.OrderID,
			DiscountAmount: result.Discount,
		}); err != nil {
			s.log.WithError(err).WithField("coupon_code", code).Warn("Failed to publish coupon.redeemed event")
		}
	}

	return result, nil
}

// loadForEvaluation загружает купон по коду и запись журнала для пользователя.
// Отсутствующий купон возвращается как nil без ошибки: решение принимает EvaluateCoupon.
func (s *CouponService) loadForEvaluation(ctx context.Context, q queryer, code, userID string, forUpdate bool) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	coupon, err := scanCoupon(q.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	if userID == "" {
		return coupon, nil
	}

	usage := models.CouponUsage{UserID: userID}
	err = q.QueryRowContext(ctx,
		`SELECT used_count, last_used_at FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		coupon.ID, userID,
	).Scan(&usage.UsedCount, &usage.LastUsedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to load coupon usage: %w", err)
	default:
		coupon.UsedBy = []models.CouponUsage{usage}
	}
	return coupon, nil
}

func (s *CouponService) listUsages(ctx context.Context, couponID uuid.UUID) ([]models.CouponUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, used_count, last_used_at FROM coupon_usages WHERE coupon_id = $1 ORDER BY last_used_at DESC`,
		couponID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupon usages: %w", err)
	}
	defer rows.Close()

	var usages []models.CouponUsage
	for rows.Next() {
		var u models.CouponUsage
		if err := rows.Scan(&u.UserID, &u.UsedCount, &u.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coupon usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupon usages: %w", err)
	}
	return usages, nil
}

func (s *CouponService) queryCoupons(ctx context.Context, query string, args ...interface{}) ([]*models.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []*models.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var (
		c           models.Coupon
		maxDiscount sql.NullFloat64
		usageLimit  sql.NullInt64
		categories  []string
	)
	if err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MinOrderValue, &maxDiscount,
		&usageLimit, &c.UsagePerUser, &c.UsedCount, &c.IsActive, &c.ValidFrom, &c.ValidUntil,
		pq.Array(&categories), &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if maxDiscount.Valid {
		v := maxDiscount.Float64
		c.MaxDiscount = &v
	}
	if usageLimit.Valid {
		v := int(usageLimit.Int64)
		c.UsageLimit = &v
	}
	if categories == nil {
		categories = []string{}
	}
	c.ApplicableCategories = categories
	return &c, nil
}

func applyCouponPatch(c *models.Coupon, req *models.UpdateCouponRequest) {
	if req.Code != nil {
		c.Code = NormalizeCouponCode(*req.Code)
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.DiscountType != nil {
		c.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		c.DiscountValue = *req.DiscountValue
	}
	if req.MinOrderValue != nil {
		c.MinOrderValue = *req.MinOrderValue
	}
	if req.MaxDiscount != nil {
		c.MaxDiscount = req.MaxDiscount
	}
	if req.UsageLimit != nil {
		c.UsageLimit = req.UsageLimit
	}
	if req.UsagePerUser != nil {
		c.UsagePerUser = *req.UsagePerUser
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if req.ValidFrom != nil {
		c.ValidFrom = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		c.ValidUntil = *req.ValidUntil
	}
	if req.ApplicableCategories != nil {
		c.ApplicableCategories = *req.ApplicableCategories
	}
}

func validateCoupon(c *models.Coupon) error {
	switch {
	case c.Code == "":
		return apperror.Validation("code is required", nil)
	case strings.TrimSpace(c.Description) == "":
		return apperror.Validation("description is required", nil)
	case !c.DiscountType.Valid():
		return apperror.Validation("discountType must be percentage or fixed", nil)
	case c.DiscountType == models.DiscountTypePercentage && (c.DiscountValue <= 0 || c.DiscountValue > 100):
		return apperror.Validation("percentage discountValue must be greater than 0 and at most 100", nil)
	case c.DiscountType == models.DiscountTypeFixed && c.DiscountValue < 0:
		return apperror.Validation("fixed discountValue must be non-negative", nil)
	case c.MinOrderValue < 0:
		return apperror.Validation("minOrderValue must be non-negative", nil)
	case c.MaxDiscount != nil && *c.MaxDiscount < 0:
		return apperror.Validation("maxDiscount must be non-negative", nil)
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return apperror.Validation("usageLimit must be non-negative", nil)
	case c.UsagePerUser < 1:
		return apperror.Validation("usagePerUser must be at least 1", nil)
	case c.ValidUntil.Before(c.ValidFrom):
		return apperror.Validation("validUntil must not be before validFrom", nil)
	}
	return nil
}

func validateCouponCheck(code string, orderAmount *float64) error {
	if NormalizeCouponCode(code) == "" {
		return apperror.Validation("Coupon code is required", nil)
	}
	if orderAmount == nil {
		return apperror.Validation("orderAmount is required", nil)
	}
	if *orderAmount < 0 {
		return apperror.Validation("orderAmount must be non-negative", nil)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
