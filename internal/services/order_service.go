package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/apperror"
	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/database"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
	"github.com/Hari-prasath-6380/KCP-organics/internal/redis"

	"github.com/google/uuid"
)

const (
	defaultCountry       = "India"
	defaultNotifyTimeout = 30 * time.Second
	orderNotFoundMessage = "Order not found"
)

const orderColumns = `id, order_id, first_name, last_name, customer_name, customer_email, customer_phone,
	address, city, state, zipcode, country, instructions, customer_address, products,
	subtotal, tax, shipping, total_amount, payment_method, order_status, payment_status,
	notes, tracking_number, created_at, updated_at`

// OrderCache кеш заказов и счётчика ожидающих заказов
type OrderCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	GetInt(ctx context.Context, key string) (int64, error)
	SetInt(ctx context.Context, key string, value int64, ttl time.Duration) error
}

// OrderEventPublisher публикует события жизненного цикла заказа
type OrderEventPublisher interface {
	PublishOrderStatusChanged(order *models.Order, oldStatus models.OrderStatus) error
}

// OrderNotifier рассылает уведомление о новом заказе по всем каналам
type OrderNotifier interface {
	NotifyOrderCreated(ctx context.Context, order *models.Order) map[string]bool
}

// OrderService оформляет заказы и управляет ими
type OrderService struct {
	db       *database.DB
	log      *logger.Logger
	cache    OrderCache
	events   OrderEventPublisher
	notifier OrderNotifier

	orderTTL      time.Duration
	pendingTTL    time.Duration
	notifyTimeout time.Duration

	now            func() time.Time
	newOrderNumber func(time.Time) string
	notifications  sync.WaitGroup
}

// NewOrderService создает сервис заказов. cache, events и notifier могут быть nil.
func NewOrderService(db *database.DB, log *logger.Logger, cache OrderCache, events OrderEventPublisher, notifier OrderNotifier, cacheCfg config.CacheConfig) *OrderService {
	orderTTL := time.Duration(cacheCfg.OrderTTLMinutes) * time.Minute
	if orderTTL <= 0 {
		orderTTL = 15 * time.Minute
	}
	pendingTTL := time.Duration(cacheCfg.PendingCountTTLSeconds) * time.Second
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Second
	}

	return &OrderService{
		db:             db,
		log:            log,
		cache:          cache,
		events:         events,
		notifier:       notifier,
		orderTTL:       orderTTL,
		pendingTTL:     pendingTTL,
		notifyTimeout:  defaultNotifyTimeout,
		now:            time.Now,
		newOrderNumber: NewOrderNumber,
	}
}

// CreateOrder проверяет запрос, сохраняет заказ и планирует уведомления.
// Уведомления не ожидаются: их результат только логируется.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	order := buildOrder(req, s.now())

	products, err := json.Marshal(order.Products)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order products: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`

	for attempt := 1; ; attempt++ {
		order.OrderID = s.newOrderNumber(order.CreatedAt)
		_, err = s.db.ExecContext(ctx, query,
			order.ID, order.OrderID, order.FirstName, order.LastName, order.CustomerName, order.CustomerEmail,
			order.CustomerPhone, order.Address, order.City, order.State, order.Zipcode, order.Country,
			order.Instructions, order.CustomerAddress, products, order.Subtotal, order.Tax, order.Shipping,
			order.TotalAmount, order.PaymentMethod, order.OrderStatus, order.PaymentStatus, order.Notes,
			order.TrackingNumber, order.CreatedAt, order.UpdatedAt,
		)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		if attempt >= maxOrderNumberAttempts {
			return nil, fmt.Errorf("failed to allocate unique order id after %d attempts: %w", attempt, err)
		}
		s.log.WithOrder(order.OrderID).WithField("attempt", attempt).Warn("Order id collision, regenerating")
	}

	s.log.WithOrder(order.OrderID).WithFields(map[string]interface{}{
		"customer_name": order.CustomerName,
		"total_amount":  order.TotalAmount,
		"products":      len(order.Products),
	}).Info("Order created successfully")

	s.invalidate(ctx, redis.KeyPendingOrders)
	s.scheduleNotification(order)

	return order, nil
}

// scheduleNotification запускает рассылку в отдельной горутине с фоновым контекстом,
// чтобы отмена HTTP запроса её не прерывала.
func (s *OrderService) scheduleNotification(order *models.Order) {
	if s.notifier == nil {
		return
	}

	snapshot := *order
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.WithOrder(snapshot.OrderID).WithField("panic", r).Error("Order notification panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		results := s.notifier.NotifyOrderCreated(ctx, &snapshot)
		s.log.WithOrder(snapshot.OrderID).WithField("channels", results).Info("Order notifications dispatched")
	}()
}

// WaitNotifications ждёт завершения запущенных рассылок (используется при остановке и в тестах)
func (s *OrderService) WaitNotifications() {
	s.notifications.Wait()
}

// GetOrder возвращает заказ по внутреннему ID, используя кеш Redis
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	key := redis.GenerateKey(redis.KeyPrefixOrder, id.String())
	if s.cache != nil {
		var cached models.Order
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithError(err).WithField("key", key).Warn("Order cache read failed")
		}
	}

	order, err := s.findOrder(ctx, "id = $1", id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, order, s.orderTTL); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Order cache write failed")
		}
	}
	return order, nil
}

// ListOrders возвращает заказы, новые первыми
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []interface{}{}
	argIndex := 1

	if filter.Status != nil {
		if !filter.Status.Valid() {
			return nil, apperror.Validation("invalid order status filter", nil)
		}
		query += fmt.Sprintf(" WHERE order_status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// CountPendingOrders возвращает число заказов в статусе pending
func (s *OrderService) CountPendingOrders(ctx context.Context) (int64, error) {
	if s.cache != nil {
		count, err := s.cache.GetInt(ctx, redis.KeyPendingOrders)
		if err == nil {
			return count, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithError(err).Warn("Pending count cache read failed")
		}
	}

	var count int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM orders WHERE order_status = $1", models.OrderStatusPending,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetInt(ctx, redis.KeyPendingOrders, count, s.pendingTTL); err != nil {
			s.log.WithError(err).Warn("Pending count cache write failed")
		}
	}
	return count, nil
}

// UpdateOrder применяет административные изменения статуса, оплаты, заметок и трек-номера
func (s *OrderService) UpdateOrder(ctx context.Context, id uuid.UUID, req *models.UpdateOrderRequest) (*models.Order, error) {
	if req == nil || req.Empty() {
		return nil, apperror.Validation("nothing to update", nil)
	}
	if req.OrderStatus != nil && !req.OrderStatus.Valid() {
		return nil, apperror.Validation("invalid orderStatus", nil)
	}
	if req.PaymentStatus != nil && !req.PaymentStatus.Valid() {
		return nil, apperror.Validation("invalid paymentStatus", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(orderNotFoundMessage, err)
		}
		return nil, fmt.Errorf("failed to fetch order for update: %w", err)
	}

	oldStatus := order.OrderStatus
	if req.OrderStatus != nil {
		order.OrderStatus = *req.OrderStatus
	}
	if req.PaymentStatus != nil {
		order.PaymentStatus = *req.PaymentStatus
	}
	if req.Notes != nil {
		order.Notes = *req.Notes
	}
	if req.TrackingNumber != nil {
		order.TrackingNumber = *req.TrackingNumber
	}
	order.UpdatedAt = s.now()

	updateQuery := `
		UPDATE orders
		SET order_status = $1, payment_status = $2, notes = $3, tracking_number = $4, updated_at = $5
		WHERE id = $6
	`
	if _, err := tx.ExecContext(ctx, updateQuery,
		order.OrderStatus, order.PaymentStatus, order.Notes, order.TrackingNumber, order.UpdatedAt, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order update: %w", err)
	}

	s.log.WithOrder(order.OrderID).WithFields(map[string]interface{}{
		"old_status": oldStatus,
		"new_status": order.OrderStatus,
	}).Info("Order updated")

	s.invalidate(ctx, redis.GenerateKey(redis.KeyPrefixOrder, id.String()), redis.KeyPendingOrders)

	if s.events != nil && oldStatus != order.OrderStatus {
		if err := s.events.PublishOrderStatusChanged(order, oldStatus); err != nil {
			s.log.WithOrder(order.OrderID).WithError(err).Warn("Failed to publish order.status_changed event")
		}
	}

	return order, nil
}

// DeleteOrder удаляет заказ без возможности восстановления
func (s *OrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(orderNotFoundMessage, nil)
	}

	s.log.WithField("id", id).Info("Order deleted")
	s.invalidate(ctx, redis.GenerateKey(redis.KeyPrefixOrder, id.String()), redis.KeyPendingOrders)
	return nil
}

// TrackOrder ищет заказ по номеру (ORD-...) или внутреннему ID и сверяет телефон по цифрам
func (s *OrderService) TrackOrder(ctx context.Context, req *models.TrackOrderRequest) (*models.Order, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.MobileNumber) == "" {
		return nil, apperror.Validation("Order ID and mobile number are required", nil)
	}
	digits := digitsOnly(req.MobileNumber)
	if digits == "" {
		return nil, apperror.Validation("mobile number must contain digits", nil)
	}

	ref := strings.TrimSpace(req.OrderID)
	var (
		order *models.Order
		err   error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		order, err = s.findOrder(ctx, "id = $1", id)
	} else {
		order, err = s.findOrder(ctx, "order_id = $1", ref)
	}
	if err != nil {
		return nil, err
	}

	if !strings.Contains(digitsOnly(order.CustomerPhone), digits) {
		return nil, apperror.NotFound(orderNotFoundMessage, nil)
	}
	return order, nil
}

// HandleOrderEvent сбрасывает кеши по событиям заказов из Kafka
func (s *OrderService) HandleOrderEvent(ctx context.Context, event *models.Event) error {
	if s.cache == nil {
		return nil
	}
	keys := []string{redis.KeyPendingOrders}
	if data, ok := event.Data.(map[string]interface{}); ok {
		if id, ok := data["id"].(string); ok && id != "" {
			keys = append(keys, redis.GenerateKey(redis.KeyPrefixOrder, id))
		}
	}
	return s.cache.Delete(ctx, keys...)
}

func (s *OrderService) findOrder(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(orderNotFoundMessage, err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *OrderService) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.WithError(err).WithField("keys", keys).Warn("Cache invalidation failed")
	}
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o        models.Order
		products []byte
	)
	if err := row.Scan(
		&o.ID, &o.OrderID, &o.FirstName, &o.LastName, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.Address, &o.City, &o.State, &o.Zipcode, &o.Country, &o.Instructions, &o.CustomerAddress, &products,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.TotalAmount, &o.PaymentMethod, &o.OrderStatus, &o.PaymentStatus,
		&o.Notes, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Products = []models.OrderProduct{}
	if len(products) > 0 {
		if err := json.Unmarshal(products, &o.Products); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order products: %w", err)
		}
	}
	return &o, nil
}

// buildOrder выводит производные поля: имя, адрес и суммы позиций.
// Итоговые суммы берутся из запроса без пересчёта.
func buildOrder(req *models.CreateOrderRequest, now time.Time) *models.Order {
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = defaultCountry
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = models.PaymentMethodCOD
	}

	products := make([]models.OrderProduct, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, models.OrderProduct{
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Price:     p.Price,
			Total:     float64(p.Quantity) * p.Price,
		})
	}

	return &models.Order{
		ID:              uuid.New(),
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		CustomerName:    req.FirstName + " " + req.LastName,
		CustomerEmail:   req.Email,
		CustomerPhone:   req.Phone,
		Address:         req.Address,
		City:            req.City,
		State:           req.State,
		Zipcode:         req.Zipcode,
		Country:         country,
		Instructions:    req.Instructions,
		CustomerAddress: fmt.Sprintf("%s, %s, %s %s", req.Address, req.City, req.State, req.Zipcode),
		Products:        products,
		Subtotal:        req.Subtotal,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		TotalAmount:     req.TotalAmount,
		PaymentMethod:   paymentMethod,
		Notes:           req.Notes,
		OrderStatus:     models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func validateCreateOrder(req *models.CreateOrderRequest) error {
	if req == nil {
		return apperror.Validation("request body is required", nil)
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
		{"email", req.Email},
		{"phone", req.Phone},
		{"address", req.Address},
		{"city", req.City},
		{"state", req.State},
		{"zipcode", req.Zipcode},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(req.Products) == 0 {
		missing = append(missing, "products")
	}
	if req.TotalAmount <= 0 {
		missing = append(missing, "totalAmount")
	}
	if len(missing) > 0 {
		return apperror.Validation("Missing required fields: "+strings.Join(missing, ", "), nil)
	}

	for i, p := range req.Products {
		if p.Quantity <= 0 {
			return apperror.Validation(fmt.Sprintf("products[%d].quantity must be positive", i), nil)
		}
		if p.Price < 0 {
			return apperror.Validation(fmt.Sprintf("products[%d].price must be non-negative", i), nil)
		}
	}

	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		return apperror.Validation("invalid paymentMethod", nil)
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
