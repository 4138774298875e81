package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/apperror"
	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/database"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
	"github.com/Hari-prasath-6380/KCP-organics/internal/redis"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "debug", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.Connect(&config.RedisConfig{Host: "127.0.0.1", Port: mr.Port()}, logger.New(&config.LoggerConfig{Level: "error", Format: "json"}))
	if err != nil {
		t.Fatalf("connect miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

var orderCols = []string{
	"id", "order_id", "first_name", "last_name", "customer_name", "customer_email", "customer_phone",
	"address", "city", "state", "zipcode", "country", "instructions", "customer_address", "products",
	"subtotal", "tax", "shipping", "total_amount", "payment_method", "order_status", "payment_status",
	"notes", "tracking_number", "created_at", "updated_at",
}

func orderRow(id uuid.UUID, orderID, phone string, status models.OrderStatus) *sqlmock.Rows {
	products, _ := json.Marshal([]models.OrderProduct{{ProductID: "p1", Name: "Turmeric", Quantity: 2, Price: 10, Total: 20}})
	return sqlmock.NewRows(orderCols).AddRow(
		id.String(), orderID, "Asha", "Rao", "Asha Rao", "asha@example.com", phone,
		"12 Market Rd", "Salem", "TN", "636001", "India", "", "12 Market Rd, Salem, TN 636001", products,
		20.0, 1.0, 0.0, 21.0, "cod", string(status), "pending", "", "", ruleNow, ruleNow,
	)
}

type recordingNotifier struct {
	mu      sync.Mutex
	orders  []*models.Order
	ctxErr  error
	release chan struct{}
	inner   OrderNotifier
	results map[string]bool
}

func (r *recordingNotifier) NotifyOrderCreated(ctx context.Context, order *models.Order) map[string]bool {
	if r.release != nil {
		<-r.release
	}
	var results map[string]bool
	if r.inner != nil {
		results = r.inner.NotifyOrderCreated(ctx, order)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	r.ctxErr = ctx.Err()
	r.results = results
	return results
}

type stubOrderEvents struct {
	oldStatuses []models.OrderStatus
	err         error
}

func (s *stubOrderEvents) PublishOrderStatusChanged(order *models.Order, oldStatus models.OrderStatus) error {
	s.oldStatuses = append(s.oldStatuses, oldStatus)
	return s.err
}

func newTestOrderService(t *testing.T, cache OrderCache, events OrderEventPublisher, notifier OrderNotifier) (*OrderService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	t.Cleanup(func() { _ = db.Close() })
	svc := NewOrderService(db, newTestLogger(), cache, events, notifier, config.CacheConfig{OrderTTLMinutes: 15, PendingCountTTLSeconds: 30})
	svc.now = func() time.Time { return ruleNow }
	return svc, mock
}

func validOrderRequest() *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		FirstName: "Asha",
		LastName:  "Rao",
		Email:     "asha@example.com",
		Phone:     "+91 98765 43210",
		Address:   "12 Market Rd",
		City:      "Salem",
		State:     "TN",
		Zipcode:   "636001",
		Products: []models.CreateOrderProductRequest{
			{ProductID: "p1", Name: "Turmeric", Price: 10, Quantity: 2},
			{ProductID: "p2", Name: "Ghee", Price: 5, Quantity: 1},
		},
		TotalAmount: 25,
	}
}

func TestOrderService_CreateOrder_DerivesLineTotalsAndKeepsTotal(t *testing.T) {
	notifier := &recordingNotifier{release: make(chan struct{})}
	svc, mock := newTestOrderService(t, nil, nil, notifier)

	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	order, err := svc.CreateOrder(ctx, validOrderRequest())
	cancel()
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if order.Products[0].Total != 20 || order.Products[1].Total != 5 {
		t.Fatalf("unexpected line totals: %+v", order.Products)
	}
	if order.TotalAmount != 25 {
		t.Fatalf("expected totalAmount passthrough 25, got %v", order.TotalAmount)
	}
	if order.CustomerName != "Asha Rao" || order.CustomerAddress != "12 Market Rd, Salem, TN 636001" {
		t.Fatalf("unexpected derived fields: %q %q", order.CustomerName, order.CustomerAddress)
	}
	if order.Country != "India" || order.PaymentMethod != models.PaymentMethodCOD {
		t.Fatalf("unexpected defaults: %s %s", order.Country, order.PaymentMethod)
	}
	if order.OrderStatus != models.OrderStatusPending || order.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("unexpected statuses: %s %s", order.OrderStatus, order.PaymentStatus)
	}
	if !orderNumberPattern.MatchString(order.OrderID) {
		t.Fatalf("unexpected order number %q", order.OrderID)
	}

	close(notifier.release)
	svc.WaitNotifications()

	if len(notifier.orders) != 1 || notifier.orders[0].OrderID != order.OrderID {
		t.Fatalf("expected one notification for the order, got %+v", notifier.orders)
	}
	if notifier.ctxErr != nil {
		t.Fatalf("notification context must outlive the request, got %v", notifier.ctxErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_CreateOrder_UnconfiguredTelegramStillPersists(t *testing.T) {
	log := newTestLogger()
	notifier := &recordingNotifier{inner: NewNotifier(log, NewTelegramChannel(&config.NotificationConfig{}, log))}
	svc, mock := newTestOrderService(t, nil, nil, notifier)

	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(1, 1))

	order, err := svc.CreateOrder(context.Background(), validOrderRequest())
	if err != nil || order == nil {
		t.Fatalf("expected order to persist, got %v", err)
	}
	svc.WaitNotifications()

	if ok, present := notifier.results["telegram"]; !present || ok {
		t.Fatalf("expected telegram=false, got %v", notifier.results)
	}
}

func TestOrderService_CreateOrder_EmptyProductsNoWrite(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)

	req := validOrderRequest()
	req.Products = nil
	_, err := svc.CreateOrder(context.Background(), req)
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no db access: %v", err)
	}
}

func TestOrderService_CreateOrder_ValidationErrors(t *testing.T) {
	svc, _ := newTestOrderService(t, nil, nil, nil)

	tests := []struct {
		name   string
		mutate func(r *models.CreateOrderRequest)
	}{
		{"missing email", func(r *models.CreateOrderRequest) { r.Email = " " }},
		{"zero total", func(r *models.CreateOrderRequest) { r.TotalAmount = 0 }},
		{"zero quantity", func(r *models.CreateOrderRequest) { r.Products[0].Quantity = 0 }},
		{"negative price", func(r *models.CreateOrderRequest) { r.Products[1].Price = -1 }},
		{"unknown payment", func(r *models.CreateOrderRequest) { r.PaymentMethod = "crypto" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validOrderRequest()
			tt.mutate(req)
			if _, err := svc.CreateOrder(context.Background(), req); !apperror.Is(err, apperror.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestOrderService_CreateOrder_RetriesOnOrderIDCollision(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	n := 0
	svc.newOrderNumber = func(time.Time) string {
		n++
		return fmt.Sprintf("ORD-20250315-000000-%03d", n)
	}

	mock.ExpectExec("INSERT INTO orders").
		WithArgs(sqlmock.AnyArg(), "ORD-20250315-000000-001", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(1, 1))

	order, err := svc.CreateOrder(context.Background(), validOrderRequest())
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if order.OrderID != "ORD-20250315-000000-002" {
		t.Fatalf("expected regenerated order id, got %s", order.OrderID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_CreateOrder_GivesUpAfterMaxAttempts(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	for i := 0; i < maxOrderNumberAttempts; i++ {
		mock.ExpectExec("INSERT INTO orders").WillReturnError(&pq.Error{Code: "23505"})
	}

	_, err := svc.CreateOrder(context.Background(), validOrderRequest())
	if err == nil || apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_CreateOrder_DBError(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, &recordingNotifier{})
	mock.ExpectExec("INSERT INTO orders").WillReturnError(errors.New("connection refused"))

	if _, err := svc.CreateOrder(context.Background(), validOrderRequest()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOrderService_GetOrder_UsesCache(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc, mock := newTestOrderService(t, cache, nil, nil)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(orderRow(id, "ORD-20250315-123456-001", "9876543210", models.OrderStatusPending))

	first, err := svc.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(first.Products) != 1 || first.Products[0].Total != 20 {
		t.Fatalf("unexpected products: %+v", first.Products)
	}
	if !mr.Exists(redis.GenerateKey(redis.KeyPrefixOrder, id.String())) {
		t.Fatalf("expected order cached")
	}

	second, err := svc.GetOrder(context.Background(), id)
	if err != nil || second.OrderID != first.OrderID {
		t.Fatalf("expected cached order, got %+v err=%v", second, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	id := uuid.New()
	mock.ExpectQuery("FROM orders WHERE id").WithArgs(id).WillReturnError(sql.ErrNoRows)

	if _, err := svc.GetOrder(context.Background(), id); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderService_ListOrders_Filter(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	status := models.OrderStatusShipped

	mock.ExpectQuery("FROM orders WHERE order_status = \\$1 ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs(status, 10, 20).
		WillReturnRows(orderRow(uuid.New(), "ORD-1", "1", models.OrderStatusShipped))

	orders, err := svc.ListOrders(context.Background(), models.OrderFilter{Status: &status, Limit: 10, Offset: 20})
	if err != nil || len(orders) != 1 {
		t.Fatalf("expected one order, got %v err=%v", orders, err)
	}

	bad := models.OrderStatus("lost")
	if _, err := svc.ListOrders(context.Background(), models.OrderFilter{Status: &bad}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for bad status, got %v", err)
	}
}

func TestOrderService_CountPendingOrders_Cached(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc, mock := newTestOrderService(t, cache, nil, nil)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders WHERE order_status = \\$1").
		WithArgs(models.OrderStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	for i := 0; i < 2; i++ {
		count, err := svc.CountPendingOrders(context.Background())
		if err != nil || count != 7 {
			t.Fatalf("expected 7, got %d err=%v", count, err)
		}
	}
	if !mr.Exists(redis.KeyPendingOrders) {
		t.Fatalf("expected pending count cached")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_UpdateOrder_PublishesStatusChange(t *testing.T) {
	cache, mr := newTestRedis(t)
	events := &stubOrderEvents{}
	svc, mock := newTestOrderService(t, cache, events, nil)

	id := uuid.New()
	orderKey := redis.GenerateKey(redis.KeyPrefixOrder, id.String())
	_ = mr.Set(orderKey, "{}")
	_ = mr.Set(redis.KeyPendingOrders, "3")

	shipped := models.OrderStatusShipped
	tracking := "TRK123"

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(orderRow(id, "ORD-1", "1", models.OrderStatusPending))
	mock.ExpectExec("UPDATE orders").
		WithArgs(shipped, models.PaymentStatusPending, "", tracking, ruleNow, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := svc.UpdateOrder(context.Background(), id, &models.UpdateOrderRequest{OrderStatus: &shipped, TrackingNumber: &tracking})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if order.OrderStatus != shipped || order.TrackingNumber != tracking {
		t.Fatalf("unexpected order: %+v", order)
	}
	if len(events.oldStatuses) != 1 || events.oldStatuses[0] != models.OrderStatusPending {
		t.Fatalf("expected status change event, got %v", events.oldStatuses)
	}
	if mr.Exists(orderKey) || mr.Exists(redis.KeyPendingOrders) {
		t.Fatalf("expected caches invalidated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_UpdateOrder_NotesOnlyDoesNotPublish(t *testing.T) {
	events := &stubOrderEvents{}
	svc, mock := newTestOrderService(t, nil, events, nil)

	id := uuid.New()
	notes := "call before delivery"
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(orderRow(id, "ORD-1", "1", models.OrderStatusConfirmed))
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := svc.UpdateOrder(context.Background(), id, &models.UpdateOrderRequest{Notes: &notes}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(events.oldStatuses) != 0 {
		t.Fatalf("expected no status event for notes update")
	}
}

func TestOrderService_UpdateOrder_Validation(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	id := uuid.New()

	if _, err := svc.UpdateOrder(context.Background(), id, &models.UpdateOrderRequest{}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	bad := models.OrderStatus("lost")
	if _, err := svc.UpdateOrder(context.Background(), id, &models.UpdateOrderRequest{OrderStatus: &bad}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for bad status, got %v", err)
	}
	badPay := models.PaymentStatus("refunded")
	if _, err := svc.UpdateOrder(context.Background(), id, &models.UpdateOrderRequest{PaymentStatus: &badPay}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for bad payment status, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	status := models.OrderStatusDelivered
	if _, err := svc.UpdateOrder(context.Background(), id, &models.UpdateOrderRequest{OrderStatus: &status}); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderService_DeleteOrder(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM orders").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := svc.DeleteOrder(context.Background(), id); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	mock.ExpectExec("DELETE FROM orders").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := svc.DeleteOrder(context.Background(), id); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderService_TrackOrder(t *testing.T) {
	svc, mock := newTestOrderService(t, nil, nil, nil)
	id := uuid.New()
	stored := "+91 98765-43210"

	mock.ExpectQuery("FROM orders WHERE order_id = \\$1").
		WithArgs("ORD-20250315-123456-001").
		WillReturnRows(orderRow(id, "ORD-20250315-123456-001", stored, models.OrderStatusShipped))
	order, err := svc.TrackOrder(context.Background(), &models.TrackOrderRequest{OrderID: " ORD-20250315-123456-001 ", MobileNumber: "98765 43210"})
	if err != nil || order.ID != id {
		t.Fatalf("expected match by order number, got %v", err)
	}

	mock.ExpectQuery("FROM orders WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(orderRow(id, "ORD-20250315-123456-001", stored, models.OrderStatusShipped))
	if _, err := svc.TrackOrder(context.Background(), &models.TrackOrderRequest{OrderID: id.String(), MobileNumber: "(987) 654-3210"}); err != nil {
		t.Fatalf("expected match by store id, got %v", err)
	}

	mock.ExpectQuery("FROM orders WHERE order_id = \\$1").
		WithArgs("ORD-X").
		WillReturnRows(orderRow(id, "ORD-X", stored, models.OrderStatusShipped))
	if _, err := svc.TrackOrder(context.Background(), &models.TrackOrderRequest{OrderID: "ORD-X", MobileNumber: "11111"}); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found on phone mismatch, got %v", err)
	}

	if _, err := svc.TrackOrder(context.Background(), &models.TrackOrderRequest{OrderID: "ORD-X", MobileNumber: "+-- "}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for phone without digits, got %v", err)
	}
	if _, err := svc.TrackOrder(context.Background(), &models.TrackOrderRequest{MobileNumber: "123"}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error for missing order id, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_HandleOrderEvent_InvalidatesCache(t *testing.T) {
	cache, mr := newTestRedis(t)
	svc, _ := newTestOrderService(t, cache, nil, nil)

	id := uuid.New().String()
	_ = mr.Set(redis.KeyPendingOrders, "4")
	_ = mr.Set(redis.GenerateKey(redis.KeyPrefixOrder, id), "{}")

	event := &models.Event{Type: models.EventTypeOrderStatusChanged, Data: map[string]interface{}{"id": id}}
	if err := svc.HandleOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if mr.Exists(redis.KeyPendingOrders) || mr.Exists(redis.GenerateKey(redis.KeyPrefixOrder, id)) {
		t.Fatalf("expected keys removed")
	}
}
