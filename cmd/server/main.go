package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/database"
	"github.com/Hari-prasath-6380/KCP-organics/internal/handlers"
	"github.com/Hari-prasath-6380/KCP-organics/internal/kafka"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"
	"github.com/Hari-prasath-6380/KCP-organics/internal/redis"
	"github.com/Hari-prasath-6380/KCP-organics/internal/services"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

const shutdownTimeout = 30 * time.Second

// application агрегирует собранные зависимости.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	orders   *services.OrderService
	notifier *services.Notifier
	handler  http.Handler
	server   *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting KCP Organics server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.shutdown(ctx)
	app.log.Info("Server exited")
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	app := &application{cfg: cfg, log: log, db: db, redis: redisClient}

	// Kafka необязательна: без брокеров события не публикуются, а заказы уведомляются только в Telegram
	if cfg.Kafka.Enabled() {
		app.producer, err = newKafkaProducer(&cfg.Kafka, log)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.consumer, err = newKafkaConsumer(&cfg.Kafka, log)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
	} else {
		log.Warn("Kafka brokers not configured, events disabled")
	}

	channels := []services.NotificationChannel{services.NewTelegramChannel(&cfg.Notification, log)}
	var (
		couponEvents services.CouponEventPublisher
		orderEvents  services.OrderEventPublisher
	)
	if app.producer != nil {
		channels = append(channels, kafka.NewOrderChannel(app.producer))
		couponEvents = app.producer
		orderEvents = app.producer
	}
	app.notifier = services.NewNotifier(log, channels...)
	if !cfg.Notification.TelegramConfigured() {
		log.Warn("Telegram credentials missing, order notifications will only be logged")
	}

	couponService := services.NewCouponService(db, log, redisClient, couponEvents)
	app.orders = services.NewOrderService(db, log, redisClient, orderEvents, app.notifier, cfg.Cache)
	rateLimiter := services.NewRateLimiter(redisClient, log, &cfg.RateLimit)

	if app.consumer != nil {
		registerEventHandlers(app.consumer, app.orders, couponService, log)
		if err := app.consumer.Start(); err != nil {
			app.closeResources()
			return nil, fmt.Errorf("kafka consumer start: %w", err)
		}
	}

	app.handler = handlers.NewRouter(handlers.RouterDeps{
		Coupons:     handlers.NewCouponHandler(couponService, log),
		Orders:      handlers.NewOrderHandler(app.orders, log),
		Health:      handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck),
		RateLimit:   handlers.NewRateLimitHandler(rateLimiter, log),
		Limiter:     rateLimiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         log,
	})
	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	log.WithField("channels", app.notifier.Channels()).Info("Application assembled")
	return app, nil
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, orders *services.OrderService, coupons *services.CouponService, log *logger.Logger) {
	orderHandler := func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).WithField("type", event.Type).Debug("Processing order event")
		return orders.HandleOrderEvent(ctx, event)
	}
	consumer.RegisterHandler(models.EventTypeOrderCreated, orderHandler)
	consumer.RegisterHandler(models.EventTypeOrderStatusChanged, orderHandler)
	consumer.RegisterHandler(models.EventTypeCouponRedeemed, coupons.HandleCouponEvent)
}

// shutdown останавливает приём запросов, дожидается фоновых уведомлений и закрывает ресурсы
func (a *application) shutdown(ctx context.Context) {
	if a.consumer != nil {
		if err := a.consumer.Stop(); err != nil {
			a.log.WithError(err).Warn("Kafka consumer stop failed")
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.WithError(err).Error("Server forced to shutdown")
		}
	}

	if a.orders != nil {
		done := make(chan struct{})
		go func() {
			a.orders.WaitNotifications()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn("Pending order notifications abandoned on shutdown")
		}
	}

	a.consumer = nil
	a.closeResources()
}

func (a *application) closeResources() {
	if a.consumer != nil {
		_ = a.consumer.Stop()
	}
	_ = a.producer.Close()
	_ = a.redis.Close()
	_ = a.db.Close()
}
