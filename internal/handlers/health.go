package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/IBM/sarama"
)

// KafkaChecker проверяет доступность брокеров
type KafkaChecker func(brokers []string) error

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	db           DBHealth
	redis        RedisHealth
	kafkaBrokers []string
	checkKafka   KafkaChecker
}

// NewHealthHandler создает новый обработчик здоровья.
// Пустой список брокеров означает, что Kafka выключена и не проверяется.
func NewHealthHandler(db DBHealth, redis RedisHealth, kafkaBrokers []string, checkKafka KafkaChecker) *HealthHandler {
	if checkKafka == nil {
		checkKafka = CheckKafkaHealth
	}
	return &HealthHandler{
		db:           db,
		redis:        redis,
		kafkaBrokers: kafkaBrokers,
		checkKafka:   checkKafka,
	}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
}

var startTime = time.Now()

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	overallStatus := "healthy"

	check := func(name string, err error) {
		if err != nil {
			services[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
			return
		}
		services[name] = "healthy"
	}

	check("database", h.db.Health())
	check("redis", h.redis.Health(ctx))
	if len(h.kafkaBrokers) == 0 {
		services["kafka"] = "disabled"
	} else {
		check("kafka", h.checkKafka(h.kafkaBrokers))
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, HealthResponse{
		Status:   overallStatus,
		Services: services,
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).String(),
	})
}

// Readiness проверяет готовность приложения к обработке запросов
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Health(); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Database not ready")
		return
	}
	if err := h.redis.Health(ctx); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Redis not ready")
		return
	}
	if len(h.kafkaBrokers) > 0 {
		if err := h.checkKafka(h.kafkaBrokers); err != nil {
			writeErrorResponse(w, http.StatusServiceUnavailable, "Kafka not ready")
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

// CheckKafkaHealth проверяет доступность Kafka брокеров
func CheckKafkaHealth(brokers []string) error {
	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 3 * time.Second
	cfg.Net.ReadTimeout = 5 * time.Second
	cfg.Net.WriteTimeout = 5 * time.Second
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Retry.Backoff = 500 * time.Millisecond

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return err
	}
	return client.Close()
}
