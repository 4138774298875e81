package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/redis"
)

// RateDecision результат проверки лимита для одного ключа
type RateDecision struct {
	Allowed   bool
	Limit     int64
	Used      int64
	Remaining int64
	ResetAt   time.Time
}

type rateCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// RateLimiter ограничивает число запросов с одного клиента в фиксированном окне.
// Применяется к публичным ручкам проверки купонов и отслеживания заказов.
type RateLimiter struct {
	counter rateCounter
	log     *logger.Logger
	enabled bool
	limit   int64
	window  time.Duration
	prefix  string
	now     func() time.Time
}

// NewRateLimiter создаёт лимитер; без Redis или при выключенной настройке он пропускает всё
func NewRateLimiter(redisClient *redis.Client, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	if redisClient == nil || cfg == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.WindowSeconds <= 0 {
		return &RateLimiter{now: time.Now}
	}
	return newRateLimiter(redisClient, log, cfg)
}

func newRateLimiter(counter rateCounter, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateLimiter{
		counter: counter,
		log:     log,
		enabled: true,
		limit:   int64(cfg.Requests),
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Check засчитывает запрос и решает, пропускать ли его
func (r *RateLimiter) Check(ctx context.Context, client string) (RateDecision, error) {
	if !r.enabled {
		return RateDecision{Allowed: true}, nil
	}

	key := r.key(client)
	used, err := r.counter.Incr(ctx, key)
	if err != nil {
		return RateDecision{}, fmt.Errorf("rate limiter incr failed: %w", err)
	}
	if used == 1 {
		if err := r.counter.Expire(ctx, key, r.window); err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to set rate limit window")
		}
	}

	d := r.decision(ctx, key, used)
	d.Allowed = used <= r.limit
	return d, nil
}

// Peek показывает состояние окна без учёта нового запроса
func (r *RateLimiter) Peek(ctx context.Context, client string) (RateDecision, error) {
	if !r.enabled {
		return RateDecision{Allowed: true}, nil
	}

	key := r.key(client)
	used, err := r.counter.GetInt(ctx, key)
	if errors.Is(err, redis.ErrCacheMiss) {
		return RateDecision{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: r.now().Add(r.window)}, nil
	}
	if err != nil {
		return RateDecision{}, fmt.Errorf("rate limiter read failed: %w", err)
	}

	d := r.decision(ctx, key, used)
	d.Allowed = used < r.limit
	return d, nil
}

func (r *RateLimiter) decision(ctx context.Context, key string, used int64) RateDecision {
	ttl, err := r.counter.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		if err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to read rate limit window")
		}
		ttl = r.window
	}

	remaining := r.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Limit:     r.limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   r.now().Add(ttl),
	}
}

func (r *RateLimiter) key(client string) string {
	return redis.GenerateKey(r.prefix, strings.ReplaceAll(client, ":", "_"))
}

// Enabled сообщает, включён ли лимит
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// ClientIP определяет адрес клиента с учётом прокси
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
