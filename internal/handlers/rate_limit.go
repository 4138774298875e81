package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/services"
)

// RateLimitHandler отдаёт клиенту состояние его лимита
type RateLimitHandler struct {
	limiter RateLimiter
	log     *logger.Logger
}

// NewRateLimitHandler создает новый RateLimitHandler
func NewRateLimitHandler(limiter RateLimiter, log *logger.Logger) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter, log: log}
}

// Status возвращает текущие значения лимита для клиента
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil || !h.limiter.Enabled() {
		writeSuccess(w, http.StatusOK, "", map[string]interface{}{"enabled": false})
		return
	}

	client := services.ClientIP(r)
	d, err := h.limiter.Peek(r.Context(), client)
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch rate limit usage")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to fetch rate limit usage")
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"enabled":   true,
		"limit":     d.Limit,
		"used":      d.Used,
		"remaining": d.Remaining,
		"resetAt":   d.ResetAt.Format(time.RFC3339),
		"client":    client,
	})
}

// RateLimitMiddleware ограничивает частоту запросов с одного IP.
// Если Redis недоступен, запрос пропускается: лимит не должен ронять магазин.
func RateLimitMiddleware(limiter RateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Check(r.Context(), services.ClientIP(r))
			if err != nil {
				log.WithError(err).Warn("Rate limiter unavailable, request allowed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := int(time.Until(d.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeErrorResponse(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
