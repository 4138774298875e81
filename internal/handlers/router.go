package handlers

import (
	"net/http"

	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"

	"github.com/go-chi/chi/v5"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Coupons     *CouponHandler
	Orders      *OrderHandler
	Health      *HealthHandler
	RateLimit   *RateLimitHandler
	Limiter     RateLimiter
	CORSOrigins []string
	Log         *logger.Logger
}

// NewRouter собирает маршруты API
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer(d.Log))
	r.Use(RequestLogger(d.Log))
	r.Use(CORS(d.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", d.Health.Health)
	r.Get("/health/readiness", d.Health.Readiness)
	r.Get("/health/liveness", d.Health.Liveness)

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(d.Limiter, d.Log))

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", d.Coupons.ListActive)
			r.Post("/", d.Coupons.Create)
			r.Get("/all", d.Coupons.ListAll)
			r.Post("/validate", d.Coupons.Validate)
			r.Post("/redeem", d.Coupons.Redeem)
			r.Get("/{id}", d.Coupons.Get)
			r.Put("/{id}", d.Coupons.Update)
			r.Delete("/{id}", d.Coupons.Delete)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", d.Orders.GetOrders)
			r.Post("/", d.Orders.CreateOrder)
			r.Get("/count/pending", d.Orders.CountPending)
			r.Post("/track", d.Orders.TrackOrder)
			r.Get("/{id}", d.Orders.GetOrder)
			r.Put("/{id}", d.Orders.UpdateOrder)
			r.Delete("/{id}", d.Orders.DeleteOrder)
		})

		r.Get("/rate-limit/status", d.RateLimit.Status)
	})

	return r
}
