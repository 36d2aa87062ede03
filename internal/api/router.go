package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/api/handler"
	apimw "github.com/cakeshop/order-notifications/internal/api/middleware"
	"github.com/cakeshop/order-notifications/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	notifier handler.Notifier,
	queues *service.QueueService,
	health *handler.HealthHandler,
	maxBulk int,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(notifier, maxBulk, logger)
	qh := handler.NewQueueHandler(queues, logger)

	// --- routes ---
	r.Get("/health", health.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications/{kind}", nh.Publish)
		r.Post("/notifications/{kind}/bulk", nh.PublishBulk)

		r.Get("/queues", qh.Depths)
		r.Post("/queues/dead-letter/replay", qh.ReplayDeadLetters)

		r.Get("/outcomes", qh.Outcomes)
	})

	return r
}
