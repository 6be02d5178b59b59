package handler

import (
	"net/http"

	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/port"
	"github.com/boddenberg/pharma-crm/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups what the router dispatches to. Nil services leave their
// routes answering 503.
type Services struct {
	Analytics   *service.AnalyticsService
	Invoices    *service.InvoiceService
	Clients     *service.ClientService
	Store       port.Pinger
	RateLimiter *RateLimiter
	CORSOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if len(svc.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: svc.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler(svc.Store, logger))
	r.Handle("/metrics", promhttp.Handler())

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/analytics", analyticsMetricsHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(requireService(svc.Clients != nil))
			r.Get("/clients", listClientsHandler(svc.Clients, logger))
			r.Post("/clients", createClientHandler(svc.Clients, logger))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireService(svc.Invoices != nil))
			r.Use(svc.RateLimiter.Middleware)
			r.Post("/invoices/import", importInvoicesHandler(svc.Invoices, logger))
		})

		r.Route("/clients/{clientId}", func(r chi.Router) {
			r.Use(svc.RateLimiter.Middleware)

			r.With(requireService(svc.Clients != nil)).
				Get("/", getClientHandler(svc.Clients, logger))

			r.Group(func(r chi.Router) {
				r.Use(requireService(svc.Invoices != nil))
				r.Get("/invoices", listInvoicesHandler(svc.Invoices, logger))
				r.Post("/invoices", createInvoiceHandler(svc.Invoices, logger))
				r.Delete("/invoices/{invoiceId}", deleteInvoiceHandler(svc.Invoices, logger))
			})

			r.Group(func(r chi.Router) {
				r.Use(requireService(svc.Analytics != nil))
				r.Get("/analytics", clientAnalyticsHandler(svc.Analytics, logger))
				r.Get("/visit-brief", visitBriefHandler(svc.Analytics, logger))
			})
		})
	})

	return r
}

func requireService(ok bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "service unavailable: record store not configured")
		})
	}
}
