package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles what the router dispatches to. A nil AuthService turns
// every protected and auth route into 503.
type Services struct {
	Bills   *service.BillService
	Reports *service.ReportService
	Auth    *service.AuthService
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, corsOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Bills, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/summaries", summaryMetricsHandler(metrics))

		if svc.Auth == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			}))
			return
		}

		// =============================================
		// Auth (public)
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", signUpHandler(svc.Auth, logger))
			r.Post("/login", loginHandler(svc.Auth, logger))
			r.Post("/password/reset-request", passwordResetRequestHandler(svc.Auth, logger))
			r.Post("/password/reset", passwordResetHandler(svc.Auth, logger))
		})

		// =============================================
		// Protected routes
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Auth, logger))

			r.Get("/me", meHandler(svc.Auth, logger))
			r.Put("/me", updateProfileHandler(svc.Auth, logger))
			r.Put("/me/password", changePasswordHandler(svc.Auth, logger))

			r.Route("/bills", func(r chi.Router) {
				r.Get("/", listBillsHandler(svc.Bills, logger))
				r.Post("/", createBillHandler(svc.Bills, logger))
				r.Get("/latest", latestBillHandler(svc.Bills, logger))
				r.Get("/existing-types", existingBillTypesHandler(svc.Bills, logger))
				r.Patch("/{billId}", updateBillHandler(svc.Bills, logger))
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/", reportHandler(svc.Reports, logger))
				r.Get("/overview", overviewHandler(svc.Reports, logger))
				r.Get("/dashboard", dashboardHandler(svc.Reports, logger))
				r.Get("/export", exportHandler(svc.Reports, logger))
			})
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(bills *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if bills != nil {
			start := time.Now()
			err := bills.Ping(r.Context())
			status := "healthy"
			if err != nil {
				logger.Warn("health: bill store ping failed", zap.Error(err))
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "bill-store", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func summaryMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.SummarySnapshot())
	}
}
