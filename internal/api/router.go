// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ridewallet/internal/api/handler"
	"ridewallet/internal/api/middleware"
	"ridewallet/internal/metrics"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Wallet      *handler.WalletHandler
	Topup       *handler.TopupHandler
	Webhook     *handler.WebhookHandler
	RidePayment *handler.RidePaymentHandler
	Driver      *handler.DriverHandler
	Settlement  *handler.SettlementHandler
}

// RouterOptions carries the cross-cutting pieces the router needs.
type RouterOptions struct {
	JWT         *middleware.JWTManager
	Limiter     *middleware.IPRateLimiter
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// NewRouter sets up and returns a new HTTP router.
func NewRouter(h Handlers, opts RouterOptions, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(chimw.RequestID)                       // Add a request ID to the context
	r.Use(chimw.RealIP)                          // Use the real IP address
	r.Use(chimw.Logger)                          // Log HTTP requests
	r.Use(chimw.Recoverer)                       // Recover from panics and return 500
	r.Use(chimw.Timeout(handler.DefaultTimeout)) // Set a default timeout for requests
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Instrument(opts.Metrics))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The gateway authenticates with the payload hash, not a bearer token.
		r.Post("/webhooks/gateway", h.Webhook.Receive)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.Limiter, logger))
			r.Use(middleware.RequireAuth(opts.JWT, logger))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", h.Wallet.GetWallet)
				r.Post("/", h.Wallet.OpenWallet)
				r.Get("/transactions", h.Wallet.GetTransactionHistory)
			})

			r.Route("/topups", func(r chi.Router) {
				r.Post("/", h.Topup.Initiate)
				r.Post("/check", h.Topup.CheckPending)
				r.Get("/{transactionID}", h.Topup.CheckOne)
			})

			r.With(middleware.RequireRole(logger, middleware.RoleRider)).
				Post("/ride-payments", h.RidePayment.Pay)

			r.Route("/driver", func(r chi.Router) {
				r.Use(middleware.RequireRole(logger, middleware.RoleDriver))
				r.Post("/sessions", h.Driver.IssueSession)
				r.Get("/sessions/{token}/qr", h.Driver.SessionQR)
				r.Put("/bank-details", h.Driver.PutBankDetails)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logger, middleware.RoleAdmin))
				r.Post("/settlements", h.Settlement.RunBatch)
				r.Get("/settlements/{batchID}", h.Settlement.GetBatch)
			})
		})
	})

	return r
}
