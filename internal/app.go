// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	router "ridewallet/internal/api"
	"ridewallet/internal/api/handler"
	"ridewallet/internal/api/middleware"
	"ridewallet/internal/config"
	"ridewallet/internal/gateway"
	"ridewallet/internal/metrics"
	"ridewallet/internal/repository"
	"ridewallet/internal/repository/memory"
	"ridewallet/internal/repository/postgres"
	"ridewallet/internal/secure"
	"ridewallet/internal/service"
	"ridewallet/internal/util"
	"ridewallet/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config  *config.AppConfig
	Logger  *slog.Logger
	DB      *sqlx.DB // nil with the memory store
	Store   repository.Store
	Metrics *metrics.Metrics
	JWT     *middleware.JWTManager

	// Services
	WalletService     service.WalletService
	TopupService      service.TopupService
	Reconciler        service.Reconciler
	DriverSessions    service.DriverSessionService
	RidePayments      service.RidePaymentService
	SettlementService service.SettlementService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration from the environment and wires every component.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig wires the application from an already loaded configuration.
func (app *Application) InitializeWithConfig(ctx context.Context, cfg *config.AppConfig) error {
	app.Config = cfg

	// 2. Initialize Logger
	app.Logger = util.InitLogger(cfg.Log)
	app.Logger.Info("Application configuration loaded successfully.", "env_file", cfg.EnvFileLoaded, "store", cfg.StoreDriver)

	// 3. Storage
	if err := app.initStore(ctx); err != nil {
		return err
	}

	// 4. Shared infrastructure
	cipher, err := secure.NewCipher(cfg.EncryptionKeyHex)
	if err != nil {
		return fmt.Errorf("failed to initialize bank detail cipher: %w", err)
	}
	app.Metrics = metrics.New()
	app.JWT = middleware.NewJWTManager(cfg.JWTSecret)
	gw := gateway.NewClient(cfg.Gateway, app.Logger.With("component", "gateway"))

	// 5. Initialize Services
	app.WalletService = service.NewWalletService(app.Store, cfg.Ledger.Currency)
	app.TopupService = service.NewTopupService(app.Store, gw, cfg.Ledger, app.Metrics, app.Logger)
	app.Reconciler = service.NewReconciler(app.Store, gw, cfg.Ledger, app.Metrics, app.Logger)
	app.DriverSessions = service.NewDriverSessionService(app.Store, cipher, cfg.SessionTTL, app.Logger)
	app.RidePayments = service.NewRidePaymentService(app.Store, app.DriverSessions, cfg.Ledger, app.Metrics, app.Logger)
	app.SettlementService = service.NewSettlementService(app.Store, cipher, cfg.Settlement, cfg.Ledger, app.Metrics, app.Logger)
	app.Logger.Info("Services initialized.")

	// 6. Initialize HTTP Handlers and Router
	app.HTTPHandler = router.NewRouter(router.Handlers{
		Wallet:      handler.NewWalletHandler(app.WalletService, app.Logger),
		Topup:       handler.NewTopupHandler(app.TopupService, app.Reconciler, app.Logger),
		Webhook:     handler.NewWebhookHandler(app.Reconciler, app.Logger),
		RidePayment: handler.NewRidePaymentHandler(app.RidePayments, app.Logger),
		Driver:      handler.NewDriverHandler(app.DriverSessions, app.Logger),
		Settlement:  handler.NewSettlementHandler(app.SettlementService, app.Logger),
	}, router.RouterOptions{
		JWT:         app.JWT,
		Limiter:     middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Metrics:     app.Metrics,
		CORSOrigins: cfg.CORSOrigins,
	}, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

func (app *Application) initStore(ctx context.Context) error {
	if app.Config.StoreDriver == config.StoreMemory {
		app.Store = memory.NewStore()
		app.Logger.Warn("Using in-memory store; balances are lost on restart.")
		return nil
	}

	var (
		database *sqlx.DB
		err      error
	)
	if app.Config.DatabaseURL != "" {
		database, err = db.Open(app.Config.DatabaseURL, app.Config.DB)
	} else {
		database, err = db.NewPostgresDB(app.Config.DB)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	if app.Config.Migrate {
		if err := postgres.Migrate(ctx, database); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		app.Logger.Info("Database schema applied.")
	}
	app.Store = postgres.NewStore(database)
	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
