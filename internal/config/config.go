// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal containers

	"ridewallet/internal/domain"
	"ridewallet/internal/gateway"
	"ridewallet/internal/service"
	"ridewallet/internal/util"
	"ridewallet/pkg/db" // Import db package for its Config struct

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// RateLimit paces inbound API requests per client IP.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort  string
	StoreDriver string
	DB          db.Config
	DatabaseURL string // overrides DB when set
	Migrate     bool

	Log        util.LogOptions
	Gateway    gateway.Config
	Ledger     service.LedgerConfig
	Settlement service.SettlementConfig

	JWTSecret        string
	EncryptionKeyHex string
	SessionTTL       time.Duration
	RateLimit        RateLimit
	CORSOrigins      []string

	EnvFileLoaded bool
}

// env reads typed values and keeps the first parse error.
type env struct {
	err error
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return f
}

func (e *env) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return d
}

func (e *env) amount(key, fallback string) decimal.Decimal {
	v := e.str(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.fail(key, v, err)
		return decimal.Zero
	}
	return d
}

func (e *env) optionalAmount(key string) decimal.NullDecimal {
	v := os.Getenv(key)
	if v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.fail(key, v, err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (e *env) list(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, fallback), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig loads configuration from environment variables, after applying
// an optional .env file from the working directory.
// It returns an AppConfig instance or an error if any required variable is missing or invalid.
func LoadConfig() (*AppConfig, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	e := &env{}

	loc, err := time.LoadLocation(e.str("TIMEZONE", "Africa/Harare"))
	if err != nil {
		e.fail("TIMEZONE", os.Getenv("TIMEZONE"), err)
		loc = time.UTC
	}

	cfg := &AppConfig{
		ServerPort:  e.str("SERVER_PORT", "8080"),
		StoreDriver: strings.ToLower(e.str("STORE_DRIVER", StorePostgres)),
		DB: db.Config{
			Host:            e.str("DB_HOST", "localhost"), // Default to localhost for local development
			Port:            e.integer("DB_PORT", 5432),
			User:            e.str("DB_USER", "user"),
			Password:        e.str("DB_PASSWORD", "password"),
			DBName:          e.str("DB_NAME", "ridewallet"),
			SSLMode:         e.str("DB_SSLMODE", "disable"),
			MaxOpenConns:    e.integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.integer("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: e.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		DatabaseURL: e.str("DATABASE_URL", ""),
		Migrate:     e.boolean("DB_MIGRATE", false),
		Log: util.LogOptions{
			Format: e.str("LOG_FORMAT", "json"),
			Level:  e.str("LOG_LEVEL", "info"),
		},
		Gateway: gateway.Config{
			MerchantID:        e.str("GATEWAY_MERCHANT_ID", ""),
			Secret:            e.str("GATEWAY_SECRET", ""),
			InitiateURL:       e.str("GATEWAY_INITIATE_URL", "https://www.paynow.co.zw/interface/initiatetransaction"),
			RemoteInitiateURL: e.str("GATEWAY_REMOTE_INITIATE_URL", "https://www.paynow.co.zw/interface/remotetransaction"),
			ReturnURL:         e.str("GATEWAY_RETURN_URL", ""),
			ResultURL:         e.str("GATEWAY_RESULT_URL", ""),
			AuthEmail:         e.str("GATEWAY_AUTH_EMAIL", ""),
			Timeout:           e.duration("GATEWAY_TIMEOUT", 15*time.Second),
			RequestsPerSecond: e.float("GATEWAY_RATE_LIMIT", 10),
			Burst:             e.integer("GATEWAY_RATE_BURST", 5),
		},
		Ledger: service.LedgerConfig{
			Currency: strings.ToUpper(e.str("DEFAULT_CURRENCY", "USD")),
			RideFee: domain.FeeSchedule{
				Rate: e.amount("RIDE_FEE_RATE", "0.10"),
				Min:  e.amount("RIDE_FEE_MIN", "0"),
				Max:  e.optionalAmount("RIDE_FEE_MAX"),
			},
			TopupMin:        e.amount("TOPUP_MIN", "1.00"),
			TopupMax:        e.amount("TOPUP_MAX", "10000.00"),
			Location:        loc,
			PollConcurrency: e.integer("POLL_CONCURRENCY", 4),
		},
		Settlement: service.SettlementConfig{
			MinPayout: e.amount("SETTLEMENT_MIN_PAYOUT", "10.00"),
			FeeRate:   e.amount("SETTLEMENT_FEE_RATE", "0.00"),
		},
		JWTSecret:        e.str("JWT_SECRET", ""),
		EncryptionKeyHex: e.str("ENCRYPTION_KEY_HEX", ""),
		SessionTTL:       e.duration("DRIVER_SESSION_TTL", 10*time.Minute),
		RateLimit: RateLimit{
			RequestsPerSecond: e.float("API_RATE_LIMIT", 20),
			Burst:             e.integer("API_RATE_BURST", 40),
		},
		CORSOrigins: e.list("CORS_ALLOWED_ORIGINS", "*"),
	}
	if e.err != nil {
		return nil, e.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules and required secrets.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.StoreDriver != StorePostgres && c.StoreDriver != StoreMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StorePostgres, StoreMemory))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.EncryptionKeyHex == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY_HEX is required"))
	}
	if c.Gateway.MerchantID == "" || c.Gateway.Secret == "" {
		errs = append(errs, errors.New("GATEWAY_MERCHANT_ID and GATEWAY_SECRET are required"))
	}
	if err := c.Ledger.RideFee.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ride fee: %w", err))
	}
	if !c.Ledger.TopupMin.IsPositive() || c.Ledger.TopupMax.LessThan(c.Ledger.TopupMin) {
		errs = append(errs, errors.New("TOPUP_MIN must be positive and not above TOPUP_MAX"))
	}
	if c.Settlement.MinPayout.IsNegative() || c.Settlement.FeeRate.IsNegative() || c.Settlement.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("SETTLEMENT_MIN_PAYOUT must be >= 0 and SETTLEMENT_FEE_RATE within [0, 1]"))
	}
	if len(c.Ledger.Currency) != 3 {
		errs = append(errs, errors.New("DEFAULT_CURRENCY must be a 3-letter ISO code"))
	}
	return errors.Join(errs...)
}
