// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the database connection, payment provider credentials, rate
// limiting, admin auth, notifications and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider names accepted by DEPOSIT_PROVIDER and the webhook route.
const (
	ProviderStripe = "stripe"
	ProviderSpeed  = "speed"
	ProviderWert   = "wert"
	ProviderPaidly = "paidly"
	ProviderVert   = "vert"
)

// KnownProviders lists every supported payment provider in a stable order.
var KnownProviders = []string{ProviderStripe, ProviderSpeed, ProviderWert, ProviderPaidly, ProviderVert}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-deposit-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the GORM dialector.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	DSN    string // DB_DSN: file path for sqlite, connection string for postgres
}

// ProviderConfig carries the credentials of one payment provider.
// A provider is "configured" when it has an API key.
type ProviderConfig struct {
	Name          string
	APIKey        string
	PartnerID     string // Wert partner id, Vert partner id, Paidly store id
	WebhookSecret string
	BaseURL       string
}

// Configured reports whether the provider can open sessions.
func (p ProviderConfig) Configured() bool { return strings.TrimSpace(p.APIKey) != "" }

// PaymentsConfig groups provider selection and call policy.
type PaymentsConfig struct {
	Default         string                    // DEPOSIT_PROVIDER
	SessionAttempts int                       // DEPOSIT_SESSION_ATTEMPTS
	MaxAmount       decimal.Decimal           // DEPOSIT_MAX_AMOUNT; 0 disables the cap
	Timeout         time.Duration             // PROVIDER_TIMEOUT
	AllowUnsigned   bool                      // WEBHOOK_ALLOW_UNSIGNED (development only)
	SuccessURL      string                    // CHECKOUT_SUCCESS_URL
	CancelURL       string                    // CHECKOUT_CANCEL_URL
	WebhookBaseURL  string                    // WEBHOOK_BASE_URL, public origin providers call back
	Providers       map[string]ProviderConfig // keyed by provider name
}

// NotifyConfig configures settlement notifications.
type NotifyConfig struct {
	RedisAddr     string        // NOTIFY_REDIS_ADDR; empty disables Redis
	RedisPassword string        // NOTIFY_REDIS_PASSWORD
	RedisDB       int           // NOTIFY_REDIS_DB
	Channel       string        // NOTIFY_CHANNEL
	Timeout       time.Duration // NOTIFY_TIMEOUT
}

// AdminConfig protects the /admin routes.
type AdminConfig struct {
	JWTSecret string // ADMIN_JWT_SECRET; empty disables admin routes
	Issuer    string // ADMIN_JWT_ISSUER; optional
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DBConfig
	Payments PaymentsConfig
	Notify   NotifyConfig
	Admin    AdminConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	maxAmount, err := getdecimal("DEPOSIT_MAX_AMOUNT", decimal.Zero)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:    getenv("DB_DSN", getenv("DB_PATH", "deposits.db")),
		},

		Payments: PaymentsConfig{
			Default:         strings.ToLower(getenv("DEPOSIT_PROVIDER", ProviderStripe)),
			SessionAttempts: getint("DEPOSIT_SESSION_ATTEMPTS", 3),
			MaxAmount:       maxAmount,
			Timeout:         getdur("PROVIDER_TIMEOUT", 10*time.Second),
			AllowUnsigned:   getbool("WEBHOOK_ALLOW_UNSIGNED", false),
			SuccessURL:      getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/deposit/success"),
			CancelURL:       getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/deposit/cancel"),
			WebhookBaseURL:  strings.TrimRight(getenv("WEBHOOK_BASE_URL", "http://localhost:8080"), "/"),
			Providers: map[string]ProviderConfig{
				ProviderStripe: {
					Name:          ProviderStripe,
					APIKey:        getenv("STRIPE_SECRET_KEY", ""),
					WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
					BaseURL:       getenv("STRIPE_BASE_URL", "https://api.stripe.com"),
				},
				ProviderSpeed: {
					Name:          ProviderSpeed,
					APIKey:        getenv("SPEED_API_KEY", ""),
					WebhookSecret: getenv("SPEED_WEBHOOK_SECRET", ""),
					BaseURL:       getenv("SPEED_BASE_URL", "https://api.tryspeed.com"),
				},
				ProviderWert: {
					Name:          ProviderWert,
					APIKey:        getenv("WERT_API_KEY", ""),
					PartnerID:     getenv("WERT_PARTNER_ID", ""),
					WebhookSecret: getenv("WERT_WEBHOOK_SECRET", ""),
					BaseURL:       getenv("WERT_BASE_URL", "https://sandbox-api.wert.io"),
				},
				ProviderPaidly: {
					Name:          ProviderPaidly,
					APIKey:        getenv("PAIDLY_API_KEY", ""),
					PartnerID:     getenv("PAIDLY_STORE_ID", ""),
					WebhookSecret: getenv("PAIDLY_WEBHOOK_SECRET", ""),
					BaseURL:       getenv("PAIDLY_BASE_URL", "https://api.paidlyinteractive.com"),
				},
				ProviderVert: {
					Name:          ProviderVert,
					APIKey:        getenv("VERT_API_KEY", ""),
					PartnerID:     getenv("VERT_PARTNER_ID", ""),
					WebhookSecret: getenv("VERT_WEBHOOK_SECRET", ""),
					BaseURL:       getenv("VERT_BASE_URL", "https://api.vert.co"),
				},
			},
		},

		Notify: NotifyConfig{
			RedisAddr:     getenv("NOTIFY_REDIS_ADDR", ""),
			RedisPassword: getenv("NOTIFY_REDIS_PASSWORD", ""),
			RedisDB:       getint("NOTIFY_REDIS_DB", 0),
			Channel:       getenv("NOTIFY_CHANNEL", "deposits.settled"),
			Timeout:       getdur("NOTIFY_TIMEOUT", 2*time.Second),
		},

		Admin: AdminConfig{
			JWTSecret: getenv("ADMIN_JWT_SECRET", ""),
			Issuer:    getenv("ADMIN_JWT_ISSUER", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-deposit-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite", "postgres":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if _, ok := cfg.Payments.Providers[cfg.Payments.Default]; !ok {
		return cfg, fmt.Errorf("DEPOSIT_PROVIDER must be one of: %s", strings.Join(KnownProviders, ", "))
	}
	if cfg.Payments.SessionAttempts < 1 {
		return cfg, errors.New("DEPOSIT_SESSION_ATTEMPTS must be >= 1")
	}
	if cfg.Payments.MaxAmount.IsNegative() {
		return cfg, errors.New("DEPOSIT_MAX_AMOUNT must be >= 0")
	}
	if cfg.Payments.Timeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.Notify.Timeout <= 0 {
		return cfg, errors.New("NOTIFY_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Provider returns the named provider's settings.
func (c Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Payments.Providers[strings.ToLower(name)]
	return p, ok
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getdecimal parses money values exactly; a malformed value is an error
// rather than a silent default.
func getdecimal(k string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s must be a decimal number: %w", k, err)
	}
	return d, nil
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
