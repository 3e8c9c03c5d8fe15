// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage locations, the messaging
// provider credentials, the LLM client, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateLimitConfig defines the dual-axis rate limiter thresholds.
type RateLimitConfig struct {
	MaxRequests     int           // RATE_LIMIT_MAX_REQUESTS per phone, per window
	WindowSeconds   time.Duration // RATE_LIMIT_WINDOW_SECONDS
	MaxIPRequests   int           // RATE_LIMIT_MAX_IP_REQUESTS per IP, per window
	IPWindowSeconds time.Duration // RATE_LIMIT_IP_WINDOW_SECONDS
}

// TwilioConfig defines the inbound messaging provider credentials.
type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// LLMConfig defines the Anthropic client settings.
type LLMConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string
	Environment       string // development|staging|production

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Storage
	DatabaseURL string // SQLite DSN/path
	RedisURL    string

	// Providers
	Twilio TwilioConfig
	LLM    LLMConfig

	// Privacy
	PrivacyHashSalt string

	// Rate limiting
	RateLimit RateLimitConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	// Best-effort: populate process env from a .env file for local
	// development. Absence is not an error; deployed environments set these
	// directly and carry no .env file.
	_ = godotenv.Load()

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 30*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		Environment:       strings.ToLower(getenv("ENVIRONMENT", "development")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		// Storage
		DatabaseURL: getenv("DATABASE_URL", "gateway.db"),
		RedisURL:    getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		Twilio: TwilioConfig{
			AccountSID:  getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:   getenv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber: getenv("TWILIO_PHONE_NUMBER", ""),
		},
		LLM: LLMConfig{
			APIKey:         getenv("ANTHROPIC_API_KEY", ""),
			Model:          getenv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
			MaxTokens:      getint("ANTHROPIC_MAX_TOKENS", 1024),
			Temperature:    getfloat("ANTHROPIC_TEMPERATURE", 0.7),
			RequestTimeout: getdur("ANTHROPIC_REQUEST_TIMEOUT", 15*time.Second),
		},

		PrivacyHashSalt: getenv("PRIVACY_HASH_SALT", "development-only-placeholder-salt-value"),

		RateLimit: RateLimitConfig{
			MaxRequests:     getint("RATE_LIMIT_MAX_REQUESTS", 10),
			WindowSeconds:   getdur("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
			MaxIPRequests:   getint("RATE_LIMIT_MAX_IP_REQUESTS", 30),
			IPWindowSeconds: getdur("RATE_LIMIT_IP_WINDOW_SECONDS", 60*time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", getenv("ALLOWED_ORIGINS", ""))),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "whatsapp-llm-gateway"),
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
	switch cfg.Environment {
	case "development", "staging", "production":
	default:
		cfg.Environment = "development"
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
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return cfg, errors.New("DATABASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return cfg, errors.New("REDIS_URL must not be empty")
	}
	if cfg.RateLimit.MaxRequests < 1 || cfg.RateLimit.MaxIPRequests < 1 {
		return cfg, errors.New("rate limit thresholds must be >= 1")
	}
	if cfg.RateLimit.WindowSeconds <= 0 || cfg.RateLimit.IPWindowSeconds <= 0 {
		return cfg, errors.New("rate limit windows must be positive durations")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return cfg, errors.New("ANTHROPIC_MAX_TOKENS must be > 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 1 {
		return cfg, errors.New("ANTHROPIC_TEMPERATURE must be in [0,1]")
	}
	// The default salt is convenient for local development but must never reach
	// a deployed environment: a weak/shared salt defeats the privacy hash.
	if cfg.Environment == "production" {
		if len(cfg.PrivacyHashSalt) < 32 || cfg.PrivacyHashSalt == "development-only-placeholder-salt-value" {
			return cfg, errors.New("PRIVACY_HASH_SALT must be explicitly set to a value of at least 32 characters in production")
		}
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			return cfg, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set in production")
		}
		if cfg.LLM.APIKey == "" {
			return cfg, errors.New("ANTHROPIC_API_KEY must be set in production")
		}
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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
