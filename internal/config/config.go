package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/report"

	"gopkg.in/yaml.v3"
)

// Data backends selectable with DATA_BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// LLM providers selectable with LLM_PROVIDER.
const (
	LLMNone        = "none"
	LLMHuggingFace = "huggingface"
	LLMOpenAI      = "openai"
)

const defaultJWTSecret = "bfa-default-dev-secret-change-me"

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port            int
	LogLevel        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Storage
	DataBackend string
	SQLitePath  string
	PostgresDSN string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string

	// JWT / Auth (non-Supabase backends)
	JWTSecret    string
	JWTAccessTTL time.Duration
	BcryptCost   int

	// Summaries
	LLMProvider         string
	HuggingFaceToken    string
	HuggingFaceModelURL string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	LLMTimeout          time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL          time.Duration
	NarrativeCacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	ServiceName  string

	// Report presentation, from REPORT_CONFIG
	ReportConfigPath string
	Report           ReportFile
}

// ReportFile is the YAML file with the report presentation settings.
type ReportFile struct {
	CurrencySymbol   string            `yaml:"currency_symbol"`
	Units            map[string]string `yaml:"units"`
	DefaultGoalUsage float64           `yaml:"default_goal_usage"`
}

// Load reads configuration from environment variables with defaults, then
// the report settings file when REPORT_CONFIG is set.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		DataBackend: strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),
		SQLitePath:  getEnv("SQLITE_DB_PATH", "./data/bills.db"),
		PostgresDSN: getEnv("DATABASE_URL", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),

		JWTSecret:    getEnv("JWT_SECRET", defaultJWTSecret),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", time.Hour),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", LLMNone)),
		HuggingFaceToken:    getEnv("HUGGINGFACE_API_TOKEN", ""),
		HuggingFaceModelURL: getEnv("HUGGINGFACE_MODEL_URL", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", ""),
		LLMTimeout:          getEnvDuration("LLM_TIMEOUT", 20*time.Second),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		CacheTTL:          getEnvDuration("CACHE_TTL", time.Minute),
		NarrativeCacheTTL: getEnvDuration("NARRATIVE_CACHE_TTL", time.Hour),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "utility-bills-bfa"),

		ReportConfigPath: getEnv("REPORT_CONFIG", ""),
		Report: ReportFile{
			CurrencySymbol:   getEnv("REPORT_CURRENCY_SYMBOL", report.DefaultCurrencySymbol),
			DefaultGoalUsage: getEnvFloat("REPORT_DEFAULT_GOAL_USAGE", report.DefaultGoalUsage),
		},
	}

	if cfg.ReportConfigPath != "" {
		data, err := os.ReadFile(cfg.ReportConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("read report config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg.Report); err != nil {
			return cfg, fmt.Errorf("parse report config %s: %w", cfg.ReportConfigPath, err)
		}
	}
	return cfg, nil
}

// Validate returns every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	backends := []string{BackendSupabase, BackendPostgres, BackendSQLite, BackendMemory}
	if !slices.Contains(backends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, backends))
	}

	switch c.DataBackend {
	case BackendSupabase:
		if u, err := url.Parse(c.SupabaseURL); c.SupabaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "SUPABASE_URL must be an absolute URL when using the supabase backend")
		}
		if c.SupabaseAnonKey == "" {
			errs = append(errs, "SUPABASE_ANON_KEY is required when using the supabase backend")
		}
		if c.SupabaseJWTSecret == "" {
			errs = append(errs, "SUPABASE_JWT_SECRET is required to validate Supabase access tokens")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, "DATABASE_URL is required when using the postgres backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		}
	}

	if c.DataBackend != BackendSupabase && c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET cannot be empty")
	}
	if c.JWTAccessTTL <= 0 {
		errs = append(errs, "JWT_ACCESS_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}

	providers := []string{LLMNone, LLMHuggingFace, LLMOpenAI}
	if !slices.Contains(providers, c.LLMProvider) {
		errs = append(errs, fmt.Sprintf("invalid LLM provider '%s': must be one of %v", c.LLMProvider, providers))
	}
	if c.LLMProvider == LLMOpenAI && c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if c.LLMProvider == LLMHuggingFace && c.HuggingFaceToken == "" {
		errs = append(errs, "HUGGINGFACE_API_TOKEN is required when LLM_PROVIDER=huggingface")
	}

	if c.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, "MAX_CONCURRENCY must be at least 1")
	}
	if c.CacheTTL < 0 || c.NarrativeCacheTTL < 0 {
		errs = append(errs, "cache TTLs cannot be negative")
	}

	if c.Report.DefaultGoalUsage < 0 {
		errs = append(errs, "default goal usage cannot be negative")
	}
	for t := range c.Report.Units {
		if !domain.BillType(t).Valid() {
			errs = append(errs, fmt.Sprintf("report units: unknown bill type '%s'", t))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UsesDefaultJWTSecret reports whether locally issued tokens are signed with
// the built-in development secret.
func (c *Config) UsesDefaultJWTSecret() bool {
	return c.DataBackend != BackendSupabase && c.JWTSecret == defaultJWTSecret
}

// TokenSecret is the secret access tokens are verified with: the Supabase
// project secret for the supabase backend, JWT_SECRET otherwise.
func (c *Config) TokenSecret() string {
	if c.DataBackend == BackendSupabase {
		return c.SupabaseJWTSecret
	}
	return c.JWTSecret
}

// ReportSettings merges the configured presentation values over the defaults.
func (c *Config) ReportSettings() report.Settings {
	s := report.DefaultSettings()
	if c.Report.CurrencySymbol != "" {
		s.CurrencySymbol = c.Report.CurrencySymbol
	}
	for t, unit := range c.Report.Units {
		if unit != "" {
			s.Units[domain.BillType(t)] = unit
		}
	}
	s.DefaultGoalUsage = c.Report.DefaultGoalUsage
	return s
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
