package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/config"
	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/handler"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/cache"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/llm"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/memory"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/sqlstore"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/supabase"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/token"
	"github.com/boddenberg/utility-bills-bfa/internal/port"
	"github.com/boddenberg/utility-bills-bfa/internal/report"
	"github.com/boddenberg/utility-bills-bfa/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("narrative_cache_ttl", cfg.NarrativeCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)
	if cfg.UsesDefaultJWTSecret() {
		logger.Warn("JWT_SECRET not set, signing tokens with the development secret")
	}

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Stores ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	tokens := token.NewManager(cfg.TokenSecret(), cfg.JWTAccessTTL)

	var billStore port.BillStore
	var authProvider port.AuthProvider
	var closeStore func() error

	switch cfg.DataBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		client := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewGuard("supabase", resilienceCfg),
			logger,
		)
		billStore = client
		authProvider = client
	case config.BackendPostgres, config.BackendSQLite:
		dialect, dsn := sqlstore.Postgres, cfg.PostgresDSN
		if cfg.DataBackend == config.BackendSQLite {
			dialect, dsn = sqlstore.SQLite, cfg.SQLitePath
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err := sqlstore.Open(ctx, dialect, dsn, logger)
		cancel()
		if err != nil {
			logger.Fatal("failed to open bill store", zap.String("backend", cfg.DataBackend), zap.Error(err))
		}
		billStore = store
		closeStore = store.Close
	default:
		logger.Warn("using in-memory data backend, data is lost on restart")
		billStore = memory.NewBillStore()
	}
	if authProvider == nil {
		authProvider = memory.NewAuthProvider(tokens, cfg.BcryptCost, logger)
	}

	// --- Caches ---
	billCache := cache.New[[]domain.BillRecord](cfg.CacheTTL)
	defer billCache.Close()
	narrativeCache := cache.New[string](cfg.NarrativeCacheTTL)
	defer narrativeCache.Close()

	// --- Summaries ---
	var llmProvider port.SummaryProvider
	llmClient := &http.Client{Timeout: cfg.LLMTimeout}
	switch cfg.LLMProvider {
	case config.LLMHuggingFace:
		hf := llm.NewHuggingFace(llmClient, cfg.HuggingFaceModelURL, cfg.HuggingFaceToken, resilience.NewGuard("huggingface", resilienceCfg))
		llmProvider = service.NewLLMSummary(hf, narrativeCache, metrics, logger)
	case config.LLMOpenAI:
		oa := llm.NewOpenAI(llmClient, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, resilience.NewGuard("openai", resilienceCfg), metrics)
		llmProvider = service.NewLLMSummary(oa, narrativeCache, metrics, logger)
	default:
		logger.Info("no LLM provider configured, llm summaries fall back to deterministic text")
	}

	// --- Services ---
	billSvc := service.NewBillService(billStore, billCache, metrics, logger)
	reportSvc := service.NewReportService(billSvc, report.NewAggregator(cfg.ReportSettings()), llmProvider, metrics, logger)
	authSvc := service.NewAuthService(authProvider, tokens, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Bills:   billSvc,
		Reports: reportSvc,
		Auth:    authSvc,
	}, metrics, cfg.CORSOrigins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close bill store", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}
