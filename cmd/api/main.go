package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-klinik/internal/app"
	"github.com/noah-isme/backend-klinik/internal/cart"
	"github.com/noah-isme/backend-klinik/internal/catalog"
	"github.com/noah-isme/backend-klinik/internal/common"
	"github.com/noah-isme/backend-klinik/internal/config"
	"github.com/noah-isme/backend-klinik/internal/events"
	"github.com/noah-isme/backend-klinik/internal/health"
	"github.com/noah-isme/backend-klinik/internal/incentive"
	"github.com/noah-isme/backend-klinik/internal/ledger"
	"github.com/noah-isme/backend-klinik/internal/lock"
	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/ratelimit"
	"github.com/noah-isme/backend-klinik/internal/security"
	"github.com/noah-isme/backend-klinik/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "klinik")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "klinik-api",
			Environment:   cfg.AppEnv,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deps, err := app.New(startCtx, cfg, logger, app.Options{ApplicationName: "klinik-api", RedisMetrics: metricsEnabled})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()
	queries := deps.Queries

	catalogLogger := logger.With().Str("component", "catalog").Logger()
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:  queries,
		Cache:    catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger:   &catalogLogger,
		MaxLimit: cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	carts := cart.RedisStore{Client: deps.Redis, TTL: cfg.CartTTL}
	cartSvc := &cart.Service{
		Store:   carts,
		Catalog: catalogService,
		Logger:  logger.With().Str("component", "cart").Logger(),
	}
	cartHandler := &cart.Handler{Svc: cartSvc, Validate: deps.Validator}

	bus := &events.Bus{
		Scheduler: deps.Dispatcher(),
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}
	settlementSvc := &settlement.Service{
		Tx:         settlement.PoolTx{Pool: deps.DB, Q: queries},
		Reader:     queries,
		Carts:      carts,
		Locker:     lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockMaxWait},
		Events:     bus,
		Logger:     logger.With().Str("component", "settlement").Logger(),
		MaxRetries: cfg.InvoiceMaxRetries,
		LockTTL:    cfg.LockTTL,
	}
	settlementHandler := &settlement.Handler{Svc: settlementSvc, Validate: deps.Validator}

	incentiveHandler := &incentive.Handler{Svc: &incentive.Service{Q: queries}, Validate: deps.Validator}
	reportHandler := &ledger.Handler{Reports: &ledger.Reports{Q: queries}}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	var finalizeLimiter ratelimit.Limiter
	switch cfg.FinalizeRateStrategy {
	case "sliding":
		finalizeLimiter = ratelimit.SlidingWindow{Client: deps.Redis, Prefix: "ratelimit:finalize"}
	default:
		limiterStore, err := ratelimit.NewRedisStore(deps.Redis, "ratelimit:finalize")
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limiter")
		}
		finalizeLimiter = &ratelimit.FixedWindow{Store: limiterStore}
	}
	finalizeLimit := ratelimit.Handler{
		Limiter: finalizeLimiter,
		Rule:    ratelimit.Rule{Window: cfg.FinalizeRateWindow, Max: cfg.FinalizeRateLimit},
		Key:     ratelimit.KeyByOperator,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBuckets(envOrDefault("OBS_METRICS_BUCKETS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.HTTPObs{Metrics: httpMetrics, Tracing: tracingEnabled}.Middleware)
	r.Use(common.OperatorMiddleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", common.OperatorHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount(pprofPrefix, protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Probes: readinessProbes(deps.DB, deps.Redis)}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.Headers{Enable: true, EnableHSTS: envBool("SECURE_ENABLE_HSTS", false), NoStore: true}.Middleware)
		v.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 64<<10))}.Middleware)
		catalogHandler.Routes(v)
		incentiveHandler.Routes(v)

		v.Route("/visits/{visitId}", func(visit chi.Router) {
			visit.Route("/carts/{domain}", func(c chi.Router) {
				cartHandler.Routes(c)
				c.With(finalizeLimit.Middleware, idem.Middleware).Post("/finalize", settlementHandler.Finalize)
			})
			visit.Get("/bills/{domain}", settlementHandler.ListByVisit)
		})
		v.Get("/bills/{domain}/{invoiceNumber}", settlementHandler.Get)
		v.Route("/reports", reportHandler.Routes)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       envDurationMillis("HTTP_READ_TIMEOUT_MS", 15000),
		WriteTimeout:      envDurationMillis("HTTP_WRITE_TIMEOUT_MS", 30000),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func readinessProbes(db *pgxpool.Pool, rdb *redis.Client) []health.Probe {
	return []health.Probe{
		{
			Name:    "postgres",
			Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			Check: func(ctx context.Context) error {
				if db == nil {
					return errors.New("postgres not configured")
				}
				return db.Ping(ctx)
			},
		},
		{
			Name:    "redis",
			Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
			Check: func(ctx context.Context) error {
				if rdb == nil {
					return errors.New("redis not configured")
				}
				return rdb.Ping(ctx).Err()
			},
		},
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
