package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/app"
	"github.com/noah-isme/backend-klinik/internal/config"
	"github.com/noah-isme/backend-klinik/internal/events"
	"github.com/noah-isme/backend-klinik/internal/ledger"
	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "klinik"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.New(startCtx, cfg, logger, app.Options{ApplicationName: "klinik-worker"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "ledger",
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		OpenFor:      cfg.BreakerOpenFor,
		Logger:       logger,
	})
	ledgerTasks := &ledger.TaskHandler{
		Poster:  newPoster(cfg, deps, logger),
		Breaker: breaker,
		Logger:  logger.With().Str("component", "ledger").Logger(),
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis url")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues:      map[string]int{cfg.QueueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(time.Second, n+1, 0.2)
		},
		Logger:   asynqLogger{logger: logger},
		LogLevel: asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	ledgerTasks.Register(mux)

	relay := &events.Relay{
		Store:     deps.Queries,
		Scheduler: deps.Dispatcher(),
		Batch:     cfg.RelayBatch,
		Interval:  cfg.RelayInterval,
		Logger:    logger.With().Str("component", "relay").Logger(),
	}
	go relay.Run(ctx)

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	logger.Info().Str("queue", cfg.QueueName).Msg("worker starting")
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func newPoster(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) ledger.Poster {
	if cfg.LedgerURL == "" {
		return &ledger.PGPoster{Tx: ledger.PoolTx{Pool: deps.DB}, Logger: logger}
	}
	logger.Info().Str("url", cfg.LedgerURL).Msg("posting sales to remote ledger")
	return &ledger.HTTPPoster{
		URL:    cfg.LedgerURL,
		Secret: cfg.LedgerSecret,
		Client: resilience.HTTPClient{
			Client:      ledger.NewHTTPClient(cfg.LedgerTimeout),
			BaseBackoff: cfg.LedgerRetryBase,
			MaxAttempts: cfg.LedgerRetryAttempts,
			Jitter:      0.2,
			Timeout:     cfg.LedgerTimeout,
		},
	}
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
