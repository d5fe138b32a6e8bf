package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/catalog"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/database"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/handler"
	"github.com/stemsi/exstem-mocktest/internal/loader"
	"github.com/stemsi/exstem-mocktest/internal/logger"
	"github.com/stemsi/exstem-mocktest/internal/repository"
	"github.com/stemsi/exstem-mocktest/internal/router"
	"github.com/stemsi/exstem-mocktest/internal/service"
	"github.com/stemsi/exstem-mocktest/internal/validator"
	"github.com/stemsi/exstem-mocktest/internal/worker"
)

// janitorInterval is how often idle sessions are swept.
const janitorInterval = time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Mock Test")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Load Catalog ──────────────────────────────────────────────────
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load test catalog")
	}
	log.Info().Int("tests", len(cat.List())).Msg("Catalog loaded")

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	resultRepo := repository.NewResultRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	payloadLoader := loader.New(cfg.DataDir, cfg.FetchTimeout, log)
	resultQueue := service.NewRedisResultQueue(rdb)
	paperService := service.NewPaperService(cat, payloadLoader, service.NewRedisPayloadCache(rdb), cfg.PayloadCacheTTL, log)
	sessionService := service.NewSessionService(paperService, resultQueue, exam.TickerScheduler{}, exam.SystemClock(), cfg.SessionTTL, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	checks := map[string]handler.HealthCheck{
		"postgres": database.PostgresCheck(pool),
		"redis":    database.RedisCheck(rdb),
	}
	handlers := &router.Handlers{
		Test:    handler.NewTestHandler(paperService, sessionService, resultRepo, log),
		Session: handler.NewSessionHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(sessionService, resultQueue, checks, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	resultWorker := worker.NewResultWorker(pool, rdb, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		resultWorker.Start(workerCtx)
	}()
	go sessionService.RunJanitor(workerCtx, janitorInterval)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Fill the payload cache before accepting traffic.
	paperService.Prewarm(ctx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop countdowns so no timeout submits after the queue drains.
	sessionService.Shutdown()

	// 3. Stop the result worker and wait for its final flush.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Result worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
