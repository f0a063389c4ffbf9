package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SscSPs/fin_model_app/internal/core/services"
	"github.com/SscSPs/fin_model_app/internal/handlers"
	"github.com/SscSPs/fin_model_app/internal/middleware"
	"github.com/SscSPs/fin_model_app/internal/platform/analytics"
	"github.com/SscSPs/fin_model_app/internal/platform/archive"
	"github.com/SscSPs/fin_model_app/internal/platform/config"
	"github.com/SscSPs/fin_model_app/internal/platform/lock"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
	"github.com/SscSPs/fin_model_app/internal/platform/scriptrunner"
	"github.com/SscSPs/fin_model_app/internal/repositories/database/pgsql"
	"github.com/SscSPs/fin_model_app/pkg/cache"
	"github.com/SscSPs/fin_model_app/pkg/database"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	shutdownTimeout = 30 * time.Second
	lockMaxWait     = 2 * time.Second
)

// @title Financial Modeling Backend API
// @version 1.0
// @description Section data with audit trail, debounced auto-save and calculation runs.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool (for application use)
	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		return err
	}
	defer database.ClosePgxPool(dbPool)
	logger.Info("Database connection pool established.")

	if err := runMigrations(cfg, logger); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer cache.CloseRedis(rdb)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, lockMaxWait)
		logger.Info("Auto-save locks shared through Redis")
	} else {
		logger.Warn("REDIS_URL not set, auto-save locks are local to this instance")
	}

	var archiver archive.Archiver = archive.Noop{}
	if cfg.ArchiveS3Bucket != "" {
		s3Archiver, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
		if err != nil {
			return err
		}
		archiver = s3Archiver
		logger.Info("Audit archive enabled", slog.String("bucket", cfg.ArchiveS3Bucket))
	}

	m := metrics.New()

	posthogClient := analytics.InitializePosthogClient(cfg.PostHogAPIKey, logger)
	defer posthogClient.Close()

	runner := scriptrunner.NewPythonRunner(
		scriptrunner.Config{
			PythonPath: cfg.CalcPythonPath,
			ScriptsDir: cfg.CalcScriptsDir,
			Timeout:    cfg.CalcTimeout,
		},
		scriptrunner.NewCircuitBreaker(scriptrunner.CircuitBreakerConfig{
			FailureThreshold: cfg.CalcBreakerFailures,
			OpenTimeout:      cfg.CalcBreakerOpenTimeout,
		}),
		logger.With(slog.String("component", "scriptrunner")),
	)

	serviceContainer := services.NewServiceContainer(cfg, pgsql.NewRepositoryProvider(dbPool), services.Dependencies{
		Logger:    logger,
		Metrics:   m,
		Archiver:  archiver,
		Locker:    locker,
		Runner:    runner,
		Analytics: posthogClient,
	})

	services.StartAuditRetention(ctx, services.AuditRetentionConfig{
		Audit:      serviceContainer.Audit,
		DaysToKeep: cfg.AuditRetentionDays,
		Interval:   cfg.AuditCleanupInterval,
		Logger:     logger.With(slog.String("component", "audit_retention")),
	})

	limiterInstance, err := middleware.NewLimiter(cfg.RateLimit, rdb)
	if err != nil {
		return err
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware (logging, recovery)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())

	if err := r.SetTrustedProxies(nil); err != nil {
		return err
	}

	handlers.RegisterRoutes(r, cfg, serviceContainer, handlers.RouteDeps{
		Limiter:   limiterInstance,
		Metrics:   m,
		Analytics: posthogClient,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	// pending debounced saves are dropped; saves already running are waited for
	serviceContainer.AutoSave.Shutdown()
	logger.Info("Server stopped")
	return nil
}

func runMigrations(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Running database migrations...")
	// Open a temporary standard sql.DB connection for migrations
	// Using pgx/v5/stdlib driver to be compatible with the main pool
	migrationDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		return err
	}

	// Create a postgres driver instance for migrate
	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return err
	}

	// Apply all available "up" migrations
	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return upErr
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}
	return nil
}
