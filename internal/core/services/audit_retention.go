package services

import (
	"context"
	"log/slog"
	"time"

	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/middleware"
)

// AuditRetentionConfig holds the dependencies of the retention job.
type AuditRetentionConfig struct {
	Audit      portssvc.AuditWriterSvc
	DaysToKeep int
	Interval   time.Duration
	Logger     *slog.Logger
}

// StartAuditRetention runs Cleanup on every tick until ctx is done. A zero interval disables it.
func StartAuditRetention(ctx context.Context, cfg AuditRetentionConfig) {
	if cfg.Interval <= 0 {
		cfg.Logger.Info("audit retention: disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		cfg.Logger.Info("audit retention: started",
			slog.Duration("interval", cfg.Interval), slog.Int("days_to_keep", cfg.DaysToKeep))

		for {
			select {
			case <-ctx.Done():
				cfg.Logger.Info("audit retention: shutting down")
				return
			case <-ticker.C:
				runAuditRetention(ctx, cfg)
			}
		}
	}()
}

func runAuditRetention(ctx context.Context, cfg AuditRetentionConfig) {
	deleted, err := cfg.Audit.Cleanup(middleware.WithLogger(ctx, cfg.Logger), cfg.DaysToKeep)
	if err != nil {
		cfg.Logger.Error("audit retention: cleanup failed",
			slog.Int64("deleted", deleted), slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		cfg.Logger.Info("audit retention: cleanup finished", slog.Int64("deleted", deleted))
	}
}
