package services

import (
	"context"
	"log/slog"

	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	"github.com/SscSPs/fin_model_app/internal/middleware"
	"github.com/jackc/pgx/v5"
)

// BaseService provides common functionality for all services
type BaseService struct{}

// GetLogger gets the logger from context or returns a default one
func (s *BaseService) GetLogger(ctx context.Context) *slog.Logger {
	return middleware.GetLoggerFromCtx(ctx)
}

// LogError logs an error with consistent formatting
func (s *BaseService) LogError(ctx context.Context, err error, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	args := make([]any, 0, len(keyvals)+1)
	args = append(args, slog.String("error", err.Error()))
	args = append(args, keyvals...)
	logger.Error(msg, args...)
}

// LogInfo logs an info message with consistent formatting
func (s *BaseService) LogInfo(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Info(msg, keyvals...)
}

// LogDebug logs a debug message with consistent formatting
func (s *BaseService) LogDebug(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Debug(msg, keyvals...)
}

// rollback is deferred after Begin; it is a no-op once the transaction committed.
func (s *BaseService) rollback(ctx context.Context, tm portsrepo.TransactionManager, tx pgx.Tx) {
	if err := tm.Rollback(ctx, tx); err != nil {
		s.LogError(ctx, err, "Failed to rollback transaction")
	}
}
