package services

import (
	"log/slog"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/platform/analytics"
	"github.com/SscSPs/fin_model_app/internal/platform/archive"
	"github.com/SscSPs/fin_model_app/internal/platform/config"
	"github.com/SscSPs/fin_model_app/internal/platform/lock"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
	"github.com/SscSPs/fin_model_app/internal/platform/scriptrunner"
)

// Dependencies are the platform adapters the services need besides repositories.
type Dependencies struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Archiver  archive.Archiver
	Locker    lock.Locker
	Runner    scriptrunner.Runner
	Analytics analytics.Tracker
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, deps Dependencies) *portssvc.ServiceContainer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	container := &portssvc.ServiceContainer{}

	// Audit first since every writer logs through it
	container.Audit = NewAuditService(
		repos.AuditLogRepo,
		WithArchiver(deps.Archiver),
		WithAuditMetrics(deps.Metrics),
	)

	container.FinancialData = NewFinancialDataService(
		repos.SectionRecordRepo,
		repos.AuditLogRepo,
		container.Audit,
		WithFinancialDataMetrics(deps.Metrics),
	)

	container.AutoSave = NewAutoSaveScheduler(
		container.FinancialData,
		deps.Logger.With(slog.String("component", "autosave")),
		WithAutoSaveDelay(cfg.AutoSaveDebounce),
		WithAutoSaveLockTTL(cfg.AutoSaveLockTTL),
		WithStatusRetention(cfg.AutoSaveStatusRetention),
		WithLocker(deps.Locker),
		WithAutoSaveMetrics(deps.Metrics),
		WithFailureHandler(autoSaveFailureReporter(deps.Analytics)),
	)

	container.CalculationTracker = NewCalculationTrackerService(
		repos.CalculationRunRepo,
		WithDefaultKeepRuns(cfg.CalcKeepRuns),
	)

	container.CalculationExecutor = NewCalculationExecutorService(
		container.FinancialData,
		container.CalculationTracker,
		repos.CalculationRunRepo,
		container.Audit,
		deps.Runner,
		WithCalculationMetrics(deps.Metrics),
		WithAnalytics(deps.Analytics),
	)

	return container
}

// autoSaveFailureReporter surfaces debounced save failures, which have no caller to return to.
func autoSaveFailureReporter(tracker analytics.Tracker) func(domain.SaveFailure) {
	return func(f domain.SaveFailure) {
		if tracker == nil {
			return
		}
		tracker.Enqueue(f.UserID, "autosave_failed", map[string]any{
			"project_id": f.ProjectID,
			"section":    f.Section,
			"error":      f.Err.Error(),
		})
	}
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.FinancialDataSvcFacade      = (*financialDataService)(nil)
	_ portssvc.AuditSvcFacade              = (*auditService)(nil)
	_ portssvc.CalculationTrackerSvcFacade = (*calculationTrackerService)(nil)
	_ portssvc.CalculationExecutorSvc      = (*calculationExecutorService)(nil)
)
