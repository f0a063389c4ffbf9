package pgsql

import (
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	sectionRepo := newPgxSectionRecordRepository(dbPool)
	auditRepo := newPgxAuditLogRepository(dbPool)
	calculationRepo := newPgxCalculationRunRepository(dbPool)

	return portsrepo.RepositoryProvider{
		SectionRecordRepo:  sectionRepo,
		AuditLogRepo:       auditRepo,
		CalculationRunRepo: calculationRepo,
	}
}
