package repositories

import (
	"context"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// SectionRecordReader defines read operations over any section table
type SectionRecordReader interface {
	// FindLatestByProjectID returns the highest-version record of a project, or ErrNotFound.
	FindLatestByProjectID(ctx context.Context, schema *domain.SectionSchema, projectID string) (*domain.SectionRecord, error)
}

// SectionRecordWriter defines write operations over any section table
type SectionRecordWriter interface {
	// Insert creates the first record of a project with version 1.
	Insert(ctx context.Context, schema *domain.SectionSchema, projectID string, fields domain.FieldValues, userID, changeReason string) (*domain.SectionRecord, error)

	// UpdateFields writes only the given fields and bumps the version, provided the stored
	// version still equals expectedVersion. Returns ErrVersionConflict or ErrNotFound otherwise.
	UpdateFields(ctx context.Context, schema *domain.SectionSchema, recordID int64, expectedVersion int, fields domain.FieldValues, userID, changeReason string) (*domain.SectionRecord, error)

	// DeleteByProjectID removes every record of the project and returns them.
	DeleteByProjectID(ctx context.Context, schema *domain.SectionSchema, projectID string) ([]domain.SectionRecord, error)
}

// SectionRecordRepositoryFacade combines all section record interfaces
type SectionRecordRepositoryFacade interface {
	SectionRecordReader
	SectionRecordWriter
}

// SectionRecordRepositoryWithTx extends SectionRecordRepositoryFacade with transaction capabilities
type SectionRecordRepositoryWithTx interface {
	SectionRecordRepositoryFacade
	TransactionManager

	// WithTx returns a repository bound to tx.
	WithTx(tx pgx.Tx) SectionRecordRepositoryFacade
}
