package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	"github.com/SscSPs/fin_model_app/internal/models"
	"github.com/SscSPs/fin_model_app/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxSectionRecordRepository serves every section table. Column names come from the
// section schema allow-list only; values are always bound parameters.
type PgxSectionRecordRepository struct {
	BaseRepository
}

// newPgxSectionRecordRepository creates a new repository for section records.
func newPgxSectionRecordRepository(pool *pgxpool.Pool) portsrepo.SectionRecordRepositoryWithTx {
	return &PgxSectionRecordRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.SectionRecordRepositoryWithTx = (*PgxSectionRecordRepository)(nil)

const selectSectionBookkeeping = `id, project_id::text AS project_id, version, created_by, updated_by, change_reason, created_at, updated_at, last_modified`

// WithTx returns a repository bound to tx.
func (r *PgxSectionRecordRepository) WithTx(tx pgx.Tx) portsrepo.SectionRecordRepositoryFacade {
	return &PgxSectionRecordRepository{BaseRepository: r.withTx(tx)}
}

// FindLatestByProjectID returns the highest-version record of a project.
func (r *PgxSectionRecordRepository) FindLatestByProjectID(ctx context.Context, schema *domain.SectionSchema, projectID string) (*domain.SectionRecord, error) {
	query := `SELECT ` + selectSectionColumns(schema) + `
		FROM ` + schema.Table + `
		WHERE project_id = $1::uuid
		ORDER BY version DESC, id DESC
		LIMIT 1`

	row, err := scanSectionRow(schema, r.db().QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find %s record for project %s: %w", schema.Table, projectID, err)
	}
	return mapping.ToDomainSectionRecord(schema, row)
}

// Insert creates the first record of a project.
func (r *PgxSectionRecordRepository) Insert(ctx context.Context, schema *domain.SectionSchema, projectID string, fields domain.FieldValues, userID, changeReason string) (*domain.SectionRecord, error) {
	specs := presentFields(schema, fields)

	columns := []string{"project_id", "version", "created_by", "updated_by", "change_reason"}
	placeholders := []string{"$1::uuid", "1", "$2", "$2", "$3"}
	args := []any{projectID, userID, changeReason}
	for _, f := range specs {
		args = append(args, domain.EncodeStorage(fields[f.Name]))
		columns = append(columns, f.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d::text::%s", len(args), f.Type.SQLType()))
	}

	query := `INSERT INTO ` + schema.Table + ` (` + strings.Join(columns, ", ") + `)
		VALUES (` + strings.Join(placeholders, ", ") + `)
		RETURNING ` + selectSectionColumns(schema)

	row, err := scanSectionRow(schema, r.db().QueryRow(ctx, query, args...))
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, fmt.Errorf("%w: %s record for project %s", apperrors.ErrDuplicate, schema.Table, projectID)
		}
		return nil, fmt.Errorf("failed to insert %s record for project %s: %w", schema.Table, projectID, err)
	}
	return mapping.ToDomainSectionRecord(schema, row)
}

// UpdateFields writes the given fields guarded by the expected version.
func (r *PgxSectionRecordRepository) UpdateFields(ctx context.Context, schema *domain.SectionSchema, recordID int64, expectedVersion int, fields domain.FieldValues, userID, changeReason string) (*domain.SectionRecord, error) {
	specs := presentFields(schema, fields)
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields supplied", apperrors.ErrValidation)
	}

	args := []any{recordID, expectedVersion, userID, changeReason}
	sets := make([]string, 0, len(specs)+5)
	for _, f := range specs {
		args = append(args, domain.EncodeStorage(fields[f.Name]))
		sets = append(sets, fmt.Sprintf("%s = $%d::text::%s", f.Name, len(args), f.Type.SQLType()))
	}
	sets = append(sets,
		"updated_by = $3",
		"change_reason = $4",
		"updated_at = NOW()",
		"last_modified = NOW()",
		"version = version + 1",
	)

	query := `UPDATE ` + schema.Table + `
		SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1 AND version = $2
		RETURNING ` + selectSectionColumns(schema)

	row, err := scanSectionRow(schema, r.db().QueryRow(ctx, query, args...))
	if err == nil {
		return mapping.ToDomainSectionRecord(schema, row)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update %s record %d: %w", schema.Table, recordID, err)
	}

	var currentVersion int
	err = r.db().QueryRow(ctx, `SELECT version FROM `+schema.Table+` WHERE id = $1`, recordID).Scan(&currentVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s record %d", apperrors.ErrNotFound, schema.Table, recordID)
		}
		return nil, fmt.Errorf("failed to check version of %s record %d: %w", schema.Table, recordID, err)
	}
	return nil, fmt.Errorf("%w: %s record %d is at version %d, expected %d",
		apperrors.ErrVersionConflict, schema.Table, recordID, currentVersion, expectedVersion)
}

// DeleteByProjectID removes every record of the project.
func (r *PgxSectionRecordRepository) DeleteByProjectID(ctx context.Context, schema *domain.SectionSchema, projectID string) ([]domain.SectionRecord, error) {
	query := `DELETE FROM ` + schema.Table + `
		WHERE project_id = $1::uuid
		RETURNING ` + selectSectionColumns(schema)

	rows, err := r.db().Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s records for project %s: %w", schema.Table, projectID, err)
	}
	defer rows.Close()

	var deleted []domain.SectionRecord
	for rows.Next() {
		row, err := scanSectionRow(schema, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deleted %s record: %w", schema.Table, err)
		}
		rec, err := mapping.ToDomainSectionRecord(schema, row)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete %s records for project %s: %w", schema.Table, projectID, err)
	}
	return deleted, nil
}

func selectSectionColumns(schema *domain.SectionSchema) string {
	var b strings.Builder
	b.WriteString(selectSectionBookkeeping)
	for _, f := range schema.Fields {
		b.WriteString(", ")
		b.WriteString(f.Name)
		b.WriteString("::text AS ")
		b.WriteString(f.Name)
	}
	return b.String()
}

// presentFields returns the FieldSpecs of the allow-listed keys in fields, in schema order.
func presentFields(schema *domain.SectionSchema, fields domain.FieldValues) []domain.FieldSpec {
	specs := make([]domain.FieldSpec, 0, len(fields))
	for _, f := range schema.Fields {
		if _, ok := fields[f.Name]; ok {
			specs = append(specs, f)
		}
	}
	return specs
}

// scanSectionRow scans a row selected with selectSectionColumns.
func scanSectionRow(schema *domain.SectionSchema, row pgx.Row) (models.SectionRow, error) {
	var m models.SectionRow
	values := make([]*string, len(schema.Fields))
	dest := []any{
		&m.ID,
		&m.ProjectID,
		&m.Version,
		&m.CreatedBy,
		&m.UpdatedBy,
		&m.ChangeReason,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.LastModified,
	}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := row.Scan(dest...); err != nil {
		return models.SectionRow{}, err
	}
	m.Values = make(map[string]*string, len(schema.Fields))
	for i, f := range schema.Fields {
		m.Values[f.Name] = values[i]
	}
	return m, nil
}
