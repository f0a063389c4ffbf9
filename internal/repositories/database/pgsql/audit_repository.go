package pgsql

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	"github.com/SscSPs/fin_model_app/internal/models"
	"github.com/SscSPs/fin_model_app/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxAuditLogRepository implements the audit log repositories using pgx.
type PgxAuditLogRepository struct {
	BaseRepository
}

// newPgxAuditLogRepository creates a new repository for the audit log.
func newPgxAuditLogRepository(pool *pgxpool.Pool) portsrepo.AuditLogRepositoryWithTx {
	return &PgxAuditLogRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.AuditLogRepositoryWithTx = (*PgxAuditLogRepository)(nil)

const (
	auditTable = "data_entry_audit_log"

	selectAuditFields = `id, table_name, record_id, action, old_values, new_values, changed_fields,
		change_reason, user_id, host(ip_address) AS ip_address, change_timestamp`

	insertAuditQuery = `INSERT INTO ` + auditTable + ` (
			table_name, record_id, project_id, action, old_values, new_values,
			changed_fields, change_reason, user_id, ip_address
		) VALUES ($1, $2, $3::uuid, $4, $5, $6, $7, $8, $9, $10::inet)
		RETURNING id, change_timestamp`

	selectAuditStatFields = `action,
		COUNT(*) AS change_count,
		MIN(change_timestamp) AS first_change,
		MAX(change_timestamp) AS last_change,
		COUNT(DISTINCT user_id) AS unique_users`

	defaultAuditLimit = 50
)

// WithTx returns a repository bound to tx.
func (r *PgxAuditLogRepository) WithTx(tx pgx.Tx) portsrepo.AuditLogRepositoryFacade {
	return &PgxAuditLogRepository{BaseRepository: r.withTx(tx)}
}

// Create appends an entry and fills its ID and timestamp.
func (r *PgxAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLogEntry, projectID string) error {
	oldValues, err := mapping.EncodeJSONMap(entry.OldValues)
	if err != nil {
		return fmt.Errorf("failed to encode old values: %w", err)
	}
	newValues, err := mapping.EncodeJSONMap(entry.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode new values: %w", err)
	}
	changed := entry.ChangedFields
	if changed == nil {
		changed = []string{}
	}

	err = r.db().QueryRow(ctx, insertAuditQuery,
		entry.TableName,
		entry.RecordID,
		nullableString(projectID),
		string(entry.Action),
		oldValues,
		newValues,
		changed,
		nullableString(entry.ChangeReason),
		nullableString(entry.UserID),
		normalizeIP(entry.IPAddress),
	).Scan(&entry.ID, &entry.ChangeTimestamp)
	if err != nil {
		return fmt.Errorf("failed to write audit entry for %s/%s: %w", entry.TableName, entry.RecordID, err)
	}
	entry.IPAddress = normalizeIP(entry.IPAddress)
	return nil
}

// DeleteByIDs removes entries; used only by retention cleanup.
func (r *PgxAuditLogRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db().Exec(ctx, `DELETE FROM `+auditTable+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %d audit entries: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

// FindByID retrieves a single audit entry.
func (r *PgxAuditLogRepository) FindByID(ctx context.Context, id int64) (*domain.AuditLogEntry, error) {
	query := `SELECT ` + selectAuditFields + ` FROM ` + auditTable + ` WHERE id = $1`
	rows, err := r.db().Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find audit entry %d: %w", id, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.AuditLogEntry])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: audit entry %d", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find audit entry %d: %w", id, err)
	}
	entry, err := mapping.ToDomainAuditLogEntry(m)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByRecord returns the entries of one record, newest first.
func (r *PgxAuditLogRepository) ListByRecord(ctx context.Context, tableName, recordID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	q := newAuditQuery("table_name = $1 AND record_id = $2", tableName, recordID)
	return r.list(ctx, q, filter)
}

// ListBySection returns the entries of a project's records in one section table, newest first.
func (r *PgxAuditLogRepository) ListBySection(ctx context.Context, tableName, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	where, err := sectionScope(tableName)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, newAuditQuery(where, tableName, projectID), filter)
}

// ListFieldHistory returns the entries of a project's section that changed field.
func (r *PgxAuditLogRepository) ListFieldHistory(ctx context.Context, tableName, projectID, field string, limit int) ([]domain.AuditLogEntry, error) {
	where, err := sectionScope(tableName)
	if err != nil {
		return nil, err
	}
	q := newAuditQuery(where+" AND changed_fields @> ARRAY[$3]::text[]", tableName, projectID, field)
	return r.list(ctx, q, domain.AuditHistoryFilter{Limit: limit})
}

// ListByProject returns the entries of every record belonging to the project, newest first.
func (r *PgxAuditLogRepository) ListByProject(ctx context.Context, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	return r.list(ctx, newAuditQuery(projectScope(), projectID), filter)
}

// StatsByRecord aggregates the entries of one record per action.
func (r *PgxAuditLogRepository) StatsByRecord(ctx context.Context, tableName, recordID string) ([]domain.AuditStat, error) {
	query := `SELECT NULL::text AS table_name, ` + selectAuditStatFields + `
		FROM ` + auditTable + `
		WHERE table_name = $1 AND record_id = $2
		GROUP BY action
		ORDER BY action`
	return r.stats(ctx, query, tableName, recordID)
}

// StatsBySection aggregates the entries of a project's section per action.
func (r *PgxAuditLogRepository) StatsBySection(ctx context.Context, tableName, projectID string) ([]domain.AuditStat, error) {
	where, err := sectionScope(tableName)
	if err != nil {
		return nil, err
	}
	query := `SELECT NULL::text AS table_name, ` + selectAuditStatFields + `
		FROM ` + auditTable + `
		WHERE ` + where + `
		GROUP BY action
		ORDER BY action`
	return r.stats(ctx, query, tableName, projectID)
}

// StatsByProject aggregates the entries of a project per table and action.
func (r *PgxAuditLogRepository) StatsByProject(ctx context.Context, projectID string) ([]domain.AuditStat, error) {
	query := `SELECT table_name, ` + selectAuditStatFields + `
		FROM ` + auditTable + `
		WHERE ` + projectScope() + `
		GROUP BY table_name, action
		ORDER BY table_name, action`
	return r.stats(ctx, query, projectID)
}

// ListOlderThan returns up to limit entries written before the cutoff, oldest first.
func (r *PgxAuditLogRepository) ListOlderThan(ctx context.Context, before time.Time, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	query := `SELECT ` + selectAuditFields + `
		FROM ` + auditTable + `
		WHERE change_timestamp < $1
		ORDER BY change_timestamp ASC, id ASC
		LIMIT $2`
	rows, err := r.db().Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries older than %s: %w", before.Format(time.RFC3339), err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.AuditLogEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entries: %w", err)
	}
	return mapping.ToDomainAuditLogEntries(ms)
}

// auditQuery accumulates a WHERE clause and its positional arguments.
type auditQuery struct {
	where []string
	args  []any
}

func newAuditQuery(where string, args ...any) *auditQuery {
	return &auditQuery{where: []string{where}, args: args}
}

func (q *auditQuery) add(clause string, args ...any) {
	for _, a := range args {
		q.args = append(q.args, a)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(q.args)), 1)
	}
	q.where = append(q.where, clause)
}

func (r *PgxAuditLogRepository) list(ctx context.Context, q *auditQuery, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	if filter.Action != "" {
		q.add("action = ?", string(filter.Action))
	}
	if filter.Before != nil {
		q.add("(change_timestamp, id) < (?, ?)", filter.Before.Timestamp, filter.Before.ID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	args := append(q.args, limit, max(filter.Offset, 0))

	query := fmt.Sprintf(`SELECT %s
		FROM %s
		WHERE %s
		ORDER BY change_timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		selectAuditFields, auditTable, strings.Join(q.where, " AND "), len(args)-1, len(args))

	rows, err := r.db().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.AuditLogEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entries: %w", err)
	}
	return mapping.ToDomainAuditLogEntries(ms)
}

func (r *PgxAuditLogRepository) stats(ctx context.Context, query string, args ...any) ([]domain.AuditStat, error) {
	rows, err := r.db().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit entries: %w", err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.AuditStat])
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit stats: %w", err)
	}
	return mapping.ToDomainAuditStats(ms), nil
}

// sectionScope matches entries of a section table ($1) for a project ($2).
// Entries written before project_id was recorded are matched through the live rows.
func sectionScope(tableName string) (string, error) {
	if _, ok := domain.SectionByTable(tableName); !ok {
		return "", apperrors.NewValidationError("table", fmt.Sprintf("unknown section table %q", tableName))
	}
	return `table_name = $1 AND (project_id = $2::uuid OR record_id IN (SELECT id::text FROM ` + tableName + ` WHERE project_id = $2::uuid))`, nil
}

// projectScope matches every entry of the project ($1).
func projectScope() string {
	parts := make([]string, 0, len(domain.SectionTables())+1)
	for _, table := range domain.SectionTables() {
		parts = append(parts, fmt.Sprintf(`SELECT '%s', id::text FROM %s WHERE project_id = $1::uuid`, table, table))
	}
	parts = append(parts, `SELECT 'calculation_runs', id::text FROM calculation_runs WHERE project_id = $1::uuid`)
	return `(project_id = $1::uuid OR (table_name, record_id) IN (` + strings.Join(parts, " UNION ALL ") + `))`
}

// normalizeIP drops placeholders and unparseable addresses.
func normalizeIP(ip *string) *string {
	if ip == nil {
		return nil
	}
	s := strings.TrimSpace(*ip)
	if s == "" || strings.EqualFold(s, domain.UnknownIPAddress) {
		return nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil
	}
	out := addr.String()
	return &out
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
