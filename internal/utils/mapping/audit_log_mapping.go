package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/models"
)

// ToDomainAuditLogEntry converts a model AuditLogEntry to a domain AuditLogEntry
func ToDomainAuditLogEntry(m models.AuditLogEntry) (domain.AuditLogEntry, error) {
	oldValues, err := DecodeJSONMap(m.OldValues)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("old_values of audit entry %d: %w", m.ID, err)
	}
	newValues, err := DecodeJSONMap(m.NewValues)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("new_values of audit entry %d: %w", m.ID, err)
	}
	changed := m.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	return domain.AuditLogEntry{
		ID:              m.ID,
		TableName:       m.TableName,
		RecordID:        m.RecordID,
		Action:          domain.AuditAction(m.Action),
		OldValues:       oldValues,
		NewValues:       newValues,
		ChangedFields:   changed,
		ChangeReason:    derefString(m.ChangeReason),
		UserID:          derefString(m.UserID),
		IPAddress:       m.IPAddress,
		ChangeTimestamp: m.ChangeTimestamp,
	}, nil
}

// ToDomainAuditLogEntries converts a slice of model entries.
func ToDomainAuditLogEntries(ms []models.AuditLogEntry) ([]domain.AuditLogEntry, error) {
	out := make([]domain.AuditLogEntry, 0, len(ms))
	for _, m := range ms {
		e, err := ToDomainAuditLogEntry(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ToDomainAuditStats converts aggregated stat rows.
func ToDomainAuditStats(ms []models.AuditStat) []domain.AuditStat {
	out := make([]domain.AuditStat, 0, len(ms))
	for _, m := range ms {
		out = append(out, domain.AuditStat{
			TableName:   derefString(m.TableName),
			Action:      domain.AuditAction(m.Action),
			Count:       m.Count,
			FirstChange: m.FirstChange,
			LastChange:  m.LastChange,
			UniqueUsers: m.UniqueUsers,
		})
	}
	return out
}

// EncodeJSONMap marshals a snapshot, storing nil as {}.
func EncodeJSONMap(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// DecodeJSONMap unmarshals a JSONB column, keeping numbers as json.Number.
func DecodeJSONMap(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
