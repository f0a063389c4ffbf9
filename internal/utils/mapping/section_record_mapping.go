package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/models"
	"github.com/shopspring/decimal"
)

// ToDomainSectionRecord types a raw section row using the section schema.
func ToDomainSectionRecord(schema *domain.SectionSchema, m models.SectionRow) (*domain.SectionRecord, error) {
	fields := make(domain.FieldValues, len(schema.Fields))
	for _, f := range schema.Fields {
		v, err := domain.DecodeStorage(f.Type, m.Values[f.Name])
		if err != nil {
			return nil, fmt.Errorf("field %s of %s: %w", f.Name, schema.Table, err)
		}
		fields[f.Name] = v
	}
	return &domain.SectionRecord{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Section:     schema.Section,
		Fields:      fields,
		AuditFields: ToDomainAuditFields(m.AuditFields),
	}, nil
}

// ToJSONValues converts field values to a JSON friendly map. Decimals become json.Number
// so they serialize as numbers rather than quoted strings.
func ToJSONValues(values domain.FieldValues) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case decimal.Decimal:
			out[k] = json.Number(tv.String())
		default:
			out[k] = tv
		}
	}
	return out
}

// ToSnapshot builds the audit snapshot of a record.
func ToSnapshot(r *domain.SectionRecord) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	snap := ToJSONValues(r.Fields)
	snap["id"] = r.ID
	snap["project_id"] = r.ProjectID
	snap["version"] = r.Version
	return snap
}
