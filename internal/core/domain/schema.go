package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/shopspring/decimal"
)

// FieldType is the storage type of a section field.
type FieldType string

const (
	FieldNumeric FieldType = "numeric"
	FieldInteger FieldType = "integer"
	FieldText    FieldType = "text"
	FieldDate    FieldType = "date"
)

const dateLayout = "2006-01-02"

// SQLType returns the Postgres type the field is cast to on write.
func (t FieldType) SQLType() string {
	switch t {
	case FieldNumeric:
		return "numeric"
	case FieldInteger:
		return "integer"
	case FieldDate:
		return "date"
	default:
		return "text"
	}
}

// FieldSpec describes one allow-listed column.
type FieldSpec struct {
	Name string
	Type FieldType
}

// SectionSchema describes one financial data section and the table backing it.
// Only fields listed here can ever be written.
type SectionSchema struct {
	// Section is the URL slug, e.g. "balance-sheet".
	Section string
	// Table is the backing table, e.g. "balance_sheet_data".
	Table  string
	Label  string
	Fields []FieldSpec

	// Derive computes dependent fields from a merged record. Optional.
	Derive func(merged FieldValues) FieldValues
	// Validate checks coerced values beyond their type. Optional.
	Validate func(values FieldValues) error

	index map[string]FieldSpec
}

func newSectionSchema(section, table, label string, fields []FieldSpec) *SectionSchema {
	s := &SectionSchema{
		Section: section,
		Table:   table,
		Label:   label,
		Fields:  fields,
		index:   make(map[string]FieldSpec, len(fields)),
	}
	for _, f := range fields {
		s.index[f.Name] = f
	}
	return s
}

// Allows reports whether name is an updatable field of the section.
func (s *SectionSchema) Allows(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Field returns the FieldSpec for name.
func (s *SectionSchema) Field(name string) (FieldSpec, bool) {
	f, ok := s.index[name]
	return f, ok
}

// FieldNames returns the allow-listed field names in declaration order.
func (s *SectionSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Filter drops every key outside the allow-list.
func (s *SectionSchema) Filter(values FieldValues) FieldValues {
	out := make(FieldValues, len(values))
	for k, v := range values {
		if s.Allows(k) {
			out[k] = v
		}
	}
	return out
}

// Normalize rewrites date fields to YYYY-MM-DD in place, so a datetime such as
// "2030-06-30T00:00:00.000Z" compares equal to the stored date. Invalid dates are left for Coerce.
func (s *SectionSchema) Normalize(values FieldValues) FieldValues {
	for k, v := range values {
		spec, ok := s.index[k]
		if !ok || spec.Type != FieldDate {
			continue
		}
		if d, err := coerceValue(FieldDate, v); err == nil {
			values[k] = d
		}
	}
	return values
}

// Coerce converts client supplied values into their storage representation
// (decimal.Decimal, int64, string or nil). Unknown keys are dropped.
func (s *SectionSchema) Coerce(values FieldValues) (FieldValues, error) {
	out := make(FieldValues, len(values))
	invalid := map[string]string{}
	for k, v := range values {
		spec, ok := s.index[k]
		if !ok {
			continue
		}
		cv, err := coerceValue(spec.Type, v)
		if err != nil {
			invalid[k] = err.Error()
			continue
		}
		out[k] = cv
	}
	if len(invalid) > 0 {
		return nil, &apperrors.ValidationError{Fields: invalid}
	}
	if s.Validate != nil {
		if err := s.Validate(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func coerceValue(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case FieldNumeric:
		d, ok, err := toDecimal(v)
		if err != nil || !ok {
			return nil, err
		}
		return d, nil
	case FieldInteger:
		d, ok, err := toDecimal(v)
		if err != nil || !ok {
			return nil, err
		}
		if !d.IsInteger() {
			return nil, fmt.Errorf("must be a whole number")
		}
		return d.IntPart(), nil
	case FieldDate:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a date string")
		}
		str = strings.TrimSpace(str)
		if str == "" {
			return nil, nil
		}
		if len(str) > len(dateLayout) {
			str = str[:len(dateLayout)]
		}
		if _, err := time.Parse(dateLayout, str); err != nil {
			return nil, fmt.Errorf("must be a date in YYYY-MM-DD format")
		}
		return str, nil
	default:
		switch tv := v.(type) {
		case string:
			return tv, nil
		case json.Number:
			return tv.String(), nil
		case decimal.Decimal:
			return tv.String(), nil
		case float64:
			return strconv.FormatFloat(tv, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(tv), nil
		case int64:
			return strconv.FormatInt(tv, 10), nil
		default:
			return nil, fmt.Errorf("must be a string")
		}
	}
}

// toDecimal converts a client value to a decimal. ok is false for empty strings.
func toDecimal(v any) (decimal.Decimal, bool, error) {
	switch tv := v.(type) {
	case decimal.Decimal:
		return tv, true, nil
	case json.Number:
		d, err := decimal.NewFromString(tv.String())
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("must be a number")
		}
		return d, true, nil
	case float64:
		return decimal.NewFromFloat(tv), true, nil
	case float32:
		return decimal.NewFromFloat32(tv), true, nil
	case int:
		return decimal.NewFromInt(int64(tv)), true, nil
	case int32:
		return decimal.NewFromInt32(tv), true, nil
	case int64:
		return decimal.NewFromInt(tv), true, nil
	case string:
		str := strings.TrimSpace(tv)
		if str == "" {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(str)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("must be a number")
		}
		return d, true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("must be a number")
	}
}

// EncodeStorage renders a coerced value as the text parameter bound in SQL.
func EncodeStorage(v any) *string {
	var s string
	switch tv := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		s = tv.String()
	case int64:
		s = strconv.FormatInt(tv, 10)
	case string:
		s = tv
	default:
		s = fmt.Sprint(tv)
	}
	return &s
}

// DecodeStorage parses a column read back as text.
func DecodeStorage(t FieldType, raw *string) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case FieldNumeric:
		d, err := decimal.NewFromString(*raw)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q: %w", *raw, err)
		}
		return d, nil
	case FieldInteger:
		n, err := strconv.ParseInt(*raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer value %q: %w", *raw, err)
		}
		return n, nil
	default:
		return *raw, nil
	}
}

// numberOf reads a field as a decimal, treating missing or non-numeric values as zero.
func numberOf(values FieldValues, key string) decimal.Decimal {
	d, ok, err := toDecimal(values[key])
	if err != nil || !ok {
		return decimal.Zero
	}
	return d
}

func sumOf(values FieldValues, keys ...string) decimal.Decimal {
	total := decimal.Zero
	for _, k := range keys {
		total = total.Add(numberOf(values, k))
	}
	return total
}
