package domain

import "time"

// AuditFields holds the bookkeeping columns shared by every section record.
type AuditFields struct {
	Version      int       `json:"version"`
	CreatedBy    string    `json:"createdBy"`
	UpdatedBy    string    `json:"updatedBy"`
	ChangeReason string    `json:"changeReason"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastModified time.Time `json:"lastModified"`
}

// FieldValues maps column names to values. Values are nil, string, int64 or decimal.Decimal
// once read from storage, and whatever the JSON decoder produced when coming from a client.
type FieldValues map[string]any

// Clone returns a shallow copy.
func (f FieldValues) Clone() FieldValues {
	if f == nil {
		return nil
	}
	out := make(FieldValues, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Subset returns a copy restricted to keys.
func (f FieldValues) Subset(keys []string) FieldValues {
	out := make(FieldValues, len(keys))
	for _, k := range keys {
		if v, ok := f[k]; ok {
			out[k] = v
		}
	}
	return out
}
