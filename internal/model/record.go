// Package model defines the lead records, derived fields, batches, and run
// ledger entries shared across the pipeline.
package model

// Record is one input row. It is immutable once read: callers only get copies
// of its column list and look values up through Get/GetOr.
type Record struct {
	RowIndex int

	columns []string
	fields  map[string]string
	invalid string
}

// NewRecord builds a Record from parallel column/value slices. Values beyond
// len(columns) are ignored; missing values are simply absent (sparse row).
func NewRecord(rowIndex int, columns, values []string) Record {
	r := Record{
		RowIndex: rowIndex,
		columns:  make([]string, 0, len(columns)),
		fields:   make(map[string]string, len(columns)),
	}
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		if _, dup := r.fields[col]; dup {
			continue
		}
		r.columns = append(r.columns, col)
		r.fields[col] = values[i]
	}
	return r
}

// NewInvalidRecord builds a Record that failed row-level validation. It keeps
// whatever fields could be read so the output row still carries them.
func NewInvalidRecord(rowIndex int, columns, values []string, reason string) Record {
	r := NewRecord(rowIndex, columns, values)
	r.invalid = reason
	return r
}

// WithInvalid returns a copy of r marked invalid with the given reason.
func (r Record) WithInvalid(reason string) Record {
	r.invalid = reason
	return r
}

// Get returns the raw value for col and whether the column was present.
func (r Record) Get(col string) (string, bool) {
	v, ok := r.fields[col]
	return v, ok
}

// GetOr returns the raw value for col, or def when the column is absent.
func (r Record) GetOr(col, def string) string {
	if v, ok := r.fields[col]; ok {
		return v
	}
	return def
}

// Columns returns the record's columns in input order.
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of populated columns.
func (r Record) Len() int {
	return len(r.columns)
}

// Invalid returns the validation failure reason, or "" for a valid record.
func (r Record) Invalid() string {
	return r.invalid
}

// Valid reports whether the record passed row-level validation.
func (r Record) Valid() bool {
	return r.invalid == ""
}
