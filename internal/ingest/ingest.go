// Package ingest reads lead files (CSV or XLSX) into typed records. Every
// physical data row becomes exactly one Record; rows that cannot be decoded
// are kept as invalid records carrying a ValidationError reason.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// ValidationError is a row-level problem. It never escalates past the row.
type ValidationError struct {
	RowIndex int
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowIndex, e.Reason)
}

// Dataset is a fully read input file.
type Dataset struct {
	Path string
	// Headers is the union of every row's columns in first-seen order:
	// the header row, then synthesized column_<n> names for wider rows.
	Headers []string
	Records []model.Record
	Errors  []*ValidationError
	// Digest is the hex sha256 of the raw input bytes.
	Digest string
}

// Options configures reading.
type Options struct {
	// Delimiter overrides ',' for CSV input.
	Delimiter rune
	// SheetName selects an XLSX sheet; the first sheet is used otherwise.
	SheetName string
}

// ReadFile reads path, dispatching on its extension.
func ReadFile(ctx context.Context, path string, opts Options) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		ds, err = ReadXLSX(ctx, path, opts)
	case ".csv", ".tsv", ".txt", "":
		if strings.EqualFold(filepath.Ext(path), ".tsv") && opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		ds, err = ReadCSVFile(ctx, path, opts)
	default:
		return nil, resilience.NewFatalConfigError(fmt.Sprintf("unsupported input type %q", filepath.Ext(path)), nil)
	}
	if err != nil {
		return nil, err
	}
	ds.Path = path
	return ds, nil
}

// builder turns raw header/row slices into a Dataset.
type builder struct {
	ds      *Dataset
	seen    map[string]bool
	columns []string
	hasher  hash.Hash
}

func newBuilder() *builder {
	return &builder{
		ds:     &Dataset{},
		seen:   make(map[string]bool),
		hasher: sha256.New(),
	}
}

// setHeader records the header row. Blank names become column_<n>; repeated
// names get a _<k> suffix so no column's data is shadowed.
func (b *builder) setHeader(raw []string) error {
	if len(raw) == 0 {
		return resilience.NewFatalConfigError("input has no header row", nil)
	}
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(strings.ToValidUTF8(h, "\uFFFD"))
		if h == "" {
			h = syntheticColumn(i)
		}
		b.addColumn(h)
	}
	return nil
}

func (b *builder) addColumn(name string) string {
	unique := name
	for k := 2; b.seen[unique]; k++ {
		unique = fmt.Sprintf("%s_%d", name, k)
	}
	b.seen[unique] = true
	b.columns = append(b.columns, unique)
	b.ds.Headers = append(b.ds.Headers, unique)
	return unique
}

// addRow appends one data row. Fields beyond the known columns extend the
// column union.
func (b *builder) addRow(values []string) {
	idx := len(b.ds.Records)
	for len(b.columns) < len(values) {
		b.addColumn(syntheticColumn(len(b.columns)))
	}

	reason := ""
	clean := make([]string, len(values))
	for i, v := range values {
		if !utf8.ValidString(v) {
			reason = fmt.Sprintf("invalid UTF-8 in column %q", b.columns[i])
			v = strings.ToValidUTF8(v, "\uFFFD")
		}
		clean[i] = v
	}

	if reason != "" {
		b.invalid(idx, clean, reason)
		return
	}
	b.ds.Records = append(b.ds.Records, model.NewRecord(idx, b.columns, clean))
}

// invalid appends a row that failed decoding.
func (b *builder) invalid(idx int, values []string, reason string) {
	b.ds.Records = append(b.ds.Records, model.NewInvalidRecord(idx, b.columns, values, reason))
	b.ds.Errors = append(b.ds.Errors, &ValidationError{RowIndex: idx, Reason: reason})
}

func (b *builder) finish() *Dataset {
	b.ds.Digest = hex.EncodeToString(b.hasher.Sum(nil))
	return b.ds
}

func syntheticColumn(i int) string {
	return fmt.Sprintf("column_%d", i+1)
}

func wrapCtx(err error, what string) error {
	return eris.Wrapf(err, "ingest: %s cancelled", what)
}
