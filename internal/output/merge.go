// Package output merges input columns with derived fields and writes the
// result CSV plus its run manifest.
package output

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadbatch/internal/fsutil"
	"github.com/sells-group/leadbatch/internal/model"
)

// Derived column names, in output order.
const (
	ColNormalizedCompany = "normalized_company_name"
	ColNormalizedLoc     = "normalized_location"
	ColFitScore          = "fit_score"
	ColScoreReasoning    = "score_reasoning"
	ColEnrichmentStatus  = "enrichment_status"
	ColEnrichmentSummary = "enrichment_summary"
	ColEnrichedIndustry  = "enriched_industry"
	ColEnrichedEmployees = "enriched_employee_count"
)

// BaseColumns are always appended after the input columns.
var BaseColumns = []string{ColNormalizedCompany, ColNormalizedLoc, ColFitScore, ColScoreReasoning}

// EnrichmentColumns follow BaseColumns when enrichment is enabled.
var EnrichmentColumns = []string{ColEnrichmentStatus, ColEnrichmentSummary, ColEnrichedIndustry, ColEnrichedEmployees}

// Layout is the resolved output header.
type Layout struct {
	Header []string
	// inputs[i] is the input column written at Header[i].
	inputs  []string
	derived []string
}

// NewLayout builds the header: every input column in first-seen order, then
// the derived columns. An input column whose name collides with a derived
// column is written as input_<name>.
func NewLayout(inputColumns []string, enrichment bool) Layout {
	derived := slices.Clone(BaseColumns)
	if enrichment {
		derived = append(derived, EnrichmentColumns...)
	}

	used := make(map[string]bool, len(inputColumns)+len(derived))
	for _, d := range derived {
		used[d] = true
	}

	l := Layout{derived: derived}
	seen := make(map[string]bool, len(inputColumns))
	for _, col := range inputColumns {
		if seen[col] {
			continue
		}
		seen[col] = true
		name := col
		for used[name] {
			name = "input_" + name
		}
		used[name] = true
		l.Header = append(l.Header, name)
		l.inputs = append(l.inputs, col)
	}
	l.Header = append(l.Header, derived...)
	return l
}

// Row renders one output row. Columns the record lacks are "".
func (l Layout) Row(r model.Row) []string {
	out := make([]string, 0, len(l.Header))
	for _, col := range l.inputs {
		out = append(out, r.Record.GetOr(col, ""))
	}
	for _, col := range l.derived {
		out = append(out, derivedValue(col, r.Derived))
	}
	return out
}

func derivedValue(col string, d model.DerivedFields) string {
	switch col {
	case ColNormalizedCompany:
		return d.NormalizedCompany
	case ColNormalizedLoc:
		return d.NormalizedLocation
	case ColFitScore:
		return strconv.Itoa(int(d.FitScore))
	case ColScoreReasoning:
		return d.ScoreReasoning
	}

	e := d.Enrichment
	if e == nil {
		e = &model.EnrichmentResult{Status: model.EnrichmentSkipped}
	}
	switch col {
	case ColEnrichmentStatus:
		return string(e.Status)
	case ColEnrichmentSummary:
		return e.Summary
	case ColEnrichedIndustry:
		return e.Industry
	case ColEnrichedEmployees:
		return e.EmployeeCount
	}
	return ""
}

// Write renders rows as CSV in row_index order, regardless of the order they
// are passed in.
func Write(w io.Writer, l Layout, rows []model.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(l.Header); err != nil {
		return eris.Wrap(err, "output: write header")
	}
	for _, r := range sortRows(rows) {
		if err := cw.Write(l.Row(r)); err != nil {
			return eris.Wrapf(err, "output: write row %d", r.Record.RowIndex)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "output: flush")
	}
	return nil
}

// WriteXLSX renders rows as a single-sheet workbook in row_index order.
func WriteXLSX(w io.Writer, l Layout, rows []model.Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("leads")
	if err != nil {
		return eris.Wrap(err, "output: add sheet")
	}
	addRow := func(values []string) {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	addRow(l.Header)
	for _, r := range sortRows(rows) {
		addRow(l.Row(r))
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "output: write xlsx")
	}
	return nil
}

// WriteFile writes rows to path atomically. A .xlsx path produces a workbook;
// anything else is CSV.
func WriteFile(path string, l Layout, rows []model.Row) error {
	write := Write
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		write = WriteXLSX
	}
	var buf bytes.Buffer
	if err := write(&buf, l, rows); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return eris.Wrapf(err, "output: write %s", path)
	}
	return nil
}

func sortRows(rows []model.Row) []model.Row {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b model.Row) int {
		return a.Record.RowIndex - b.Record.RowIndex
	})
	return sorted
}
