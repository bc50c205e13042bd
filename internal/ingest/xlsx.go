package ingest

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads the selected sheet of a workbook. The first row is the
// header; fully blank rows are skipped.
func ReadXLSX(ctx context.Context, path string, opts Options) (*Dataset, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: hash xlsx")
	}
	_, _ = b.hasher.Write(raw)

	headerSet := false
	for _, row := range sheet.Rows {
		if ctx.Err() != nil {
			return nil, wrapCtx(ctx.Err(), "xlsx read")
		}
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		if !headerSet {
			if err := b.setHeader(cells); err != nil {
				return nil, err
			}
			headerSet = true
			continue
		}
		b.addRow(cells)
	}
	if !headerSet {
		return nil, b.setHeader(nil)
	}

	return b.finish(), nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	// Trailing empty cells are formatting residue, not data.
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return cells[:n]
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
