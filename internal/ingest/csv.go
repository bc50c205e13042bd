package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// ReadCSVFile opens and reads a CSV file.
func ReadCSVFile(ctx context.Context, path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(ctx, f, opts)
}

// ReadCSV reads a CSV stream with a header row. Rows may have any number of
// fields. A malformed row becomes an invalid record rather than failing the
// read.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (*Dataset, error) {
	b := newBuilder()
	reader := csv.NewReader(io.TeeReader(r, b.hasher))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, b.setHeader(nil)
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read header")
	}
	if err := b.setHeader(header); err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			return nil, wrapCtx(ctx.Err(), "csv read")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, eris.Wrap(err, "ingest: read row")
			}
			b.invalid(len(b.ds.Records), record, "malformed CSV: "+pe.Err.Error())
			continue
		}
		b.addRow(record)
	}

	return b.finish(), nil
}
