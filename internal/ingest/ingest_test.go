package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadbatch/internal/resilience"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadCSV_Basic(t *testing.T) {
	input := "Company,Email\nAcme,info@acme.com\nGlobex,sales@globex.com\n"
	ds, err := ReadCSV(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Company", "Email"}, ds.Headers)
	require.Len(t, ds.Records, 2)
	assert.Empty(t, ds.Errors)
	assert.Equal(t, 0, ds.Records[0].RowIndex)
	assert.Equal(t, 1, ds.Records[1].RowIndex)
	assert.Equal(t, "Globex", ds.Records[1].GetOr("Company", ""))
	assert.Len(t, ds.Digest, 64)
}

func TestReadCSV_BOMAndDuplicateHeaders(t *testing.T) {
	input := "\ufeffEmail,Email, ,Name\na@x.com,b@x.com,z,Ann\n"
	ds, err := ReadCSV(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Email", "Email_2", "column_3", "Name"}, ds.Headers)
	v, ok := ds.Records[0].Get("Email_2")
	assert.True(t, ok)
	assert.Equal(t, "b@x.com", v)
}

func TestReadCSV_RaggedRows(t *testing.T) {
	input := "a,b\n1\n1,2,3,4\n"
	ds, err := ReadCSV(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "column_3", "column_4"}, ds.Headers)
	require.Len(t, ds.Records, 2)

	_, ok := ds.Records[0].Get("b")
	assert.False(t, ok, "short row is sparse")
	assert.Equal(t, "4", ds.Records[1].GetOr("column_4", ""))
}

func TestReadCSV_InvalidUTF8IsRowLevel(t *testing.T) {
	input := "Company,City\nAcme,Boise\nBad\xff\xfeCo,Reno\nGlobex,Austin\n"
	ds, err := ReadCSV(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)

	require.Len(t, ds.Records, 3)
	require.Len(t, ds.Errors, 1)
	assert.Equal(t, 1, ds.Errors[0].RowIndex)
	assert.Contains(t, ds.Errors[0].Error(), "row 1: invalid UTF-8")

	bad := ds.Records[1]
	assert.False(t, bad.Valid())
	assert.Equal(t, "Reno", bad.GetOr("City", ""))
	assert.True(t, ds.Records[2].Valid())
}

func TestReadCSV_Delimiter(t *testing.T) {
	ds, err := ReadCSV(context.Background(), strings.NewReader("a|b\n1|2\n"), Options{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, "2", ds.Records[0].GetOr("b", ""))
}

func TestReadCSV_EmptyInputIsFatalConfig(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), Options{})
	require.Error(t, err)
	assert.True(t, resilience.IsFatalConfig(err))
}

func TestReadCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for range 1000 {
		sb.WriteString("1,2\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader(sb.String()), Options{})
	assert.Error(t, err)
}

func TestReadCSV_DigestStable(t *testing.T) {
	input := "a\n1\n"
	d1, err := ReadCSV(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)
	d2, err := ReadCSV(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)
	d3, err := ReadCSV(context.Background(), strings.NewReader("a\n2\n"), Options{})
	require.NoError(t, err)

	assert.Equal(t, d1.Digest, d2.Digest)
	assert.NotEqual(t, d1.Digest, d3.Digest)
}

func TestReadFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(path, []byte("Company\nAcme\n"), 0o644))

	ds, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, path, ds.Path)
	assert.Len(t, ds.Records, 1)
}

func TestReadFile_TSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.tsv")
	require.NoError(t, os.WriteFile(path, []byte("Company\tCity\nAcme\tBoise\n"), 0o644))

	ds, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Boise", ds.Records[0].GetOr("City", ""))
}

func TestReadFile_Unsupported(t *testing.T) {
	_, err := ReadFile(context.Background(), "leads.pdf", Options{})
	require.Error(t, err)
	assert.True(t, resilience.IsFatalConfig(err))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Company", "Email", ""},
		{"Acme", "info@acme.com"},
		{"", "", ""},
		{"Globex", "sales@globex.com", "extra"},
	})

	ds, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Company", "Email", "column_3"}, ds.Headers)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "Acme", ds.Records[0].GetOr("Company", ""))
	assert.Equal(t, 1, ds.Records[1].RowIndex)
	assert.Equal(t, "extra", ds.Records[1].GetOr("column_3", ""))
	assert.NotEmpty(t, ds.Digest)
}

func TestReadXLSX_MissingSheet(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"Company"}, {"Acme"}})
	_, err := ReadXLSX(context.Background(), path, Options{SheetName: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Nope" not found`)
}
