package ingest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"

	"adaptiveclean/internal/dataset"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"people.csv", FormatCSV, false},
		{"PEOPLE.CSV", FormatCSV, false},
		{"dump.json", FormatJSON, false},
		{"book.xlsx", FormatXLSX, false},
		{"page.htm", FormatHTML, false},
		{"archive.zip", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCSVInfersColumns(t *testing.T) {
	in := "id,name,amount,,name\n1,ada,\"1,200.5\",x,a2\n2,bob,NA,y,b2\n\n3,,7,z\n"
	d, err := ParseCSV(strings.NewReader(in), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "amount", "column_4", "name_2"}, d.Schema().Names())
	require.Equal(t, 3, d.Len(), "blank lines are skipped")

	f, ok := d.Cell(0, 2).Float()
	require.True(t, ok)
	assert.InDelta(t, 1200.5, f, 1e-9)
	assert.True(t, d.Cell(1, 2).IsNull())
	assert.True(t, d.Cell(2, 1).IsNull())
	assert.True(t, d.Cell(2, 4).IsNull(), "short rows are padded")

	s, ok := d.Cell(0, 1).Str()
	require.True(t, ok)
	assert.Equal(t, "ada", s)
	assert.Equal(t, []int{0, 2}, d.NumericColumns())
}

func TestParseCSVSemicolonAndBOM(t *testing.T) {
	d, err := ParseCSV(strings.NewReader("\ufeffa;b\n1;x\n"), ';')
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.Schema().Names())
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), 0)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseJSON(t *testing.T) {
	t.Run("records", func(t *testing.T) {
		d, err := ParseJSON(strings.NewReader(`[{"a": 1, "b": "x"}, {"a": 2.5}]`))
		require.NoError(t, err)
		assert.Equal(t, 2, d.Len())
		assert.ElementsMatch(t, []string{"a", "b"}, d.Schema().Names())
		j := d.Schema().Index("b")
		assert.True(t, d.Cell(1, j).IsNull())
	})
	t.Run("document", func(t *testing.T) {
		src := dataset.FromRecords([]map[string]any{{"a": 1.0}, {"a": 2.0}})
		b, err := src.MarshalJSON()
		require.NoError(t, err)
		d, err := ParseJSON(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, 2, d.Len())
		assert.True(t, d.Cell(1, 0).Equal(dataset.Number(2)))
	})
	t.Run("empty", func(t *testing.T) {
		_, err := ParseJSON(strings.NewReader(" [] "))
		assert.ErrorIs(t, err, ErrEmptyInput)
		_, err = ParseJSON(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := ParseJSON(strings.NewReader(`[{"a":`))
		assert.Error(t, err)
	})
}

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Quarterly revenue"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"sector", "company", "revenue"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"Tech", "A Corp", 10}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A5", &[]any{"Retail", "B Corp", 2.5}))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Notes", "A1", &[]any{"note", "author"}))
	require.NoError(t, f.SetSheetRow("Notes", "A2", &[]any{"checked", "ada"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSXSkipsTitleRows(t *testing.T) {
	d, err := ParseXLSX(bytes.NewReader(workbook(t)), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sector", "company", "revenue"}, d.Schema().Names())
	require.Equal(t, 2, d.Len())
	f, ok := d.Cell(1, 2).Float()
	require.True(t, ok)
	assert.InDelta(t, 2.5, f, 1e-9)
}

func TestParseXLSXNamedSheet(t *testing.T) {
	d, err := ParseXLSX(bytes.NewReader(workbook(t)), "Notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"note", "author"}, d.Schema().Names())

	_, err = ParseXLSX(bytes.NewReader(workbook(t)), "Missing")
	assert.Error(t, err)
}

func TestParseHTML(t *testing.T) {
	page := `<html><body>
<table><tr><td>layout</td></tr></table>
<table>
  <thead><tr><th>Code</th><th>Price</th></tr></thead>
  <tbody>
    <tr><td>BBOB</td><td>1.5</td></tr>
    <tr><td> IBSD </td><td></td></tr>
  </tbody>
</table>
</body></html>`

	d, err := ParseHTML(strings.NewReader(page), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Code", "Price"}, d.Schema().Names())
	require.Equal(t, 2, d.Len())
	s, _ := d.Cell(1, 0).Str()
	assert.Equal(t, "IBSD", s)
	assert.True(t, d.Cell(1, 1).IsNull())

	_, err = ParseHTML(strings.NewReader(page), 5)
	assert.Error(t, err)
	_, err = ParseHTML(strings.NewReader("<p>no tables</p>"), 0)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestLoadComputesChecksum(t *testing.T) {
	body := "a,b\n1,2\n"
	up, err := Load("dir/data.csv", strings.NewReader(body), Options{})
	require.NoError(t, err)
	assert.Equal(t, "data.csv", up.Name)
	assert.Equal(t, FormatCSV, up.Format)
	assert.Equal(t, len(body), up.Size)
	assert.Len(t, up.Checksum, 64)
	assert.Equal(t, Checksum([]byte(body)), up.Checksum)
	assert.NotEqual(t, Checksum([]byte("a,b\n1,3\n")), up.Checksum)

	_, err = Load("data.bin", strings.NewReader(body), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, os.WriteFile(path, workbook(t), 0o644))
	up, err := LoadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, up.Format)
	assert.Equal(t, 2, up.Data.Len())
}

func TestImportSheetFromAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-1/values/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Data!A1:C3","majorDimension":"ROWS",
"values":[["department","head","budget"],["Ops","ada","100"],["R&D","bob"]]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := NewSheetsClient(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	d, err := ImportSheet(ctx, client, "sheet-1", "Data!A1:C3")
	require.NoError(t, err)
	assert.Equal(t, []string{"department", "head", "budget"}, d.Schema().Names())
	require.Equal(t, 2, d.Len())
	assert.True(t, d.Cell(1, 2).IsNull())
	f, ok := d.Cell(0, 2).Float()
	require.True(t, ok)
	assert.Equal(t, 100.0, f)
}

type emptySheet struct{}

func (emptySheet) ReadRange(context.Context, string, string) ([][]any, error) { return nil, nil }

func TestImportSheetEmpty(t *testing.T) {
	_, err := ImportSheet(context.Background(), emptySheet{}, "x", "A1:B2")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
