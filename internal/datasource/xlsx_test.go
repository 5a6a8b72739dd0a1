package datasource

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path string, sheets map[string][][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoadWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"AIS": {
			{"Date", "Value"},
			{"2024-01-01", 412},
			{"2024-01-03", 398},
		},
	})

	all, err := LoadWorkbook(path, nil, TransformOptions{ForwardFill: true})
	require.NoError(t, err)

	require.Contains(t, all, "AIS")
	assert.Equal(t, Values{"2024-01-01": 412, "2024-01-02": 412, "2024-01-03": 398}, all["AIS"])
}

func TestLoadWorkbook_SkipsUnrelatedSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"Notes": {{"Source", "stooq"}},
	})

	all, err := LoadWorkbook(path, nil, TransformOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoadWorkbook_MissingFile(t *testing.T) {
	_, err := LoadWorkbook(filepath.Join(t.TempDir(), "none.xlsx"), nil, TransformOptions{})
	assert.Error(t, err)
}

func TestParseCellDate(t *testing.T) {
	d, err := parseCellDate("45292") // Excel serial for 2024-01-01
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", d.Format("2006-01-02"))

	d, err = parseCellDate("01/02/2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", d.Format("2006-01-02"))
}
