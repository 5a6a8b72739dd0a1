package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	"straitpulse/internal/shared/testutil"
	"straitpulse/pkg/contracts/domain"
)

const taiexCSV = "Date,Open,High,Low,Close,Volume\n" +
	"2024-01-01,1,1,1,17900,10\n" +
	"2024-01-03,1,1,1,17720.5,10\n"

func writePrices(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TAIEX.csv"), []byte(taiexCSV), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VIX.csv"), []byte("Date,Close\n2024-01-02,13.25\n"), 0644))
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestExport_Stdout(t *testing.T) {
	dir := writePrices(t)

	stdout, stderr, err := execute(t,
		"--source", "csv", "--path", dir,
		"--from", "2024-01-01", "--to", "2024-01-03",
		"--indicators", "VIX,TAIEX")
	require.NoError(t, err, stderr)

	// columns follow catalog order, not flag order
	assert.Equal(t, "date,TAIEX,VIX\n"+
		"2024-01-01,17900,\n"+
		"2024-01-02,17900,13.25\n"+
		"2024-01-03,17720.5,\n", stdout)
	assert.Contains(t, stderr, "Export completed")
}

func TestExport_FormatFlags(t *testing.T) {
	dir := writePrices(t)

	stdout, stderr, err := execute(t,
		"--source", "csv", "--path", dir,
		"--from", "2024-01-01", "--to", "2024-01-01",
		"--indicators", "TAIEX",
		"--line-ending", "crlf", "--bom")
	require.NoError(t, err, stderr)
	assert.Equal(t, "\ufeffdate,TAIEX\r\n2024-01-01,17900\r\n", stdout)
}

func TestExport_ToDirectory(t *testing.T) {
	dir := writePrices(t)
	outDir := t.TempDir()

	stdout, stderr, err := execute(t,
		"--source", "csv", "--path", dir,
		"--from", "2024-01-01", "--to", "2024-01-03",
		"--out", outDir)
	require.NoError(t, err, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(filepath.Join(outDir, "strait-pulse_2024-01-01_2024-01-03.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "date,TAIEX,CDS Spreads,AIS Data\n")
	assert.Contains(t, string(data), "2024-01-03,17720.5,,\n")
}

func TestExport_ToFile(t *testing.T) {
	dir := writePrices(t)
	out := filepath.Join(t.TempDir(), "nested", "risk.csv")

	_, stderr, err := execute(t,
		"--source", "csv", "--path", dir,
		"--from", "2024-01-02", "--to", "2024-01-02",
		"--indicators", "VIX", "-o", out)
	require.NoError(t, err, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "date,VIX\n2024-01-02,13.25\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestExport_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "market.db")

	src, err := datasource.OpenSQL(ctx, datasource.KindSQLite, dsn, nil, nil)
	require.NoError(t, err)
	require.NoError(t, src.EnsureSchema(ctx))
	require.NoError(t, src.Upsert(ctx, "AIS", []domain.MarketPoint{
		{Date: testutil.Date(2024, 1, 2), Close: 412, HasClose: true},
	}))
	require.NoError(t, src.Close())

	stdout, stderr, err := execute(t,
		"--source", "sqlite", "--dsn", dsn,
		"--from", "2024-01-02", "--to", "2024-01-02",
		"--indicators", "AIS")
	require.NoError(t, err, stderr)
	assert.Equal(t, "date,AIS Data\n2024-01-02,412\n", stdout)
}

func TestLoad_ThenExportFromSQLite(t *testing.T) {
	dir := writePrices(t)
	dsn := filepath.Join(t.TempDir(), "market.db")

	stdout, stderr, err := execute(t, "load",
		"--source", "sqlite", "--dsn", dsn, "--path", dir, "--forward-fill")
	require.NoError(t, err, stderr)
	assert.Equal(t, "TAIEX\t3\nVIX\t1\n", stdout)
	assert.Contains(t, stderr, "Load completed")

	stdout, stderr, err = execute(t,
		"--source", "sqlite", "--dsn", dsn,
		"--from", "2024-01-01", "--to", "2024-01-03",
		"--indicators", "TAIEX,VIX")
	require.NoError(t, err, stderr)
	assert.Equal(t, "date,TAIEX,VIX\n"+
		"2024-01-01,17900,\n"+
		"2024-01-02,17900,13.25\n"+
		"2024-01-03,17720.5,\n", stdout)
}

func TestLoad_Errors(t *testing.T) {
	dir := writePrices(t)
	dsn := filepath.Join(t.TempDir(), "market.db")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"file target", []string{"load", "--source", "csv", "--dsn", dsn, "--path", dir}, "load writes to postgres or sqlite"},
		{"missing dsn", []string{"load", "--source", "sqlite", "--path", dir}, "--dsn is required"},
		{"missing path", []string{"load", "--source", "sqlite", "--dsn", dsn}, "--path is required"},
		{"missing directory", []string{"load", "--source", "sqlite", "--dsn", dsn, "--path", filepath.Join(dir, "nope")}, "does not exist"},
		{"bad base date", []string{"load", "--source", "sqlite", "--dsn", dsn, "--path", dir, "--base100", "--base-date", "soon"}, "base date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Empty(t, stdout)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, stderr, "error:")
		})
	}
}

func TestExport_Errors(t *testing.T) {
	dir := writePrices(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "csv without path",
			args:    []string{"--source", "csv"},
			wantErr: "--path is required",
		},
		{
			name:    "sqlite without dsn",
			args:    []string{"--source", "sqlite"},
			wantErr: "--dsn is required",
		},
		{
			name:  "unknown indicator",
			args:  []string{"--indicators", "GDP"},
			check: func(t *testing.T, err error) { assert.True(t, dashboard.IsNotFound(err)) },
		},
		{
			name:  "inverted range",
			args:  []string{"--from", "2024-01-03", "--to", "2024-01-01"},
			check: func(t *testing.T, err error) { assert.True(t, dashboard.IsInvalidRange(err)) },
		},
		{
			name:    "bad date",
			args:    []string{"--from", "01/02/2024", "--to", "2024-01-03"},
			wantErr: "--from",
		},
		{
			name:  "no indicators",
			args:  []string{"--source", "csv", "--path", dir, "--indicators", ""},
			check: func(t *testing.T, err error) { assert.True(t, dashboard.IsExport(err)) },
		},
		{
			name:    "bad line ending",
			args:    []string{"--line-ending", "cr"},
			wantErr: "line terminator",
		},
		{
			name:    "positional argument",
			args:    []string{"extra"},
			wantErr: "unknown command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Empty(t, stdout)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestSelectedRange(t *testing.T) {
	now := testutil.FixedClock(testutil.Date(2024, 3, 31))

	tests := []struct {
		name    string
		opts    options
		want    domain.DateRange
		wantErr bool
	}{
		{"default window", options{}, domain.TrailingRange(testutil.Date(2024, 3, 31), 30), false},
		{"days", options{days: 7}, domain.NewDateRange(testutil.Date(2024, 3, 25), testutil.Date(2024, 3, 31)), false},
		{"days ending at to", options{days: 2, to: "2024-01-03"}, domain.NewDateRange(testutil.Date(2024, 1, 2), testutil.Date(2024, 1, 3)), false},
		{"explicit", options{from: "2024-01-01", to: "2024-01-03"}, testutil.ScenarioRange(), false},
		{"from only", options{from: "2024-03-30"}, domain.NewDateRange(testutil.Date(2024, 3, 30), testutil.Date(2024, 3, 31)), false},
		{"bad to", options{to: "tomorrow"}, domain.DateRange{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.now = now
			got, err := selectedRange(&opts, 30)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
