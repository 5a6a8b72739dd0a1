package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straitpulse/internal/shared/testutil"
	"straitpulse/pkg/contracts/domain"
)

func openTestSQLite(t *testing.T) *SQLSource {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "market.db")
	src, err := OpenSQL(context.Background(), KindSQLite, dsn, map[string]string{"TAIEX": "^TWII"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	require.NoError(t, src.EnsureSchema(context.Background()))
	return src
}

func TestSQLSource_UpsertAndRange(t *testing.T) {
	ctx := context.Background()
	src := openTestSQLite(t)

	require.NoError(t, src.Upsert(ctx, "^TWII", []domain.MarketPoint{
		point(testutil.Date(2024, 1, 1), 17900),
		point(testutil.Date(2024, 1, 3), 17720),
	}))
	require.NoError(t, src.Upsert(ctx, "CDS", []domain.MarketPoint{
		{Date: testutil.Date(2024, 1, 2), Close: 80, HasClose: true, Value: 101.5, HasValue: true},
	}))

	vals, err := src.Range(ctx, "TAIEX", testutil.ScenarioRange())
	require.NoError(t, err)
	assert.Equal(t, Values{"2024-01-01": 17900, "2024-01-03": 17720}, vals)

	v, ok, err := src.ValueAt(ctx, "CDS", testutil.Date(2024, 1, 2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 101.5, v, "value column wins over close")

	_, ok, err = src.ValueAt(ctx, "CDS", testutil.Date(2024, 1, 3))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLSource_UpsertReplacesSameDay(t *testing.T) {
	ctx := context.Background()
	src := openTestSQLite(t)

	require.NoError(t, src.Upsert(ctx, "VIX", []domain.MarketPoint{point(testutil.Date(2024, 1, 1), 12)}))
	require.NoError(t, src.Upsert(ctx, "VIX", []domain.MarketPoint{point(testutil.Date(2024, 1, 1), 14)}))

	v, ok, err := src.ValueAt(ctx, "VIX", testutil.Date(2024, 1, 1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 14.0, v)
}

func TestSQLSource_UnknownSymbol(t *testing.T) {
	src := openTestSQLite(t)

	vals, err := src.Range(context.Background(), "SOX", testutil.ScenarioRange())
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestSQLSource_CancelledContext(t *testing.T) {
	src := openTestSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Range(ctx, "TAIEX", testutil.ScenarioRange())
	assert.Error(t, err)
}

func TestImportCSVDir(t *testing.T) {
	ctx := context.Background()
	src := openTestSQLite(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "^TWII.csv"), []byte(stooqTAIEX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VIX.csv"), []byte("Date,Close\n2024-01-02,13.2\n2024-01-02,13.4\n"), 0o644))

	written, err := ImportCSVDir(ctx, dir, src, TransformOptions{ForwardFill: true, Base100: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"^TWII": 6, "VIX": 1}, written)

	vals, err := src.Range(ctx, "TAIEX", domain.DateRange{Start: testutil.Date(2023, 12, 29), End: testutil.Date(2024, 1, 3)})
	require.NoError(t, err)
	require.Len(t, vals, 6)
	assert.Equal(t, 100.0, vals["2023-12-29"])
	assert.Equal(t, 100.0, vals["2023-12-31"], "forward-filled day")
	assert.InDelta(t, 17720.5/17930*100, vals["2024-01-03"], 1e-9)

	v, ok, err := src.ValueAt(ctx, "VIX", testutil.Date(2024, 1, 2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v, "last duplicate is its own base")

	// a second run replaces rather than duplicates
	_, err = ImportCSVDir(ctx, dir, src, TransformOptions{})
	require.NoError(t, err)
	v, _, err = src.ValueAt(ctx, "VIX", testutil.Date(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 13.4, v)
}

func TestImportCSVDir_Errors(t *testing.T) {
	src := openTestSQLite(t)

	_, err := ImportCSVDir(context.Background(), filepath.Join(t.TempDir(), "missing"), src, TransformOptions{})
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VIX.csv"), []byte("Date,Close\n2024-01-02,13.2\n"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	written, err := ImportCSVDir(ctx, dir, src, TransformOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, written)
}

func TestOpenSQL_UnknownDialect(t *testing.T) {
	_, err := OpenSQL(context.Background(), "oracle", "", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRebind(t *testing.T) {
	pg := &SQLSource{dialect: KindPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLSource{dialect: KindSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestDateKey(t *testing.T) {
	tests := []struct {
		raw     any
		want    string
		wantErr bool
	}{
		{raw: testutil.Date(2024, 1, 2), want: "2024-01-02"},
		{raw: "2024-01-02", want: "2024-01-02"},
		{raw: []byte("2024-01-02T00:00:00Z"), want: "2024-01-02"},
		{raw: "Jan 2", wantErr: true},
		{raw: 42, wantErr: true},
	}
	for _, tt := range tests {
		got, err := dateKey(tt.raw)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
