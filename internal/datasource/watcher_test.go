package datasource

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"straitpulse/internal/shared/testutil"
)

type reloadCounter struct {
	n atomic.Int32
}

func (r *reloadCounter) Reload(context.Context) error {
	r.n.Add(1)
	return nil
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	target := &reloadCounter{}

	w, err := NewWatcher(dir, target, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	reloaded := make(chan error, 4)
	w.OnReload(func(err error) { reloaded <- err })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// A burst of writes collapses into one reload
	path := filepath.Join(dir, "VIX.csv")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("Date,Close\n2024-01-01,13\n"), 0o644))
	}

	select {
	case err := <-reloaded:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after writing a csv file")
	}

	assert.Equal(t, int32(1), target.n.Load())
	assert.Equal(t, 1, w.Stats().Reloads)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	target := &reloadCounter{}

	w, err := NewWatcher(dir, target, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644))
	time.Sleep(200 * time.Millisecond)
	w.Stop()

	assert.Equal(t, int32(0), target.n.Load())
}

func TestWatcher_SingleWorkbook(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"AIS": {{"Date", "Value"}, {"2024-01-01", 400}},
	})

	src, err := NewFileSource(context.Background(), path, func(p string) (map[string]Values, error) {
		return LoadWorkbook(p, nil, TransformOptions{})
	}, nil)
	require.NoError(t, err)

	w, err := NewWatcher(path, src, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	reloaded := make(chan error, 4)
	w.OnReload(func(err error) { reloaded <- err })
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeWorkbook(t, path, map[string][][]interface{}{
		"AIS": {{"Date", "Value"}, {"2024-01-01", 450}},
	})

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after rewriting the workbook")
	}

	v, ok, err := src.ValueAt(context.Background(), "AIS", testutil.Date(2024, 1, 1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 450.0, v)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := NewWatcher(t.TempDir(), &reloadCounter{}, nil)
	require.NoError(t, err)
	w.Stop()
}
