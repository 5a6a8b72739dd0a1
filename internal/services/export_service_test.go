package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	"straitpulse/internal/exporter"
	"straitpulse/internal/shared/testutil"
	"straitpulse/pkg/contracts/events"
)

// brokenSource fails every query
type brokenSource struct{}

func (brokenSource) ValueAt(context.Context, string, time.Time) (float64, bool, error) {
	return 0, false, errors.New("connection refused")
}

func TestNewExportService_Validation(t *testing.T) {
	_, err := NewExportService(nil, scenarioSource(), exporter.Options{}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilController)

	_, err = NewExportService(newScenarioController(t), nil, exporter.Options{}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestExportService_Export(t *testing.T) {
	ctx := context.Background()
	logger, handler := testutil.NewTestLogger(t)
	metrics, reader := newTestMetrics(t)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, events.MessageTypeExportCompleted, mock.Anything).Return(nil)

	archiveDir := t.TempDir()
	svc, err := NewExportService(newScenarioController(t), scenarioSource(), exporter.Options{},
		exporter.NewCSVWriter(archiveDir, logger), pub, metrics, logger)
	require.NoError(t, err)

	doc, err := svc.Export(ctx, ExportRequest{})
	require.NoError(t, err)

	assert.Equal(t, "strait-pulse_2024-01-01_2024-01-03.csv", doc.Filename)
	assert.Equal(t, "date,TAIEX,CDS,AIS\n"+
		"2024-01-01,17930.81,42.5,380\n"+
		"2024-01-02,17853.76,,395\n"+
		"2024-01-03,17589.28,44,401\n", string(doc.Bytes))

	archived, err := os.ReadFile(filepath.Join(archiveDir, doc.Filename))
	require.NoError(t, err)
	assert.Equal(t, doc.Bytes, archived)

	sent := pub.sent()
	require.Len(t, sent, 1)
	completed := sent[0].Data.(events.ExportCompleted)
	assert.Equal(t, doc.Filename, completed.Filename)
	assert.Equal(t, 3, completed.Rows)
	assert.Equal(t, doc.Digest, completed.Digest)

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "Export completed")
	testutil.AssertLogAttr(t, handler, "days", int64(3))
	assert.Equal(t, int64(1), counterValue(t, reader, "exports_total", "outcome", "success"))
	assert.Equal(t, int64(doc.Size()), counterValue(t, reader, "export_bytes_total", "", ""))
}

func TestExportService_RequestOverrides(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	svc, err := NewExportService(newScenarioController(t), scenarioSource(), exporter.Options{}, nil, nil, nil, logger)
	require.NoError(t, err)

	bom := true
	doc, err := svc.Export(context.Background(), ExportRequest{LineTerminator: exporter.CRLF, BOM: &bom})
	require.NoError(t, err)

	body := string(doc.Bytes)
	assert.True(t, strings.HasPrefix(body, "\ufeffdate,TAIEX,CDS,AIS\r\n"))
	assert.Equal(t, 4, strings.Count(body, "\r\n"))
}

func TestExportService_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(ctrl *dashboard.Controller)
		source  datasource.Source
		ctx     func() context.Context
		outcome string
		level   slog.Level
	}{
		{
			name:    "no indicators",
			prepare: func(ctrl *dashboard.Controller) { require.NoError(t, ctrl.SetActive(nil)) },
			source:  scenarioSource(),
			outcome: "no_indicators",
			level:   slog.LevelWarn,
		},
		{
			name:    "data source",
			source:  brokenSource{},
			outcome: "data_source",
			level:   slog.LevelError,
		},
		{
			name:   "cancelled",
			source: scenarioSource(),
			ctx: func() context.Context {
				c, cancel := context.WithCancel(ctx)
				cancel()
				return c
			},
			outcome: "cancelled",
			level:   slog.LevelWarn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, handler := testutil.NewTestLogger(t)
			metrics, reader := newTestMetrics(t)
			pub := &mockPublisher{}
			archiveDir := t.TempDir()

			ctrl := newScenarioController(t)
			if tt.prepare != nil {
				tt.prepare(ctrl)
			}
			svc, err := NewExportService(ctrl, tt.source, exporter.Options{},
				exporter.NewCSVWriter(archiveDir, logger), pub, metrics, logger)
			require.NoError(t, err)

			runCtx := ctx
			if tt.ctx != nil {
				runCtx = tt.ctx()
			}
			doc, err := svc.Export(runCtx, ExportRequest{})
			assert.Nil(t, doc)
			assert.True(t, dashboard.IsExport(err))

			testutil.AssertLogContains(t, handler, tt.level, "Export failed")
			assert.Equal(t, int64(1), counterValue(t, reader, "exports_total", "outcome", tt.outcome))
			pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)

			entries, err := os.ReadDir(archiveDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing archived")
		})
	}
}

func TestExportOutcome(t *testing.T) {
	assert.Equal(t, "no_indicators", exportOutcome(dashboard.NewExportError(dashboard.ReasonNoIndicators, nil)))
	assert.Equal(t, "cancelled", exportOutcome(dashboard.NewExportError(exporter.ReasonCancelled, context.Canceled)))
	assert.Equal(t, "data_source", exportOutcome(dashboard.NewExportError(exporter.ReasonDataSource, errors.New("x"))))
	assert.Equal(t, "data_source", exportOutcome(errors.New("unexpected")))
}
