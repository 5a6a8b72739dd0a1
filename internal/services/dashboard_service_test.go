package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/shared/testutil"
	"straitpulse/internal/websocket"
	"straitpulse/pkg/contracts/events"
)

func TestNewDashboardService_RequiresController(t *testing.T) {
	_, err := NewDashboardService(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilController)
}

func TestDashboardService_ToggleIndicator(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)
	metrics, reader := newTestMetrics(t)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, events.MessageTypeSelectionChanged, mock.Anything).Return(nil)

	svc, err := NewDashboardService(newScenarioController(t), pub, metrics, logger)
	require.NoError(t, err)
	defer svc.Close()

	resp, err := svc.ToggleIndicator(ctx, "VIX")
	require.NoError(t, err)

	assert.Equal(t, "VIX", resp.ID)
	assert.True(t, resp.Active)
	assert.Equal(t, []string{"TAIEX", "CDS", "VIX", "AIS"}, resp.Selection.Indicators)
	assert.Equal(t, uint64(1), resp.Selection.Version)

	sent := pub.sent()
	require.Len(t, sent, 1)
	payload, ok := sent[0].Data.(events.SelectionChanged)
	require.True(t, ok)
	assert.Equal(t, string(dashboard.ChangeIndicatorToggled), payload.Kind)
	assert.Equal(t, "VIX", payload.IndicatorID)
	require.NotNil(t, payload.Active)
	assert.True(t, *payload.Active)
	assert.Equal(t, resp.Selection.Indicators, payload.Selection.Indicators)
	assert.Equal(t, []string{"P1", "P2", "P3", "GAUGE"}, payload.Renderable)

	assert.Equal(t, int64(1), counterValue(t, reader, "selection_changes_total", "kind", "indicator_toggled"))
	pub.AssertExpectations(t)
}

func TestDashboardService_ToggleUnknownIndicator(t *testing.T) {
	ctx := context.Background()
	logger, handler := testutil.NewTestLogger(t)
	metrics, reader := newTestMetrics(t)
	pub := &mockPublisher{}

	svc, err := NewDashboardService(newScenarioController(t), pub, metrics, logger)
	require.NoError(t, err)
	defer svc.Close()

	before := svc.Selection(ctx)
	_, err = svc.ToggleIndicator(ctx, "NOPE")

	var nf *dashboard.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "NOPE", nf.ID)
	assert.Equal(t, before, svc.Selection(ctx), "selection unchanged")

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), counterValue(t, reader, "selection_rejections_total", "reason", "not_found"))
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Selection change rejected")
}

func TestDashboardService_SetRange(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)
	metrics, reader := newTestMetrics(t)

	svc, err := NewDashboardService(newScenarioController(t), nil, metrics, logger)
	require.NoError(t, err)
	defer svc.Close()

	t.Run("valid", func(t *testing.T) {
		sel, err := svc.SetRange(ctx, testutil.Date(2024, 2, 1), testutil.Date(2024, 2, 29))
		require.NoError(t, err)
		assert.Equal(t, testutil.Date(2024, 2, 1), sel.Range.Start)
		assert.Equal(t, testutil.Date(2024, 2, 29), sel.Range.End)
	})

	t.Run("inverted keeps previous range", func(t *testing.T) {
		_, err := svc.SetRange(ctx, testutil.Date(2024, 3, 1), testutil.Date(2024, 1, 1))
		assert.True(t, dashboard.IsInvalidRange(err))

		sel := svc.Selection(ctx)
		assert.Equal(t, testutil.Date(2024, 2, 1), sel.Range.Start)
		assert.Equal(t, testutil.Date(2024, 2, 29), sel.Range.End)
	})

	assert.Equal(t, int64(1), counterValue(t, reader, "selection_rejections_total", "reason", "invalid_range"))
	assert.Equal(t, int64(1), counterValue(t, reader, "selection_changes_total", "kind", "range_set"))
}

func TestDashboardService_SetIndicatorsAndReset(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)

	svc, err := NewDashboardService(newScenarioController(t), nil, nil, logger)
	require.NoError(t, err)
	defer svc.Close()

	sel, err := svc.SetIndicators(ctx, []string{"AIS", "TAIEX"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TAIEX", "AIS"}, sel.Indicators, "catalog order, not request order")

	_, err = svc.SetIndicators(ctx, []string{"AIS", "BOGUS"})
	assert.True(t, dashboard.IsNotFound(err))
	assert.Equal(t, []string{"TAIEX", "AIS"}, svc.Selection(ctx).Indicators)

	sel, err = svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"TAIEX", "CDS", "AIS"}, sel.Indicators)
}

func TestDashboardService_Reads(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)

	svc, err := NewDashboardService(newScenarioController(t), nil, nil, logger)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.SetIndicators(ctx, []string{"CDS"})
	require.NoError(t, err)

	t.Run("indicators", func(t *testing.T) {
		list := svc.Indicators(ctx)
		assert.Equal(t, 4, list.Total)
		active := map[string]bool{}
		for _, ind := range list.Indicators {
			active[ind.ID] = ind.Active
		}
		assert.Equal(t, map[string]bool{"TAIEX": false, "CDS": true, "VIX": false, "AIS": false}, active)
		assert.Equal(t, []string{"P1"}, list.Indicators[0].Panels)
		assert.True(t, list.Indicators[0].DefaultEnabled)
	})

	t.Run("panels", func(t *testing.T) {
		renderable := map[string]bool{}
		for _, p := range svc.Panels(ctx).Panels {
			renderable[p.ID] = p.Renderable
		}
		assert.Equal(t, map[string]bool{"P1": false, "P2": true, "P3": false, "GAUGE": true}, renderable)
	})

	t.Run("view", func(t *testing.T) {
		view := svc.View(ctx)
		want := dashboard.BuildView(svc.Controller().RenderablePanels(), svc.Controller().ActiveIndicators())
		if diff := cmp.Diff(want, view); diff != "" {
			t.Errorf("view mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDashboardService_PublishFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("hub stopped is quiet", func(t *testing.T) {
		logger, handler := testutil.NewTestLogger(t)
		pub := &mockPublisher{}
		pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(websocket.ErrHubStopped)

		svc, err := NewDashboardService(newScenarioController(t), pub, nil, logger)
		require.NoError(t, err)
		defer svc.Close()

		_, err = svc.ToggleIndicator(ctx, "VIX")
		require.NoError(t, err, "a stopped hub never fails the mutation")
		assert.Empty(t, handler.GetRecordsByLevel(slog.LevelWarn))
	})

	t.Run("other errors are logged", func(t *testing.T) {
		logger, handler := testutil.NewTestLogger(t)
		metrics, reader := newTestMetrics(t)
		pub := &mockPublisher{}
		pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue full"))

		svc, err := NewDashboardService(newScenarioController(t), pub, metrics, logger)
		require.NoError(t, err)
		defer svc.Close()

		_, err = svc.Reset(ctx)
		require.NoError(t, err)
		testutil.AssertLogContains(t, handler, slog.LevelWarn, "Failed to publish selection change")
		assert.Equal(t, int64(1), counterValue(t, reader, "system_errors_total", "error.type", "publish_failed"))
	})
}

func TestDashboardService_ForwardsDirectControllerChanges(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, events.MessageTypeSelectionChanged, mock.Anything).Return(nil)

	ctrl := newScenarioController(t)
	svc, err := NewDashboardService(ctrl, pub, nil, logger)
	require.NoError(t, err)

	require.NoError(t, ctrl.SetRange(testutil.Date(2024, 1, 1), testutil.Date(2024, 1, 10)))
	require.Len(t, pub.sent(), 1)
	payload := pub.sent()[0].Data.(events.SelectionChanged)
	assert.Equal(t, string(dashboard.ChangeRangeSet), payload.Kind)
	assert.Nil(t, payload.Active)
	assert.Equal(t, 10, payload.Selection.Range.Days())

	svc.Close()
	_, err = ctrl.ToggleIndicator("VIX")
	require.NoError(t, err)
	assert.Len(t, pub.sent(), 1, "no events after Close")
}

func TestDashboardService_ResponsesUseTheirOwnSnapshot(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)

	ctrl := newScenarioController(t)
	svc, err := NewDashboardService(ctrl, nil, nil, logger)
	require.NoError(t, err)
	defer svc.Close()

	// another writer gets in between the mutation and the response
	interleave := true
	unsubscribe := ctrl.Subscribe(func(change dashboard.Change) {
		if !interleave {
			return
		}
		interleave = false
		require.NoError(t, ctrl.SetRange(testutil.Date(2024, 5, 1), testutil.Date(2024, 5, 31)))
	})
	defer unsubscribe()

	resp, err := svc.ToggleIndicator(ctx, "VIX")
	require.NoError(t, err)
	assert.True(t, resp.Active)
	assert.Equal(t, uint64(1), resp.Selection.Version)
	assert.Equal(t, testutil.ScenarioRange(), resp.Selection.Range)
	assert.Equal(t, uint64(2), svc.Selection(ctx).Version)

	interleave = true
	sel, err := svc.SetIndicators(ctx, []string{"AIS"})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sel.Version)
	assert.Equal(t, []string{"AIS"}, sel.Indicators)
	assert.Equal(t, uint64(4), svc.Selection(ctx).Version)
}

func TestDashboardService_PanelsAndViewAgree(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)

	ctrl := newScenarioController(t)
	svc, err := NewDashboardService(ctrl, nil, nil, logger)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.SetIndicators(ctx, []string{"CDS"})
	require.NoError(t, err)

	panels := svc.Panels(ctx)
	view := svc.View(ctx)
	require.Len(t, view.Panels, len(panels.Panels))
	for i, p := range panels.Panels {
		assert.Equal(t, p.ID, view.Panels[i].ID)
		assert.Equal(t, p.Renderable, view.Panels[i].State == dashboard.PanelLive, p.ID)
	}
	assert.Equal(t, ctrl.RenderablePanels(), dashboard.PanelStates(ctrl.Registry(), ctrl.Snapshot()))
}
