package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	"straitpulse/internal/infrastructure"
	"straitpulse/internal/shared/testutil"
	"straitpulse/pkg/contracts/events"
)

func newScenarioController(t *testing.T) *dashboard.Controller {
	t.Helper()
	reg, err := dashboard.NewRegistry(testutil.ScenarioPanels())
	require.NoError(t, err)
	cat, err := dashboard.NewCatalog(testutil.ScenarioIndicators(), reg)
	require.NoError(t, err)
	ctrl, err := dashboard.NewController(cat, reg,
		dashboard.WithInitialRange(testutil.ScenarioRange()),
		dashboard.WithClock(testutil.FixedClock(testutil.Date(2024, 1, 3))))
	require.NoError(t, err)
	return ctrl
}

func scenarioSource() *datasource.MemorySource {
	src := datasource.NewMemorySource()
	src.Replace(map[string]datasource.Values{
		"TAIEX": {"2024-01-01": 17930.81, "2024-01-02": 17853.76, "2024-01-03": 17589.28},
		"CDS":   {"2024-01-01": 42.5, "2024-01-03": 44},
		"AIS":   {"2024-01-01": 380, "2024-01-02": 395, "2024-01-03": 401},
	})
	return src
}

func newTestMetrics(t *testing.T) (*infrastructure.DashboardMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := infrastructure.NewDashboardMetrics(provider.Meter(infrastructure.InstrumentationName))
	require.NoError(t, err)
	return m, reader
}

// counterValue sums every data point of an int64 counter, keeping only
// points whose attribute key has the wanted value when key is set
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, key, want string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if key != "" {
					v, ok := dp.Attributes.Value(attribute.Key(key))
					if !ok || v.AsString() != want {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

// mockPublisher records published events
type mockPublisher struct {
	mock.Mock

	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	Type events.MessageType
	Data interface{}
}

func (m *mockPublisher) Publish(ctx context.Context, msgType events.MessageType, data interface{}) error {
	m.mu.Lock()
	m.published = append(m.published, publishedEvent{Type: msgType, Data: data})
	m.mu.Unlock()

	args := m.Called(ctx, msgType, data)
	return args.Error(0)
}

func (m *mockPublisher) sent() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedEvent(nil), m.published...)
}
