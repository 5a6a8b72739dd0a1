package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"straitpulse/internal/config"
	apierrors "straitpulse/internal/errors"
	"straitpulse/internal/shared/testutil"
	"straitpulse/pkg/contracts/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn is an in-memory Connection. Reads block until Close.
type fakeConn struct {
	mu      sync.Mutex
	written []fakeFrame
	closed  bool

	inbound  chan []byte
	closedCh chan struct{}
	once     sync.Once
}

type fakeFrame struct {
	kind int
	data []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte), closedCh: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed connection")
	}
	c.written = append(c.written, fakeFrame{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.inbound:
		return websocket.TextMessage, m, nil
	case <-c.closedCh:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closedCh)
	})
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) RemoteAddr() string                { return "127.0.0.1:50000" }

func (c *fakeConn) textMessages(t *testing.T) []events.WebSocketMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []events.WebSocketMessage
	for _, f := range c.written {
		if f.kind != websocket.TextMessage {
			continue
		}
		var msg events.WebSocketMessage
		require.NoError(t, json.Unmarshal(f.data, &msg))
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) sawClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.written {
		if f.kind == websocket.CloseMessage {
			return true
		}
	}
	return false
}

func newTestHub(t *testing.T) *Hub {
	logger, _ := testutil.NewTestLogger(t)
	return NewHub(logger, WithHubClock(testutil.FixedClock(testutil.Date(2024, 1, 3))))
}

func TestHubStartStop(t *testing.T) {
	hub := newTestHub(t)
	assert.False(t, hub.Running())
	assert.ErrorIs(t, hub.Publish(context.Background(), events.MessageTypeSelectionChanged, nil), ErrHubStopped)

	hub.Start()
	hub.Start()
	assert.True(t, hub.Running())

	hub.Stop()
	hub.Stop()
	assert.False(t, hub.Running())

	// restartable
	hub.Start()
	assert.True(t, hub.Running())
	hub.Stop()
}

func TestHubPublishReachesClients(t *testing.T) {
	hub := newTestHub(t)
	hub.Start()

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, c := range conns {
		_, err := Serve(hub, c, "trace-1")
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	payload := events.SelectionChanged{
		Kind:      "indicator_toggled",
		Selection: events.Selection{Indicators: []string{"TAIEX", "VIX"}, Version: 2},
	}
	require.NoError(t, hub.Publish(context.Background(), events.MessageTypeSelectionChanged, payload))

	for _, c := range conns {
		require.Eventually(t, func() bool { return len(c.textMessages(t)) == 2 }, time.Second, 5*time.Millisecond)
		msgs := c.textMessages(t)

		assert.Equal(t, events.MessageTypeConnect, msgs[0].Type)
		assert.Equal(t, "trace-1", msgs[0].TraceID)

		assert.Equal(t, events.MessageTypeSelectionChanged, msgs[1].Type)
		assert.Equal(t, testutil.Date(2024, 1, 3), msgs[1].Timestamp)
		data := msgs[1].Data.(map[string]any)
		assert.Equal(t, "indicator_toggled", data["kind"])
	}

	stats := hub.Stats()
	assert.Equal(t, int64(2), stats.TotalConnections)
	assert.Equal(t, int64(2), stats.MessagesSent)

	hub.Stop()
	for _, c := range conns {
		require.Eventually(t, c.sawClose, time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubClientDisconnect(t *testing.T) {
	hub := newTestHub(t)
	hub.Start()
	defer hub.Stop()

	c := newFakeConn()
	_, err := Serve(hub, c, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := newTestHub(t)
	hub.Start()
	defer hub.Stop()

	// no pumps and an unbuffered queue: every send would block
	slow := NewClient(hub, newFakeConn(), "")
	slow.send = make(chan []byte)
	require.NoError(t, hub.Register(slow))
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, hub.Publish(context.Background(), events.MessageTypeSelectionChanged, events.SelectionChanged{Kind: "reset"}))

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), hub.Stats().Dropped)

	_, open := <-slow.send
	assert.False(t, open, "dropped client's queue is closed")
}

func TestServeAfterStop(t *testing.T) {
	hub := newTestHub(t)
	c := newFakeConn()

	_, err := Serve(hub, c, "")
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.True(t, c.closed)
}

func TestHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hub := newTestHub(t)
	upgrader := NewUpgrader(config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024}, nil)
	srv := httptest.NewServer(Handler(hub, upgrader, apierrors.NewErrorHandler(logger, false)))
	defer srv.Close()

	t.Run("hub stopped", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	hub.Start()
	defer hub.Stop()

	t.Run("plain GET", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("round trip", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		var hello events.WebSocketMessage
		require.NoError(t, conn.ReadJSON(&hello))
		assert.Equal(t, events.MessageTypeConnect, hello.Type)

		require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
		require.NoError(t, hub.Publish(context.Background(), events.MessageTypeExportCompleted,
			events.ExportCompleted{Filename: "strait-pulse_2024-01-01_2024-01-03.csv", Rows: 3}))

		var msg events.WebSocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, events.MessageTypeExportCompleted, msg.Type)
	})

	http.DefaultClient.CloseIdleConnections()
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"no origin", "", nil, true},
		{"same host", "http://dashboard.local:8080", nil, true},
		{"foreign", "https://evil.example", nil, false},
		{"listed", "http://localhost:3000", []string{"http://localhost:3000"}, true},
		{"wildcard", "https://anything.example", []string{"*"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://dashboard.local:8080/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originAllowed(r, tt.allowed))
		})
	}
}
