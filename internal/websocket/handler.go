package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"straitpulse/internal/config"
	apierrors "straitpulse/internal/errors"
	"straitpulse/internal/infrastructure"
)

// NewUpgrader builds the upgrader from config. Same-origin requests are
// always accepted; cross-origin ones only when listed in allowedOrigins.
func NewUpgrader(cfg config.WebSocketConfig, allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
}

func originAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range allowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Handler upgrades GET /ws and attaches the connection to hub
func Handler(hub *Hub, upgrader *websocket.Upgrader, errorHandler *apierrors.ErrorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hub.Running() {
			errorHandler.HandleError(w, r, apierrors.ErrServiceUnavailable)
			return
		}
		if !websocket.IsWebSocketUpgrade(r) {
			errorHandler.HandleError(w, r, apierrors.ErrWebSocketUpgrade)
			return
		}

		// the upgrader writes its own error response on failure
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.WarnContext(r.Context(), "WebSocket upgrade failed",
				slog.String("error", err.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			return
		}

		if _, err := Serve(hub, WrapConn(conn), infrastructure.GetTraceID(r.Context())); err != nil {
			hub.logger.WarnContext(r.Context(), "WebSocket client rejected",
				slog.String("error", err.Error()))
		}
	}
}
