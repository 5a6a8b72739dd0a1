// Package events defines the messages pushed to dashboard clients over the
// WebSocket connection.
package events

import (
	"time"

	"github.com/google/uuid"

	"straitpulse/pkg/contracts/domain"
)

// Protocol identification sent in the connect message
const (
	ProtocolVersion = "1.0"
	ProtocolName    = "strait-pulse-events"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeSelectionChanged carries the new selection after every
	// accepted mutation
	MessageTypeSelectionChanged MessageType = "selection:changed"

	// MessageTypeExportCompleted announces a finished CSV export
	MessageTypeExportCompleted MessageType = "export:completed"

	// MessageTypeDataReloaded announces that a file data source was reloaded
	MessageTypeDataReloaded MessageType = "data:reloaded"

	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage is the envelope every server push uses
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// NewMessage wraps data in an envelope with a fresh id
func NewMessage(msgType MessageType, data interface{}, traceID string, now time.Time) WebSocketMessage {
	return WebSocketMessage{
		BaseMessage: BaseMessage{
			ID:        uuid.New().String(),
			Type:      msgType,
			Timestamp: now.UTC(),
			TraceID:   traceID,
		},
		Data: data,
	}
}

// Selection is the wire form of a selection snapshot
type Selection struct {
	Indicators []string         `json:"indicators"`
	Labels     []string         `json:"labels"`
	Range      domain.DateRange `json:"range"`
	Version    uint64           `json:"version"`
}

// SelectionChanged is the payload of selection:changed
type SelectionChanged struct {
	Kind        string    `json:"kind"`
	IndicatorID string    `json:"indicator_id,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	Selection   Selection `json:"selection"`
	Renderable  []string  `json:"renderable_panels"`
}

// ExportCompleted is the payload of export:completed
type ExportCompleted struct {
	Filename   string           `json:"filename"`
	Indicators []string         `json:"indicators"`
	Range      domain.DateRange `json:"range"`
	Rows       int              `json:"rows"`
	Bytes      int              `json:"bytes"`
	Digest     string           `json:"digest"`
}

// DataReloaded is the payload of data:reloaded
type DataReloaded struct {
	Source string `json:"source"`
	Path   string `json:"path"`
}

// ConnectionInfo is the payload of the connect message
type ConnectionInfo struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// ErrorInfo is the payload of an error message
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}
