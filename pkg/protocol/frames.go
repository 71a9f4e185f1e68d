// Package protocol defines the wire format for the Majordomo gateway
// WebSocket protocol. It is importable by external clients.
package protocol

import "encoding/json"

// ProtocolVersion is negotiated during the connect handshake.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// RequestFrame invokes an RPC method.
type RequestFrame struct {
	Type   string          `json:"type"` // always "req"
	ID     string          `json:"id"`   // client-generated, unique per request
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers a request.
type ResponseFrame struct {
	Type    string      `json:"type"` // always "res"
	ID      string      `json:"id"`   // matches the request ID
	OK      bool        `json:"ok"`
	Payload any         `json:"payload,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
}

// ErrorShape describes a protocol-level error.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// EventFrame is pushed server→client without a preceding request.
type EventFrame struct {
	Type    string `json:"type"`  // always "event"
	Event   string `json:"event"` // event name
	Session string `json:"session,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Seq     int64  `json:"seq,omitempty"` // per-connection ordering
}

// NewOKResponse builds a success response for a request ID.
func NewOKResponse(id string, payload any) *ResponseFrame {
	return &ResponseFrame{Type: FrameTypeResponse, ID: id, OK: true, Payload: payload}
}

// NewErrorResponse builds a failure response for a request ID.
func NewErrorResponse(id, code, message string) *ResponseFrame {
	return &ResponseFrame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    false,
		Error: &ErrorShape{Code: code, Message: message},
	}
}

// NewEvent builds an event frame.
func NewEvent(event, session string, payload any) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: event, Session: session, Payload: payload}
}

// ParseFrameType extracts the frame type from raw JSON bytes.
func ParseFrameType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
