// Package streaming defines the JSON envelopes exchanged with a debug viewer.
package streaming

import "encoding/json"

// Message types.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeDrawPoint    = "draw_point"
	TypeTick         = "tick"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the viewer's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces the map and roster size.
type StartSessionPayload struct {
	Map      string `json:"map"`
	Vehicles int    `json:"vehicles"`
	Seed     uint64 `json:"seed"`
}

// DrawPointPayload asks the viewer to draw a point for LifetimeMs.
type DrawPointPayload struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Size       float64  `json:"size"`
	Color      [4]uint8 `json:"color"`
	LifetimeMs int64    `json:"lifetimeMs"`
}

// TickPayload marks the end of a tick.
type TickPayload struct {
	Tick uint64 `json:"tick"`
}
