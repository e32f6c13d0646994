// Package debugdraw streams path debug points to an external viewer over
// WebSocket.
package debugdraw

import (
	"encoding/json"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/urishab/carla/internal/geo"
	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/pkg/streaming"
)

var (
	_ localization.Renderer = (*Renderer)(nil)
	_ localization.Renderer = Nop{}
)

// Config holds viewer connection settings.
type Config struct {
	URL    string
	Secret string
}

// Renderer sends draw calls to the viewer. Draw calls never block; they are
// dropped while the send channel is full.
type Renderer struct {
	conn *connection
	cfg  Config
}

// New creates a renderer. Call Connect before drawing.
func New(cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		conn: newConnection(logger.With("component", "debugdraw")),
		cfg:  cfg,
	}
}

// Connect dials the viewer.
func (r *Renderer) Connect() error {
	return r.conn.dial(r.cfg.URL, r.cfg.Secret)
}

// Close disconnects from the viewer.
func (r *Renderer) Close() error {
	return r.conn.close()
}

// Dropped returns how many messages were dropped on a full send channel.
func (r *Renderer) Dropped() uint64 {
	return r.conn.droppedCount()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartSession announces the session and waits for the viewer's ack. The
// message is replayed on reconnect.
func (r *Renderer) StartSession(p streaming.StartSessionPayload) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, p)
	if err != nil {
		return err
	}
	r.conn.mu.Lock()
	r.conn.cachedStartMsg = data
	r.conn.mu.Unlock()
	return r.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession tells the viewer the run is over and waits for its ack.
func (r *Renderer) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, struct{}{})
	if err != nil {
		return err
	}
	return r.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
}

// DrawPoint implements localization.Renderer.
func (r *Renderer) DrawPoint(loc geo.Vector3, size float64, c color.RGBA, lifetime time.Duration) {
	data, err := marshalEnvelope(streaming.TypeDrawPoint, streaming.DrawPointPayload{
		X:          loc.X,
		Y:          loc.Y,
		Z:          loc.Z,
		Size:       size,
		Color:      [4]uint8{c.R, c.G, c.B, c.A},
		LifetimeMs: lifetime.Milliseconds(),
	})
	if err != nil {
		return
	}
	r.conn.send(data)
}

// EndTick marks the end of a tick's draw calls.
func (r *Renderer) EndTick(tick uint64) {
	data, err := marshalEnvelope(streaming.TypeTick, streaming.TickPayload{Tick: tick})
	if err != nil {
		return
	}
	r.conn.send(data)
}

// Nop discards draw calls.
type Nop struct{}

// DrawPoint does nothing.
func (Nop) DrawPoint(geo.Vector3, float64, color.RGBA, time.Duration) {}
