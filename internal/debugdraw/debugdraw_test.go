package debugdraw

import (
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urishab/carla/internal/geo"
	"github.com/urishab/carla/pkg/streaming"
)

// testServer upgrades to WebSocket, records envelopes, and acks session
// start and end.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setQuery(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secret   string
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) setQuery(secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = secret
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSessionHandshake(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	r := New(Config{URL: wsURL(srv), Secret: "s3cret"}, nil)
	require.NoError(t, r.Connect())
	defer r.Close()

	require.NoError(t, r.StartSession(streaming.StartSessionPayload{Map: "Town01", Vehicles: 3, Seed: 9}))
	require.NoError(t, r.EndSession())

	msgs := ml.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[1].Type)

	var start streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &start))
	assert.Equal(t, "Town01", start.Map)
	assert.Equal(t, 3, start.Vehicles)

	ml.mu.Lock()
	assert.Equal(t, "s3cret", ml.secret)
	ml.mu.Unlock()
}

func TestDrawPointAndTick(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	r := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, r.Connect())
	defer r.Close()

	red := color.RGBA{R: 255, A: 255}
	r.DrawPoint(geo.Vector3{X: 1, Y: 2, Z: 3}, 0.1, red, 500*time.Millisecond)
	r.EndTick(7)

	require.Eventually(t, func() bool { return len(ml.all()) == 2 }, 2*time.Second, 10*time.Millisecond)

	msgs := ml.all()
	assert.Equal(t, streaming.TypeDrawPoint, msgs[0].Type)
	var p streaming.DrawPointPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &p))
	assert.Equal(t, streaming.DrawPointPayload{
		X: 1, Y: 2, Z: 3, Size: 0.1, Color: [4]uint8{255, 0, 0, 255}, LifetimeMs: 500,
	}, p)

	assert.Equal(t, streaming.TypeTick, msgs[1].Type)
	var tick streaming.TickPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &tick))
	assert.Equal(t, uint64(7), tick.Tick)
	assert.Zero(t, r.Dropped())
}

func TestSendDropsWhenFull(t *testing.T) {
	r := New(Config{}, nil)
	for i := 0; i < sendChSize+5; i++ {
		r.DrawPoint(geo.Vector3{}, 0.1, color.RGBA{}, time.Second)
	}
	assert.Equal(t, uint64(5), r.Dropped())
}

func TestConnect_InvalidURL(t *testing.T) {
	r := New(Config{URL: "://bad"}, nil)
	assert.Error(t, r.Connect())
}

func TestCloseIdempotent(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	r := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, r.Connect())
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestStartSession_ClosedConnection(t *testing.T) {
	r := New(Config{}, nil)
	require.NoError(t, r.Close())
	err := r.StartSession(streaming.StartSessionPayload{})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop{}.DrawPoint(geo.Vector3{}, 1, color.RGBA{}, time.Second)
	})
}

func TestReplayStart(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	msg, err := json.Marshal(streaming.Envelope{Type: streaming.TypeStartSession})
	require.NoError(t, err)

	conn, _, err := ws.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, replayStart(conn, nil))
	require.NoError(t, replayStart(conn, msg))
	assert.Eventually(t, func() bool {
		for _, env := range ml.all() {
			if env.Type == streaming.TypeStartSession {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestReplayStart_ClosedConnection(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// a failed replay must be reported so the reconnect loop retries
	assert.Error(t, replayStart(conn, []byte(`{"type":"start_session"}`)))
}
