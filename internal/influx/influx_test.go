package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urishab/carla/internal/config"
	"github.com/urishab/carla/internal/localization"
)

// deadAddress returns host and port of a listener that has been closed.
func deadAddress(t *testing.T) (string, string) {
	t.Helper()
	srv := httptest.NewServer(nil)
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	srv.Close()
	return host, port
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var lines []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop(), "")
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x"))
	assert.Error(t, err)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	host, port := deadAddress(t)
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")

	m := NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     host,
		Port:     port,
		Org:      "org",
		Bucket:   "bucket",
	}, zerolog.Nop(), backup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	at := time.Unix(1700000000, 0)
	stats := localization.Stats{
		Ticks:    12,
		Vehicles: 3,
		Planner:  localization.LinkStats{Sent: 12},
	}
	require.NoError(t, m.WritePoint(TickPoint("Town01", stats, 4*time.Millisecond, at)))
	fault := &localization.VehicleFault{Slot: 1, VehicleID: 7, Tick: 12, Err: localization.ErrGraphIntegrity}
	require.NoError(t, m.WritePoint(FaultPoint("Town01", fault, at)))
	require.NoError(t, m.Close())

	lines := readBackup(t, backup)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "localization_tick,map=Town01")
	assert.Contains(t, lines[0], "tick=12i")
	assert.Contains(t, lines[0], "planner_sent=12i")
	assert.Contains(t, lines[0], "tick_duration_ms=4")
	assert.Contains(t, lines[1], "localization_fault,kind=graph_integrity,map=Town01")
	assert.Contains(t, lines[1], "vehicle_id=7i")
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestFaultPoint_OtherKind(t *testing.T) {
	fault := &localization.VehicleFault{Err: errors.New("boom")}
	line := influxdb2_write.PointToLineProtocol(FaultPoint("m", fault, time.Unix(0, 0)), time.Nanosecond)
	assert.Contains(t, line, "kind=other")
	assert.Contains(t, line, `error="boom"`)
}
