package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporter(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "test"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "carla-localization-test",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
		RunAttributes: []attribute.KeyValue{
			attribute.String("carla.map", "Town01"),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("tick complete"))
	rec.SetSeverity(otellog.SeverityInfo)
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "tick complete")
	assert.Contains(t, buf.String(), "carla-localization-test")
	assert.Contains(t, buf.String(), "Town01")

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestMeter_UsesGlobalProvider(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	m := p.Meter("test")
	require.NotNil(t, m)
	c, err := m.Int64Counter("test.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 1)
}
