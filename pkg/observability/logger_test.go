package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(logrus.InfoLevel, &buf)

	log.WithField("plugin", "a1").Info("plugin installed")
	log.Debug("hidden")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "plugin installed", entry["message"])
	assert.Equal(t, "a1", entry["plugin"])
	assert.Equal(t, "info", entry["level"])
	assert.NotEmpty(t, entry["time"])
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{" error ", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"chatty", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(logrus.InfoLevel, &buf)

	t.Run("no span", func(t *testing.T) {
		assert.Same(t, log, WithTraceContext(context.Background(), log))
	})

	t.Run("recording span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		WithTraceContext(ctx, log).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}
