package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger creates a JSON logger writing to output (stdout when nil)
func NewLogger(level logrus.Level, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	log := logrus.New()
	log.SetOutput(output)
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	return log
}

// ParseLogLevel parses a log level name. Unknown names fall back to info.
func ParseLogLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// WithTraceContext returns an entry carrying the trace and span ids of the
// span recorded in ctx, if any
func WithTraceContext(ctx context.Context, log logrus.FieldLogger) logrus.FieldLogger {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return log
	}

	spanCtx := span.SpanContext()
	return log.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
