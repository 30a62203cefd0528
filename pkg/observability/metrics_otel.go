package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/plughost/pkg/registry"
)

// OTelMetrics records registry measurements with OpenTelemetry instruments.
// It implements registry.Metrics.
type OTelMetrics struct {
	livePlugins metric.Int64Gauge
	lifecycle   metric.Int64Counter
	catalogSync metric.Int64Counter
	watchEvents metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/plughost")

	m := &OTelMetrics{}
	var err error

	m.livePlugins, err = meter.Int64Gauge(
		"plughost.plugins.live",
		metric.WithDescription("Number of plugins currently mounted"),
		metric.WithUnit("{plugin}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugins.live gauge: %w", err)
	}

	m.lifecycle, err = meter.Int64Counter(
		"plughost.lifecycle.operations",
		metric.WithDescription("Install, update and delete operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle.operations counter: %w", err)
	}

	m.catalogSync, err = meter.Int64Counter(
		"plughost.catalog.sync",
		metric.WithDescription("Catalog synchronizations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog.sync counter: %w", err)
	}

	m.watchEvents, err = meter.Int64Counter(
		"plughost.watch.events",
		metric.WithDescription("Handled filesystem events by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch.events counter: %w", err)
	}

	return m, nil
}

// SetLivePlugins records the number of mounted plugins
func (m *OTelMetrics) SetLivePlugins(n int) {
	m.livePlugins.Record(context.Background(), int64(n))
}

// ObserveLifecycle counts an install, update or delete
func (m *OTelMetrics) ObserveLifecycle(op string, err error) {
	m.lifecycle.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	))
}

// ObserveCatalogSync counts a catalog synchronization
func (m *OTelMetrics) ObserveCatalogSync(op string, err error) {
	m.catalogSync.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	))
}

// ObserveWatchEvent counts a handled filesystem event
func (m *OTelMetrics) ObserveWatchEvent(action string) {
	m.watchEvents.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("action", action),
	))
}

// MultiMetrics fans registry measurements out to several sinks
type MultiMetrics []registry.Metrics

// SetLivePlugins implements registry.Metrics
func (mm MultiMetrics) SetLivePlugins(n int) {
	for _, m := range mm {
		m.SetLivePlugins(n)
	}
}

// ObserveLifecycle implements registry.Metrics
func (mm MultiMetrics) ObserveLifecycle(op string, err error) {
	for _, m := range mm {
		m.ObserveLifecycle(op, err)
	}
}

// ObserveCatalogSync implements registry.Metrics
func (mm MultiMetrics) ObserveCatalogSync(op string, err error) {
	for _, m := range mm {
		m.ObserveCatalogSync(op, err)
	}
}

// ObserveWatchEvent implements registry.Metrics
func (mm MultiMetrics) ObserveWatchEvent(action string) {
	for _, m := range mm {
		m.ObserveWatchEvent(action)
	}
}

var (
	_ registry.Metrics = (*Metrics)(nil)
	_ registry.Metrics = (*OTelMetrics)(nil)
	_ registry.Metrics = MultiMetrics(nil)
)
