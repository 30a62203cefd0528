// Package observability provides logging, Prometheus metrics, health checks
// and OpenTelemetry setup for the plugin host.
//
// # Logging
//
//	log := observability.NewLogger(observability.ParseLogLevel("debug"), os.Stdout)
//	log.WithField("plugin", id).Info("plugin installed")
//
// # Metrics
//
// Metrics and OTelMetrics both implement registry.Metrics; MultiMetrics feeds
// several of them at once:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	cfg.Metrics = metrics
//
// HTTPMetricsMiddleware labels requests by gorilla/mux route template and is
// meant to be installed as route middleware.
//
// # Health
//
// NewHealthHandler wraps github.com/heptiolabs/healthcheck with readiness
// checks for the catalog database, the Redis cache and the plugin root.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "plughost",
//	}, log)
//	defer observability.ShutdownOTel(ctx, providers, log)
package observability
