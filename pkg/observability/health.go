package observability

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultCheckTimeout = 2 * time.Second
	maxGoroutines       = 10000
)

// HealthOptions lists the dependencies checked by the readiness endpoint.
// Nil or empty fields are skipped.
type HealthOptions struct {
	DB         *sql.DB
	Redis      *redis.Client
	PluginRoot string

	// Registerer exports every check result as a prometheus gauge
	Registerer prometheus.Registerer
	Timeout    time.Duration
}

// NewHealthHandler builds the liveness and readiness checks of the host
func NewHealthHandler(opts HealthOptions) healthcheck.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCheckTimeout
	}

	var h healthcheck.Handler
	if opts.Registerer != nil {
		h = healthcheck.NewMetricsHandler(opts.Registerer, "plughost")
	} else {
		h = healthcheck.NewHandler()
	}

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))

	if opts.DB != nil {
		h.AddReadinessCheck("catalog-database", healthcheck.Timeout(databaseCheck(opts.DB, opts.Timeout), opts.Timeout))
	}
	if opts.Redis != nil {
		h.AddReadinessCheck("catalog-cache", healthcheck.Timeout(redisCheck(opts.Redis, opts.Timeout), opts.Timeout))
	}
	if opts.PluginRoot != "" {
		h.AddReadinessCheck("plugin-root", directoryCheck(opts.PluginRoot))
	}

	return h
}

func databaseCheck(db *sql.DB, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return db.PingContext(ctx)
	}
}

func redisCheck(client *redis.Client, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

func directoryCheck(dir string) healthcheck.Check {
	return func() error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, h healthcheck.Handler) {
	mux.HandleFunc("/health", h.ReadyEndpoint)
	mux.HandleFunc("/health/live", h.LiveEndpoint)
	mux.HandleFunc("/health/ready", h.ReadyEndpoint)
}
