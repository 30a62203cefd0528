package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plughost/pkg/archive"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/plugins"
)

// ScanPolicy decides what a startup scan does with a broken plugin directory
type ScanPolicy int

const (
	// ScanFailFast aborts the scan at the first broken directory
	ScanFailFast ScanPolicy = iota
	// ScanContinue skips broken directories and reports them together
	ScanContinue
)

// String implements fmt.Stringer
func (p ScanPolicy) String() string {
	switch p {
	case ScanContinue:
		return "continue"
	default:
		return "fail-fast"
	}
}

// ParseScanPolicy accepts "fail-fast" and "continue"
func ParseScanPolicy(s string) (ScanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return ScanFailFast, nil
	case "continue":
		return ScanContinue, nil
	default:
		return ScanFailFast, fmt.Errorf("unknown scan policy %q", s)
	}
}

// Config configures a Registry
type Config struct {
	// Root is the plugin directory, one subdirectory per plugin
	Root string

	// Development starts the filesystem watcher
	Development bool

	ScanPolicy ScanPolicy

	// CatalogTimeout bounds each catalog write (default 10s)
	CatalogTimeout time.Duration

	// SyncRetries is the number of extra attempts for failed catalog writes
	SyncRetries int

	// WatchDebounce coalesces watch events per directory
	WatchDebounce time.Duration

	// ReconcileSchedule is an optional cron spec re-running reconciliation
	ReconcileSchedule string

	// ReconcileWorkers bounds concurrent catalog writes during reconciliation (default 4)
	ReconcileWorkers int

	// Handlers resolves manifest handler kinds (default plugins.DefaultHandlers)
	Handlers plugins.Handlers

	// Backup receives a copy of every installed archive
	Backup archive.Backup

	// OnSyncError is called for every failed catalog write
	OnSyncError func(id string, op catalog.Operation, err error)

	Logger  *logrus.Logger
	Metrics Metrics
}

func (c *Config) setDefaults() {
	if c.CatalogTimeout <= 0 {
		c.CatalogTimeout = 10 * time.Second
	}
	if c.ReconcileWorkers <= 0 {
		c.ReconcileWorkers = 4
	}
	if c.Handlers == nil {
		c.Handlers = plugins.DefaultHandlers()
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
}
