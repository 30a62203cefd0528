package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/plughost/pkg/async"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/httputil"
	"github.com/platinummonkey/plughost/pkg/plugins"
	"github.com/platinummonkey/plughost/pkg/watcher"
)

var tracer = otel.Tracer("github.com/platinummonkey/plughost/pkg/registry")

// Registry owns the live plugins and the composite router they are mounted on
type Registry struct {
	cfg     Config
	sync    *catalog.Synchronizer
	log     *logrus.Logger
	metrics Metrics
	locks   *async.KeyedMutex
	newID   func() string
	router  *mux.Router

	mu       sync.RWMutex
	plugins  []*plugins.Plugin
	mounts   map[string]*plugins.Plugin
	reserved map[string]struct{}
	busy     map[string]int
	placeMu  sync.Mutex

	cancel  context.CancelFunc
	watcher *watcher.Watcher
	cron    *cron.Cron
	wg      sync.WaitGroup
}

// New creates a registry over store. Nothing is loaded until Start.
func New(cfg Config, store catalog.Store) (*Registry, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("plugin root is required")
	}
	if store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin root: %w", err)
	}
	cfg.Root = root
	cfg.setDefaults()

	if cfg.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ReconcileSchedule); err != nil {
			return nil, fmt.Errorf("invalid reconcile schedule %q: %w", cfg.ReconcileSchedule, err)
		}
	}

	r := &Registry{
		cfg: cfg,
		sync: catalog.NewSynchronizer(store, catalog.SyncConfig{
			Retries: cfg.SyncRetries,
			Logger:  cfg.Logger,
		}),
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		locks:    async.NewKeyedMutex(),
		newID:    randomID,
		mounts:   make(map[string]*plugins.Plugin),
		reserved: make(map[string]struct{}),
		busy:     make(map[string]int),
	}

	r.router = mux.NewRouter()
	r.router.PathPrefix("/{id}").HandlerFunc(r.dispatch)
	r.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteNotFoundError(w, "plugin not found")
	})

	return r, nil
}

// Root returns the absolute plugin root
func (r *Registry) Root() string {
	return r.cfg.Root
}

// Start scans the plugin root, reconciles the catalog and starts the
// watcher and the reconcile schedule when configured.
func (r *Registry) Start(ctx context.Context) error {
	info, err := os.Stat(r.cfg.Root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootUnavailable, r.cfg.Root)
	}

	if err := r.Scan(ctx); err != nil {
		if r.cfg.ScanPolicy == ScanFailFast {
			return err
		}
		r.log.WithError(err).Warn("some plugin directories were skipped")
	}

	if err := r.Reconcile(ctx); err != nil {
		r.log.WithError(err).Warn("catalog reconciliation failed")
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	if r.cfg.Development {
		if err := r.startWatcher(bgCtx); err != nil {
			cancel()
			return err
		}
	}

	if r.cfg.ReconcileSchedule != "" {
		r.startSchedule(bgCtx)
	}

	r.log.WithFields(logrus.Fields{
		"root":        r.cfg.Root,
		"plugins":     len(r.List()),
		"development": r.cfg.Development,
	}).Info("plugin registry started")
	return nil
}

// Close stops the watcher and the reconcile schedule
func (r *Registry) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	var err error
	if r.watcher != nil {
		err = r.watcher.Close()
	}
	r.wg.Wait()
	return err
}

// List returns the live plugins in insertion order
func (r *Registry) List() []*plugins.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*plugins.Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Get returns the live plugin with id
func (r *Registry) Get(id string) (*plugins.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return r.plugins[idx], true
}

// GetInfo returns the manifest metadata of a live plugin
func (r *Registry) GetInfo(id string) (map[string]interface{}, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", plugins.ErrNotFound, id)
	}
	return p.Infos(), nil
}

// Router returns the composite handler serving /{id}/... for every live plugin
func (r *Registry) Router() http.Handler {
	return r.router
}

// dispatch hands a request to the mounted plugin with the /{id} prefix removed
func (r *Registry) dispatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	r.mu.RLock()
	p, ok := r.mounts[id]
	r.mu.RUnlock()

	if !ok {
		httputil.WriteNotFoundError(w, "plugin not found")
		return
	}

	rest := strings.TrimPrefix(req.URL.Path, "/"+id)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		httputil.WriteNotFoundError(w, "plugin not found")
		return
	}
	if rest == "" {
		rest = "/"
	}

	inner := new(http.Request)
	*inner = *req
	inner.URL = new(url.URL)
	*inner.URL = *req.URL
	inner.URL.Path = rest
	inner.URL.RawPath = ""

	p.ServeHTTP(w, inner)
}

// register attaches p and appends it to the plugin list
func (r *Registry) register(p *plugins.Plugin) {
	r.registerAt(p, -1)
}

// registerAt attaches p and inserts it at pos of the plugin list, or
// appends it when pos is out of range. A live entry with the same id is
// replaced where it stands.
func (r *Registry) registerAt(p *plugins.Plugin, pos int) {
	p.Attach()

	r.mu.Lock()
	switch idx := r.indexLocked(p.ID()); {
	case idx >= 0:
		r.plugins[idx] = p
	case pos >= 0 && pos < len(r.plugins):
		r.plugins = slices.Insert(r.plugins, pos, p)
	default:
		r.plugins = append(r.plugins, p)
	}
	r.mounts[p.ID()] = p
	n := len(r.plugins)
	r.mu.Unlock()

	r.metrics.SetLivePlugins(n)
}

// unregister detaches the plugin with id and drops it from the mount table
// and the plugin list. It returns the plugin and its former list position.
func (r *Registry) unregister(id string) (*plugins.Plugin, int, error) {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return nil, -1, fmt.Errorf("%w: %s", plugins.ErrNotFound, id)
	}

	mounted, ok := r.mounts[id]
	if !ok {
		r.mu.Unlock()
		return nil, -1, fmt.Errorf("%w: no mount for %s", plugins.ErrDetachFailed, id)
	}

	mounted.Detach()
	delete(r.mounts, id)
	p := r.plugins[idx]
	r.plugins = slices.Delete(r.plugins, idx, idx+1)
	n := len(r.plugins)
	r.mu.Unlock()

	r.metrics.SetLivePlugins(n)
	return p, idx, nil
}

func (r *Registry) indexLocked(id string) int {
	for i, p := range r.plugins {
		if p.ID() == id {
			return i
		}
	}
	return -1
}

// findBySourceLocked returns the live plugin loaded from dir
func (r *Registry) findBySourceLocked(dir string) *plugins.Plugin {
	for _, p := range r.plugins {
		if p.SourcePath() == dir {
			return p
		}
	}
	return nil
}

// markBusy hides dir from the watcher until the returned func is called
func (r *Registry) markBusy(dir string) func() {
	r.mu.Lock()
	r.busy[dir]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.busy[dir]--; r.busy[dir] <= 0 {
				delete(r.busy, dir)
			}
			r.mu.Unlock()
		})
	}
}

func (r *Registry) isBusy(dir string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.busy[dir] > 0
}

// syncCatalog runs one catalog operation detached from the caller's
// cancellation and bounded by CatalogTimeout. Failures are logged, counted
// and passed to OnSyncError.
func (r *Registry) syncCatalog(ctx context.Context, op catalog.Operation, id string, fields map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CatalogTimeout)
	defer cancel()

	err := r.sync.Sync(ctx, op, id, fields)
	r.metrics.ObserveCatalogSync(string(op), err)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"plugin":    id,
			"operation": op,
		}).Error("catalog synchronization failed")
		if r.cfg.OnSyncError != nil {
			r.cfg.OnSyncError(id, op, err)
		}
	}
	return err
}

// load constructs a plugin from dir with the configured handler kinds
func (r *Registry) load(dir string) (*plugins.Plugin, error) {
	p, err := plugins.Load(dir, r.cfg.Handlers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(dir), err)
	}
	return p, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
