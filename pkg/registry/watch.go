package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/plugins"
	"github.com/platinummonkey/plughost/pkg/watcher"
)

// Watch event outcomes, reported to Metrics.ObserveWatchEvent
const (
	watchIgnored  = "ignored"
	watchCreated  = "created"
	watchReloaded = "reloaded"
	watchOrphaned = "orphaned"
	watchFailed   = "failed"
)

func (r *Registry) startWatcher(ctx context.Context) error {
	w, err := watcher.New(r.cfg.Root, watcher.Options{
		Debounce: r.cfg.WatchDebounce,
		Logger:   r.log,
	})
	if err != nil {
		return fmt.Errorf("failed to start plugin watcher: %w", err)
	}
	r.watcher = w

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := w.Run(ctx, func(e watcher.Event) {
			r.HandleEvent(ctx, e)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.WithError(err).Error("plugin watcher stopped")
		}
	}()

	r.log.Infof("watching %s for plugin changes", r.cfg.Root)
	return nil
}

// HandleEvent applies one watcher event:
//
//   - a vanished directory orphans the plugin loaded from it
//   - a directory without a readable manifest is ignored
//   - a manifest id already live is reloaded from the directory
//   - an unknown manifest id is loaded as a new plugin
func (r *Registry) HandleEvent(ctx context.Context, e watcher.Event) {
	action := r.handleEvent(ctx, e)
	r.metrics.ObserveWatchEvent(action)
}

func (r *Registry) handleEvent(ctx context.Context, e watcher.Event) string {
	log := r.log.WithFields(logrus.Fields{"dir": e.Name, "op": e.Op.String()})

	if isHidden(e.Name) || r.isBusy(e.Dir) {
		return watchIgnored
	}

	manifest, err := plugins.LoadManifestFromDir(e.Dir)
	if err != nil {
		if !exists(e.Dir) {
			return r.orphan(ctx, e.Dir, log)
		}
		log.WithError(err).Debug("ignoring plugin directory without a usable manifest")
		return watchIgnored
	}

	id := manifest.ID
	unlock := r.locks.Lock(id)
	defer unlock()

	if r.isBusy(e.Dir) {
		return watchIgnored
	}

	r.mu.RLock()
	_, reserved := r.reserved[id]
	r.mu.RUnlock()

	live, ok := r.Get(id)
	if !ok {
		if reserved {
			return watchIgnored
		}
		return r.watchCreate(ctx, e.Dir, log)
	}

	if live.SourcePath() != e.Dir && exists(live.SourcePath()) {
		log.Warnf("ignoring %s: plugin %s is already served from %s", e.Name, id, filepath.Base(live.SourcePath()))
		return watchIgnored
	}

	// The directory itself appearing where the plugin already lives
	if live.SourcePath() == e.Dir && e.Path == e.Dir && e.Op == fsnotify.Create {
		return watchIgnored
	}

	return r.watchReload(ctx, id, e.Dir, log)
}

func (r *Registry) watchCreate(ctx context.Context, dir string, log *logrus.Entry) string {
	p, err := r.load(dir)
	if err != nil {
		log.WithError(err).Warn("failed to load plugin")
		return watchFailed
	}

	r.register(p)
	log.WithField("plugin", p.ID()).Info("plugin added")
	r.syncCatalog(ctx, catalog.OpCreate, p.ID(), p.Manifest().CatalogFields())
	return watchCreated
}

func (r *Registry) watchReload(ctx context.Context, id, dir string, log *logrus.Entry) string {
	if !exists(dir) {
		return watchIgnored
	}

	_, pos, err := r.unregister(id)
	if err != nil {
		log.WithError(err).Warnf("failed to detach plugin %s for reload", id)
		return watchFailed
	}

	p, err := r.load(dir)
	if err != nil {
		log.WithError(err).Warnf("failed to reload plugin %s", id)
		r.syncCatalog(ctx, catalog.OpDisable, id, nil)
		return watchFailed
	}

	r.registerAt(p, pos)
	log.WithField("plugin", id).Info("plugin reloaded")
	r.syncCatalog(ctx, catalog.OpUpdate, id, p.Manifest().CatalogFields())
	return watchReloaded
}

// orphan unmounts the plugin whose directory disappeared and disables its record
func (r *Registry) orphan(ctx context.Context, dir string, log *logrus.Entry) string {
	r.mu.RLock()
	p := r.findBySourceLocked(dir)
	r.mu.RUnlock()
	if p == nil {
		return watchIgnored
	}

	id := p.ID()
	unlock := r.locks.Lock(id)
	defer unlock()

	// Re-check under the id lock, a concurrent transition may have won
	if current, ok := r.Get(id); !ok || current != p || exists(dir) {
		return watchIgnored
	}

	if _, _, err := r.unregister(id); err != nil {
		log.WithError(err).Warnf("failed to detach orphaned plugin %s", id)
		return watchFailed
	}

	log.WithField("plugin", id).Info("plugin directory removed, plugin detached")
	r.syncCatalog(ctx, catalog.OpDisable, id, nil)
	return watchOrphaned
}
