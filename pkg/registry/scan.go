package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plughost/pkg/async"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/plugins"
)

// Scan loads every immediate subdirectory of the root, mounts it and syncs
// it to the catalog with an update. Directories already live are skipped.
//
// With ScanFailFast the first broken directory aborts the scan. With
// ScanContinue broken directories are skipped and returned together.
func (r *Registry) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(r.cfg.Root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnavailable, err)
	}

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || isHidden(entry.Name()) {
			continue
		}

		dir := filepath.Join(r.cfg.Root, entry.Name())
		if err := r.scanDir(ctx, dir); err != nil {
			if r.cfg.ScanPolicy == ScanFailFast {
				return fmt.Errorf("plugin scan aborted: %w", err)
			}
			r.log.WithError(err).Warnf("skipping plugin directory %s", entry.Name())
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) scanDir(ctx context.Context, dir string) error {
	r.mu.RLock()
	known := r.findBySourceLocked(dir)
	r.mu.RUnlock()
	if known != nil {
		return nil
	}

	p, err := r.load(dir)
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(p.ID())
	defer unlock()

	if live, ok := r.Get(p.ID()); ok {
		return fmt.Errorf("%w: %s in %s is already served from %s",
			ErrDuplicateID, p.ID(), filepath.Base(dir), filepath.Base(live.SourcePath()))
	}

	r.register(p)
	r.log.WithFields(logrus.Fields{"plugin": p.ID(), "dir": filepath.Base(dir)}).Info("plugin loaded")

	r.syncCatalog(ctx, catalog.OpUpdate, p.ID(), p.Manifest().CatalogFields())
	return nil
}

// Reconcile disables every catalog record without a live plugin and
// creates records for live plugins the catalog does not know yet.
// Records are never deleted here.
func (r *Registry) Reconcile(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "registry.Reconcile")
	defer span.End()

	records, err := r.sync.Store().FindAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", catalog.ErrStorageFailure, err)
	}

	known := make(map[string]bool, len(records))
	var orphaned []string
	for _, rec := range records {
		known[rec.ID] = true
		if _, live := r.Get(rec.ID); !live {
			orphaned = append(orphaned, rec.ID)
		}
	}

	var missing []*plugins.Plugin
	for _, p := range r.List() {
		if !known[p.ID()] {
			missing = append(missing, p)
		}
	}

	errs := async.Batch(ctx, orphaned, r.cfg.ReconcileWorkers, r.cfg.CatalogTimeout,
		func(ctx context.Context, id string) error {
			unlock := r.locks.Lock(id)
			defer unlock()

			if _, live := r.Get(id); live {
				return nil
			}
			return r.syncCatalog(ctx, catalog.OpDisable, id, nil)
		})

	errs = append(errs, async.Batch(ctx, missing, r.cfg.ReconcileWorkers, r.cfg.CatalogTimeout,
		func(ctx context.Context, p *plugins.Plugin) error {
			unlock := r.locks.Lock(p.ID())
			defer unlock()

			if current, live := r.Get(p.ID()); !live || current != p {
				return nil
			}
			return r.syncCatalog(ctx, catalog.OpCreate, p.ID(), p.Manifest().CatalogFields())
		})...)

	r.log.WithFields(logrus.Fields{
		"disabled": len(orphaned),
		"created":  len(missing),
		"failed":   len(errs),
	}).Debug("catalog reconciled")

	return errors.Join(errs...)
}

// startSchedule runs Reconcile on the configured cron spec
func (r *Registry) startSchedule(ctx context.Context) {
	r.cron = cron.New()
	r.cron.AddFunc(r.cfg.ReconcileSchedule, func() {
		if err := r.Reconcile(ctx); err != nil {
			r.log.WithError(err).Warn("scheduled catalog reconciliation failed")
		}
	})
	r.cron.Start()
	r.log.Infof("catalog reconciliation scheduled (%s)", r.cfg.ReconcileSchedule)
}
