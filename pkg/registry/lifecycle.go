package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/plughost/pkg/archive"
	"github.com/platinummonkey/plughost/pkg/async"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/plugins"
)

const backupTimeout = 2 * time.Minute

// CreateFromArchive installs a plugin from zip data and returns its id.
//
// The manifest id is kept unless a live plugin already uses it, in which
// case a fresh random id is assigned and written back into plugin.json. The
// package lands in {root}/{name}-{version}, or {name}-{version}-{id} when
// that folder is taken.
func (r *Registry) CreateFromArchive(ctx context.Context, data []byte) (id string, err error) {
	ctx, span := tracer.Start(ctx, "registry.CreateFromArchive",
		trace.WithAttributes(attribute.Int("archive.size", len(data))))
	defer func() { r.finishSpan(span, "create", err) }()

	a, err := archive.Open(data)
	if err != nil {
		return "", err
	}
	manifest := a.Manifest()
	if err := r.checkHandler(manifest); err != nil {
		return "", err
	}

	id, release := r.reserveID(manifest.ID)
	defer release()
	span.SetAttributes(attribute.String("plugin.id", id))

	unlock := r.locks.Lock(id)
	defer unlock()

	if id != manifest.ID {
		r.log.WithFields(logrus.Fields{"requested": manifest.ID, "assigned": id}).Info("plugin id already in use, assigned a new one")
	}
	manifest.SetID(id)

	staging, err := r.stage(a)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	target, done, err := r.place(staging, manifest.FolderName(), manifest.FolderName()+"-"+id)
	if err != nil {
		return "", fmt.Errorf("failed to install plugin %s: %w", id, err)
	}
	defer done()

	p, err := r.load(target)
	if err != nil {
		os.RemoveAll(target)
		return "", err
	}

	r.register(p)
	r.log.WithFields(logrus.Fields{"plugin": id, "dir": filepath.Base(target)}).Info("plugin installed")

	r.syncCatalog(ctx, catalog.OpCreate, id, manifest.CatalogFields())
	r.backup(ctx, id, data)
	return id, nil
}

// UpdateByID replaces the live plugin id with the package in data.
// The new package is installed in {root}/{id} and keeps id whatever its
// manifest says. The catalog record is updated in place, keeping its users.
func (r *Registry) UpdateByID(ctx context.Context, id string, data []byte) (err error) {
	ctx, span := tracer.Start(ctx, "registry.UpdateByID",
		trace.WithAttributes(attribute.String("plugin.id", id), attribute.Int("archive.size", len(data))))
	defer func() { r.finishSpan(span, "update", err) }()

	a, err := archive.Open(data)
	if err != nil {
		return err
	}
	manifest := a.Manifest()
	if err := r.checkHandler(manifest); err != nil {
		return err
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	if _, ok := r.Get(id); !ok {
		return fmt.Errorf("%w: %s", plugins.ErrNotFound, id)
	}

	manifest.SetID(id)
	staging, err := r.stage(a)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	old, pos, err := r.unregister(id)
	if err != nil {
		return err
	}

	oldDone := r.markBusy(old.SourcePath())
	defer oldDone()
	if err := os.RemoveAll(old.SourcePath()); err != nil {
		r.log.WithError(err).Warnf("failed to remove previous directory of %s", id)
	}

	target, done, err := r.place(staging, id, id+"-"+randomID())
	if err != nil {
		r.syncCatalog(ctx, catalog.OpDisable, id, nil)
		return fmt.Errorf("failed to install update of %s: %w", id, err)
	}
	defer done()

	p, err := r.load(target)
	if err != nil {
		os.RemoveAll(target)
		r.syncCatalog(ctx, catalog.OpDisable, id, nil)
		return err
	}

	r.registerAt(p, pos)
	r.log.WithFields(logrus.Fields{"plugin": id, "dir": filepath.Base(target)}).Info("plugin updated")

	r.syncCatalog(ctx, catalog.OpUpdate, id, manifest.CatalogFields())
	r.backup(ctx, id, data)
	return nil
}

// DeleteByID unmounts the live plugin id, removes its directory and its
// catalog record.
func (r *Registry) DeleteByID(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "registry.DeleteByID",
		trace.WithAttributes(attribute.String("plugin.id", id)))
	defer func() { r.finishSpan(span, "delete", err) }()

	unlock := r.locks.Lock(id)
	defer unlock()

	p, _, err := r.unregister(id)
	if err != nil {
		return err
	}

	done := r.markBusy(p.SourcePath())
	defer done()
	if err := os.RemoveAll(p.SourcePath()); err != nil {
		r.log.WithError(err).Warnf("failed to remove directory of %s", id)
	}

	r.log.WithField("plugin", id).Info("plugin deleted")

	r.syncCatalog(ctx, catalog.OpDelete, id, nil)
	if r.cfg.Backup != nil {
		async.SafeGo(context.WithoutCancel(ctx), backupTimeout, "remove archive backup "+id, r.log,
			func(ctx context.Context) error {
				return r.cfg.Backup.Remove(ctx, id)
			})
	}
	return nil
}

// Clear deletes every live plugin
func (r *Registry) Clear(ctx context.Context) error {
	var errs []error
	for _, p := range r.List() {
		err := r.DeleteByID(ctx, p.ID())
		if err != nil && !errors.Is(err, plugins.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetEnabled flips the enabled flag of a catalog record.
// Records without a live plugin can be toggled too.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	if _, err := r.sync.Store().FindByID(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", plugins.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", catalog.ErrStorageFailure, err)
	}

	op := catalog.OpDisable
	if enabled {
		op = catalog.OpEnable
	}
	return r.syncCatalog(ctx, op, id, nil)
}

// Catalog returns every catalog record
func (r *Registry) Catalog(ctx context.Context) ([]catalog.Record, error) {
	records, err := r.sync.Store().FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrStorageFailure, err)
	}
	return records, nil
}

// reserveID returns want, or a fresh random id when want is live or being
// installed. The id stays reserved until release is called.
func (r *Registry) reserveID(want string) (string, func()) {
	r.mu.Lock()
	id := want
	for r.takenLocked(id) {
		id = r.newID()
	}
	r.reserved[id] = struct{}{}
	r.mu.Unlock()

	return id, func() {
		r.mu.Lock()
		delete(r.reserved, id)
		r.mu.Unlock()
	}
}

func (r *Registry) takenLocked(id string) bool {
	if _, ok := r.reserved[id]; ok {
		return true
	}
	return r.indexLocked(id) >= 0
}

// stage extracts a into a hidden directory of the root and writes the
// manifest back with its final id
func (r *Registry) stage(a *archive.Archive) (string, error) {
	staging, err := os.MkdirTemp(r.cfg.Root, ".staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := a.Extract(staging); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := plugins.SaveManifest(a.Manifest(), staging); err != nil {
		os.RemoveAll(staging)
		return "", err
	}

	// MkdirTemp creates 0700 directories
	if err := os.Chmod(staging, 0755); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("failed to prepare staging directory: %w", err)
	}
	return staging, nil
}

// place renames staging to the first free candidate folder of the root.
// Candidates must name an immediate, non-hidden child of the root.
// The returned func releases the watcher's busy mark on the folder.
func (r *Registry) place(staging string, candidates ...string) (string, func(), error) {
	r.placeMu.Lock()
	defer r.placeMu.Unlock()

	for _, name := range candidates {
		target := filepath.Join(r.cfg.Root, name)
		if filepath.Dir(target) != r.cfg.Root || isHidden(filepath.Base(target)) {
			return "", nil, fmt.Errorf("%w: folder %q is not a directory of the plugin root", plugins.ErrManifestCorrupt, name)
		}
		if exists(target) {
			continue
		}

		done := r.markBusy(target)
		if err := os.Rename(staging, target); err != nil {
			done()
			return "", nil, err
		}
		return target, done, nil
	}
	return "", nil, fmt.Errorf("plugin folder %s already exists", candidates[0])
}

func (r *Registry) checkHandler(m *plugins.Manifest) error {
	if _, ok := r.cfg.Handlers[m.HandlerKind()]; !ok {
		return fmt.Errorf("%w: unknown handler kind %q", plugins.ErrManifestCorrupt, m.HandlerKind())
	}
	return nil
}

func (r *Registry) backup(ctx context.Context, id string, data []byte) {
	if r.cfg.Backup == nil {
		return
	}
	async.SafeGo(context.WithoutCancel(ctx), backupTimeout, "archive backup "+id, r.log,
		func(ctx context.Context) error {
			return r.cfg.Backup.Save(ctx, id, data)
		})
}

func (r *Registry) finishSpan(span trace.Span, op string, err error) {
	r.metrics.ObserveLifecycle(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	span.End()
}
