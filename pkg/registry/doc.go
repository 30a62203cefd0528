// Package registry owns the live plugins of a host.
//
// A Registry discovers plugins under a root directory, mounts each one on a
// composite router under /{id}, and keeps the catalog in step with what is
// live. Plugins can be installed, updated and removed at runtime from zip
// archives; in development mode a filesystem watcher reloads plugins edited
// in place.
//
// Lifecycle transitions for one plugin id never overlap. The mount table and
// the ordered plugin list change together under a single lock.
//
// Catalog writes are reported, never rolled back: a failed sync leaves the
// router as it is and goes to the log, the metrics and Config.OnSyncError.
//
// Typical use:
//
//	reg, err := registry.New(registry.Config{Root: "/srv/plugins"}, store)
//	if err != nil {
//		return err
//	}
//	if err := reg.Start(ctx); err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	http.Handle("/plugins/", http.StripPrefix("/plugins", reg.Router()))
package registry
