// Package async provides safe concurrent execution primitives for the plugin host.
//
// # Overview
//
// This package handles background task execution with panic recovery, timeout
// enforcement and error collection, plus a keyed mutex used to serialize
// lifecycle transitions per plugin id.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "archive backup", log, func(ctx context.Context) error {
//		return backup.Put(ctx, id, data)
//	})
//
// Batch: Bounded concurrent batch processing
//
//	errs := async.Batch(ctx, orphanIDs, 4, 10*time.Second, func(ctx context.Context, id string) error {
//		return sync.Sync(ctx, catalog.OpDisable, id, nil)
//	})
//
// KeyedMutex: One holder per key, independent keys never block each other
//
//	unlock := locks.Lock(pluginID)
//	defer unlock()
//
// # Related Packages
//
//   - pkg/registry: Serializes transitions per plugin id, reconciles in batches
package async
