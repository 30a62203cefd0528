package plugins

import "errors"

// Lifecycle errors shared by the plugin host packages.
var (
	// ErrManifestMissing is returned when a directory or archive has no plugin.json
	ErrManifestMissing = errors.New("missing mandatory plugin manifest " + ManifestFileName)

	// ErrManifestCorrupt is returned when plugin.json cannot be parsed or has no id
	ErrManifestCorrupt = errors.New("corrupted plugin manifest " + ManifestFileName)

	// ErrNotFound is returned for operations on an id with no live plugin
	ErrNotFound = errors.New("plugin not found")

	// ErrDetachFailed is returned when a plugin's subtree is not in the mount table
	ErrDetachFailed = errors.New("detaching the plugin failed")
)
