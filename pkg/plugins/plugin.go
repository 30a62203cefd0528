package plugins

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Plugin is one discovered package with its routable subtree
type Plugin struct {
	manifest   *Manifest
	sourcePath string
	router     *mux.Router
	attached   atomic.Bool
	loadedAt   time.Time
}

// Load reads the manifest in sourcePath and builds the plugin's subtree
// using the handler kind the manifest asks for.
func Load(sourcePath string, handlers Handlers) (*Plugin, error) {
	manifest, err := LoadManifestFromDir(sourcePath)
	if err != nil {
		return nil, err
	}

	return New(manifest, sourcePath, handlers)
}

// New builds a plugin from an already parsed manifest
func New(manifest *Manifest, sourcePath string, handlers Handlers) (*Plugin, error) {
	if manifest == nil || manifest.ID == "" {
		return nil, fmt.Errorf("%w: no usable id field", ErrManifestCorrupt)
	}
	if handlers == nil {
		handlers = DefaultHandlers()
	}

	kind := manifest.HandlerKind()
	factory, ok := handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handler kind %q", ErrManifestCorrupt, kind)
	}

	p := &Plugin{
		manifest:   manifest,
		sourcePath: sourcePath,
		router:     mux.NewRouter(),
		loadedAt:   time.Now(),
	}

	if err := factory(p, p.router); err != nil {
		return nil, fmt.Errorf("failed to build %s handler for plugin %s: %w", kind, manifest.ID, err)
	}

	return p, nil
}

// ID returns the plugin id
func (p *Plugin) ID() string {
	return p.manifest.ID
}

// Manifest returns the plugin manifest
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// SourcePath returns the directory the plugin was loaded from
func (p *Plugin) SourcePath() string {
	return p.sourcePath
}

// LoadedAt returns when the plugin was constructed
func (p *Plugin) LoadedAt() time.Time {
	return p.loadedAt
}

// Attach activates the handler subtree. Calling it again has no effect.
func (p *Plugin) Attach() {
	p.attached.Store(true)
}

// Detach deactivates the handler subtree. Safe on an unattached plugin.
func (p *Plugin) Detach() {
	p.attached.Store(false)
}

// Attached reports whether the subtree is active
func (p *Plugin) Attached() bool {
	return p.attached.Load()
}

// Infos returns the manifest metadata without the code payload
func (p *Plugin) Infos() map[string]interface{} {
	return p.manifest.Info()
}

// ServeHTTP implements http.Handler.
// Paths are relative to the plugin mount point.
func (p *Plugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.attached.Load() {
		http.NotFound(w, r)
		return
	}
	p.router.ServeHTTP(w, r)
}
