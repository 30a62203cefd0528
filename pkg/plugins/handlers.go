package plugins

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plughost/pkg/httputil"
)

// HandlerFactory registers a plugin's routes on its subtree router
type HandlerFactory func(p *Plugin, r *mux.Router) error

// Handlers maps manifest handler kinds to factories
type Handlers map[string]HandlerFactory

// DefaultHandlers returns the built-in handler kinds
func DefaultHandlers() Handlers {
	return Handlers{
		DefaultHandlerKind: StaticHandler,
	}
}

// With returns a copy of h with an extra kind registered
func (h Handlers) With(kind string, factory HandlerFactory) Handlers {
	out := make(Handlers, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	out[kind] = factory
	return out
}

// StaticHandler serves the manifest infos and the files of the plugin directory
func StaticHandler(p *Plugin, r *mux.Router) error {
	r.HandleFunc("/", p.serveInfo).Methods("GET")
	r.HandleFunc("/info", p.serveInfo).Methods("GET")
	r.HandleFunc("/files/{path:.*}", p.serveFile).Methods("GET")
	return nil
}

// serveInfo handles GET / and GET /info
func (p *Plugin) serveInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, p.Infos())
}

// serveFile handles GET /files/{path}
func (p *Plugin) serveFile(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]
	if !servablePath(rel) {
		httputil.WriteNotFoundError(w, "file not found")
		return
	}

	full := filepath.Join(p.sourcePath, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		httputil.WriteNotFoundError(w, "file not found")
		return
	}

	http.ServeFile(w, r, full)
}

// servablePath rejects traversal, hidden files and the manifest itself
func servablePath(rel string) bool {
	if rel == "" || rel == ManifestFileName {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean("/" + rel))
	if clean != "/"+rel {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == "" || strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}
