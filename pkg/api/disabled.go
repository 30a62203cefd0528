package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plughost/pkg/httputil"
)

// DisabledHandlers answers the store and plugin paths when the plugin root
// could not be used at startup
type DisabledHandlers struct {
	message string
}

// NewDisabledHandlers creates handlers reporting reason on every request
func NewDisabledHandlers(reason error) *DisabledHandlers {
	return &DisabledHandlers{
		message: fmt.Sprintf("Plugin store is disabled: [%v]", reason),
	}
}

// RegisterRoutes registers the disabled store routes
func (h *DisabledHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/plugin_store", h)
	router.PathPrefix("/plugin_store/").Handler(h)
	router.Handle("/plugin_catalog", h)
	router.PathPrefix("/plugins/").Handler(h)
}

// ServeHTTP implements http.Handler
func (h *DisabledHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httputil.WriteUnauthorized(w, h.message)
}
