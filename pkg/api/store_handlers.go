package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/plughost/pkg/httputil"
	"github.com/platinummonkey/plughost/pkg/registry"
)

// StoreOptions tunes the plugin store handlers
type StoreOptions struct {
	// MaxUploadBytes bounds uploaded archives, httputil.DefaultMaxUploadBytes when zero
	MaxUploadBytes int64
	Logger         *logrus.Logger
}

// StoreHandlers serves the plugin store, the catalog and the plugin subtrees
type StoreHandlers struct {
	registry  *registry.Registry
	log       *logrus.Logger
	maxUpload int64
}

// NewStoreHandlers creates handlers driving reg
func NewStoreHandlers(reg *registry.Registry, opts StoreOptions) *StoreHandlers {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = httputil.DefaultMaxUploadBytes
	}
	return &StoreHandlers{
		registry:  reg,
		log:       opts.Logger,
		maxUpload: opts.MaxUploadBytes,
	}
}

// RegisterRoutes registers the store, catalog and plugin routes
func (h *StoreHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plugin_store", h.listPlugins).Methods("GET")
	router.HandleFunc("/plugin_store", h.createPlugin).Methods("POST")
	router.HandleFunc("/plugin_store", h.clearPlugins).Methods("DELETE")
	router.HandleFunc("/plugin_store/{id}", h.getPlugin).Methods("GET")
	router.HandleFunc("/plugin_store/{id}", h.updatePlugin).Methods("POST")
	router.HandleFunc("/plugin_store/{id}", h.deletePlugin).Methods("DELETE")
	router.HandleFunc("/plugin_store/{id}/enable", h.setEnabled(true)).Methods("POST")
	router.HandleFunc("/plugin_store/{id}/disable", h.setEnabled(false)).Methods("POST")

	router.HandleFunc("/plugin_catalog", h.listCatalog).Methods("GET")

	router.PathPrefix("/plugins/").Handler(http.StripPrefix("/plugins", h.registry.Router()))
}

// listPlugins handles GET /plugin_store
func (h *StoreHandlers) listPlugins(w http.ResponseWriter, r *http.Request) {
	live := h.registry.List()
	infos := make([]map[string]interface{}, 0, len(live))
	for _, p := range live {
		info := p.Infos()
		info["loaded_at"] = p.LoadedAt().UTC().Format(time.RFC3339Nano)
		infos = append(infos, info)
	}
	httputil.WriteSuccess(w, infos)
}

// createPlugin handles POST /plugin_store
func (h *StoreHandlers) createPlugin(w http.ResponseWriter, r *http.Request) {
	data, ok := httputil.ReadUploadOrError(w, r, h.maxUpload)
	if !ok {
		return
	}

	id, err := h.registry.CreateFromArchive(r.Context(), data)
	if err != nil {
		h.log.WithError(err).Warn("plugin install failed")
		writeResult(w, http.StatusCreated, id, err)
		return
	}
	httputil.WriteCreated(w, registry.NewResult(id, nil))
}

// clearPlugins handles DELETE /plugin_store
func (h *StoreHandlers) clearPlugins(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Clear(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("clearing the plugin store failed")
	}
	writeResult(w, http.StatusOK, "", err)
}

// getPlugin handles GET /plugin_store/{id}
func (h *StoreHandlers) getPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	info, err := h.registry.GetInfo(id)
	if err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteSuccess(w, info)
}

// updatePlugin handles POST /plugin_store/{id}
func (h *StoreHandlers) updatePlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	data, ok := httputil.ReadUploadOrError(w, r, h.maxUpload)
	if !ok {
		return
	}

	err := h.registry.UpdateByID(r.Context(), id, data)
	if err != nil {
		h.log.WithError(err).WithField("plugin", id).Warn("plugin update failed")
	}
	writeResult(w, http.StatusOK, id, err)
}

// deletePlugin handles DELETE /plugin_store/{id}
func (h *StoreHandlers) deletePlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	err := h.registry.DeleteByID(r.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("plugin", id).Warn("plugin delete failed")
	}
	writeResult(w, http.StatusOK, id, err)
}

// setEnabled handles POST /plugin_store/{id}/enable and /disable
func (h *StoreHandlers) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathStringOrError(w, r, "id")
		if !ok {
			return
		}

		err := h.registry.SetEnabled(r.Context(), id, enabled)
		writeResult(w, http.StatusOK, id, err)
	}
}

// listCatalog handles GET /plugin_catalog
func (h *StoreHandlers) listCatalog(w http.ResponseWriter, r *http.Request) {
	records, err := h.registry.Catalog(r.Context())
	if err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteSuccess(w, records)
}
