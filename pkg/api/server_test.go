package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/plughost/pkg/archive"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/httputil"
	"github.com/platinummonkey/plughost/pkg/plugins"
	"github.com/platinummonkey/plughost/pkg/registry"
)

type routeFunc func(*mux.Router)

func (f routeFunc) RegisterRoutes(r *mux.Router) { f(r) }

func TestServer_Middleware(t *testing.T) {
	routes := routeFunc(func(r *mux.Router) {
		r.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteSuccess(w, map[string]string{"request_id": httputil.GetRequestID(r.Context())})
		})
		r.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	server := NewServer(quietLogger(), []RouteRegistrar{routes}, tag("first"), tag("second"))

	t.Run("request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(httputil.RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "req-42", rec.Header().Get(httputil.RequestIDHeader))
		assert.JSONEq(t, `{"request_id":"req-42"}`, rec.Body.String())
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("generated request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

		assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))
	})

	t.Run("panic recovered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "internal server error")
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
	})
}

func TestDisabledHandlers(t *testing.T) {
	server := NewServer(quietLogger(), []RouteRegistrar{
		NewDisabledHandlers(fmt.Errorf("%w: /srv/plugins", registry.ErrRootUnavailable)),
	})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/plugin_store"},
		{http.MethodPost, "/plugin_store"},
		{http.MethodDelete, "/plugin_store/a1"},
		{http.MethodPost, "/plugin_store/a1/enable"},
		{http.MethodGet, "/plugin_catalog"},
		{http.MethodGet, "/plugins/a1/info"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Plugin store is disabled: [plugin root unavailable: /srv/plugins]"}`, rec.Body.String())
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fmt.Errorf("%w: a1", plugins.ErrNotFound), http.StatusNotFound},
		{"manifest missing", plugins.ErrManifestMissing, http.StatusBadRequest},
		{"manifest corrupt", fmt.Errorf("%w: bad json", plugins.ErrManifestCorrupt), http.StatusBadRequest},
		{"invalid archive", archive.ErrInvalidArchive, http.StatusBadRequest},
		{"unsafe archive", archive.ErrUnsafeArchive, http.StatusBadRequest},
		{"no upload", httputil.ErrNoUpload, http.StatusBadRequest},
		{"duplicate id", registry.ErrDuplicateID, http.StatusBadRequest},
		{"detach failed", plugins.ErrDetachFailed, http.StatusConflict},
		{"storage failure", fmt.Errorf("%w: replace a1", catalog.ErrStorageFailure), http.StatusServiceUnavailable},
		{"joined", errors.Join(errors.New("disk"), plugins.ErrNotFound), http.StatusNotFound},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
