package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/plughost/pkg/archive"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/httputil"
	"github.com/platinummonkey/plughost/pkg/plugins"
	"github.com/platinummonkey/plughost/pkg/registry"
)

// HTTPStatus maps a lifecycle error to a response status
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, plugins.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, plugins.ErrManifestMissing),
		errors.Is(err, plugins.ErrManifestCorrupt),
		errors.Is(err, archive.ErrInvalidArchive),
		errors.Is(err, archive.ErrUnsafeArchive),
		errors.Is(err, httputil.ErrNoUpload),
		errors.Is(err, registry.ErrDuplicateID):
		return http.StatusBadRequest
	case errors.Is(err, plugins.ErrDetachFailed):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrStorageFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeResult writes a lifecycle outcome with the status matching err
func writeResult(w http.ResponseWriter, okStatus int, id string, err error) {
	status := okStatus
	if err != nil {
		status = HTTPStatus(err)
	}
	httputil.WriteJSON(w, status, registry.NewResult(id, err))
}
