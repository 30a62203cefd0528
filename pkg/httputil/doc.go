// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON responses, error responses,
// path parameter parsing, archive upload reading and common middleware.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, plugins)
//	httputil.WriteCreated(w, result)
//
// Error responses use the {"error": "..."} shape:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteNotFoundError(w, "plugin not found")
//	httputil.WriteUnauthorized(w, "Plugin store is disabled")
//
// # Uploads
//
// Archives arrive either as multipart/form-data (first file part, any field
// name) or as a raw request body:
//
//	data, ok := httputil.ReadUploadOrError(w, r, maxBytes)
//	if !ok {
//		return // Error response already written
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(log),
//		httputil.LoggingMiddleware(log),
//	)(router)
package httputil
