package httputil

import (
	"encoding/json"
	"net/http"
)

// errorBody is the body of every error response of the host
type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes data as the JSON body of a status response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError answers {"error": err.Error()}
func WriteError(w http.ResponseWriter, status int, err error) {
	writeErrorBody(w, status, err.Error())
}

// WriteNotFoundError answers 404 {"error": message}
func WriteNotFoundError(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusNotFound, message)
}

// WriteInternalError answers 500 with the error message
func WriteInternalError(w http.ResponseWriter, err error) {
	writeErrorBody(w, http.StatusInternalServerError, err.Error())
}

// WriteUnauthorized answers 401 {"error": message}
func WriteUnauthorized(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusUnauthorized, message)
}

// WriteCreated answers 201 with data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess answers 200 with data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

func writeErrorBody(w http.ResponseWriter, status int, message string) {
	// Headers are already sent; encoding errors only mean the client went away
	_ = WriteJSON(w, status, errorBody{Error: message})
}
