package httputil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"
)

// DefaultMaxUploadBytes bounds archive uploads when no limit is given
const DefaultMaxUploadBytes int64 = 64 << 20

const multipartOverhead = 64 << 10

// ErrNoUpload is returned when a request carries no archive
var ErrNoUpload = errors.New("no archive uploaded")

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	vars := mux.Vars(r)
	str := vars[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParsePathStringOrError extracts a string path parameter and writes error on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return "", false
	}
	return val, true
}

// ReadUpload returns the uploaded archive bytes.
// Multipart requests yield the first file part whatever its field name;
// any other content type is read as the raw request body.
func ReadUpload(r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "multipart/form-data" {
		// leave room for part headers and boundaries
		body := io.LimitReader(r.Body, maxBytes+multipartOverhead)
		return readFirstPart(multipart.NewReader(body, params["boundary"]), maxBytes)
	}

	body := io.LimitReader(r.Body, maxBytes+1)

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, ErrNoUpload
	}
	return data, nil
}

// ReadUploadOrError reads the uploaded archive and writes a 400 on failure
func ReadUploadOrError(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, bool) {
	data, err := ReadUpload(r, maxBytes)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return data, true
}

func readFirstPart(mr *multipart.Reader, maxBytes int64) ([]byte, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, ErrNoUpload
		}
		if err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		var buf bytes.Buffer
		n, err := io.Copy(&buf, io.LimitReader(part, maxBytes+1))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		if n > maxBytes {
			return nil, fmt.Errorf("upload exceeds %d bytes", maxBytes)
		}
		if n == 0 {
			return nil, ErrNoUpload
		}
		return buf.Bytes(), nil
	}
}
