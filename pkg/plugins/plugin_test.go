package plugins

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestPlugin(t *testing.T) *Plugin {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "alpha-1.0")
	writeManifest(t, dir, `{"id":"a1","name":"alpha","version":"1.0","server.js":"code"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('alpha')"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("hidden"), 0644))

	p, err := Load(dir, nil)
	require.NoError(t, err)
	return p
}

func serve(p http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLoad(t *testing.T) {
	p := loadTestPlugin(t)

	assert.Equal(t, "a1", p.ID())
	assert.Equal(t, "alpha", p.Manifest().Name)
	assert.False(t, p.Attached())
	assert.False(t, p.LoadedAt().IsZero())
	assert.Equal(t, "alpha-1.0", filepath.Base(p.SourcePath()))
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		_, err := Load(t.TempDir(), nil)
		assert.ErrorIs(t, err, ErrManifestMissing)
	})

	t.Run("unknown handler kind", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, `{"id":"a1","handler":"wasm"}`)
		_, err := Load(dir, nil)
		assert.ErrorIs(t, err, ErrManifestCorrupt)
		assert.Contains(t, err.Error(), "wasm")
	})

	t.Run("nil manifest", func(t *testing.T) {
		_, err := New(nil, t.TempDir(), nil)
		assert.ErrorIs(t, err, ErrManifestCorrupt)
	})
}

func TestPlugin_AttachDetach(t *testing.T) {
	p := loadTestPlugin(t)

	// Detached plugins do not answer
	assert.Equal(t, http.StatusNotFound, serve(p, "/").Code)

	// Detach before attach is a no-op
	p.Detach()
	assert.False(t, p.Attached())

	p.Attach()
	first := serve(p, "/info")
	p.Attach()
	second := serve(p, "/info")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	p.Detach()
	p.Detach()
	assert.Equal(t, http.StatusNotFound, serve(p, "/info").Code)
}

func TestPlugin_Infos(t *testing.T) {
	p := loadTestPlugin(t)
	p.Attach()

	rec := serve(p, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "a1", info["id"])
	assert.NotContains(t, info, "server.js")
	assert.Equal(t, p.Infos(), p.Manifest().Info())
}

func TestPlugin_ServeFiles(t *testing.T) {
	p := loadTestPlugin(t)
	p.Attach()

	tests := []struct {
		name string
		path string
		code int
	}{
		{"asset", "/files/app.js", http.StatusOK},
		{"manifest hidden", "/files/plugin.json", http.StatusNotFound},
		{"dotfile hidden", "/files/.secret", http.StatusNotFound},
		{"missing", "/files/nope.js", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, serve(p, tt.path).Code)
		})
	}
}

func TestHandlers_With(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id":"echo1","handler":"echo"}`)

	handlers := DefaultHandlers().With("echo", func(p *Plugin, r *mux.Router) error {
		r.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(p.ID()))
		})
		return nil
	})
	assert.Len(t, DefaultHandlers(), 1)

	p, err := Load(dir, handlers)
	require.NoError(t, err)
	p.Attach()

	rec := serve(p, "/echo")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo1", rec.Body.String())
}

func TestServablePath(t *testing.T) {
	assert.True(t, servablePath("app.js"))
	assert.True(t, servablePath("assets/app.js"))
	assert.False(t, servablePath(""))
	assert.False(t, servablePath("plugin.json"))
	assert.False(t, servablePath("assets/.hidden"))
	assert.False(t, servablePath("../etc/passwd"))
	assert.False(t, servablePath("a//b"))
}
