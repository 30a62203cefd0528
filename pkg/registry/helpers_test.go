package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plughost/pkg/catalog"
)

// writePlugin creates {root}/{dir} with a plugin.json and extra files
func writePlugin(t *testing.T, root, dir, manifest string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "plugin.json"), []byte(manifest), 0644))
	for name, content := range files {
		full := filepath.Join(path, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return path
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestRegistry builds a registry over a memory store without starting it
func newTestRegistry(t *testing.T, root string, mutate ...func(*Config)) (*Registry, *catalog.MemoryStore) {
	t.Helper()

	cfg := Config{Root: root, Logger: quietLogger()}
	for _, m := range mutate {
		m(&cfg)
	}

	store := catalog.NewMemoryStore()
	reg, err := New(cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	return reg, store
}

// startedRegistry builds and starts a registry
func startedRegistry(t *testing.T, root string, mutate ...func(*Config)) (*Registry, *catalog.MemoryStore) {
	t.Helper()

	reg, store := newTestRegistry(t, root, mutate...)
	require.NoError(t, reg.Start(context.Background()))
	return reg, store
}

func ids(reg *Registry) []string {
	var out []string
	for _, p := range reg.List() {
		out = append(out, p.ID())
	}
	return out
}

// get performs a GET on the registry router
func get(t *testing.T, reg *Registry, path string) (int, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	reg.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec.Code, body
}

func record(t *testing.T, store catalog.Store, id string) *catalog.Record {
	t.Helper()

	rec, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return rec
}

// failingStore fails every write
type failingStore struct {
	*catalog.MemoryStore
}

var errStoreDown = errors.New("store down")

func (failingStore) Replace(context.Context, catalog.Record) error { return errStoreDown }

func (failingStore) SetEnabled(context.Context, string, bool) error { return errStoreDown }

func (failingStore) Delete(context.Context, string) error { return errStoreDown }

// syncErrors collects OnSyncError calls
type syncErrors struct {
	mu    sync.Mutex
	calls []catalog.Operation
}

func (s *syncErrors) hook(id string, op catalog.Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *syncErrors) ops() []catalog.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.Operation{}, s.calls...)
}
