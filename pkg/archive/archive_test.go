package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plughost/pkg/archive/archivetest"
	"github.com/platinummonkey/plughost/pkg/plugins"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantErr  error
		wantID   string
		wantRoot string
	}{
		{
			name:   "manifest at top level",
			files:  map[string]string{"plugin.json": `{"id":"a1","name":"alpha","version":"1.0"}`, "app.js": "x"},
			wantID: "a1",
		},
		{
			name:     "manifest in a folder",
			files:    map[string]string{"alpha-1.0/plugin.json": `{"id":"a1"}`, "alpha-1.0/app.js": "x"},
			wantID:   "a1",
			wantRoot: "alpha-1.0/",
		},
		{
			name: "shallowest manifest wins",
			files: map[string]string{
				"pkg/plugin.json":            `{"id":"outer"}`,
				"pkg/vendor/dep/plugin.json": `{"id":"inner"}`,
			},
			wantID:   "outer",
			wantRoot: "pkg/",
		},
		{
			name:    "no manifest",
			files:   map[string]string{"app.js": "x"},
			wantErr: plugins.ErrManifestMissing,
		},
		{
			name:    "unparsable manifest",
			files:   map[string]string{"plugin.json": `{"id":`},
			wantErr: plugins.ErrManifestCorrupt,
		},
		{
			name:    "manifest without id",
			files:   map[string]string{"plugin.json": `{"name":"alpha"}`},
			wantErr: plugins.ErrManifestCorrupt,
		},
		{
			name:    "traversal entry",
			files:   map[string]string{"plugin.json": `{"id":"a1"}`, "../evil.sh": "x"},
			wantErr: ErrUnsafeArchive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(archivetest.Zip(t, tt.files))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, a.Manifest().ID)
			assert.Equal(t, tt.wantRoot, a.Root())
		})
	}
}

func TestOpen_NotAZip(t *testing.T) {
	_, err := Open([]byte("definitely not a zip"))
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestExtract(t *testing.T) {
	data := archivetest.Zip(t, map[string]string{
		"alpha-1.0/plugin.json":      `{"id":"a1"}`,
		"alpha-1.0/static/app.js":    "console.log(1)",
		"alpha-1.0/static/style.css": "body{}",
		"unrelated/readme.md":        "outside the package root",
	})

	a, err := Open(data)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, a.Extract(dest))

	got, err := os.ReadFile(filepath.Join(dest, "static", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(got))

	m, err := plugins.LoadManifestFromDir(dest)
	require.NoError(t, err)
	assert.Equal(t, "a1", m.ID)

	_, err = os.Stat(filepath.Join(dest, "unrelated"))
	assert.True(t, os.IsNotExist(err))
}

func TestPack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(`{"id":"a1","name":"alpha","version":"1.0"}`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "static"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "static", "app.js"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))

	data, err := Pack(dir)
	require.NoError(t, err)

	a, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, "alpha", a.Manifest().Name)

	dest := t.TempDir()
	require.NoError(t, a.Extract(dest))
	assert.FileExists(t, filepath.Join(dest, "static", "app.js"))
	assert.NoFileExists(t, filepath.Join(dest, ".git", "HEAD"))
}

func TestPack_MissingManifest(t *testing.T) {
	_, err := Pack(t.TempDir())
	assert.ErrorIs(t, err, plugins.ErrManifestMissing)
}
