// Package archivetest builds plugin archives for tests.
package archivetest

import (
	"archive/zip"
	"bytes"
	"sort"
)

// TB is the part of testing.TB the helpers need. *rapid.T satisfies it too.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Zip returns a zip archive holding files, keyed by entry name.
// Entries are written in name order.
func Zip(t TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(files[name])); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// Plugin returns an archive with a plugin.json built from manifest plus extra files
func Plugin(t TB, manifest string, extra map[string]string) []byte {
	t.Helper()

	files := map[string]string{"plugin.json": manifest}
	for k, v := range extra {
		files[k] = v
	}
	return Zip(t, files)
}
