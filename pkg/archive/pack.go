package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/plughost/pkg/plugins"
)

// Pack zips a plugin directory, skipping hidden files.
// The directory must contain a valid manifest.
func Pack(dir string) ([]byte, error) {
	if _, err := plugins.LoadManifestFromDir(dir); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", dir, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", dir, err)
	}
	return buf.Bytes(), nil
}
