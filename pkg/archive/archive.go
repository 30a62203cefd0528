package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/plughost/pkg/plugins"
)

// MaxExtractedBytes bounds the uncompressed size of a single archive
const MaxExtractedBytes int64 = 512 << 20

var (
	// ErrInvalidArchive is returned for data that is not a readable zip file
	ErrInvalidArchive = errors.New("invalid plugin archive")

	// ErrUnsafeArchive is returned for entries escaping the extraction directory
	ErrUnsafeArchive = errors.New("unsafe plugin archive entry")
)

// Archive is a parsed plugin archive
type Archive struct {
	reader   *zip.Reader
	root     string
	manifest *plugins.Manifest
}

// Open parses data as a zip archive and reads its manifest
func Open(data []byte) (*Archive, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeArchive, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	for _, f := range reader.File {
		if _, err := entryPath(f.Name); err != nil {
			return nil, err
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("%w: symlink %s", ErrUnsafeArchive, f.Name)
		}
	}

	entry := findManifest(reader.File)
	if entry == nil {
		return nil, plugins.ErrManifestMissing
	}

	raw, err := readEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugins.ErrManifestCorrupt, err)
	}

	manifest, err := plugins.ParseManifest(raw)
	if err != nil {
		return nil, err
	}

	root := path.Dir(strings.TrimPrefix(entry.Name, "/"))
	if root == "." {
		root = ""
	} else {
		root += "/"
	}

	return &Archive{
		reader:   reader,
		root:     root,
		manifest: manifest,
	}, nil
}

// Manifest returns the manifest found in the archive
func (a *Archive) Manifest() *plugins.Manifest {
	return a.manifest
}

// Root returns the in-archive directory of the manifest, "" or "dir/"
func (a *Archive) Root() string {
	return a.root
}

// Extract writes the package root of the archive into dest.
// Entries outside the package root are skipped.
func (a *Archive) Extract(dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	var written int64
	for _, f := range a.reader.File {
		name, _ := entryPath(f.Name)
		if !strings.HasPrefix(name, a.root) {
			continue
		}
		rel := strings.TrimPrefix(name, a.root)
		if rel == "" {
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))
		if !within(dest, target) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", rel, err)
			}
			continue
		}

		n, err := extractFile(f, target, MaxExtractedBytes-written)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", rel, err)
		}
		written += n
	}

	return nil
}

// findManifest returns the shallowest plugin.json entry
func findManifest(files []*zip.File) *zip.File {
	var best *zip.File
	bestDepth := -1
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := entryPath(f.Name)
		if err != nil || path.Base(name) != plugins.ManifestFileName {
			continue
		}
		if strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		depth := strings.Count(name, "/")
		if best == nil || depth < bestDepth {
			best, bestDepth = f, depth
		}
	}
	return best
}

// entryPath normalizes an entry name and rejects traversal and absolute paths
func entryPath(name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute path %s", ErrUnsafeArchive, name)
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrUnsafeArchive, name)
		}
	}
	return slashed, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(io.LimitReader(rc, MaxExtractedBytes))
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err != nil {
		return n, err
	}
	if n > budget {
		return n, fmt.Errorf("archive exceeds %d bytes uncompressed", MaxExtractedBytes)
	}
	return n, nil
}

func within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
