package plugins

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFileName is the descriptor every plugin directory must contain
const ManifestFileName = "plugin.json"

// DefaultHandlerKind is used when the manifest has no "handler" field
const DefaultHandlerKind = "static"

// payloadFields are runtime-only code payloads that never reach the catalog
var payloadFields = []string{"server.js", "client.js"}

// Manifest describes plugin metadata.
// Well-known fields are exposed as struct fields, everything else is kept
// verbatim in fields so that it can be forwarded to the catalog.
type Manifest struct {
	ID      string
	Name    string
	Version string
	Handler string

	fields map[string]interface{}
}

// ParseManifest parses a plugin.json document
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: manifest is null", ErrManifestCorrupt)
	}

	id, err := scalarString(fields["id"])
	if err != nil || id == "" {
		return nil, fmt.Errorf("%w: no usable id field", ErrManifestCorrupt)
	}

	m := &Manifest{fields: fields}
	m.SetID(id)
	m.Name, _ = scalarString(fields["name"])
	m.Version, _ = scalarString(fields["version"])
	m.Handler, _ = scalarString(fields["handler"])

	if err := ValidateManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateManifest checks that the id is a single URL path segment and that
// id, name and version are usable as one directory name below the plugin root.
func ValidateManifest(m *Manifest) error {
	if m.ID != url.PathEscape(m.ID) {
		return fmt.Errorf("%w: id %q is not a plain URL path segment", ErrManifestCorrupt, m.ID)
	}

	for _, f := range []struct{ field, value string }{
		{"id", m.ID},
		{"name", m.Name},
		{"version", m.Version},
	} {
		if f.value != "" && !safeSegment(f.value) {
			return fmt.Errorf("%w: %s %q is not a single path segment", ErrManifestCorrupt, f.field, f.value)
		}
	}
	return nil
}

// safeSegment rejects separators, dot names and hidden names
func safeSegment(s string) bool {
	if s == "." || s == ".." || strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// LoadManifest loads and parses a plugin manifest from a file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestMissing, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return ParseManifest(data)
}

// LoadManifestFromDir loads a plugin manifest from a directory (looks for plugin.json)
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFileName))
}

// SaveManifest writes the manifest as plugin.json into dir
func SaveManifest(m *Manifest, dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// SetID replaces the manifest id, keeping the raw fields in sync
func (m *Manifest) SetID(id string) {
	m.ID = id
	if m.fields == nil {
		m.fields = make(map[string]interface{})
	}
	m.fields["id"] = id
}

// HandlerKind returns the handler kind, falling back to DefaultHandlerKind
func (m *Manifest) HandlerKind() string {
	if m.Handler == "" {
		return DefaultHandlerKind
	}
	return m.Handler
}

// FolderName returns the canonical on-disk folder name ({name}-{version}).
// Manifests without name or version fall back to the id.
func (m *Manifest) FolderName() string {
	if m.Name == "" || m.Version == "" {
		return m.ID
	}
	return m.Name + "-" + m.Version
}

// Fields returns a copy of every manifest field, payload included
func (m *Manifest) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// Info returns the manifest fields without the code payload
func (m *Manifest) Info() map[string]interface{} {
	out := m.Fields()
	for _, f := range payloadFields {
		delete(out, f)
	}
	return out
}

// CatalogFields returns the fields flattened into a catalog record:
// Info without the id, which becomes the record key.
func (m *Manifest) CatalogFields() map[string]interface{} {
	out := m.Info()
	delete(out, "id")
	return out
}

// MarshalJSON encodes every raw field
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fields())
}

// UnmarshalJSON decodes a manifest with the same rules as ParseManifest
func (m *Manifest) UnmarshalJSON(data []byte) error {
	parsed, err := ParseManifest(data)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// scalarString converts string and number JSON values to a string
func scalarString(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case json.Number:
		return val.String(), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}
