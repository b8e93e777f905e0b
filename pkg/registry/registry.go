// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadManifest reads a manifest file. A missing file is returned as the
// underlying *fs.PathError so callers can test it with errors.Is(err, fs.ErrNotExist).
func LoadManifest(path string) (*ModelManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m ModelManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// SaveManifest writes the manifest as indented JSON, creating parent directories.
func SaveManifest(m *ModelManifest, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// Validate checks the manifest for structural problems.
func (m *ModelManifest) Validate() error {
	if len(m.Models) == 0 {
		return fmt.Errorf("manifest contains no models")
	}

	ids := make(map[string]bool, len(m.Models))
	for _, entry := range m.Models {
		if entry.ID == "" {
			return fmt.Errorf("model missing required field: id")
		}
		if ids[entry.ID] {
			return fmt.Errorf("duplicate model id: %s", entry.ID)
		}
		ids[entry.ID] = true

		if entry.Path == "" {
			return fmt.Errorf("model %s missing required field: path", entry.ID)
		}
		if entry.Kind != KindLinear && entry.Kind != KindTree {
			return fmt.Errorf("model %s has unsupported kind %q", entry.ID, entry.Kind)
		}
	}

	cols := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("columns contain an empty name")
		}
		if cols[c] {
			return fmt.Errorf("duplicate column: %s", c)
		}
		cols[c] = true
	}
	return nil
}

// Find returns the entry with the given id.
func (m *ModelManifest) Find(id string) (*ModelEntry, bool) {
	for i := range m.Models {
		if m.Models[i].ID == id {
			return &m.Models[i], true
		}
	}
	return nil, false
}

// ResolvePath returns the artifact path of entry relative to the manifest location.
func ResolvePath(manifestPath string, entry ModelEntry) string {
	if filepath.IsAbs(entry.Path) {
		return entry.Path
	}
	return filepath.Join(filepath.Dir(manifestPath), entry.Path)
}

// Label is the display name, falling back to the id.
func (e ModelEntry) Label() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.ID
}
