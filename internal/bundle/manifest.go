package bundle

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest file name inside a bundle directory.
const ManifestFile = "manifest.yaml"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Manifest represents the bundle manifest.yaml structure.
type Manifest struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description"`
	Wasm        WasmConfig `yaml:"wasm"`
	Exports     []string   `yaml:"exports"`
	Styles      []string   `yaml:"styles"`
	WASI        bool       `yaml:"wasi"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig locates the bundle's module. Exactly one of File and URL is set.
type WasmConfig struct {
	File   string `yaml:"file"`
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"` // optional hex digest of the module bytes
}

// ParseManifest reads and parses manifest.yaml from a directory on the OS filesystem.
func ParseManifest(dir string) (*Manifest, error) {
	return ParseManifestFs(afero.NewOsFs(), dir)
}

// ParseManifestFs reads and validates manifest.yaml from dir on fs.
func ParseManifestFs(fs afero.Fs, dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := afero.ReadFile(fs, manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir
	m.Wasm.SHA256 = strings.ToLower(m.Wasm.SHA256)

	if err := m.Validate(fs); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields and that referenced files exist on fs.
func (m *Manifest) Validate(fs afero.Fs) error {
	invalid := func(field, format string, args ...any) error {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		}
	}

	// Check required fields
	if m.Name == "" {
		return invalid("name", "name is required")
	}
	if !namePattern.MatchString(m.Name) {
		return invalid("name", "invalid name %q (lowercase letters, digits, '.', '_' and '-')", m.Name)
	}

	if m.Version == "" {
		return invalid("version", "version is required")
	}

	switch {
	case m.Wasm.File == "" && m.Wasm.URL == "":
		return invalid("wasm", "one of wasm.file or wasm.url is required")
	case m.Wasm.File != "" && m.Wasm.URL != "":
		return invalid("wasm", "wasm.file and wasm.url are mutually exclusive")
	}

	if m.Wasm.File != "" && !filepath.IsLocal(m.Wasm.File) {
		return invalid("wasm.file", "wasm.file must be a relative path inside the bundle")
	}

	if m.Wasm.URL != "" {
		u, err := url.Parse(m.Wasm.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("wasm.url", "wasm.url must be an absolute http(s) URL")
		}
	}

	if m.Wasm.SHA256 != "" {
		if b, err := hex.DecodeString(m.Wasm.SHA256); err != nil || len(b) != 32 {
			return invalid("wasm.sha256", "wasm.sha256 must be 64 hex characters")
		}
	}

	// Validate exports
	seen := make(map[string]bool, len(m.Exports))
	for _, export := range m.Exports {
		if export == "" {
			return invalid("exports", "export names must not be empty")
		}
		if seen[export] {
			return invalid("exports", "duplicate export: %s", export)
		}
		seen[export] = true
	}

	// Validate referenced files exist
	if m.Wasm.File != "" {
		if _, err := fs.Stat(m.WasmPath()); os.IsNotExist(err) {
			return &WasmNotFoundError{
				ManifestPath: m.Path(),
				WasmFile:     m.Wasm.File,
			}
		}
	}

	for _, sheet := range m.Styles {
		if !filepath.IsLocal(sheet) {
			return invalid("styles", "stylesheet %s must be a relative path inside the bundle", sheet)
		}
		if _, err := fs.Stat(filepath.Join(m.dir, sheet)); err != nil {
			return invalid("styles", "stylesheet %s not found", sheet)
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file, or "" for URL bundles.
func (m *Manifest) WasmPath() string {
	if m.Wasm.File == "" {
		return ""
	}
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
