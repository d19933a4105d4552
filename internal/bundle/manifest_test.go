package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const validManifest = `
name: clock
version: 1.0.0
description: analog clock demo
wasm:
  file: clock.wasm
exports: [add]
styles: [clock.css]
`

func parseWith(t *testing.T, manifest string, files map[string][]byte) (*Manifest, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeBundle(t, fs, "/bundles/b", manifest, files)
	return ParseManifestFs(fs, "/bundles/b")
}

var clockFiles = map[string][]byte{
	"clock.wasm": []byte("\x00asm"),
	"clock.css":  []byte(".clock {}"),
}

func TestParseManifest_Valid(t *testing.T) {
	manifest, err := parseWith(t, validManifest, clockFiles)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Name != "clock" {
		t.Errorf("expected Name 'clock', got '%s'", manifest.Name)
	}

	if manifest.Version != "1.0.0" {
		t.Errorf("expected Version '1.0.0', got '%s'", manifest.Version)
	}

	if manifest.Description != "analog clock demo" {
		t.Errorf("unexpected Description '%s'", manifest.Description)
	}

	if manifest.Wasm.File != "clock.wasm" {
		t.Errorf("expected Wasm.File 'clock.wasm', got '%s'", manifest.Wasm.File)
	}

	if len(manifest.Exports) != 1 || manifest.Exports[0] != "add" {
		t.Errorf("expected exports [add], got %v", manifest.Exports)
	}

	if len(manifest.Styles) != 1 {
		t.Errorf("expected 1 stylesheet, got %d", len(manifest.Styles))
	}

	if manifest.WASI {
		t.Error("wasi should default to false")
	}
}

func TestParseManifest_OSFilesystem(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(validManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	for name, data := range clockFiles {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}
	if manifest.Dir() != dir {
		t.Errorf("expected Dir '%s', got '%s'", dir, manifest.Dir())
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	_, err := ParseManifestFs(afero.NewMemMapFs(), "/bundles/nonexistent")
	if err == nil {
		t.Fatal("ParseManifest() should fail for nonexistent directory")
	}

	var notFound *ManifestNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := parseWith(t, "name: [unclosed", nil)
	if err == nil {
		t.Fatal("ParseManifest() should fail for invalid YAML")
	}

	var parseErr *ManifestParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ManifestParseError, got %T", err)
	}
}

func TestParseManifest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{
			name:     "missing name",
			manifest: "version: 1.0.0\nwasm: {file: clock.wasm}\n",
			field:    "name",
		},
		{
			name:     "bad name",
			manifest: "name: Clock App\nversion: 1.0.0\nwasm: {file: clock.wasm}\n",
			field:    "name",
		},
		{
			name:     "missing version",
			manifest: "name: clock\nwasm: {file: clock.wasm}\n",
			field:    "version",
		},
		{
			name:     "no module",
			manifest: "name: clock\nversion: 1.0.0\n",
			field:    "wasm",
		},
		{
			name:     "file and url",
			manifest: "name: clock\nversion: 1.0.0\nwasm: {file: clock.wasm, url: 'https://example.com/clock.wasm'}\n",
			field:    "wasm",
		},
		{
			name:     "file outside bundle",
			manifest: "name: clock\nversion: 1.0.0\nwasm: {file: ../other/clock.wasm}\n",
			field:    "wasm.file",
		},
		{
			name:     "bad url",
			manifest: "name: clock\nversion: 1.0.0\nwasm: {url: 'ftp://example.com/clock.wasm'}\n",
			field:    "wasm.url",
		},
		{
			name:     "bad digest",
			manifest: "name: clock\nversion: 1.0.0\nwasm: {file: clock.wasm, sha256: abc}\n",
			field:    "wasm.sha256",
		},
		{
			name:     "duplicate export",
			manifest: "name: clock\nversion: 1.0.0\nwasm: {file: clock.wasm}\nexports: [run, run]\n",
			field:    "exports",
		},
		{
			name:     "missing stylesheet",
			manifest: "name: clock\nversion: 1.0.0\nwasm: {file: clock.wasm}\nstyles: [other.css]\n",
			field:    "styles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseWith(t, tt.manifest, clockFiles)
			if err == nil {
				t.Fatal("ParseManifest() should fail")
			}

			var validationErr *ManifestValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ManifestValidationError, got %T: %v", err, err)
			}

			if validationErr.Field != tt.field {
				t.Errorf("expected Field '%s', got '%s'", tt.field, validationErr.Field)
			}
		})
	}
}

func TestParseManifest_WasmNotFound(t *testing.T) {
	_, err := parseWith(t, "name: clock\nversion: 1.0.0\nwasm: {file: clock.wasm}\n", nil)
	if err == nil {
		t.Fatal("ParseManifest() should fail for missing Wasm file")
	}

	var notFound *WasmNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected WasmNotFoundError, got %T", err)
	}
}

func TestParseManifest_URLAndDigest(t *testing.T) {
	digest := strings.Repeat("AB", 32)
	manifest, err := parseWith(t,
		"name: remote\nversion: 0.1.0\nwasm:\n  url: https://example.com/remote.wasm\n  sha256: "+digest+"\n",
		nil)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.WasmPath() != "" {
		t.Errorf("URL bundles have no WasmPath, got '%s'", manifest.WasmPath())
	}

	if manifest.Wasm.SHA256 != strings.ToLower(digest) {
		t.Errorf("digest should be normalized to lowercase, got '%s'", manifest.Wasm.SHA256)
	}
}

func TestManifest_Paths(t *testing.T) {
	manifest, err := parseWith(t, validManifest, clockFiles)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if want := filepath.Join("/bundles/b", ManifestFile); manifest.Path() != want {
		t.Errorf("expected Path '%s', got '%s'", want, manifest.Path())
	}

	if want := filepath.Join("/bundles/b", "clock.wasm"); manifest.WasmPath() != want {
		t.Errorf("expected WasmPath '%s', got '%s'", want, manifest.WasmPath())
	}

	if manifest.Dir() != "/bundles/b" {
		t.Errorf("expected Dir '/bundles/b', got '%s'", manifest.Dir())
	}
}
