package bundle

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestBundle(name string, exports ...string) *Bundle {
	return &Bundle{
		Manifest: &Manifest{
			Name:    name,
			Version: "1.0.0",
			Exports: exports,
			dir:     "/tmp/" + name,
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(newTestBundle("clock", "run")); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}

	bundle, ok := registry.Get("clock")
	if !ok || bundle.Name() != "clock" {
		t.Error("Get() should return the registered bundle")
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(newTestBundle("clock")); err != nil {
		t.Fatalf("First Register() failed: %v", err)
	}

	err := registry.Register(newTestBundle("clock"))
	var dup *BundleAlreadyRegisteredError
	if !errors.As(err, &dup) {
		t.Fatalf("expected BundleAlreadyRegisteredError, got %v", err)
	}

	if registry.Count() != 1 {
		t.Errorf("expected count 1 after duplicate, got %d", registry.Count())
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if _, ok := registry.Get("nonexistent"); ok {
		t.Error("Get() should report missing bundles")
	}
}

func TestRegistry_LookupByExport(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	for _, b := range []*Bundle{
		newTestBundle("clock", "run", "tick"),
		newTestBundle("timer", "run"),
		newTestBundle("static"),
	} {
		if err := registry.Register(b); err != nil {
			t.Fatal(err)
		}
	}

	run := registry.LookupByExport("run")
	if len(run) != 2 || run[0].Name() != "clock" || run[1].Name() != "timer" {
		t.Errorf("expected [clock timer] for 'run', got %d bundles", len(run))
	}

	if tick := registry.LookupByExport("tick"); len(tick) != 1 {
		t.Errorf("expected 1 bundle for 'tick', got %d", len(tick))
	}

	if none := registry.LookupByExport("missing"); len(none) != 0 {
		t.Errorf("expected no bundles, got %d", len(none))
	}

	// The returned slice is a copy.
	run[0] = nil
	if registry.LookupByExport("run")[0] == nil {
		t.Error("LookupByExport() must return a copy")
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(newTestBundle(name)); err != nil {
			t.Fatal(err)
		}
	}

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 bundles, got %d", len(list))
	}
	if list[0].Name() != "alpha" || list[2].Name() != "zeta" {
		t.Errorf("List() should be sorted by name, got %s..%s", list[0].Name(), list[2].Name())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	_ = registry.Register(newTestBundle("clock", "run"))
	_ = registry.Register(newTestBundle("timer", "run"))

	registry.Unregister("clock")

	if _, ok := registry.Get("clock"); ok {
		t.Error("bundle should be gone after Unregister()")
	}

	run := registry.LookupByExport("run")
	if len(run) != 1 || run[0].Name() != "timer" {
		t.Errorf("export index not updated after Unregister()")
	}

	registry.Unregister("timer")
	if len(registry.LookupByExport("run")) != 0 {
		t.Error("export index should be empty")
	}

	// Unregistering an unknown bundle is a no-op.
	registry.Unregister("nonexistent")
	if registry.Count() != 0 {
		t.Errorf("expected count 0, got %d", registry.Count())
	}
}
