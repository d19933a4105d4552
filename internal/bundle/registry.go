package bundle

import (
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded bundles.
type Registry struct {
	sync.RWMutex
	bundles  map[string]*Bundle   // name -> bundle
	byExport map[string][]*Bundle // declared export -> bundles
	logger   *zap.Logger
}

// NewRegistry creates a new bundle registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		bundles:  make(map[string]*Bundle),
		byExport: make(map[string][]*Bundle),
		logger:   logger.With(zap.String("component", "bundle-registry")),
	}
}

// Register adds a bundle to the registry.
func (r *Registry) Register(bundle *Bundle) error {
	r.Lock()
	defer r.Unlock()

	name := bundle.Manifest.Name

	// Check for duplicates
	if _, exists := r.bundles[name]; exists {
		return &BundleAlreadyRegisteredError{BundleName: name}
	}

	r.bundles[name] = bundle

	// Index by declared export
	for _, export := range bundle.Manifest.Exports {
		r.byExport[export] = append(r.byExport[export], bundle)
	}

	r.logger.Info("Bundle registered",
		zap.String("name", name),
		zap.Strings("exports", bundle.Manifest.Exports),
	)

	return nil
}

// Get retrieves a bundle by name.
func (r *Registry) Get(name string) (*Bundle, bool) {
	r.RLock()
	defer r.RUnlock()

	bundle, ok := r.bundles[name]
	return bundle, ok
}

// LookupByExport finds the bundles that declare export, in registration order.
func (r *Registry) LookupByExport(export string) []*Bundle {
	r.RLock()
	defer r.RUnlock()

	// Return copy to avoid race conditions
	return slices.Clone(r.byExport[export])
}

// List returns all registered bundles sorted by name.
func (r *Registry) List() []*Bundle {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Bundle, 0, len(r.bundles))
	for _, bundle := range r.bundles {
		result = append(result, bundle)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.Name < result[j].Manifest.Name
	})
	return result
}

// Unregister removes a bundle from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	bundle, ok := r.bundles[name]
	if !ok {
		return
	}

	// Remove from export index
	for _, export := range bundle.Manifest.Exports {
		remaining := slices.DeleteFunc(r.byExport[export], func(b *Bundle) bool {
			return b.Manifest.Name == name
		})
		if len(remaining) == 0 {
			delete(r.byExport, export)
		} else {
			r.byExport[export] = remaining
		}
	}

	// Remove from main map
	delete(r.bundles, name)

	r.logger.Info("Bundle unregistered", zap.String("name", name))
}

// Count returns the number of registered bundles.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.bundles)
}
