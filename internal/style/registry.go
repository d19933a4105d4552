// Package style keeps the stylesheets that bundles contribute.
//
// Sheets are registered explicitly during setup. Loading or instantiating a
// module never registers anything on its own.
package style

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrConflict is returned when a name is registered twice with different CSS.
var ErrConflict = errors.New("conflicting stylesheet")

// Sheet is one named stylesheet.
type Sheet struct {
	Name string
	CSS  string
}

// Registry holds sheets in registration order.
type Registry struct {
	sync.RWMutex
	sheets []Sheet
	byName map[string]int // name -> index into sheets
	logger *zap.Logger
}

// NewRegistry creates an empty style registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byName: make(map[string]int),
		logger: logger.With(zap.String("component", "style-registry")),
	}
}

// Register adds sheet. Registering the same name with identical CSS again is
// a no-op; different CSS under an existing name fails with ErrConflict.
func (r *Registry) Register(sheet Sheet) error {
	if sheet.Name == "" {
		return errors.New("stylesheet name is required")
	}

	r.Lock()
	defer r.Unlock()

	if i, exists := r.byName[sheet.Name]; exists {
		if r.sheets[i].CSS == sheet.CSS {
			return nil
		}
		return fmt.Errorf("%w: '%s' is already registered with different content", ErrConflict, sheet.Name)
	}

	r.byName[sheet.Name] = len(r.sheets)
	r.sheets = append(r.sheets, sheet)

	r.logger.Debug("Stylesheet registered",
		zap.String("name", sheet.Name),
		zap.Int("size_bytes", len(sheet.CSS)),
	)
	return nil
}

// Get returns the sheet registered under name.
func (r *Registry) Get(name string) (Sheet, bool) {
	r.RLock()
	defer r.RUnlock()

	i, ok := r.byName[name]
	if !ok {
		return Sheet{}, false
	}
	return r.sheets[i], true
}

// Sheets returns every sheet in registration order.
func (r *Registry) Sheets() []Sheet {
	r.RLock()
	defer r.RUnlock()

	result := make([]Sheet, len(r.sheets))
	copy(result, r.sheets)
	return result
}

// Count returns the number of registered sheets.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.sheets)
}

// WriteTo writes all sheets as one stylesheet, each preceded by a comment
// naming it.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, sheet := range r.Sheets() {
		n, err := fmt.Fprintf(w, "/* %s */\n%s\n", sheet.Name, sheet.CSS)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
