package dialect

import (
	"sort"

	"github.com/pkg/errors"
)

// Registry holds the known dialects and resolves them by name or by
// connection-string detection.
type Registry struct {
	dialects []*Dialect
	byName   map[string]*Dialect
}

// NewRegistry returns a registry populated with the builtin dialects.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Dialect)}
	for _, d := range builtins() {
		r.register(d)
	}
	return r
}

func (r *Registry) register(d *Dialect) {
	r.dialects = append(r.dialects, d)
	r.byName[d.Name] = d
	for _, alias := range d.Aliases {
		r.byName[alias] = d
	}
}

// Get resolves a dialect by canonical name or alias.
func (r *Registry) Get(name string) (*Dialect, error) {
	if d, ok := r.byName[name]; ok {
		return d, nil
	}
	return nil, errors.Errorf("unknown dialect %q (known: %v)", name, r.Names())
}

// Detect picks the dialect for a connection string, falling back to the
// generic dialect when nothing matches. The generic dialect assumes the
// least capable backend, so a wrong fallback is safe rather than fast.
func (r *Registry) Detect(dsn string) *Dialect {
	for _, d := range r.dialects {
		if d.Matches(dsn) {
			return d
		}
	}
	return r.byName["generic"]
}

// Names returns the canonical dialect names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.dialects))
	for _, d := range r.dialects {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}
