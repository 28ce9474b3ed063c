// pattern: Imperative Shell
package registry

import (
	"context"
	"slices"

	"runthat/internal/config"
)

// MultiRegistry resolves scripts across several registries by priority.
type MultiRegistry struct {
	registries []*Registry
}

// NewMulti builds one registry per definition, in order. Any reification
// failure aborts construction.
func NewMulti(ctx context.Context, defs []config.BucketDefinition, reifier SourceReifier, opts ...Option) (*MultiRegistry, error) {
	m := &MultiRegistry{}
	for _, def := range defs {
		r, err := New(ctx, def, reifier, opts...)
		if err != nil {
			return nil, err
		}
		m.registries = append(m.registries, r)
	}
	return m, nil
}

// NewSingle builds a MultiRegistry over one ad hoc bucket.
func NewSingle(ctx context.Context, def config.BucketDefinition, reifier SourceReifier, opts ...Option) (*MultiRegistry, error) {
	return NewMulti(ctx, []config.BucketDefinition{def}, reifier, opts...)
}

// Resolve picks the registry that runs name: the single candidate with the
// strictly highest priority. Lower-priority candidates are shadowed.
func (m *MultiRegistry) Resolve(name string) (*Registry, error) {
	var candidates []*Registry
	for _, r := range m.registries {
		if r.HasScript(name) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, &ScriptNotFoundError{Name: name}
	}

	slices.SortStableFunc(candidates, func(a, b *Registry) int {
		return b.priority - a.priority
	})

	top := candidates[0]
	if len(candidates) > 1 && candidates[1].priority == top.priority {
		ambiguous := &AmbiguousResolutionError{Name: name, Priority: top.priority}
		for _, c := range candidates {
			if c.priority != top.priority {
				break
			}
			ambiguous.Buckets = append(ambiguous.Buckets, c.name)
		}
		return nil, ambiguous
	}
	return top, nil
}

// RunScript resolves name and runs it in the chosen registry. The script's
// result is returned unchanged.
func (m *MultiRegistry) RunScript(ctx context.Context, name string, args []string, workDir string) error {
	r, err := m.Resolve(name)
	if err != nil {
		return err
	}
	return r.RunScript(ctx, name, args, workDir)
}

// Listing is the set of scripts one registry provides.
type Listing struct {
	Registry *Registry
	Scripts  []string
}

// Scripts lists the scripts of every registry, in construction order.
func (m *MultiRegistry) Scripts() ([]Listing, error) {
	out := make([]Listing, 0, len(m.registries))
	for _, r := range m.registries {
		names, err := r.Scripts()
		if err != nil {
			return nil, err
		}
		out = append(out, Listing{Registry: r, Scripts: names})
	}
	return out, nil
}
