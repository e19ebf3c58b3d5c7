package model

import (
	"fmt"
	"regexp"
	"sync"
)

var labelPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Registry is the table of known schemas, keyed by schema name. Polymorphic
// targets are resolved through it.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	order   []string
}

// NewRegistry registers the given schemas.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema after validating its name, labels and declarations.
func (r *Registry) Register(s *Schema) error {
	if s == nil || s.Name() == "" {
		return fmt.Errorf("schema name is required")
	}
	if err := s.Err(); err != nil {
		return err
	}
	for _, l := range s.labels {
		if !labelPattern.MatchString(l) {
			return fmt.Errorf("schema %s: label %q is invalid", s.Name(), l)
		}
	}
	if s.key == "" {
		return fmt.Errorf("schema %s: key attribute is required", s.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.Name()]; ok {
		return fmt.Errorf("schema %s already registered", s.Name())
	}
	r.schemas[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Schemas returns the registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// Validate checks that every statically typed relation points at a registered schema.
func (r *Registry) Validate() error {
	for _, s := range r.Schemas() {
		for _, rel := range s.relations {
			if rel.Kind.Polymorphic() {
				continue
			}
			if rel.EdgeType == "" {
				return fmt.Errorf("schema %s: relation %s has no edge type", s.Name(), rel.Name)
			}
			if _, ok := r.Lookup(rel.Related); !ok {
				return fmt.Errorf("schema %s: relation %s targets unknown schema %q", s.Name(), rel.Name, rel.Related)
			}
		}
	}
	return nil
}
