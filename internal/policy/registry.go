package policy

import (
	"fmt"
	"sync"
)

// Registry is the named policy map. It is populated at configuration time
// and treated as read-only once the service is evaluating requests; the
// lock exists so that the file watcher can swap reloaded policies in
// safely.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]*Policy)}
}

// Add registers a built policy under its name.
func (r *Registry) Add(p *Policy) error {
	if p.Name() == "" {
		return ErrEmptyPolicyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrPolicyExists, p.Name())
	}
	r.policies[p.Name()] = p
	return nil
}

// Get looks up a policy by name. The boolean result distinguishes a
// missing policy, which callers on the request path treat as a deny.
func (r *Registry) Get(name string) (*Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[name]
	return p, ok
}

// MustGet resolves a policy by name at configuration time. Referencing an
// unregistered name here is a hard error, unlike request-time lookups.
func (r *Registry) MustGet(name string) (*Policy, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return p, nil
}

// Combine resolves the named policy and folds it into the builder.
// Combining against an unknown name is a fatal configuration error.
func (r *Registry) Combine(b *Builder, name string) error {
	p, err := r.MustGet(name)
	if err != nil {
		return err
	}
	b.Combine(p)
	return nil
}

// Names returns the registered policy names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered policies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// Replace swaps the entire policy set. Used by the file watcher on reload.
func (r *Registry) Replace(policies []*Policy) error {
	next := make(map[string]*Policy, len(policies))
	for _, p := range policies {
		if p.Name() == "" {
			return ErrEmptyPolicyName
		}
		if _, ok := next[p.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrPolicyExists, p.Name())
		}
		next[p.Name()] = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = next
	return nil
}
