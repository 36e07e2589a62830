// Package engine evaluates authorization policies against claims
// principals using an ordered set of requirement handlers.
package engine

import (
	"reflect"
	"sync"

	"github.com/gatehouse/go-core/pkg/types"
)

// Context is the mutable evaluation state for a single authorization call.
// It is created per call and discarded afterwards. Succeed and Fail are
// synchronized so callers may drive handlers concurrently; requirements
// only ever move from pending to succeeded, and a failure is terminal.
//
// Requirements are tracked by position in the policy's requirement slice,
// not as map keys, so custom requirement types carrying slices or maps
// are fine.
type Context struct {
	principal *types.Principal
	resource  interface{}
	schemes   []string
	reqs      []types.Requirement

	mu      sync.Mutex
	pending map[int]struct{}
	failed  bool
}

// NewContext seeds an evaluation context with every requirement of the
// policy marked pending.
func NewContext(principal *types.Principal, resource interface{}, p PolicyView) *Context {
	reqs := p.Requirements()
	pending := make(map[int]struct{}, len(reqs))
	for i := range reqs {
		pending[i] = struct{}{}
	}
	return &Context{
		principal: principal,
		resource:  resource,
		schemes:   p.AuthenticationSchemes(),
		reqs:      reqs,
		pending:   pending,
	}
}

// PolicyView is the part of a policy the evaluation context needs. It
// keeps this package free of a dependency on the policy package.
type PolicyView interface {
	Requirements() []types.Requirement
	AuthenticationSchemes() []string
}

// Principal returns the principal under evaluation. May be nil.
func (c *Context) Principal() *types.Principal { return c.principal }

// Resource returns the resource under evaluation. May be nil.
func (c *Context) Resource() interface{} { return c.resource }

// AuthenticationSchemes returns the policy's scheme allow-list.
func (c *Context) AuthenticationSchemes() []string { return c.schemes }

// Succeed marks a requirement as met, moving it from pending to
// succeeded. Marking a requirement twice, or one that was never pending,
// is harmless.
func (c *Context) Succeed(req types.Requirement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.reqs {
		if _, ok := c.pending[i]; !ok {
			continue
		}
		if sameRequirement(c.reqs[i], req) {
			delete(c.pending, i)
			return
		}
	}
}

// sameRequirement matches a handler's requirement back to its slot.
// DeepEqual avoids the comparability restriction interface equality
// would impose on custom requirement types.
func sameRequirement(a, b types.Requirement) bool {
	return reflect.DeepEqual(a, b)
}

// Fail forces the overall evaluation to fail regardless of succeeded
// requirements.
func (c *Context) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
}

// HasFailed reports whether Fail was called.
func (c *Context) HasFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Pending returns a snapshot of the requirements still awaiting a
// handler, in policy order.
func (c *Context) Pending() []types.Requirement {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqs := make([]types.Requirement, 0, len(c.pending))
	for i, r := range c.reqs {
		if _, ok := c.pending[i]; ok {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

// HasSucceeded reports the overall outcome: every requirement met and no
// explicit failure.
func (c *Context) HasSucceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.failed && len(c.pending) == 0
}
