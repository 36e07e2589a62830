// Package policy provides authorization policy construction, the named
// policy registry, and policy file loading with hot reload.
package policy

import (
	"github.com/gatehouse/go-core/pkg/types"
)

// Policy is an immutable, ordered set of requirements plus the set of
// authentication schemes whose identities may satisfy them. An empty
// scheme list accepts identities from any scheme.
//
// A policy with zero requirements always denies; there is no vacuous
// success.
type Policy struct {
	name         string
	requirements []types.Requirement
	schemes      []string
}

// Name returns the registered name of the policy, if any.
func (p *Policy) Name() string { return p.name }

// Requirements returns the policy's requirements in order. Callers must
// not mutate the returned slice.
func (p *Policy) Requirements() []types.Requirement { return p.requirements }

// AuthenticationSchemes returns the scheme allow-list. Empty means any.
func (p *Policy) AuthenticationSchemes() []string { return p.schemes }

// Builder assembles a Policy. Builders are not safe for concurrent use;
// the policies they produce are.
type Builder struct {
	name         string
	requirements []types.Requirement
	schemes      []string
}

// NewBuilder creates a policy builder. The name is recorded on the built
// policy so registry lookups and audit logs can identify it.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// RequireClaim adds a claims requirement. With no allowed values, any
// claim of the type satisfies the requirement, empty-string values
// included.
func (b *Builder) RequireClaim(claimType string, allowedValues ...string) *Builder {
	b.requirements = append(b.requirements, &types.ClaimsRequirement{
		ClaimType:     claimType,
		AllowedValues: allowedValues,
	})
	return b
}

// RequireRole adds a claims requirement on the role claim type.
func (b *Builder) RequireRole(roles ...string) *Builder {
	return b.RequireClaim(types.ClaimTypeRole, roles...)
}

// RequireAuthenticatedUser requires at least one identity established by
// an authentication scheme.
func (b *Builder) RequireAuthenticatedUser() *Builder {
	b.requirements = append(b.requirements, &types.AuthenticatedUserRequirement{})
	return b
}

// RequireOperation adds a resource-operation requirement by name.
func (b *Builder) RequireOperation(name string) *Builder {
	b.requirements = append(b.requirements, &types.OperationRequirement{Name: name})
	return b
}

// RequireAssertion adds a CEL assertion requirement. The expression is
// validated when the policy file is loaded, or lazily at first evaluation
// for policies built in code.
func (b *Builder) RequireAssertion(expression string) *Builder {
	b.requirements = append(b.requirements, &types.AssertionRequirement{Expression: expression})
	return b
}

// AddRequirements appends arbitrary (possibly custom) requirements.
func (b *Builder) AddRequirements(reqs ...types.Requirement) *Builder {
	b.requirements = append(b.requirements, reqs...)
	return b
}

// RequireAuthenticationSchemes restricts which identities' claims are
// considered by per-identity requirements. Calling it multiple times
// accumulates schemes.
func (b *Builder) RequireAuthenticationSchemes(schemes ...string) *Builder {
	b.schemes = append(b.schemes, schemes...)
	return b
}

// Combine appends another policy's requirements to this builder and unions
// its scheme restriction in. An unrestricted policy contributes no schemes,
// so combining it never widens an existing restriction.
func (b *Builder) Combine(other *Policy) *Builder {
	b.requirements = append(b.requirements, other.requirements...)
	for _, s := range other.schemes {
		if !containsString(b.schemes, s) {
			b.schemes = append(b.schemes, s)
		}
	}
	return b
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Build produces an immutable snapshot of the builder.
func (b *Builder) Build() *Policy {
	reqs := make([]types.Requirement, len(b.requirements))
	copy(reqs, b.requirements)
	schemes := make([]string, len(b.schemes))
	copy(schemes, b.schemes)
	return &Policy{name: b.name, requirements: reqs, schemes: schemes}
}
