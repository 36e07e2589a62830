package types

// Requirement kinds for the built-in requirement variants. Custom
// requirement types choose their own kind string; the engine treats kinds
// as opaque tags.
const (
	KindClaims            = "claims"
	KindAuthenticatedUser = "authenticated-user"
	KindOperation         = "operation"
	KindAssertion         = "assertion"
)

// Requirement describes a single authorization condition. Requirements are
// immutable after construction and carry no evaluation logic of their own;
// handlers registered with the engine decide whether a requirement is met.
type Requirement interface {
	// Kind returns the variant tag used to match handlers to requirements.
	Kind() string
}

// ClaimsRequirement is met when the principal carries a claim of ClaimType
// whose value is in AllowedValues. With an empty AllowedValues list, any
// claim of the type satisfies the requirement, empty-string values
// included. Role requirements are claims requirements on ClaimTypeRole.
type ClaimsRequirement struct {
	ClaimType     string
	AllowedValues []string
}

// Kind implements Requirement.
func (r *ClaimsRequirement) Kind() string { return KindClaims }

// Match reports whether the given claim satisfies this requirement.
func (r *ClaimsRequirement) Match(c Claim) bool {
	if c.Type != r.ClaimType {
		return false
	}
	if len(r.AllowedValues) == 0 {
		return true
	}
	for _, v := range r.AllowedValues {
		if c.Value == v {
			return true
		}
	}
	return false
}

// AuthenticatedUserRequirement is met when at least one identity on the
// principal carries a non-empty authentication scheme.
type AuthenticatedUserRequirement struct{}

// Kind implements Requirement.
func (r *AuthenticatedUserRequirement) Kind() string { return KindAuthenticatedUser }

// OperationRequirement names a resource-based operation (for example
// "document:edit"). It is only meaningful together with an operation
// handler registered for the matching resource type.
type OperationRequirement struct {
	Name string
}

// Kind implements Requirement.
func (r *OperationRequirement) Kind() string { return KindOperation }

// AssertionRequirement is met when its CEL expression evaluates to true
// against the principal and resource. Expressions are compiled once at
// policy load time.
type AssertionRequirement struct {
	Expression string
}

// Kind implements Requirement.
func (r *AssertionRequirement) Kind() string { return KindAssertion }
