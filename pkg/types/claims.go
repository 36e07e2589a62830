// Package types provides the shared claims and requirement types for the
// authorization core.
package types

// Well-known claim types.
const (
	// ClaimTypeName carries the display name of a principal.
	ClaimTypeName = "name"

	// ClaimTypeRole carries a role membership. Role requirements are
	// expressed as claim requirements against this type.
	ClaimTypeRole = "role"

	// ClaimTypeSubject carries the stable subject identifier of a principal.
	ClaimTypeSubject = "sub"
)

// Claim is an immutable type/value assertion about a principal, scoped to
// the identity that carries it.
type Claim struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Issuer string `json:"issuer,omitempty"`
}

// Identity is one authenticated (or anonymous) facet of a principal: an
// ordered sequence of claims plus the authentication scheme that established
// them. An empty Scheme marks the identity as not authenticated.
type Identity struct {
	Scheme string  `json:"scheme,omitempty"`
	Claims []Claim `json:"claims"`
}

// NewIdentity creates an identity for the given authentication scheme.
// Pass an empty scheme for an anonymous identity.
func NewIdentity(scheme string, claims ...Claim) *Identity {
	return &Identity{Scheme: scheme, Claims: claims}
}

// IsAuthenticated reports whether this identity was established by an
// authentication scheme.
func (i *Identity) IsAuthenticated() bool {
	return i.Scheme != ""
}

// AddClaim appends a claim to the identity.
func (i *Identity) AddClaim(claimType, value string) {
	i.Claims = append(i.Claims, Claim{Type: claimType, Value: value})
}

// HasClaim reports whether the identity carries a claim of the given type.
func (i *Identity) HasClaim(claimType string) bool {
	for _, c := range i.Claims {
		if c.Type == claimType {
			return true
		}
	}
	return false
}

// FindFirst returns the first claim of the given type, if any.
func (i *Identity) FindFirst(claimType string) (Claim, bool) {
	for _, c := range i.Claims {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

// Principal is a collection of identities. A request may accumulate several
// identities (cookie session, external login, API key), each contributing
// its own claims.
type Principal struct {
	Identities []*Identity `json:"identities"`
}

// NewPrincipal creates a principal from the given identities.
func NewPrincipal(identities ...*Identity) *Principal {
	return &Principal{Identities: identities}
}

// AddIdentity appends an identity to the principal.
func (p *Principal) AddIdentity(identity *Identity) {
	p.Identities = append(p.Identities, identity)
}

// IsAuthenticated reports whether at least one identity on the principal
// was established by an authentication scheme. A principal with no
// identities, or only anonymous identities, is not authenticated.
func (p *Principal) IsAuthenticated() bool {
	if p == nil {
		return false
	}
	for _, id := range p.Identities {
		if id.IsAuthenticated() {
			return true
		}
	}
	return false
}

// ClaimsForSchemes pools the claims of every identity whose scheme is in
// the given allow-list. An empty allow-list accepts every identity,
// anonymous ones included.
func (p *Principal) ClaimsForSchemes(schemes []string) []Claim {
	if p == nil {
		return nil
	}
	var claims []Claim
	for _, id := range p.Identities {
		if !schemeAllowed(id.Scheme, schemes) {
			continue
		}
		claims = append(claims, id.Claims...)
	}
	return claims
}

// HasClaim reports whether any identity on the principal carries a claim of
// the given type.
func (p *Principal) HasClaim(claimType string) bool {
	if p == nil {
		return false
	}
	for _, id := range p.Identities {
		if id.HasClaim(claimType) {
			return true
		}
	}
	return false
}

// FindFirst returns the first claim of the given type across all
// identities, in identity order.
func (p *Principal) FindFirst(claimType string) (Claim, bool) {
	if p == nil {
		return Claim{}, false
	}
	for _, id := range p.Identities {
		if c, ok := id.FindFirst(claimType); ok {
			return c, true
		}
	}
	return Claim{}, false
}

// HasRole reports whether any identity carries a role claim with the given
// value.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, id := range p.Identities {
		for _, c := range id.Claims {
			if c.Type == ClaimTypeRole && c.Value == role {
				return true
			}
		}
	}
	return false
}

// ToMap converts the principal to a map for CEL evaluation. Claims are
// flattened into a type -> values multimap; roles and the subject get
// dedicated keys.
func (p *Principal) ToMap() map[string]interface{} {
	claims := map[string]interface{}{}
	var roles []string
	subject := ""
	authenticated := false

	if p != nil {
		for _, id := range p.Identities {
			if id.IsAuthenticated() {
				authenticated = true
			}
			for _, c := range id.Claims {
				existing, _ := claims[c.Type].([]string)
				claims[c.Type] = append(existing, c.Value)
				if c.Type == ClaimTypeRole {
					roles = append(roles, c.Value)
				}
				if c.Type == ClaimTypeSubject && subject == "" {
					subject = c.Value
				}
			}
		}
	}

	return map[string]interface{}{
		"id":            subject,
		"roles":         roles,
		"claims":        claims,
		"authenticated": authenticated,
	}
}

func schemeAllowed(scheme string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == scheme {
			return true
		}
	}
	return false
}
