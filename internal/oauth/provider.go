// Package oauth describes external login providers and the tamper-proof
// state values that ride the authorization redirect. Token exchange is out
// of scope; the descriptors feed the login surface's redirect handlers.
package oauth

import (
	"net/url"
	"strings"
)

// Provider describes one external login provider: where to send the user
// for authorization and where the provider sends them back.
type Provider struct {
	// Name is the authentication scheme recorded on identities established
	// through this provider.
	Name string

	// DisplayName is the human-readable label for login pages.
	DisplayName string

	AuthorizationEndpoint string
	TokenEndpoint         string

	// CallbackPath is the local path the provider redirects back to.
	CallbackPath string

	// DefaultScopes are requested when the caller specifies none.
	DefaultScopes []string
}

// Google is the Google external login provider.
var Google = Provider{
	Name:                  "google",
	DisplayName:           "Google",
	AuthorizationEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
	TokenEndpoint:         "https://oauth2.googleapis.com/token",
	CallbackPath:          "/signin-google",
	DefaultScopes:         []string{"openid", "profile", "email"},
}

// Microsoft is the Microsoft Account external login provider.
var Microsoft = Provider{
	Name:                  "microsoft",
	DisplayName:           "Microsoft Account",
	AuthorizationEndpoint: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
	TokenEndpoint:         "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	CallbackPath:          "/signin-microsoft",
	DefaultScopes:         []string{"openid", "profile", "email"},
}

// Providers lists the built-in providers keyed by scheme name.
var Providers = map[string]Provider{
	Google.Name:    Google,
	Microsoft.Name: Microsoft,
}

// AuthorizationRequest carries the per-request parameters of a redirect to
// a provider's authorization endpoint.
type AuthorizationRequest struct {
	ClientID    string
	RedirectURI string

	// Scopes overrides the provider's default scopes when non-empty.
	Scopes []string

	// State is the opaque round-trip value, typically produced by
	// StateCodec.Encode.
	State string
}

// BuildAuthorizationURL renders the provider's authorization redirect URL
// for the code flow.
func (p Provider) BuildAuthorizationURL(req AuthorizationRequest) (string, error) {
	u, err := url.Parse(p.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = p.DefaultScopes
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("scope", strings.Join(scopes, " "))
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
