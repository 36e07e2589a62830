package oauth

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorizationURL(t *testing.T) {
	raw, err := Google.BuildAuthorizationURL(AuthorizationRequest{
		ClientID:    "client-1",
		RedirectURI: "https://app.example.com/signin-google",
		State:       "opaque-state",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/signin-google", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "opaque-state", q.Get("state"))
}

func TestBuildAuthorizationURL_ScopeOverride(t *testing.T) {
	raw, err := Microsoft.BuildAuthorizationURL(AuthorizationRequest{
		ClientID:    "client-2",
		RedirectURI: "https://app.example.com/signin-microsoft",
		Scopes:      []string{"openid", "offline_access"},
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "openid offline_access", q.Get("scope"))
	assert.Empty(t, q.Get("state"))
}

func TestProviders_CallbackPaths(t *testing.T) {
	for name, p := range Providers {
		assert.Equal(t, name, p.Name)
		assert.True(t, strings.HasPrefix(p.CallbackPath, "/signin-"), "unexpected callback path %q", p.CallbackPath)
	}
}

func newTestStateCodec(t *testing.T) *StateCodec {
	t.Helper()
	codec, err := NewStateCodec([]byte(strings.Repeat("s", 32)))
	require.NoError(t, err)
	return codec
}

func TestStateCodec_RoundTrip(t *testing.T) {
	codec := newTestStateCodec(t)

	encoded, err := codec.Issue(Google.Name, "/dashboard")
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	state, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, Google.Name, state.Provider)
	assert.Equal(t, "/dashboard", state.ReturnURL)
	assert.NotEmpty(t, state.Nonce)
}

func TestStateCodec_DistinctNonces(t *testing.T) {
	codec := newTestStateCodec(t)

	a, err := codec.Issue(Google.Name, "/")
	require.NoError(t, err)
	b, err := codec.Issue(Google.Name, "/")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	sa, err := codec.Decode(a)
	require.NoError(t, err)
	sb, err := codec.Decode(b)
	require.NoError(t, err)
	assert.NotEqual(t, sa.Nonce, sb.Nonce)
}

func TestStateCodec_RejectsTamperedState(t *testing.T) {
	codec := newTestStateCodec(t)

	encoded, err := codec.Issue(Google.Name, "/dashboard")
	require.NoError(t, err)

	tampered := []byte(encoded)
	tampered[len(tampered)-1] ^= 'x'
	_, err = codec.Decode(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateCodec_RejectsForeignKey(t *testing.T) {
	sealer := newTestStateCodec(t)
	opener, err := NewStateCodec([]byte(strings.Repeat("o", 32)))
	require.NoError(t, err)

	encoded, err := sealer.Issue(Microsoft.Name, "/")
	require.NoError(t, err)

	_, err = opener.Decode(encoded)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateCodec_RejectsExpiredState(t *testing.T) {
	codec := newTestStateCodec(t)
	codec.SetTTL(-time.Minute)

	encoded, err := codec.Issue(Google.Name, "/")
	require.NoError(t, err)

	_, err = codec.Decode(encoded)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateCodec_KeySize(t *testing.T) {
	_, err := NewStateCodec([]byte("short"))
	assert.Error(t, err)
}
