package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/go-core/internal/cookie"
	"github.com/gatehouse/go-core/pkg/types"
)

// testCookieContext implements cookie.Context and can replay its staged
// Set-Cookie headers as request cookies, simulating a browser echoing the
// response back on its next request.
type testCookieContext struct {
	request map[string]string
	staged  []string
}

func newTestCookieContext() *testCookieContext {
	return &testCookieContext{request: map[string]string{}}
}

func (f *testCookieContext) RequestCookie(name string) (string, bool) {
	v, ok := f.request[name]
	return v, ok
}

func (f *testCookieContext) SetCookies() []string          { return f.staged }
func (f *testCookieContext) ReplaceSetCookies(h []string)  { f.staged = h }
func (f *testCookieContext) AppendSetCookie(header string) { f.staged = append(f.staged, header) }

func (f *testCookieContext) echo() {
	for _, header := range f.staged {
		pair := header
		if i := strings.Index(header, ";"); i >= 0 {
			pair = header[:i]
		}
		eq := strings.Index(pair, "=")
		f.request[pair[:eq]] = pair[eq+1:]
	}
	f.staged = nil
}

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	codec, err := NewSealedCodec([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	return NewManager(cookie.NewChunkingManager(), codec, opts...)
}

func TestManager_SignInThenAuthenticate(t *testing.T) {
	m := newTestManager(t)
	c := newTestCookieContext()
	ctx := context.Background()

	issued, err := m.SignIn(ctx, c, testPrincipal())
	require.NoError(t, err)
	require.NotEmpty(t, c.SetCookies(), "sign-in must stage a session cookie")

	c.echo()

	ticket, err := m.Authenticate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, ticket.ID)
	assert.Equal(t, SchemeCookie, ticket.Scheme)
	require.NotNil(t, ticket.Principal)
	assert.True(t, ticket.Principal.HasRole("Admin"))
}

func TestManager_OversizedPrincipalIsChunked(t *testing.T) {
	m := newTestManager(t, WithCookieName("Session"))
	c := newTestCookieContext()
	ctx := context.Background()

	// Enough claims that the encoded ticket exceeds one cookie.
	principal := types.NewPrincipal()
	claims := make([]types.Claim, 0, 200)
	for i := 0; i < 200; i++ {
		claims = append(claims, types.Claim{
			Type:  types.ClaimTypeRole,
			Value: strings.Repeat("r", 40),
		})
	}
	principal.AddIdentity(&types.Identity{Scheme: SchemeCookie, Claims: claims})

	_, err := m.SignIn(ctx, c, principal)
	require.NoError(t, err)
	require.Greater(t, len(c.SetCookies()), 1, "expected a marker plus chunk cookies")
	assert.True(t, strings.HasPrefix(c.SetCookies()[0], "Session=chunks:"))

	c.echo()

	ticket, err := m.Authenticate(ctx, c)
	require.NoError(t, err)
	assert.Len(t, ticket.Principal.Identities, 1)
	assert.Len(t, ticket.Principal.Identities[0].Claims, 200)
}

func TestManager_AuthenticateWithoutCookie(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Authenticate(context.Background(), newTestCookieContext())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_AuthenticateTamperedCookie(t *testing.T) {
	m := newTestManager(t)
	c := newTestCookieContext()
	c.request[m.CookieName()] = "Zm9yZ2VkIHRpY2tldA"

	_, err := m.Authenticate(context.Background(), c)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestManager_AuthenticateExpiredSession(t *testing.T) {
	m := newTestManager(t, WithTTL(-time.Minute))
	c := newTestCookieContext()
	ctx := context.Background()

	_, err := m.SignIn(ctx, c, testPrincipal())
	require.NoError(t, err)
	c.echo()

	_, err = m.Authenticate(ctx, c)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestManager_StoreRevocation(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, WithStore(store))
	c := newTestCookieContext()
	ctx := context.Background()

	issued, err := m.SignIn(ctx, c, testPrincipal())
	require.NoError(t, err)
	c.echo()

	_, err = m.Authenticate(ctx, c)
	require.NoError(t, err)

	// Revoke server-side; the cookie alone must no longer authenticate.
	require.NoError(t, store.Delete(ctx, issued.ID))
	_, err = m.Authenticate(ctx, c)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_SignOut(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, WithStore(store))
	c := newTestCookieContext()
	ctx := context.Background()

	issued, err := m.SignIn(ctx, c, testPrincipal())
	require.NoError(t, err)
	c.echo()

	require.NoError(t, m.SignOut(ctx, c))

	// Store entry revoked and an expiring cookie staged.
	_, err = store.Load(ctx, issued.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	expired := false
	for _, header := range c.SetCookies() {
		if strings.HasPrefix(header, m.CookieName()+"=") &&
			strings.Contains(header, "expires=Thu, 01 Jan 1970") {
			expired = true
		}
	}
	assert.True(t, expired, "sign-out must stage an expiring session cookie")
}

func TestManager_SignOutWithoutSession(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.SignOut(context.Background(), newTestCookieContext()))
}
