package cookie

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContext implements Context for tests and can replay its staged
// Set-Cookie headers as request cookies, simulating a client echoing the
// response back.
type fakeContext struct {
	request map[string]string
	staged  []string
}

func newFakeContext() *fakeContext {
	return &fakeContext{request: map[string]string{}}
}

func (f *fakeContext) RequestCookie(name string) (string, bool) {
	v, ok := f.request[name]
	return v, ok
}

func (f *fakeContext) SetCookies() []string            { return f.staged }
func (f *fakeContext) ReplaceSetCookies(h []string)    { f.staged = h }
func (f *fakeContext) AppendSetCookie(header string)   { f.staged = append(f.staged, header) }

// echo copies every staged Set-Cookie back into the request cookies, the
// way a client would on its next request.
func (f *fakeContext) echo() {
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

func TestChunkingManager_RoundTrip(t *testing.T) {
	values := map[string]string{
		"short":         "hello",
		"spaces":        "hello world, how are you",
		"url unsafe":    "a=b;c=d&e%f\ng",
		"quoted":        `"wrapped in quotes"`,
		"quoted spaces": `"hello world"`,
		"empty":         "",
		"long":          strings.Repeat("abcdefghij", 200),
		"long unsafe":   strings.Repeat("a b;c=d&", 300),
	}
	chunkSizes := []int{0, 60, 100, DefaultChunkSize}

	for name, value := range values {
		for _, size := range chunkSizes {
			t.Run(name, func(t *testing.T) {
				m := NewChunkingManager(WithChunkSize(size))
				c := newFakeContext()

				require.NoError(t, m.AppendResponseCookie(c, "Key", value, Options{Path: "/"}))
				c.echo()

				got, found, err := m.GetRequestCookie(c, "Key")
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, value, got)
			})
		}
	}
}

func TestChunkingManager_EmitsMarkerAndBoundedChunks(t *testing.T) {
	const chunkSize = 80
	m := NewChunkingManager(WithChunkSize(chunkSize))
	c := newFakeContext()

	value := strings.Repeat("0123456789", 30)
	require.NoError(t, m.AppendResponseCookie(c, "Key", value, Options{Path: "/"}))

	require.Greater(t, len(c.staged), 2, "expected a marker plus several chunks")
	assert.True(t, strings.HasPrefix(c.staged[0], "Key=chunks:"))

	for i, header := range c.staged[1:] {
		assert.True(t, strings.HasPrefix(header, "KeyC"), "chunk %d has wrong name: %s", i+1, header)
		assert.LessOrEqual(t, len(header), chunkSize, "chunk %d exceeds the size budget: %s", i+1, header)
	}
}

func TestChunkingManager_SmallValueIsNotChunked(t *testing.T) {
	m := NewChunkingManager()
	c := newFakeContext()

	require.NoError(t, m.AppendResponseCookie(c, "Key", "small", Options{}))
	require.Len(t, c.staged, 1)
	assert.Equal(t, "Key=small", c.staged[0])
}

func TestChunkingManager_ChunkSizeTooSmall(t *testing.T) {
	m := NewChunkingManager(WithChunkSize(10))
	c := newFakeContext()

	err := m.AppendResponseCookie(c, "Key", strings.Repeat("x", 50), Options{})
	assert.ErrorIs(t, err, ErrChunkSizeTooSmall)
}

func TestChunkingManager_MissingChunk(t *testing.T) {
	value := strings.Repeat("0123456789", 30)

	write := func(t *testing.T) *fakeContext {
		t.Helper()
		m := NewChunkingManager(WithChunkSize(80))
		c := newFakeContext()
		require.NoError(t, m.AppendResponseCookie(c, "Key", value, Options{}))
		c.echo()
		delete(c.request, "KeyC2")
		return c
	}

	t.Run("strict read fails", func(t *testing.T) {
		c := write(t)
		m := NewChunkingManager(WithChunkSize(80))
		_, found, err := m.GetRequestCookie(c, "Key")
		assert.True(t, found)
		assert.ErrorIs(t, err, ErrIncompleteChunks)
	})

	t.Run("fallback returns the marker", func(t *testing.T) {
		c := write(t)
		m := NewChunkingManager(WithChunkSize(80), WithPartialCookieFallback())
		got, found, err := m.GetRequestCookie(c, "Key")
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, strings.HasPrefix(got, "chunks:"), "expected literal marker, got %q", got)
	})
}

func TestChunkingManager_ForeignValuesPassThrough(t *testing.T) {
	m := NewChunkingManager()
	c := newFakeContext()

	// Not written by us: no marker, not URL-encoded, percent that does
	// not decode.
	c.request["Key"] = "100%legacy"

	got, found, err := m.GetRequestCookie(c, "Key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "100%legacy", got)
}

func TestParseChunkCount(t *testing.T) {
	tests := []struct {
		value   string
		count   int
		chunked bool
	}{
		{"chunks:3", 3, true},
		{"chunks:12", 12, true},
		{"chunks:0", 0, true},
		{"chunks:", 0, false},
		{"chunks:007", 0, false},
		{"chunks:-2", 0, false},
		{"chunks:3x", 0, false},
		{"chunk:3", 0, false},
		{"plain value", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			n, ok := parseChunkCount(tt.value)
			assert.Equal(t, tt.chunked, ok)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestChunkingManager_GetRequestCookieAbsent(t *testing.T) {
	m := NewChunkingManager()
	_, found, err := m.GetRequestCookie(newFakeContext(), "Missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChunkingManager_DeleteCookie(t *testing.T) {
	m := NewChunkingManager(WithChunkSize(80))
	c := newFakeContext()

	// A previous middleware staged cookies for the key; they must be
	// purged before the expiring cookies go out.
	value := strings.Repeat("0123456789", 30)
	require.NoError(t, m.AppendResponseCookie(c, "Key", value, Options{}))
	c.echo()

	require.NoError(t, m.AppendResponseCookie(c, "Key", "replacement", Options{}))
	require.NoError(t, m.AppendResponseCookie(c, "Other", "keep me", Options{}))

	m.DeleteCookie(c, "Key", Options{})

	var names []string
	expired := 0
	for _, header := range c.staged {
		names = append(names, setCookieName(header))
		if strings.Contains(header, "expires=Thu, 01 Jan 1970") {
			expired++
		}
	}

	assert.Contains(t, names, "Other")
	// The freshly staged replacement for Key is gone.
	for _, header := range c.staged {
		if setCookieName(header) == "Key" {
			assert.NotContains(t, header, "replacement")
		}
	}
	// Expiring cookies: the key plus each chunk the request declared.
	raw := c.request["Key"]
	n, chunked := parseChunkCount(raw)
	require.True(t, chunked)
	assert.Equal(t, n+1, expired)
}

func TestChunkingManager_DeleteCookieDomainFilter(t *testing.T) {
	m := NewChunkingManager()
	c := newFakeContext()

	require.NoError(t, m.AppendResponseCookie(c, "Key", "a", Options{Domain: "example.com"}))
	require.NoError(t, m.AppendResponseCookie(c, "Key", "b", Options{Domain: "other.org"}))

	m.DeleteCookie(c, "Key", Options{Domain: "example.com"})

	var survivors []string
	for _, header := range c.staged {
		if strings.Contains(header, "=b") {
			survivors = append(survivors, header)
		}
		assert.NotContains(t, header, "=a", "the example.com cookie should have been purged")
	}
	assert.Len(t, survivors, 1, "the other.org cookie must survive a domain-filtered delete")
}

func TestHTTPContext_PreservesQuotes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("Cookie", `Key="quoted value"; Plain=bare`)

	c := NewHTTPContext(req, http.Header{})

	v, ok := c.RequestCookie("Key")
	require.True(t, ok)
	assert.Equal(t, `"quoted value"`, v)

	v, ok = c.RequestCookie("Plain")
	require.True(t, ok)
	assert.Equal(t, "bare", v)

	_, ok = c.RequestCookie("Missing")
	assert.False(t, ok)
}

func TestHTTPContext_SetCookieHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	header := http.Header{}
	c := NewHTTPContext(req, header)

	c.AppendSetCookie("A=1")
	c.AppendSetCookie("B=2")
	assert.Equal(t, []string{"A=1", "B=2"}, c.SetCookies())

	c.ReplaceSetCookies([]string{"B=2"})
	assert.Equal(t, []string{"B=2"}, header.Values("Set-Cookie"))
}
