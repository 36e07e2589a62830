// Package cookie implements the chunking cookie manager: values too large
// for a single cookie are split across bounded data cookies behind a
// "chunks:N" marker and reassembled on read.
//
// The wire convention is fixed for interoperability: the marker cookie
// carries the literal value "chunks:<N>" (decimal, no sign, no leading
// zeros) and data cookies are named "<key>C<i>" with 1-indexed decimal i.
package cookie

import (
	"net/http"
	"strings"
	"time"
)

// ChunkNameSuffix is the reserved segment-name infix: data cookies are
// named key + ChunkNameSuffix + index.
const ChunkNameSuffix = "C"

// ChunkCountPrefix is the marker value prefix announcing a chunked cookie.
const ChunkCountPrefix = "chunks:"

// Options carries the cookie attributes rendered into each Set-Cookie
// header. Every chunk of a value shares the same attributes.
type Options struct {
	Domain   string
	Path     string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// Manager is the cookie manager contract the session layer consumes.
// GetRequestCookie reports found=false for an absent cookie; err is
// reserved for incomplete chunk sets. AppendResponseCookie fails only on
// an unusable chunk-size configuration.
type Manager interface {
	GetRequestCookie(c Context, key string) (value string, found bool, err error)
	AppendResponseCookie(c Context, key, value string, opts Options) error
	DeleteCookie(c Context, key string, opts Options)
}

// Context abstracts the request/response pair a manager operates on: the
// incoming cookies and the response's staged Set-Cookie headers. The
// manager performs no I/O of its own; callers own synchronization of the
// underlying response.
type Context interface {
	// RequestCookie returns the raw (undecoded, unquoted-as-sent) value of
	// a request cookie.
	RequestCookie(name string) (string, bool)

	// SetCookies returns the currently staged Set-Cookie header values.
	SetCookies() []string

	// ReplaceSetCookies replaces the staged Set-Cookie headers wholesale.
	ReplaceSetCookies(headers []string)

	// AppendSetCookie stages one additional Set-Cookie header.
	AppendSetCookie(header string)
}

// httpContext adapts a net/http request and response header pair.
type httpContext struct {
	req    *http.Request
	header http.Header
}

// NewHTTPContext binds a manager Context to a net/http request and a
// response header map (typically http.ResponseWriter.Header()).
func NewHTTPContext(req *http.Request, header http.Header) Context {
	return &httpContext{req: req, header: header}
}

// RequestCookie parses the Cookie header itself rather than going through
// http.Request.Cookie: the stdlib parser strips wrapping double quotes,
// which would destroy the quoting marker chunk reassembly depends on.
func (c *httpContext) RequestCookie(name string) (string, bool) {
	for _, line := range c.req.Header["Cookie"] {
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, v := part, ""
			if i := strings.Index(part, "="); i >= 0 {
				k, v = part[:i], part[i+1:]
			}
			if k == name {
				return v, true
			}
		}
	}
	return "", false
}

func (c *httpContext) SetCookies() []string {
	return c.header.Values("Set-Cookie")
}

func (c *httpContext) ReplaceSetCookies(headers []string) {
	c.header.Del("Set-Cookie")
	for _, h := range headers {
		c.header.Add("Set-Cookie", h)
	}
}

func (c *httpContext) AppendSetCookie(header string) {
	c.header.Add("Set-Cookie", header)
}
