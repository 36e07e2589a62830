package cookie

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultChunkSize is the per-cookie serialized size budget. 4090 stays
// under the common 4096-byte browser limit with a little slack.
const DefaultChunkSize = 4090

// minChunkPayload is the smallest data-cookie payload worth emitting; a
// chunk size that cannot hold this plus the attribute template plus the
// 3-character index suffix is a misconfiguration.
const minChunkPayload = 10

// chunkSuffixBudget reserves room in each data cookie for the "C<i>"
// name suffix.
const chunkSuffixBudget = 3

// ChunkingManager splits oversized cookie values across multiple bounded
// cookies and reassembles them on read. It is stateless per call and
// performs no I/O beyond the Context it is handed.
type ChunkingManager struct {
	chunkSize       int // 0 disables chunking entirely
	throwForPartial bool
	logger          *zap.Logger
	onChunks        func(key string, count int)
}

// ManagerOption configures a ChunkingManager.
type ManagerOption func(*ChunkingManager)

// WithChunkSize overrides the per-cookie size budget. A non-positive size
// disables chunking.
func WithChunkSize(size int) ManagerOption {
	return func(m *ChunkingManager) {
		if size <= 0 {
			m.chunkSize = 0
			return
		}
		m.chunkSize = size
	}
}

// WithoutChunking disables splitting; values are always emitted as a
// single cookie regardless of size.
func WithoutChunking() ManagerOption {
	return func(m *ChunkingManager) { m.chunkSize = 0 }
}

// WithPartialCookieFallback makes reads of an incomplete chunk set return
// the raw marker value instead of failing.
func WithPartialCookieFallback() ManagerOption {
	return func(m *ChunkingManager) { m.throwForPartial = false }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *ChunkingManager) { m.logger = logger }
}

// WithChunkObserver registers a callback invoked with the chunk count of
// every write that required splitting. Used to feed metrics.
func WithChunkObserver(fn func(key string, count int)) ManagerOption {
	return func(m *ChunkingManager) { m.onChunks = fn }
}

// NewChunkingManager creates a manager with the default 4090-byte budget
// and strict partial-read behavior.
func NewChunkingManager(opts ...ManagerOption) *ChunkingManager {
	m := &ChunkingManager{
		chunkSize:       DefaultChunkSize,
		throwForPartial: true,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetRequestCookie reads a cookie, reassembling it when the value is a
// chunk marker. Absent cookies report found=false. An incomplete chunk
// set fails with ErrIncompleteChunks unless the partial fallback is
// enabled, in which case the literal marker value is returned.
func (m *ChunkingManager) GetRequestCookie(c Context, key string) (string, bool, error) {
	name := url.QueryEscape(key)

	raw, ok := c.RequestCookie(name)
	if !ok {
		return "", false, nil
	}

	count, chunked := parseChunkCount(raw)
	if !chunked {
		return decodeValue(raw), true, nil
	}

	chunks := make([]string, 0, count)
	size := 0
	for i := 1; i <= count; i++ {
		chunk, ok := c.RequestCookie(name + ChunkNameSuffix + strconv.Itoa(i))
		if !ok {
			if m.throwForPartial {
				return "", true, fmt.Errorf("%w: found %d of %d expected chunks (%d bytes read)",
					ErrIncompleteChunks, len(chunks), count, size)
			}
			m.logger.Warn("Incomplete chunked cookie, returning marker value",
				zap.String("cookie", name),
				zap.Int("found", len(chunks)),
				zap.Int("expected", count),
			)
			return raw, true, nil
		}
		chunks = append(chunks, chunk)
		size += len(chunk)
	}

	// Quoting is all-or-nothing, decided at write time; chunk 1 tells us
	// which way it went.
	quoted := len(chunks) > 0 && isQuoted(chunks[0])
	if quoted {
		for i, chunk := range chunks {
			chunks[i] = trimQuotes(chunk)
		}
	}

	merged := strings.Join(chunks, "")
	if quoted {
		merged = `"` + merged + `"`
	}
	return decodeValue(merged), true, nil
}

// AppendResponseCookie stages Set-Cookie headers for the value, splitting
// it when the serialized cookie would exceed the chunk size. Splitting
// emits a marker cookie "key=chunks:<N>" followed by data cookies
// "keyC1".."keyCN" carrying contiguous slices of the encoded value.
func (m *ChunkingManager) AppendResponseCookie(c Context, key, value string, opts Options) error {
	quoted := isQuoted(value)
	if quoted {
		value = trimQuotes(value)
	}

	name := url.QueryEscape(key)
	encoded := url.QueryEscape(value)

	quoteBudget := 0
	if quoted {
		quoteBudget = 2
	}

	templateLength := len(renderSetCookie(name, "", opts))

	if m.chunkSize == 0 || m.chunkSize > templateLength+len(encoded)+quoteBudget {
		c.AppendSetCookie(renderSetCookie(name, maybeQuote(encoded, quoted), opts))
		return nil
	}

	if m.chunkSize < templateLength+minChunkPayload+chunkSuffixBudget {
		return fmt.Errorf("%w: chunk size %d cannot fit a %d byte header template",
			ErrChunkSizeTooSmall, m.chunkSize, templateLength)
	}

	dataSizePerCookie := m.chunkSize - templateLength - quoteBudget - chunkSuffixBudget
	chunkCount := (len(encoded) + dataSizePerCookie - 1) / dataSizePerCookie

	c.AppendSetCookie(renderSetCookie(name, ChunkCountPrefix+strconv.Itoa(chunkCount), opts))
	for i := 1; i <= chunkCount; i++ {
		start := (i - 1) * dataSizePerCookie
		end := start + dataSizePerCookie
		if end > len(encoded) {
			end = len(encoded)
		}
		segment := maybeQuote(encoded[start:end], quoted)
		c.AppendSetCookie(renderSetCookie(name+ChunkNameSuffix+strconv.Itoa(i), segment, opts))
	}

	if m.onChunks != nil {
		m.onChunks(key, chunkCount)
	}
	return nil
}

// DeleteCookie removes any staged Set-Cookie headers for the key and its
// chunks, then stages epoch-expiring cookies so the client drops what it
// holds. When the options carry a Domain or Path, staged headers are only
// purged if that attribute matches; Domain takes precedence and only one
// attribute filter applies.
func (m *ChunkingManager) DeleteCookie(c Context, key string, opts Options) {
	name := url.QueryEscape(key)

	chunks := 0
	if raw, ok := c.RequestCookie(name); ok {
		if n, chunked := parseChunkCount(raw); chunked {
			chunks = n
		}
	}

	// The +1 guards against an off-by-one chunk staged after the request
	// was read.
	purge := map[string]bool{name: true}
	for i := 1; i <= chunks+1; i++ {
		purge[name+ChunkNameSuffix+strconv.Itoa(i)] = true
	}

	staged := c.SetCookies()
	kept := make([]string, 0, len(staged))
	for _, header := range staged {
		if !purge[setCookieName(header)] {
			kept = append(kept, header)
			continue
		}
		switch {
		case opts.Domain != "":
			if !strings.Contains(strings.ToLower(header), "domain="+strings.ToLower(opts.Domain)) {
				kept = append(kept, header)
			}
		case opts.Path != "":
			if !strings.Contains(header, "path="+opts.Path) {
				kept = append(kept, header)
			}
		}
	}
	if len(kept) != len(staged) {
		c.ReplaceSetCookies(kept)
	}

	expired := opts
	expired.Expires = time.Unix(0, 0)
	expired.MaxAge = 0

	c.AppendSetCookie(renderSetCookie(name, "", expired))
	for i := 1; i <= chunks; i++ {
		c.AppendSetCookie(renderSetCookie(name+ChunkNameSuffix+strconv.Itoa(i), "", expired))
	}
}

// parseChunkCount recognizes the "chunks:<N>" marker. N must be a plain
// non-negative decimal with no sign and no leading zeros; anything else
// is treated as an ordinary cookie value.
func parseChunkCount(value string) (int, bool) {
	if !strings.HasPrefix(value, ChunkCountPrefix) {
		return 0, false
	}
	digits := value[len(ChunkCountPrefix):]
	if digits == "" {
		return 0, false
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	for _, ch := range digits {
		if ch < '0' || ch > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// decodeValue reverses the write-time URL encoding, preserving one layer
// of wrapping quotes. Values that do not URL-decode (cookies written by
// someone else) pass through verbatim.
func decodeValue(raw string) string {
	quoted := isQuoted(raw)
	body := raw
	if quoted {
		body = trimQuotes(raw)
	}
	decoded, err := url.QueryUnescape(body)
	if err != nil {
		return raw
	}
	if quoted {
		return `"` + decoded + `"`
	}
	return decoded
}

func isQuoted(value string) bool {
	return len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"'
}

func trimQuotes(value string) string {
	return value[1 : len(value)-1]
}

func maybeQuote(value string, quoted bool) string {
	if quoted {
		return `"` + value + `"`
	}
	return value
}

// setCookieName extracts the cookie name from a staged Set-Cookie header.
func setCookieName(header string) string {
	if i := strings.Index(header, "="); i >= 0 {
		return header[:i]
	}
	return header
}

// renderSetCookie serializes a Set-Cookie header by hand. http.Cookie is
// deliberately not used: its sanitizer strips the double-quote characters
// the chunking quoting convention depends on.
func renderSetCookie(name, value string, opts Options) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)

	if opts.Domain != "" {
		b.WriteString("; domain=")
		b.WriteString(opts.Domain)
	}
	if opts.Path != "" {
		b.WriteString("; path=")
		b.WriteString(opts.Path)
	}
	if !opts.Expires.IsZero() {
		b.WriteString("; expires=")
		b.WriteString(opts.Expires.UTC().Format(http.TimeFormat))
	}
	if opts.MaxAge > 0 {
		b.WriteString("; max-age=")
		b.WriteString(strconv.Itoa(opts.MaxAge))
	}
	switch opts.SameSite {
	case http.SameSiteStrictMode:
		b.WriteString("; samesite=strict")
	case http.SameSiteLaxMode:
		b.WriteString("; samesite=lax")
	case http.SameSiteNoneMode:
		b.WriteString("; samesite=none")
	}
	if opts.HttpOnly {
		b.WriteString("; httponly")
	}
	if opts.Secure {
		b.WriteString("; secure")
	}
	return b.String()
}
