package cookie

import "errors"

var (
	// ErrChunkSizeTooSmall is returned when the configured chunk size
	// cannot hold the cookie attribute template, a 10-byte payload and the
	// 3-character chunk-index suffix. This is a fatal misconfiguration,
	// not a per-request condition.
	ErrChunkSizeTooSmall = errors.New("chunk size is too small to emit a usable cookie")

	// ErrIncompleteChunks is returned on read when the marker announces
	// more chunk cookies than the request carries.
	ErrIncompleteChunks = errors.New("incomplete chunked cookie")
)
