package session

import "errors"

var (
	// ErrInvalidTicket is returned when a session cookie fails to decode
	// or its signature does not verify.
	ErrInvalidTicket = errors.New("invalid session ticket")

	// ErrTicketExpired is returned when a ticket decodes cleanly but its
	// validity window has passed.
	ErrTicketExpired = errors.New("session ticket expired")

	// ErrSessionNotFound is returned by stores for unknown or expired
	// session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoSession is returned by Authenticate when the request carries no
	// session cookie at all.
	ErrNoSession = errors.New("no session cookie")

	// ErrInvalidKeySize is returned when a sealed codec key is not exactly
	// 32 bytes.
	ErrInvalidKeySize = errors.New("sealed codec key must be 32 bytes")
)
