// Package session implements cookie session authentication on top of the
// chunking cookie manager: a signed or sealed ticket carries the claims
// principal, with an optional server-side store keyed by session ID.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse/go-core/pkg/types"
)

// SchemeCookie is the authentication scheme recorded on identities
// established from a session cookie.
const SchemeCookie = "cookie"

// Ticket is one authenticated session: the principal plus validity
// bounds. Tickets are immutable once issued.
type Ticket struct {
	ID        string           `json:"id"`
	Scheme    string           `json:"scheme"`
	Principal *types.Principal `json:"principal"`
	IssuedAt  time.Time        `json:"issuedAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// NewTicket issues a ticket for the principal with a fresh session ID.
func NewTicket(principal *types.Principal, scheme string, ttl time.Duration) *Ticket {
	now := time.Now().UTC().Truncate(time.Second)
	return &Ticket{
		ID:        uuid.NewString(),
		Scheme:    scheme,
		Principal: principal,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the ticket's validity window has passed.
func (t *Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Codec serializes tickets into the opaque string carried by the session
// cookie and back.
type Codec interface {
	Encode(t *Ticket) (string, error)
	Decode(value string) (*Ticket, error)
}
