package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse/go-core/internal/cookie"
	"github.com/gatehouse/go-core/pkg/types"
)

// DefaultCookieName is the session cookie key when none is configured.
const DefaultCookieName = "gatehouse.session"

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 12 * time.Hour

// Manager issues, authenticates and revokes cookie sessions. The encoded
// ticket rides the chunking cookie manager, so oversized principals are
// transparently split across cookies. An optional Store adds server-side
// revocation: when present, Authenticate requires the ticket to still be
// live in the store.
type Manager struct {
	cookies    cookie.Manager
	codec      Codec
	store      Store
	logger     *zap.Logger
	cookieName string
	ttl        time.Duration
	opts       cookie.Options
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCookieName overrides the session cookie key.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) { m.cookieName = name }
}

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithCookieOptions overrides the attributes written on session cookies.
func WithCookieOptions(opts cookie.Options) ManagerOption {
	return func(m *Manager) { m.opts = opts }
}

// WithStore enables server-side session tracking and revocation.
func WithStore(store Store) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager over the given cookie manager and
// ticket codec.
func NewManager(cookies cookie.Manager, codec Codec, opts ...ManagerOption) *Manager {
	m := &Manager{
		cookies:    cookies,
		codec:      codec,
		logger:     zap.NewNop(),
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
		opts: cookie.Options{
			Path:     "/",
			Secure:   true,
			HttpOnly: true,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CookieName returns the configured session cookie key.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// SignIn issues a ticket for the principal, persists it when a store is
// configured, and stages the encoded cookie on the response.
func (m *Manager) SignIn(ctx context.Context, c cookie.Context, principal *types.Principal) (*Ticket, error) {
	ticket := NewTicket(principal, SchemeCookie, m.ttl)

	encoded, err := m.codec.Encode(ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session ticket: %w", err)
	}

	if m.store != nil {
		if err := m.store.Save(ctx, ticket); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}

	opts := m.opts
	opts.Expires = ticket.ExpiresAt
	if err := m.cookies.AppendResponseCookie(c, m.cookieName, encoded, opts); err != nil {
		return nil, fmt.Errorf("failed to write session cookie: %w", err)
	}

	m.logger.Debug("session issued",
		zap.String("session_id", ticket.ID),
		zap.Time("expires_at", ticket.ExpiresAt))
	return ticket, nil
}

// Authenticate reconstructs the ticket from the request's session cookie.
// A missing cookie returns ErrNoSession; a tampered or expired cookie
// returns ErrInvalidTicket or ErrTicketExpired; a store-revoked session
// returns ErrSessionNotFound.
func (m *Manager) Authenticate(ctx context.Context, c cookie.Context) (*Ticket, error) {
	value, found, err := m.cookies.GetRequestCookie(c, m.cookieName)
	if err != nil {
		return nil, fmt.Errorf("failed to read session cookie: %w", err)
	}
	if !found {
		return nil, ErrNoSession
	}

	ticket, err := m.codec.Decode(value)
	if err != nil {
		return nil, err
	}

	if m.store != nil {
		stored, err := m.store.Load(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		ticket = stored
	}
	return ticket, nil
}

// SignOut revokes the request's session: the store entry is deleted when
// one exists and the session cookie (with any chunk segments) is expired
// on the response. A request without a session is a no-op.
func (m *Manager) SignOut(ctx context.Context, c cookie.Context) error {
	defer m.cookies.DeleteCookie(c, m.cookieName, m.opts)

	if m.store == nil {
		return nil
	}

	value, found, err := m.cookies.GetRequestCookie(c, m.cookieName)
	if err != nil || !found {
		return nil
	}
	ticket, err := m.codec.Decode(value)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, ticket.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	m.logger.Debug("session revoked", zap.String("session_id", ticket.ID))
	return nil
}
