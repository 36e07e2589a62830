package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultStateTTL bounds how long an authorization redirect may stay
// outstanding before its state is rejected.
const DefaultStateTTL = 15 * time.Minute

var (
	// ErrInvalidState is returned when a callback state fails to open or
	// decode.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrStateExpired is returned when a callback state opens cleanly but
	// its validity window has passed.
	ErrStateExpired = errors.New("oauth state expired")
)

// State is the value round-tripped through the provider: where to land
// after login, bound to a single-use nonce and a validity window.
type State struct {
	Provider  string    `json:"provider"`
	ReturnURL string    `json:"returnUrl"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StateCodec seals states into opaque URL-safe strings and back. A state
// that opens has provably not been altered since Encode.
type StateCodec struct {
	key []byte
	ttl time.Duration
}

// NewStateCodec creates a codec sealing with the given 32-byte key.
func NewStateCodec(key []byte) (*StateCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("state codec key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &StateCodec{key: key, ttl: DefaultStateTTL}, nil
}

// SetTTL overrides the state validity window.
func (c *StateCodec) SetTTL(ttl time.Duration) {
	c.ttl = ttl
}

// Issue creates and seals a fresh state for the provider.
func (c *StateCodec) Issue(provider, returnURL string) (string, error) {
	now := time.Now().UTC().Truncate(time.Second)
	return c.Encode(&State{
		Provider:  provider,
		ReturnURL: returnURL,
		Nonce:     uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
}

// Encode seals a state into an opaque URL-safe string.
func (c *StateCodec) Encode(s *State) (string, error) {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a callback state. Tampered or foreign values return
// ErrInvalidState; stale ones return ErrStateExpired.
func (c *StateCodec) Decode(value string) (*State, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, ErrInvalidState
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidState
	}

	s := &State{}
	if err := json.Unmarshal(plaintext, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, ErrStateExpired
	}
	return s, nil
}
