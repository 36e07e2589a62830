package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedCodec serializes tickets as AEAD-sealed opaque blobs
// (XChaCha20-Poly1305). Unlike JWTCodec the client cannot inspect the
// ticket contents.
type SealedCodec struct {
	key []byte
}

// NewSealedCodec creates a codec sealing with the given 32-byte key.
func NewSealedCodec(key []byte) (*SealedCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKeySize
	}
	return &SealedCodec{key: key}, nil
}

// Encode implements Codec.
func (c *SealedCodec) Encode(t *Ticket) (string, error) {
	plaintext, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session ticket: %w", err)
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

// Decode implements Codec.
func (c *SealedCodec) Decode(value string) (*Ticket, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, ErrInvalidTicket
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidTicket
	}

	t := &Ticket{}
	if err := json.Unmarshal(plaintext, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if t.Expired(time.Now()) {
		return nil, ErrTicketExpired
	}
	return t, nil
}
