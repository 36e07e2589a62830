package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatehouse/go-core/pkg/types"
)

// JWTCodec serializes tickets as HS256-signed JWTs. The token is
// inspectable by the client; use SealedCodec when the ticket contents
// must stay opaque.
type JWTCodec struct {
	key    []byte
	issuer string
}

type ticketClaims struct {
	jwt.RegisteredClaims
	Scheme    string           `json:"scheme"`
	Principal *types.Principal `json:"principal"`
}

// NewJWTCodec creates a codec signing with the given HMAC key.
func NewJWTCodec(key []byte, issuer string) *JWTCodec {
	return &JWTCodec{key: key, issuer: issuer}
}

// Encode implements Codec.
func (c *JWTCodec) Encode(t *Ticket) (string, error) {
	claims := ticketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        t.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
		Scheme:    t.Scheme,
		Principal: t.Principal,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session ticket: %w", err)
	}
	return signed, nil
}

// Decode implements Codec.
func (c *JWTCodec) Decode(value string) (*Ticket, error) {
	claims := &ticketClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTicketExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if !token.Valid {
		return nil, ErrInvalidTicket
	}

	t := &Ticket{
		ID:        claims.ID,
		Scheme:    claims.Scheme,
		Principal: claims.Principal,
	}
	if claims.IssuedAt != nil {
		t.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		t.ExpiresAt = claims.ExpiresAt.Time
	}
	if t.Expired(time.Now()) {
		return nil, ErrTicketExpired
	}
	return t, nil
}
