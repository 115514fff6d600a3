package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	TokenKindHost  TokenKind = "host"
	TokenKindGuest TokenKind = "guest"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims carries the actor identity for both host and guest tokens.
// Subject holds the user or guest id depending on Kind.
type SessionClaims struct {
	Kind      TokenKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	jwt.RegisteredClaims
}

func GenerateHostToken(userID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		Kind: TokenKindHost,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func GenerateGuestToken(
	guestID, sessionID uuid.UUID,
	secret string,
	ttl time.Duration,
) (string, error) {
	claims := SessionClaims{
		Kind:      TokenKindGuest,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   guestID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseSessionToken(tokenString, secret string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// SubjectID parses the claims subject as a UUID.
func (c *SessionClaims) SubjectID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
