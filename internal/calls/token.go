package calls

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = time.Hour

var (
	ErrTokenSecretMissing = errors.New("calls: token secret not configured")
	ErrInvalidToken       = errors.New("calls: invalid room token")
)

// RoomClaims grant one user entry to one room.
type RoomClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 room tokens for the calling SDK.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for userID in roomID and its expiry.
func (i *TokenIssuer) Issue(roomID, userID string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrTokenSecretMissing
	}
	if roomID == "" || userID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := RoomClaims{
		Room: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("calls: sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token issued by Issue.
func (i *TokenIssuer) Verify(token string) (*RoomClaims, error) {
	if len(i.secret) == 0 {
		return nil, ErrTokenSecretMissing
	}
	claims := &RoomClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
