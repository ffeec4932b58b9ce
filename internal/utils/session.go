package utils // package utils provides helper functions for session token creation

import (
    "errors"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"
)

// ErrInvalidSessionToken is returned when a token fails verification.
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionToken represents a signed JWT identifying an anonymous booking
// session along with its expiry.  Holds are owned by the session id stored
// in the subject claim.
type SessionToken struct {
    SessionID string    // the session id carried as "sub"
    Token     string    // the serialized JWT string
    Exp       time.Time // the UTC expiration time
}

// NewSessionToken creates a fresh session id and signs an HS256 JWT for it.
// The JWT includes the standard claims subject (sub), expiration (exp) and
// issued at (iat).
func NewSessionToken(secret string, ttl time.Duration) (SessionToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    sid := uuid.NewString()
    claims := jwt.RegisteredClaims{
        Subject:   sid,
        ExpiresAt: jwt.NewNumericDate(exp),
        IssuedAt:  jwt.NewNumericDate(now),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{SessionID: sid, Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies raw with secret and returns the session id.
// Only HMAC-signed, unexpired tokens with a subject are accepted.
func ParseSessionToken(secret, raw string) (string, error) {
    var claims jwt.RegisteredClaims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        // Type assert the signing method to HMAC; reject others.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidSessionToken
        }
        return []byte(secret), nil
    }, jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return "", ErrInvalidSessionToken
    }
    if claims.Subject == "" {
        return "", ErrInvalidSessionToken
    }
    return claims.Subject, nil
}
