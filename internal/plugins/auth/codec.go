package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionIssuer is stamped into every session and required on verify.
const sessionIssuer = "rollcall"

// ErrInvalidSession is the single result for any token that fails
// verification: bad signature, wrong algorithm, expired or malformed.
var ErrInvalidSession = errors.New("invalid session")

// ErrMissingSigningSecret is returned by NewSessionCodec for an empty secret.
var ErrMissingSigningSecret = errors.New("session signing secret is required")

// SessionCodec signs and verifies session tokens with one symmetric key.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionCodec creates a codec. The server must not start without a
// secret, so an empty one is an error rather than a default.
func NewSessionCodec(secret string, ttl time.Duration) (*SessionCodec, error) {
	if secret == "" {
		return nil, ErrMissingSigningSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &SessionCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source. Used by tests.
func (c *SessionCodec) WithClock(now func() time.Time) *SessionCodec {
	c.now = now
	return c
}

// TTL returns the session lifetime.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Sign mints a session for id and returns the token with its expiry.
func (c *SessionCodec) Sign(id Identity) (string, time.Time, error) {
	iat := jwt.NewNumericDate(c.now())
	exp := jwt.NewNumericDate(iat.Add(c.ttl))

	claims := Claims{
		MemberNo: id.MemberNo,
		IsAdmin:  id.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   id.ID,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session: %w", err)
	}
	return token, exp.Time, nil
}

// Verify checks signature, algorithm, issuer and expiry together. A token
// is valid strictly before its exp; every failure is ErrInvalidSession.
func (c *SessionCodec) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
