package auth

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of an issued token when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	ErrTokenMalformed        = errors.New("auth: malformed token")
	ErrTokenInvalidSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired          = errors.New("auth: token expired")
)

// Claims is the payload of a session token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenMalformed
	}
	return id, nil
}

// Tokens issues and verifies HS256 bearer tokens with a process-wide secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration

	// Now is the clock used for iat/exp and expiry checks.
	Now func() time.Time
}

// NewTokens returns a token service. A non-positive ttl falls back to DefaultTokenTTL.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: secret, ttl: ttl, Now: time.Now}
}

// TTL is the configured token lifetime.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for userID that expires after the configured TTL.
func (t *Tokens) Issue(userID int64, email string) (string, time.Time, error) {
	now := t.Now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return ss, exp, err
}

// Verify checks the signature first, then expiry, and returns the claims.
// Errors are one of ErrTokenMalformed, ErrTokenInvalidSignature, ErrTokenExpired.
func (t *Tokens) Verify(token string) (*Claims, error) {
	if err := t.checkSignature(token); err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.Now),
		jwt.WithStrictDecoding(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrTokenInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenMalformed
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// checkSignature recomputes the MAC over header.payload before anything in the
// token is decoded, so tampering anywhere reads as a bad signature.
func (t *Tokens) checkSignature(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ErrTokenMalformed
	}
	// Strict: the two spare bits of the last character must be zero, otherwise
	// two spellings of one signature would both verify.
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return ErrTokenInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, t.secret); err != nil {
		return ErrTokenInvalidSignature
	}
	return nil
}
