// Package auth holds the credential primitives: password hashing, bearer token
// issue/verify, and Authorization header parsing.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Method      = "pbkdf2:sha256"
	DefaultPBKDF2Iter = 600_000
	saltBytes         = 16
	keyBytes          = 32
	maxPBKDF2Iter     = 10_000_000
)

// ErrMalformedHash is returned by ParsePasswordHash for unreadable stored hashes.
var ErrMalformedHash = errors.New("auth: malformed password hash")

// PasswordHash is the decoded form of a stored pbkdf2 hash string:
//
//	pbkdf2:sha256:<iterations>$<salt>$<hex key>
type PasswordHash struct {
	Iterations int
	Salt       string
	Key        []byte
}

// Iterations is the PBKDF2 work factor for new hashes. Existing hashes keep the
// count embedded in them.
var Iterations = DefaultPBKDF2Iter

// HashPassword derives a salted PBKDF2-HMAC-SHA256 hash with a fresh random salt.
func HashPassword(password string) (string, error) {
	var raw [saltBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	salt := base64.RawURLEncoding.EncodeToString(raw[:])
	key := derive(password, salt, Iterations)
	return fmt.Sprintf("%s:%d$%s$%s", pbkdf2Method, Iterations, salt, hex.EncodeToString(key)), nil
}

// VerifyPassword reports whether candidate matches stored. It never errors: a
// malformed stored hash is a mismatch, and costs the same derivation as a real check.
func VerifyPassword(stored, candidate string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}

	ph, err := ParsePasswordHash(stored)
	if err != nil {
		derive(candidate, "0000000000000000000000", Iterations)
		return false
	}
	got := derive(candidate, ph.Salt, ph.Iterations)
	return subtle.ConstantTimeCompare(got, ph.Key) == 1
}

// ParsePasswordHash decodes a pbkdf2 hash string produced by HashPassword.
func ParsePasswordHash(stored string) (*PasswordHash, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 {
		return nil, ErrMalformedHash
	}
	method, iterStr, ok := strings.Cut(parts[0], ":sha256:")
	if !ok || method+":sha256" != pbkdf2Method {
		return nil, ErrMalformedHash
	}
	iter, err := strconv.Atoi(iterStr)
	if err != nil || iter <= 0 || iter > maxPBKDF2Iter {
		return nil, ErrMalformedHash
	}
	if parts[1] == "" {
		return nil, ErrMalformedHash
	}
	key, err := hex.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return nil, ErrMalformedHash
	}
	return &PasswordHash{Iterations: iter, Salt: parts[1], Key: key}, nil
}

func derive(password, salt string, iter int) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), iter, keyBytes, sha256.New)
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
