package auth

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	// Full-cost derivations make the suite slow without testing anything extra.
	Iterations = 1_000
	m.Run()
}

func TestHashPassword_RoundTrip(t *testing.T) {
	for _, pw := range []string{"pw1", "correct horse battery staple", "ünïcødé", " spaces "} {
		h, err := HashPassword(pw)
		if err != nil {
			t.Fatalf("HashPassword(%q): %v", pw, err)
		}
		if strings.Contains(h, pw) {
			t.Fatalf("hash leaks the plaintext: %s", h)
		}
		if !VerifyPassword(h, pw) {
			t.Fatalf("VerifyPassword rejected the right password %q", pw)
		}
		if VerifyPassword(h, pw+"x") {
			t.Fatalf("VerifyPassword accepted %q", pw+"x")
		}
	}
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same password must differ")
	}
	if !VerifyPassword(a, "same") || !VerifyPassword(b, "same") {
		t.Fatalf("both salted hashes must verify")
	}
}

func TestHashPassword_Format(t *testing.T) {
	h, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(h, "pbkdf2:sha256:1000$") {
		t.Fatalf("unexpected prefix: %s", h)
	}
	ph, err := ParsePasswordHash(h)
	if err != nil {
		t.Fatalf("ParsePasswordHash: %v", err)
	}
	if ph.Iterations != 1_000 || len(ph.Key) != 32 || len(ph.Salt) != 22 {
		t.Fatalf("unexpected parsed hash: %+v", ph)
	}
}

func TestVerifyPassword_Werkzeug(t *testing.T) {
	// Same layout werkzeug's generate_password_hash emits for "pbkdf2:sha256:1000".
	stored := "pbkdf2:sha256:1000$abcdefghijklmnop$" + hex.EncodeToString(derive("pw1", "abcdefghijklmnop", 1000))
	if !VerifyPassword(stored, "pw1") {
		t.Fatalf("expected werkzeug-layout hash to verify")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	bad := []string{
		"",
		"plaintext",
		"pbkdf2:sha256:1000$salt",
		"pbkdf2:sha256:abc$salt$00",
		"pbkdf2:sha256:0$salt$00",
		"pbkdf2:md5:1000$salt$00",
		"pbkdf2:sha256:1000$$00",
		"pbkdf2:sha256:1000$salt$not-hex",
		"pbkdf2:sha256:1000$salt$",
		"scrypt:32768:8:1$salt$00",
	}
	for _, s := range bad {
		if VerifyPassword(s, "anything") {
			t.Fatalf("VerifyPassword(%q) must be false", s)
		}
		if _, err := ParsePasswordHash(s); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("ParsePasswordHash(%q): expected ErrMalformedHash, got %v", s, err)
		}
	}
}

func TestVerifyPassword_Bcrypt(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("legacy"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !VerifyPassword(string(h), "legacy") {
		t.Fatalf("bcrypt hash must verify")
	}
	if VerifyPassword(string(h), "legacy!") {
		t.Fatalf("bcrypt hash accepted the wrong password")
	}
}
