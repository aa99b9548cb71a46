package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ternarybob/jobscout/internal/common"
)

const testKey = "test-signing-key-0123456789abcdef"

func testValidator() *Validator {
	return NewValidator(common.AuthConfig{
		Issuer:    "https://auth.example.com",
		SharedKey: testKey,
		Audience:  "authenticated",
	})
}

func baseClaims() Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://auth.example.com",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:          "user@example.com",
		EmailConfirmed: true,
	}
}

func sign(t *testing.T, claims Claims, key string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestVerifyTokenValid(t *testing.T) {
	claims, err := testValidator().VerifyToken(sign(t, baseClaims(), testKey))
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestVerifyTokenRejections(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name   string
		mutate func(*Claims)
	}{
		{"missing subject", func(c *Claims) { c.Subject = "" }},
		{"wrong issuer", func(c *Claims) { c.Issuer = "https://evil.example.com" }},
		{"wrong audience", func(c *Claims) { c.Audience = jwt.ClaimStrings{"anon"} }},
		{"missing audience", func(c *Claims) { c.Audience = nil }},
		{"missing expiry", func(c *Claims) { c.ExpiresAt = nil }},
		{"missing issued-at", func(c *Claims) { c.IssuedAt = nil }},
		{"stale issued-at", func(c *Claims) {
			c.IssuedAt = jwt.NewNumericDate(time.Now().Add(-25 * time.Hour))
		}},
		{"future issued-at", func(c *Claims) {
			c.IssuedAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		}},
		{"unconfirmed email", func(c *Claims) { c.EmailConfirmed = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := baseClaims()
			tt.mutate(&claims)
			if _, err := v.VerifyToken(sign(t, claims, testKey)); err == nil {
				t.Error("token should be rejected")
			}
		})
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	claims := baseClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	_, err := testValidator().VerifyToken(sign(t, claims, testKey))
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyTokenWrongKey(t *testing.T) {
	if _, err := testValidator().VerifyToken(sign(t, baseClaims(), "some-other-key")); err == nil {
		t.Error("token signed with the wrong key should be rejected")
	}
}

func TestVerifyTokenRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims())
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testValidator().VerifyToken(unsigned); err == nil {
		t.Error("alg=none must be rejected")
	}
}

func TestVerifyTokenGarbage(t *testing.T) {
	if _, err := testValidator().VerifyToken("not.a.token"); err == nil {
		t.Error("garbage must be rejected")
	}
}

func TestValidatorDisabledWithoutKey(t *testing.T) {
	v := NewValidator(common.AuthConfig{})
	if v.Enabled() {
		t.Error("validator without a key must report disabled")
	}
	if _, err := v.VerifyToken(sign(t, baseClaims(), testKey)); err == nil {
		t.Error("disabled validator must not verify tokens")
	}
}
