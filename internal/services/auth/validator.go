package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ternarybob/jobscout/internal/common"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
)

// maxTokenAge bounds how old an issued-at may be. A structurally valid
// token minted long ago is treated as stale even if not yet expired.
const maxTokenAge = 24 * time.Hour

// Claims are the token claims the API trusts. The subject becomes the
// owner ID that scopes run visibility.
type Claims struct {
	jwt.RegisteredClaims
	Email          string `json:"email,omitempty"`
	EmailConfirmed bool   `json:"email_confirmed,omitempty"`
	Role           string `json:"role,omitempty"`
}

// Validator verifies bearer tokens against the shared signing key.
type Validator struct {
	issuer   string
	audience string
	key      []byte
}

// NewValidator creates a token validator. An empty key disables
// authentication entirely; callers must check Enabled.
func NewValidator(cfg common.AuthConfig) *Validator {
	audience := cfg.Audience
	if audience == "" {
		audience = "authenticated"
	}
	return &Validator{
		issuer:   cfg.Issuer,
		audience: audience,
		key:      []byte(cfg.SharedKey),
	}
}

// Enabled reports whether a signing key is configured.
func (v *Validator) Enabled() bool {
	return len(v.key) > 0
}

// VerifyToken checks the signature and every required claim, returning
// the claims when the token is acceptable.
func (v *Validator) VerifyToken(tokenString string) (*Claims, error) {
	if !v.Enabled() {
		return nil, fmt.Errorf("%w: no signing key configured", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Anything but HMAC is rejected, which also covers alg=none.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrMissingClaims
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}
	if !hasAudience(claims.Audience, v.audience) {
		return nil, fmt.Errorf("%w: invalid audience", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrMissingClaims)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing issued-at", ErrMissingClaims)
	}
	if age := time.Since(claims.IssuedAt.Time); age > maxTokenAge {
		return nil, fmt.Errorf("%w: token too old", ErrInvalidToken)
	}
	if claims.IssuedAt.Time.After(time.Now().Add(time.Minute)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	}
	if !claims.EmailConfirmed {
		return nil, fmt.Errorf("%w: email not confirmed", ErrInvalidToken)
	}

	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
