package web

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// ErrTokenInvalid is returned for a missing, forged or expired form token
var ErrTokenInvalid = errors.New("form token invalid or expired")

// FormTokens issues and checks the signed token embedded in the login form.
// A valid token proves the form was rendered by this server recently.
type FormTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFormTokens creates a signer for secret. An empty secret is replaced by
// random bytes, which invalidates outstanding forms on restart.
func NewFormTokens(secret string, ttl time.Duration) (*FormTokens, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate secret key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &FormTokens{secret: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a new signed token
func (f *FormTokens) Issue() (string, error) {
	now := f.now()
	claims := jwt.StandardClaims{
		Id:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(f.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(f.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign form token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw
func (f *FormTokens) Verify(raw string) error {
	if raw == "" {
		return ErrTokenInvalid
	}

	parser := jwt.Parser{SkipClaimsValidation: true}
	claims := &jwt.StandardClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return f.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrTokenInvalid
	}

	if !claims.VerifyExpiresAt(f.now().Unix(), true) {
		return ErrTokenInvalid
	}
	return nil
}
