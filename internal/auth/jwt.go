package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid auth token")
)

// Verifier validates HMAC-signed session tokens issued by the identity
// service and extracts the caller's user id from the sub claim.
type Verifier struct {
	key []byte
}

func NewVerifier(key string) *Verifier {
	return &Verifier{key: []byte(key)}
}

// UserIDFromRequest reads the bearer token (or session cookie) and returns
// the authenticated user id.
func (v *Verifier) UserIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := bearerToken(r)
	if raw == "" {
		if c, err := r.Cookie("session"); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return uuid.UUID{}, ErrMissingToken
	}
	return v.Verify(raw)
}

// Verify parses and validates a token and returns its subject.
func (v *Verifier) Verify(raw string) (uuid.UUID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return uuid.UUID{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.UUID{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.UUID{}, ErrInvalidToken
	}
	return userID, nil
}

// Sign issues a token for userID. Used by tests and local tooling; in
// production tokens come from the identity service sharing the same key.
func (v *Verifier) Sign(userID uuid.UUID, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
