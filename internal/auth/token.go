package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johnwmail/pasta/internal/common"
)

// DefaultTokenTTL is the session lifetime.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims carries the single auth flag alongside the registered claims.
type Claims struct {
	Auth bool `json:"auth"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService never fails; an empty secret makes Issue return
// common.ErrConfiguration and Verify reject everything.
func NewTokenService(secret string, ttl time.Duration, now func() time.Time) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL returns the token lifetime, used for the cookie Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new session token.
func (s *TokenService) Issue() (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not set: %w", common.ErrConfiguration)
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Auth: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify reports whether token is a valid, unexpired session token.
func (s *TokenService) Verify(token string) bool {
	if len(s.secret) == 0 || token == "" {
		return false
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Auth
}
