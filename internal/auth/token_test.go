package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwmail/pasta/internal/common"
)

func TestTokenService_IssueVerify(t *testing.T) {
	clock := newClock()
	svc := NewTokenService("secret-one", 0, clock.Now)
	assert.Equal(t, DefaultTokenTTL, svc.TTL())

	token, err := svc.Issue()
	require.NoError(t, err)
	assert.True(t, svc.Verify(token))

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.True(t, claims.Auth)
	assert.Equal(t, clock.Now().Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, clock.Now().Add(7*24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestTokenService_Expired(t *testing.T) {
	clock := newClock()
	svc := NewTokenService("secret-one", time.Hour, clock.Now)

	token, err := svc.Issue()
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	assert.True(t, svc.Verify(token))
	clock.Advance(2 * time.Minute)
	assert.False(t, svc.Verify(token))
}

func TestTokenService_OtherSecret(t *testing.T) {
	clock := newClock()
	token, err := NewTokenService("secret-one", 0, clock.Now).Issue()
	require.NoError(t, err)

	assert.False(t, NewTokenService("secret-two", 0, clock.Now).Verify(token))
}

func TestTokenService_Rejects(t *testing.T) {
	clock := newClock()
	svc := NewTokenService("secret-one", 0, clock.Now)
	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))

	noAuth, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
	}).SignedString([]byte("secret-one"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Auth: true}).SignedString([]byte("secret-one"))
	require.NoError(t, err)

	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Auth:             true,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
	}).SignedString([]byte("secret-one"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Auth:             true,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"malformed":      "not.a.jwt",
		"garbage":        "garbage",
		"missing auth":   noAuth,
		"missing expiry": noExpiry,
		"wrong alg":      otherAlg,
		"alg none":       unsigned,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			assert.False(t, svc.Verify(token))
		})
	}
}

func TestTokenService_NoSecret(t *testing.T) {
	svc := NewTokenService("", 0, nil)

	_, err := svc.Issue()
	assert.ErrorIs(t, err, common.ErrConfiguration)

	token, err := NewTokenService("x", 0, nil).Issue()
	require.NoError(t, err)
	assert.False(t, svc.Verify(token))
}
