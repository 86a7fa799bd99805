package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierRoundTrip(t *testing.T) {
	v, err := NewVerifier("secret", "watchparty")
	require.NoError(t, err)

	token, err := v.Issue(domain.Identity{UserID: "u1", DisplayName: "Alice", AvatarRef: "a.png"}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "Alice", id.DisplayName)
	assert.Equal(t, "a.png", id.AvatarRef)
}

func TestVerifierRejects(t *testing.T) {
	v, err := NewVerifier("secret", "watchparty")
	require.NoError(t, err)

	expired, err := v.Issue(domain.Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	other, err := NewVerifier("other-secret", "watchparty")
	require.NoError(t, err)
	forged, err := other.Issue(domain.Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewVerifier("secret", "someone-else")
	require.NoError(t, err)
	foreign, err := wrongIssuer.Issue(domain.Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "watchparty"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "watchparty",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong secret", forged},
		{"wrong issuer", foreign},
		{"no expiry", noExpiry},
		{"none algorithm", noneAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("", "")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
