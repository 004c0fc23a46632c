package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	userID := uuid.New()
	now := time.Now()

	signed, claims, err := iss.Issue(userID, "admin", "sess-1", now)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.Equal(t, "sess-1", claims.ID)

	parsed, err := iss.Parse(signed)
	require.NoError(t, err)
	got, err := parsed.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.Equal(t, "admin", parsed.Role)
	assert.Equal(t, "sess-1", parsed.ID)
	assert.Equal(t, now.Unix(), parsed.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), parsed.ExpiresAt.Unix())
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	userID := uuid.New()

	expired, _, err := iss.Issue(userID, "user", "s", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	foreign, _, err := NewIssuer("other-secret", time.Hour).Issue(userID, "user", "s", time.Now())
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":     "not.a.token",
		"expired":     expired,
		"wrong key":   foreign,
		"alg none":    none,
		"bad subject": badSubject,
		"empty":       "",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Parse(tok)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}
