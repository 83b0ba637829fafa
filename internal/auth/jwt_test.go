package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_SignAndParseRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")
	userID := uuid.New()

	token, err := svc.Sign(userID)
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestJWT_RejectsTokenSignedWithOtherSecret(t *testing.T) {
	token, err := NewJWTService("secret-a").Sign(uuid.New())
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").Parse(token)
	assert.Error(t, err)
}

func TestJWT_RejectsGarbage(t *testing.T) {
	_, err := NewJWTService("secret").Parse("not.a.token")
	assert.Error(t, err)
}
