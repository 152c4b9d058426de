package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("665e0000aa11bb22cc33dd44", "agent", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "665e0000aa11bb22cc33dd44", claims.AccountID)
	assert.Equal(t, "agent", claims.Role)
	assert.Equal(t, "665e0000aa11bb22cc33dd44", claims.Subject)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT("id", "client", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	token, err := GenerateJWT("id", "client", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cure-enough")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cure-enough", hash)

	assert.True(t, CheckPasswordHash("s3cure-enough", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
