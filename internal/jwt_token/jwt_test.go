package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

const account = id.AccountID("manufacturer-1")

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	got, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, account, got)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", dErrors.Message(err))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.Message(err))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err := other.GenerateAccessToken(account, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsEmptySubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		Audience:  []string{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func Test_MiddlewareValidator(t *testing.T) {
	validator := NewMiddlewareValidator(jwtService)

	t.Run("reports the account as subject", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(account, time.Minute)
		require.NoError(t, err)

		claims, err := validator.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, account.String(), claims.Subject)
		assert.NotEmpty(t, claims.JTI)
	})

	t.Run("rejects tokens from another issuer", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "someone-else", "test-audience")
		token, err := other.GenerateAccessToken(account, time.Minute)
		require.NoError(t, err)

		_, err = validator.ValidateToken(token)
		assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}
