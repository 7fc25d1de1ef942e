package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestTokenService() *TriggerTokenService {
	return NewTriggerTokenService(testSecret, "stockflow")
}

func TestNewTriggerTokenService(t *testing.T) {
	svc := newTestTokenService()

	assert.True(t, svc.Enabled())
	assert.Equal(t, []byte(testSecret), svc.secret)
	assert.Equal(t, "stockflow", svc.issuer)

	assert.False(t, NewTriggerTokenService("", "stockflow").Enabled())
}

func TestGenerateToken(t *testing.T) {
	svc := newTestTokenService()

	token, expiresAt, err := svc.GenerateToken("ops-cron", time.Hour)

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
}

func TestGenerateToken_MissingSubject(t *testing.T) {
	_, _, err := newTestTokenService().GenerateToken("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateToken_Success(t *testing.T) {
	svc := newTestTokenService()
	token, expiresAt, err := svc.GenerateToken("ops-cron", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, "ops-cron", claims.Subject)
	assert.Equal(t, TokenTypeTrigger, claims.TokenType)
	assert.Equal(t, "stockflow", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, expiresAt, claims.GetExpiresAtTime(), time.Second)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	svc := newTestTokenService()
	token, _, err := svc.GenerateToken("ops-cron", -time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_NotYetValid(t *testing.T) {
	svc := newTestTokenService()
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	token, _, err := svc.GenerateToken("ops-cron", 2*time.Hour)
	require.NoError(t, err)

	_, err = newTestTokenService().ValidateToken(token)

	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestValidateToken_InvalidToken(t *testing.T) {
	_, err := newTestTokenService().ValidateToken("invalid-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	other := NewTriggerTokenService("another-secret-key-at-least-32-chars", "stockflow")
	token, _, err := other.GenerateToken("ops-cron", time.Hour)
	require.NoError(t, err)

	_, err = newTestTokenService().ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	other := NewTriggerTokenService(testSecret, "someone-else")
	token, _, err := other.GenerateToken("ops-cron", time.Hour)
	require.NoError(t, err)

	_, err = newTestTokenService().ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongTokenType(t *testing.T) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "stockflow",
			Subject:   "ops-cron",
			Audience:  jwt.ClaimStrings{TriggerAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TokenType: "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestTokenService().ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "stockflow",
			Subject:   "ops-cron",
			Audience:  jwt.ClaimStrings{TriggerAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: TokenTypeTrigger,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestTokenService().ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDisabledServiceRejectsTokens(t *testing.T) {
	token, _, err := newTestTokenService().GenerateToken("ops-cron", time.Hour)
	require.NoError(t, err)

	disabled := NewTriggerTokenService("", "stockflow")
	_, err = disabled.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTriggerDisabled)

	_, _, err = disabled.GenerateToken("ops-cron", time.Hour)
	assert.ErrorIs(t, err, ErrTriggerDisabled)
}
