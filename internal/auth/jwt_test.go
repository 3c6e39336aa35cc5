package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebikes/stationtraffic/internal/auth"
)

func TestJWTService_GenerateAndValidateOperatorToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
	})

	token, expiresAt, err := svc.GenerateOperatorToken("ops@bluebikes", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateOperatorToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@bluebikes", claims.Operator)
	assert.Equal(t, "ops@bluebikes", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_DefaultTTL(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: "k"})

	_, expiresAt, err := svc.GenerateOperatorToken("cron", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultOperatorTokenTTL), expiresAt, 5*time.Second)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
	})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateOperatorToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidOperatorToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	svc1 := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-one"})
	token, _, err := svc1.GenerateOperatorToken("ops", time.Hour)
	require.NoError(t, err)

	svc2 := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-two"})
	_, err = svc2.ValidateOperatorToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidOperatorToken)
}

func TestJWTService_WrongIssuerOrAudience(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{SigningKey: "k", Issuer: "issuer-one"})
	token, _, err := issuer.GenerateOperatorToken("ops", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  auth.JWTConfig
	}{
		{"issuer", auth.JWTConfig{SigningKey: "k", Issuer: "issuer-two"}},
		{"audience", auth.JWTConfig{SigningKey: "k", Issuer: "issuer-one", Audience: "someone-else"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewJWTService(tt.cfg).ValidateOperatorToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidOperatorToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: "k"})

	token, _, err := svc.GenerateOperatorToken("ops", time.Second)
	require.NoError(t, err)

	time.Sleep(2100 * time.Millisecond)

	_, err = svc.ValidateOperatorToken(token)
	assert.ErrorIs(t, err, auth.ErrOperatorTokenExpired)
}

func TestJWTService_MissingSigningKey(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{})

	_, _, err := svc.GenerateOperatorToken("ops", time.Hour)
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)

	_, err = svc.ValidateOperatorToken("a.b.c")
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
}

func TestJWTService_EmptyOperator(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: "k"})

	_, _, err := svc.GenerateOperatorToken("", time.Hour)
	assert.Error(t, err)
}
