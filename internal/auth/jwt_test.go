package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	return ts
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	assert.Error(t, err)
}

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("runner@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("runner@example.com")
	require.NoError(t, err)

	got, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "runner@example.com", got)
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, err := NewTokenService("wrong-secret-32-chars-long!!!!!!")
	require.NoError(t, err)

	valid, _ := ts.Generate("runner@example.com")
	expired, _ := ts.GenerateWithDuration("runner@example.com", -time.Second)
	foreign, _ := other.Generate("runner@example.com")

	tests := map[string]string{
		"expired":  expired,
		"tampered": valid[:len(valid)-3] + "xxx",
		"foreign":  foreign,
		"empty":    "",
		"garbage":  "not.a.jwt.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ts.Validate(token)
			assert.Error(t, err)
		})
	}
}

func TestInspectSessionToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, err := ts.GenerateWithDuration("runner@example.com", time.Hour)
	require.NoError(t, err)

	info, err := InspectSessionToken(token)
	require.NoError(t, err)

	assert.Equal(t, "runner@example.com", info.Subject)
	require.NotNil(t, info.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *info.ExpiresAt, 5*time.Second)
}

func TestInspectSessionToken_ExpiredStillDecodes(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.GenerateWithDuration("runner@example.com", -time.Hour)

	info, err := InspectSessionToken(token)
	require.NoError(t, err)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, info.ExpiresAt.Before(time.Now()))
}

func TestInspectSessionToken_Garbage(t *testing.T) {
	_, err := InspectSessionToken("opaque-session-id")
	assert.Error(t, err)
}
