package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	id := uuid.New()
	token, err := CreateJWT(id)
	require.NoError(t, err)

	got, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = AuthenticateJWT(token + "x")
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestParseExpire(t *testing.T) {
	for _, s := range []string{"", "0", "never"} {
		d, err := ParseExpire(s)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	d, err := ParseExpire("72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)
	_, err = ParseExpire("soon")
	assert.Error(t, err)
}

func TestAuthenticateRequest(t *testing.T) {
	require.NoError(t, Init(0))
	id := uuid.New()
	token, _ := CreateJWT(id)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	got, err := AuthenticateRequest(r)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Cookie", CookieName+"="+token)
	got, err = AuthenticateRequest(r)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = AuthenticateRequest(httptest.NewRequest("GET", "/", nil))
	assert.Error(t, err)
}
