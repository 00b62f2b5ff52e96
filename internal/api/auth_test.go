package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/pivogram/pivogram/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJwtRoundTrip(t *testing.T) {
	app := newTestApp(t, &store.MockChatRepository{}, nil)

	token, err := app.createJwtForSession(42, time.Minute)
	require.NoError(t, err, "failed to create token")

	userId, err := app.extractUserIdFromToken(token)
	require.NoError(t, err, "failed to verify token")
	assert.Equal(t, 42, userId)
}

func TestJwtWrongKey(t *testing.T) {
	app := newTestApp(t, &store.MockChatRepository{}, nil)
	other := newTestApp(t, &store.MockChatRepository{}, nil)
	other.signingKey = []byte("some-other-key")

	token, err := app.createJwtForSession(42, time.Minute)
	require.NoError(t, err)

	_, err = other.extractUserIdFromToken(token)
	assert.Error(t, err, "token signed with a different key must fail")
}

func TestJwtExpired(t *testing.T) {
	app := newTestApp(t, &store.MockChatRepository{}, nil)

	token, err := app.createJwtForSession(42, -time.Minute)
	require.NoError(t, err)

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err, "expired token must fail")
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, verifyPassword(hash, "s3cret"))
	assert.False(t, verifyPassword(hash, "wrong"))
}

func TestCreateJwtCookie(t *testing.T) {
	cookie := createJwtCookie("tok", time.Hour)

	assert.Equal(t, tokenCookieKey, cookie.Name)
	assert.Equal(t, "tok", cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
}
