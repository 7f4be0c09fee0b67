package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/flipbook/models"
)

func TestCreateSession(t *testing.T) {
	svc, _, _ := setupService(t)

	peer, token, err := svc.CreateSession("  Sara ")
	require.NoError(t, err)
	assert.Equal(t, "Sara", peer.Name)
	assert.Equal(t, models.ColorForName("Sara"), peer.Color)
	assert.NotEmpty(t, peer.Id)
	assert.NotEmpty(t, token)

	// the token carries the same identity
	gotPeer, err := svc.AuthenticateToken(token)
	require.NoError(t, err)
	assert.Equal(t, peer, gotPeer)

	other, _, err := svc.CreateSession("Sara")
	require.NoError(t, err)
	assert.NotEqual(t, peer.Id, other.Id)
}

func TestCreateSession_InvalidName(t *testing.T) {
	svc, _, _ := setupService(t)

	for _, name := range []string{"", "   ", strings.Repeat("a", 33), "bad\nname"} {
		_, _, err := svc.CreateSession(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestCreateAndVerifyJWT(t *testing.T) {
	svc, _, _ := setupService(t)
	peer := models.Peer{Id: "user123", Name: "Omar", Color: "#FC7832"}

	token, err := svc.CreateJWT(peer)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	gotPeer, expiry, err := svc.VerifyJWT(token)
	assert.NoError(t, err)
	assert.Equal(t, peer, gotPeer)
	assert.True(t, expiry.After(time.Now()))
}

func TestVerifyJWT_Invalid(t *testing.T) {
	svc, _, _ := setupService(t)

	_, _, err := svc.VerifyJWT("invalid.token.string")
	assert.Error(t, err)

	_, _, err = svc.VerifyJWT("")
	assert.Error(t, err)
}

func TestVerifyJWT_WrongSecret(t *testing.T) {
	svc, _, _ := setupService(t)

	claims := jwt.MapClaims{"id": "u1", "name": "Noor", "exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	require.NoError(t, err)

	_, _, err = svc.VerifyJWT(token)
	assert.Error(t, err)
}

func TestVerifyJWT_Expired(t *testing.T) {
	svc, _, _ := setupService(t)

	claims := jwt.MapClaims{"id": "u1", "name": "Noor", "exp": time.Now().Add(-time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, _, err = svc.VerifyJWT(token)
	assert.Error(t, err)
}

func TestVerifyJWT_MissingClaims(t *testing.T) {
	svc, _, _ := setupService(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": "Noor", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = svc.VerifyJWT(token)
	assert.Error(t, err)

	// a bad color claim falls back to the palette
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id": "u1", "name": "Noor", "color": "red", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	peer, _, err := svc.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, models.ColorForName("Noor"), peer.Color)
}

func TestVerifyJWT_RejectsNoneAlg(t *testing.T) {
	svc, _, _ := setupService(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id": "u1", "name": "Noor", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = svc.VerifyJWT(token)
	assert.Error(t, err)
}

func TestAuthenticateToken_Empty(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.AuthenticateToken("")
	assert.Error(t, err)
}
