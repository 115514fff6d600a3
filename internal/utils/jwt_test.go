package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestHostTokenRoundTrip(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateHostToken(userID, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(token, testSecret)
	require.NoError(t, err)

	assert.Equal(t, TokenKindHost, claims.Kind)
	assert.Empty(t, claims.SessionID)

	subject, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, userID, subject)
}

func TestGuestTokenRoundTrip(t *testing.T) {
	guestID := uuid.New()
	sessionID := uuid.New()

	token, err := GenerateGuestToken(guestID, sessionID, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(token, testSecret)
	require.NoError(t, err)

	assert.Equal(t, TokenKindGuest, claims.Kind)
	assert.Equal(t, sessionID.String(), claims.SessionID)

	subject, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, guestID, subject)
}

func TestParseSessionTokenWrongSecret(t *testing.T) {
	token, err := GenerateHostToken(uuid.New(), testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseSessionTokenExpired(t *testing.T) {
	token, err := GenerateHostToken(uuid.New(), testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseSessionTokenGarbage(t *testing.T) {
	_, err := ParseSessionToken("not-a-token", testSecret)
	assert.Error(t, err)
}
