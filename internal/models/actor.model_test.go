package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestActorValid(t *testing.T) {
	assert.True(t, HostActor(uuid.New()).Valid())
	assert.True(t, GuestActor(uuid.New()).Valid())
	assert.False(t, HostActor(uuid.Nil).Valid())
	assert.False(t, GuestActor(uuid.Nil).Valid())
	assert.False(t, Actor{}.Valid())
}

func TestActorVoterKeyDistinct(t *testing.T) {
	id := uuid.New()

	// The same UUID as host and as guest must never collide
	assert.NotEqual(t, HostActor(id).VoterKey(), GuestActor(id).VoterKey())
}

func TestActorMatches(t *testing.T) {
	userID := uuid.New()
	guestID := uuid.New()

	hostItem := &QueueItem{AddedByUserID: &userID}
	guestItem := &QueueItem{AddedByGuestID: &guestID}

	assert.True(t, HostActor(userID).Matches(hostItem))
	assert.False(t, HostActor(uuid.New()).Matches(hostItem))
	assert.True(t, GuestActor(guestID).Matches(guestItem))
	assert.False(t, GuestActor(guestID).Matches(hostItem))
}

func TestSessionBanChecks(t *testing.T) {
	session := &Session{
		BannedTrackIDs:  []string{"t1"},
		BannedArtistIDs: []string{"a1"},
	}

	assert.True(t, session.IsTrackBanned("t1"))
	assert.False(t, session.IsTrackBanned("t2"))

	id, banned := session.BannedArtist([]string{"a2", "a1"})
	assert.True(t, banned)
	assert.Equal(t, "a1", id)

	_, banned = session.BannedArtist([]string{"a2"})
	assert.False(t, banned)
}
