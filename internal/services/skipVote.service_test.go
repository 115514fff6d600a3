package services

import (
	"testing"

	. "auxparty/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSkipVoteIdempotentPerVoter(t *testing.T) {
	service := NewSkipVoteService(3)
	sessionID := uuid.New()
	guest := GuestActor(uuid.New())

	service.SyncCurrentTrack(sessionID, "track-1")

	count, reached := service.AddVote(sessionID, "track-1", guest)
	assert.Equal(t, 1, count)
	assert.False(t, reached)

	// Same voter again does not double count
	count, reached = service.AddVote(sessionID, "track-1", guest)
	assert.Equal(t, 1, count)
	assert.False(t, reached)
}

func TestSkipVoteThresholdReached(t *testing.T) {
	service := NewSkipVoteService(2)
	sessionID := uuid.New()

	service.SyncCurrentTrack(sessionID, "track-1")

	count, reached := service.AddVote(sessionID, "track-1", GuestActor(uuid.New()))
	assert.Equal(t, 1, count)
	assert.False(t, reached)

	count, reached = service.AddVote(sessionID, "track-1", HostActor(uuid.New()))
	assert.Equal(t, 2, count)
	assert.True(t, reached)
}

func TestSkipVoteTrackChangeResetsTally(t *testing.T) {
	service := NewSkipVoteService(2)
	sessionID := uuid.New()

	service.SyncCurrentTrack(sessionID, "track-1")
	service.AddVote(sessionID, "track-1", GuestActor(uuid.New()))
	assert.Equal(t, 1, service.VoteCount(sessionID))

	service.SyncCurrentTrack(sessionID, "track-2")
	assert.Equal(t, 0, service.VoteCount(sessionID))

	// A vote against the new track counts from a clean slate
	count, reached := service.AddVote(sessionID, "track-2", GuestActor(uuid.New()))
	assert.Equal(t, 1, count)
	assert.False(t, reached)
}

func TestSkipVoteRetargetsBeforeSync(t *testing.T) {
	service := NewSkipVoteService(2)
	sessionID := uuid.New()

	service.SyncCurrentTrack(sessionID, "track-old")
	service.AddVote(sessionID, "track-old", GuestActor(uuid.New()))
	assert.Equal(t, 1, service.VoteCount(sessionID))

	// The track changed but the monitor has not synced yet: the stale tally
	// is wiped and the vote still counts against the new track
	count, reached := service.AddVote(sessionID, "track-new", GuestActor(uuid.New()))
	assert.Equal(t, 1, count)
	assert.False(t, reached)
	assert.Equal(t, 1, service.VoteCount(sessionID))
}

func TestSkipVoteFreshSessionCountsFirstVote(t *testing.T) {
	service := NewSkipVoteService(2)
	sessionID := uuid.New()

	count, reached := service.AddVote(sessionID, "track-1", GuestActor(uuid.New()))
	assert.Equal(t, 1, count)
	assert.False(t, reached)
	assert.Equal(t, 1, service.VoteCount(sessionID))
}

func TestSkipVoteResetKeepsTrack(t *testing.T) {
	service := NewSkipVoteService(2)
	sessionID := uuid.New()

	service.SyncCurrentTrack(sessionID, "track-1")
	service.AddVote(sessionID, "track-1", GuestActor(uuid.New()))

	service.Reset(sessionID)
	assert.Equal(t, 0, service.VoteCount(sessionID))

	// Track stays current, new votes still land
	count, _ := service.AddVote(sessionID, "track-1", GuestActor(uuid.New()))
	assert.Equal(t, 1, count)
}

func TestSkipVoteThresholdFloor(t *testing.T) {
	service := NewSkipVoteService(0)
	assert.Equal(t, 1, service.Threshold())
}
