package services

import (
	"context"
	"testing"
	"time"

	. "auxparty/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueueRepo backs QueueService tests with in-memory maps. Only the
// behavior the service relies on is modeled; ordering matches the repository
// contract (score desc, createdAt asc).
type fakeQueueRepo struct {
	items map[uuid.UUID]*QueueItem
	votes map[uuid.UUID]*Vote
	order []uuid.UUID
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		items: make(map[uuid.UUID]*QueueItem),
		votes: make(map[uuid.UUID]*Vote),
	}
}

func (f *fakeQueueRepo) Create(ctx context.Context, item *QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now()
	f.items[item.ID] = item
	f.order = append(f.order, item.ID)
	return nil
}

func (f *fakeQueueRepo) GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, assert.AnError
	}
	return item, nil
}

func (f *fakeQueueRepo) HasUnplayedTrack(
	ctx context.Context,
	sessionID uuid.UUID,
	trackID string,
) (bool, error) {
	for _, item := range f.items {
		if item.SessionID == sessionID && item.TrackID == trackID && !item.Played {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQueueRepo) ListUnplayed(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]QueueItem, error) {
	var result []QueueItem
	for _, id := range f.order {
		item, ok := f.items[id]
		if ok && item.SessionID == sessionID && !item.Played {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (f *fakeQueueRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.items, id)
	return nil
}

func (f *fakeQueueRepo) RemoveByIDs(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(f.items, id)
	}
	return nil
}

func (f *fakeQueueRepo) RestoreByIDs(ctx context.Context, ids []uuid.UUID) error {
	return nil
}

func (f *fakeQueueRepo) MarkPlayed(
	ctx context.Context,
	sessionID uuid.UUID,
	trackID string,
	playedAt time.Time,
) (bool, error) {
	for _, item := range f.items {
		if item.SessionID == sessionID && item.TrackID == trackID && !item.Played {
			item.Played = true
			item.PlayedAt = &playedAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQueueRepo) GetVote(
	ctx context.Context,
	itemID uuid.UUID,
	voterKey string,
) (*Vote, error) {
	for _, vote := range f.votes {
		if vote.QueueItemID == itemID && vote.VoterKey == voterKey {
			return vote, nil
		}
	}
	return nil, nil
}

func (f *fakeQueueRepo) CreateVote(ctx context.Context, vote *Vote) error {
	if vote.ID == uuid.Nil {
		vote.ID = uuid.New()
	}
	f.votes[vote.ID] = vote
	return nil
}

func (f *fakeQueueRepo) UpdateVote(ctx context.Context, vote *Vote) error {
	f.votes[vote.ID] = vote
	return nil
}

func (f *fakeQueueRepo) DeleteVote(ctx context.Context, id uuid.UUID) error {
	delete(f.votes, id)
	return nil
}

func (f *fakeQueueRepo) RecomputeScore(ctx context.Context, itemID uuid.UUID) (int, error) {
	score := 0
	for _, vote := range f.votes {
		if vote.QueueItemID == itemID {
			score += vote.VoteType
		}
	}
	if item, ok := f.items[itemID]; ok {
		item.VoteScore = score
	}
	return score, nil
}

func testSession() *Session {
	session := &Session{
		HostID:        uuid.New(),
		IsActive:      true,
		AllowExplicit: true,
	}
	session.ID = uuid.New()
	return session
}

func testTrack(id string) Track {
	return Track{
		TrackID:    id,
		TrackURI:   "spotify:track:" + id,
		Name:       "Track " + id,
		Artist:     "Artist",
		ArtistIDs:  []string{"artist-1"},
		DurationMS: 200000,
	}
}

func TestAddToQueueRejectsDuplicate(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	host := HostActor(session.HostID)

	_, err := service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	require.NoError(t, err)

	_, err = service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	assert.ErrorIs(t, err, ErrDuplicateTrack)
}

func TestAddToQueueAllowsReplayAfterPlayed(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	host := HostActor(session.HostID)

	_, err := service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	require.NoError(t, err)

	played, err := service.MarkTrackAsPlayed(context.Background(), session.ID, "t1")
	require.NoError(t, err)
	assert.True(t, played)

	// Only unplayed entries count as duplicates
	_, err = service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	assert.NoError(t, err)
}

func TestAddToQueueEnforcesPolicies(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	session.BannedTrackIDs = []string{"banned-track"}
	session.BannedArtistIDs = []string{"banned-artist"}
	session.AllowExplicit = false
	maxDuration := 180000
	session.MaxTrackDurationMS = &maxDuration
	host := HostActor(session.HostID)

	_, err := service.AddToQueue(context.Background(), session, host, testTrack("banned-track"))
	assert.ErrorIs(t, err, ErrBannedTrack)

	track := testTrack("t2")
	track.ArtistIDs = []string{"banned-artist"}
	_, err = service.AddToQueue(context.Background(), session, host, track)
	assert.ErrorIs(t, err, ErrBannedArtist)

	track = testTrack("t3")
	track.Explicit = true
	track.DurationMS = 100000
	_, err = service.AddToQueue(context.Background(), session, host, track)
	assert.ErrorIs(t, err, ErrExplicitDisallowed)

	track = testTrack("t4")
	track.DurationMS = 240000
	_, err = service.AddToQueue(context.Background(), session, host, track)
	assert.ErrorIs(t, err, ErrTrackTooLong)
}

func TestAddToQueueAttributesActor(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	guestID := uuid.New()

	item, err := service.AddToQueue(
		context.Background(),
		session,
		GuestActor(guestID),
		testTrack("t1"),
	)
	require.NoError(t, err)

	require.NotNil(t, item.AddedByGuestID)
	assert.Equal(t, guestID, *item.AddedByGuestID)
	assert.Nil(t, item.AddedByUserID)
}

func TestVoteToggleSemantics(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	host := HostActor(session.HostID)

	item, err := service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	require.NoError(t, err)

	voter := GuestActor(uuid.New())

	action, score, err := service.Vote(context.Background(), item.ID, voter, VoteTypeUp, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteActionAdded, action)
	assert.Equal(t, 1, score)

	// Opposite direction updates in place
	action, score, err = service.Vote(context.Background(), item.ID, voter, VoteTypeDown, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteActionChanged, action)
	assert.Equal(t, -1, score)

	// Same direction again toggles the vote off
	action, score, err = service.Vote(context.Background(), item.ID, voter, VoteTypeDown, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteActionRemoved, action)
	assert.Equal(t, 0, score)
}

func TestVoteBeforeChangeOnlyOnFirstVote(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	host := HostActor(session.HostID)

	item, err := service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	require.NoError(t, err)

	voter := GuestActor(uuid.New())
	charges := 0
	hook := func(change VoteChange) error {
		charges++
		return nil
	}

	_, _, err = service.Vote(context.Background(), item.ID, voter, VoteTypeUp, hook)
	require.NoError(t, err)
	assert.Equal(t, 1, charges)

	// Direction change is free
	_, _, err = service.Vote(context.Background(), item.ID, voter, VoteTypeDown, hook)
	require.NoError(t, err)
	assert.Equal(t, 1, charges)
}

func TestVoteHookFailureAbortsVote(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	host := HostActor(session.HostID)

	item, err := service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	require.NoError(t, err)

	voter := GuestActor(uuid.New())
	hook := func(change VoteChange) error {
		return ErrInsufficientCredits
	}

	_, _, err = service.Vote(context.Background(), item.ID, voter, VoteTypeUp, hook)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	vote, err := repo.GetVote(context.Background(), item.ID, voter.VoterKey())
	require.NoError(t, err)
	assert.Nil(t, vote)
}

func TestVoteInvalidType(t *testing.T) {
	service := NewQueueService(newFakeQueueRepo())

	_, _, err := service.Vote(context.Background(), uuid.New(), HostActor(uuid.New()), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidVoteType)
}

func TestRemoveFromQueueAuthorization(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	guest := GuestActor(uuid.New())

	item, err := service.AddToQueue(context.Background(), session, guest, testTrack("t1"))
	require.NoError(t, err)

	// A different guest cannot remove someone else's track
	_, err = service.RemoveFromQueue(context.Background(), session, item.ID, GuestActor(uuid.New()))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// The host always can
	removed, err := service.RemoveFromQueue(
		context.Background(),
		session,
		item.ID,
		HostActor(session.HostID),
	)
	require.NoError(t, err)
	assert.Equal(t, item.ID, removed.ID)
}

func TestGetQueueWithNextSplitsHead(t *testing.T) {
	repo := newFakeQueueRepo()
	service := NewQueueService(repo)
	session := testSession()
	host := HostActor(session.HostID)

	first, err := service.AddToQueue(context.Background(), session, host, testTrack("t1"))
	require.NoError(t, err)
	second, err := service.AddToQueue(context.Background(), session, host, testTrack("t2"))
	require.NoError(t, err)

	snapshot, err := service.GetQueueWithNext(context.Background(), session.ID)
	require.NoError(t, err)

	require.NotNil(t, snapshot.NextUp)
	assert.Equal(t, first.ID, snapshot.NextUp.ID)
	require.Len(t, snapshot.Queue, 1)
	assert.Equal(t, second.ID, snapshot.Queue[0].ID)
}

func TestGetQueueWithNextEmpty(t *testing.T) {
	service := NewQueueService(newFakeQueueRepo())

	snapshot, err := service.GetQueueWithNext(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Nil(t, snapshot.NextUp)
	assert.Empty(t, snapshot.Queue)
}
