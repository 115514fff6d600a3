package services

import (
	"context"
	"time"

	"auxparty/internal/logger"
	. "auxparty/internal/models"
	"auxparty/internal/repositories"

	"github.com/google/uuid"
)

// Vote actions reported back to the caller; the controller keys its credit
// saga off these.
const (
	VoteActionAdded   = "added"
	VoteActionRemoved = "removed"
	VoteActionChanged = "changed"
)

// VoteChange is passed to the beforeChange hook ahead of a first-time vote so
// the caller can reserve credits before anything is committed.
type VoteChange struct {
	Action string
}

type QueueService struct {
	queueRepo repositories.QueueItemRepository
	log       logger.Logger
}

func NewQueueService(queueRepo repositories.QueueItemRepository) *QueueService {
	return &QueueService{
		queueRepo: queueRepo,
		log:       logger.New("QueueService"),
	}
}

// AddToQueue validates the track against the session's policies and persists
// a new queue item attributed to the actor. Credit reservation is the
// caller's job; on error here the caller must refund.
func (s *QueueService) AddToQueue(
	ctx context.Context,
	session *Session,
	actor Actor,
	track Track,
) (*QueueItem, error) {
	log := s.log.Function("AddToQueue")

	if !actor.Valid() {
		return nil, log.Err("invalid actor", ErrNotAuthorized, "sessionID", session.ID)
	}

	exists, err := s.queueRepo.HasUnplayedTrack(ctx, session.ID, track.TrackID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateTrack
	}

	if session.IsTrackBanned(track.TrackID) {
		return nil, ErrBannedTrack
	}
	if _, banned := session.BannedArtist(track.ArtistIDs); banned {
		return nil, ErrBannedArtist
	}
	if track.Explicit && !session.AllowExplicit {
		return nil, ErrExplicitDisallowed
	}
	if session.MaxTrackDurationMS != nil && track.DurationMS > *session.MaxTrackDurationMS {
		return nil, ErrTrackTooLong
	}

	item := &QueueItem{
		SessionID:  session.ID,
		TrackID:    track.TrackID,
		TrackURI:   track.TrackURI,
		Name:       track.Name,
		Artist:     track.Artist,
		ArtistIDs:  track.ArtistIDs,
		Album:      track.Album,
		ImageURL:   track.ImageURL,
		DurationMS: track.DurationMS,
		Explicit:   track.Explicit,
	}

	switch actor.Kind {
	case ActorHost:
		userID := actor.UserID
		item.AddedByUserID = &userID
	case ActorGuest:
		guestID := actor.GuestID
		item.AddedByGuestID = &guestID
	}

	if err := s.queueRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	log.Info("Track added to queue",
		"sessionID", session.ID,
		"trackID", track.TrackID,
		"queueItemID", item.ID)
	return item, nil
}

// Vote applies one actor's vote to a queue item. Semantics:
//   - no existing vote: beforeChange fires (credit charge hook), then the
//     vote is created ("added")
//   - same type again: the vote is deleted ("removed", refund upstream)
//   - opposite type: updated in place ("changed", no charge, no refund)
//
// The cached score is recomputed after any mutation.
func (s *QueueService) Vote(
	ctx context.Context,
	queueItemID uuid.UUID,
	actor Actor,
	voteType int,
	beforeChange func(VoteChange) error,
) (string, int, error) {
	log := s.log.Function("Vote")

	if voteType != VoteTypeUp && voteType != VoteTypeDown {
		return "", 0, ErrInvalidVoteType
	}
	if !actor.Valid() {
		return "", 0, ErrNotAuthorized
	}

	existing, err := s.queueRepo.GetVote(ctx, queueItemID, actor.VoterKey())
	if err != nil {
		return "", 0, err
	}

	var action string
	switch {
	case existing == nil:
		action = VoteActionAdded
		if beforeChange != nil {
			if err := beforeChange(VoteChange{Action: "add"}); err != nil {
				return "", 0, err
			}
		}

		vote := &Vote{
			QueueItemID: queueItemID,
			VoterKey:    actor.VoterKey(),
			VoteType:    voteType,
		}
		switch actor.Kind {
		case ActorHost:
			userID := actor.UserID
			vote.UserID = &userID
		case ActorGuest:
			guestID := actor.GuestID
			vote.GuestID = &guestID
		}

		if err := s.queueRepo.CreateVote(ctx, vote); err != nil {
			return "", 0, err
		}

	case existing.VoteType == voteType:
		// Same type again toggles the vote off
		action = VoteActionRemoved
		if err := s.queueRepo.DeleteVote(ctx, existing.ID); err != nil {
			return "", 0, err
		}

	default:
		action = VoteActionChanged
		existing.VoteType = voteType
		if err := s.queueRepo.UpdateVote(ctx, existing); err != nil {
			return "", 0, err
		}
	}

	score, err := s.queueRepo.RecomputeScore(ctx, queueItemID)
	if err != nil {
		return "", 0, err
	}

	log.Info("Vote applied",
		"queueItemID", queueItemID,
		"action", action,
		"score", score)
	return action, score, nil
}

// RemoveFromQueue deletes a queue item. Only the original adder or the
// session host may remove it. The deleted item is returned so the caller can
// refund the original adder's credits.
func (s *QueueService) RemoveFromQueue(
	ctx context.Context,
	session *Session,
	queueItemID uuid.UUID,
	actor Actor,
) (*QueueItem, error) {
	log := s.log.Function("RemoveFromQueue")

	item, err := s.queueRepo.GetByID(ctx, queueItemID)
	if err != nil {
		return nil, err
	}

	isHost := actor.IsHost() && actor.UserID == session.HostID
	if !isHost && !actor.Matches(item) {
		return nil, ErrNotAuthorized
	}

	if err := s.queueRepo.Delete(ctx, queueItemID); err != nil {
		return nil, err
	}

	log.Info("Queue item removed",
		"sessionID", session.ID,
		"queueItemID", queueItemID)
	return item, nil
}

// GetQueueWithNext returns the session's unplayed items split into the head
// (nextUp) and the remainder. The (score desc, createdAt asc) ordering is the
// sole admission-control policy.
func (s *QueueService) GetQueueWithNext(
	ctx context.Context,
	sessionID uuid.UUID,
) (*QueueSnapshot, error) {
	items, err := s.queueRepo.ListUnplayed(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snapshot := &QueueSnapshot{Queue: []QueueItem{}}
	if len(items) > 0 {
		snapshot.NextUp = &items[0]
		snapshot.Queue = items[1:]
	}

	return snapshot, nil
}

// MarkTrackAsPlayed flips the matching unplayed item to played. Idempotent:
// returns false when the track was already consumed or never queued (e.g. the
// host played something outside the app).
func (s *QueueService) MarkTrackAsPlayed(
	ctx context.Context,
	sessionID uuid.UUID,
	providerTrackID string,
) (bool, error) {
	return s.queueRepo.MarkPlayed(ctx, sessionID, providerTrackID, time.Now())
}
