package services

import (
	"sync"

	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
)

// SkipVoteService tallies skip votes against the currently playing track.
// State is deliberately in-memory: skip votes only make sense against the
// live track, and a process restart resetting them is acceptable.
type SkipVoteService struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*skipVoteState
	threshold int
	log       logger.Logger
}

type skipVoteState struct {
	trackID string
	voters  map[string]struct{}
}

func NewSkipVoteService(threshold int) *SkipVoteService {
	if threshold < 1 {
		threshold = 1
	}
	return &SkipVoteService{
		sessions:  make(map[uuid.UUID]*skipVoteState),
		threshold: threshold,
		log:       logger.New("SkipVoteService"),
	}
}

// SyncCurrentTrack points the session's tally at trackID, clearing all votes
// when the track changed. Safe to call on every playback poll.
func (s *SkipVoteService) SyncCurrentTrack(sessionID uuid.UUID, trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[sessionID]
	if !exists || state.trackID != trackID {
		s.sessions[sessionID] = &skipVoteState{
			trackID: trackID,
			voters:  make(map[string]struct{}),
		}
	}
}

// AddVote records a skip vote from actor against trackID. Idempotent per
// voter. Returns the current count and whether the threshold is reached.
// A vote against a track the counter has not seen yet retargets the tally:
// stale votes are wiped first, then the vote counts.
func (s *SkipVoteService) AddVote(
	sessionID uuid.UUID,
	trackID string,
	actor Actor,
) (count int, thresholdReached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[sessionID]
	if !exists || state.trackID != trackID {
		state = &skipVoteState{
			trackID: trackID,
			voters:  make(map[string]struct{}),
		}
		s.sessions[sessionID] = state
	}

	state.voters[actor.VoterKey()] = struct{}{}
	count = len(state.voters)

	if count >= s.threshold {
		s.log.Function("AddVote").Info("skip threshold reached",
			"sessionID", sessionID,
			"trackID", trackID,
			"votes", count)
	}

	return count, count >= s.threshold
}

// VoteCount reports the current tally for the session's live track.
func (s *SkipVoteService) VoteCount(sessionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[sessionID]
	if !exists {
		return 0
	}
	return len(state.voters)
}

// Reset clears the session's tally, used after a forced skip.
func (s *SkipVoteService) Reset(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, exists := s.sessions[sessionID]; exists {
		state.voters = make(map[string]struct{})
	}
}

// Remove drops all state for a session, used on session deactivation.
func (s *SkipVoteService) Remove(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

// Threshold reports the configured number of votes required to skip.
func (s *SkipVoteService) Threshold() int {
	return s.threshold
}
