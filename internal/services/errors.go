package services

import "errors"

// Client errors: deterministic, surfaced verbatim to the caller, never retried.
var (
	ErrDuplicateTrack      = errors.New("track is already in the queue")
	ErrBannedTrack         = errors.New("track is banned in this session")
	ErrBannedArtist        = errors.New("artist is banned in this session")
	ErrExplicitDisallowed  = errors.New("explicit tracks are not allowed in this session")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidVoteType     = errors.New("invalid vote type")
	ErrTrackTooLong        = errors.New("track exceeds the session duration limit")
	ErrScheduleNotPending  = errors.New("schedule is not pending")
	ErrSessionInactive     = errors.New("session is not active")
)

// Transient upstream errors. ErrRateLimited carries through retry/backoff
// handling; ErrTemporarilyUnavailable is what callers see once retries are
// exhausted ("try again shortly", not a hard failure).
var (
	ErrRateLimited            = errors.New("rate limited by upstream")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
)

// IsClientError reports whether err is part of the deterministic client-error
// taxonomy (safe to surface verbatim, pointless to retry).
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrDuplicateTrack,
		ErrBannedTrack,
		ErrBannedArtist,
		ErrExplicitDisallowed,
		ErrNotAuthorized,
		ErrInsufficientCredits,
		ErrInvalidVoteType,
		ErrTrackTooLong,
		ErrScheduleNotPending,
		ErrSessionInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
