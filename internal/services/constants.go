package services

import "time"

// Playback monitor timing
const (
	// Floor for any computed poll delay; keeps the monitor from spinning when
	// a track is about to end.
	MonitorMinPollDelay = 2 * time.Second

	// Added to the remaining track time so the wake lands just after the
	// track boundary rather than just before it.
	MonitorTrackEndBuffer = 3 * time.Second

	// Used when nothing is playing, or right after a track change.
	MonitorIdlePollDelay       = 15 * time.Second
	MonitorTrackChangedDelay   = 3 * time.Second
	MonitorDefault429Backoff   = 30 * time.Second
	MonitorDeviceResyncMinimum = 60 * time.Second
)

// Credit ledger
const (
	CreditCacheTTL        = 5 * time.Minute
	CreditCachePrefix     = "credits:"
	CreditStoreMaxRetries = 3
	CreditRetryBaseDelay  = 500 * time.Millisecond

	// Guest spend per action. Hosts are never charged.
	CreditCostQueueAdd = 1
	CreditCostVote     = 1
)

// Provider
const (
	ProviderRequestTimeout = 10 * time.Second
)
