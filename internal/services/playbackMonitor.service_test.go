package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputePollDelayTargetsTrackEnd(t *testing.T) {
	// 50s remaining plus the track-end buffer
	delay := ComputePollDelay(200000, 150000)
	assert.Equal(t, 50*time.Second+MonitorTrackEndBuffer, delay)
}

func TestComputePollDelayFloor(t *testing.T) {
	// Nearly finished track still waits the minimum
	delay := ComputePollDelay(200000, 199900)
	assert.Equal(t, MonitorMinPollDelay, delay)

	// Progress past the reported duration clamps the same way
	delay = ComputePollDelay(200000, 250000)
	assert.Equal(t, MonitorMinPollDelay, delay)
}

func TestComputePollDelayFreshTrack(t *testing.T) {
	delay := ComputePollDelay(180000, 0)
	assert.Equal(t, 3*time.Minute+MonitorTrackEndBuffer, delay)
}

func newPausedMonitorService() *PlaybackMonitorService {
	// Provider and store deps stay nil; pause handling never touches them.
	return NewPlaybackMonitorService(nil, nil, nil, NewSkipVoteService(3), nil, nil)
}

func TestRateLimitPausesMonitor(t *testing.T) {
	service := newPausedMonitorService()
	monitor := service.getOrCreate(uuid.New())

	delay := service.handleProviderError(monitor, &RateLimitedError{RetryAfter: 2 * time.Second})
	assert.Equal(t, 2*time.Second, delay)
	assert.True(t, monitor.pausedUntil.After(time.Now()))
}

func TestRateLimitWithoutRetryAfterUsesDefaultBackoff(t *testing.T) {
	service := newPausedMonitorService()
	monitor := service.getOrCreate(uuid.New())

	delay := service.handleProviderError(monitor, &RateLimitedError{})
	assert.Equal(t, MonitorDefault429Backoff, delay)
}

func TestNonRateLimitErrorsDoNotPause(t *testing.T) {
	service := newPausedMonitorService()
	monitor := service.getOrCreate(uuid.New())

	delay := service.handleProviderError(monitor, assert.AnError)
	assert.Equal(t, MonitorIdlePollDelay, delay)
	assert.True(t, monitor.pausedUntil.IsZero())
}

func TestRequestImmediateSyncClearsPause(t *testing.T) {
	service := newPausedMonitorService()
	sessionID := uuid.New()

	monitor := service.getOrCreate(sessionID)
	monitor.pausedUntil = time.Now().Add(time.Hour)
	monitor.stopped = true // keep the rescheduled timer from polling

	service.RequestImmediateSync(sessionID)
	assert.True(t, monitor.pausedUntil.IsZero())
}
