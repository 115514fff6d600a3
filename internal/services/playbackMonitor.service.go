package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auxparty/internal/logger"
	. "auxparty/internal/models"
	"auxparty/internal/repositories"

	"github.com/google/uuid"
)

// RealtimeBroadcaster pushes queue and playback snapshots to connected
// collaborators. Fire and forget, no acknowledgment expected.
type RealtimeBroadcaster interface {
	BroadcastQueueUpdate(sessionID uuid.UUID, snapshot *QueueSnapshot)
	BroadcastPlaybackUpdate(sessionID uuid.UUID, playback *PlaybackState, requester string, skip bool)
}

// PlaybackMonitorService runs one self-rescheduling poll loop per active
// session, reconciling provider playback state with the local queue. Monitors
// are created lazily and torn down on session deactivation.
type PlaybackMonitorService struct {
	sessions  repositories.SessionRepository
	queue     *QueueService
	devices   *DeviceReconcilerService
	skipVotes *SkipVoteService
	provider  ProviderClient
	tokens    TokenResolver

	broadcaster RealtimeBroadcaster

	mu       sync.Mutex
	monitors map[uuid.UUID]*sessionMonitor
	log      logger.Logger
}

type sessionMonitor struct {
	service   *PlaybackMonitorService
	sessionID uuid.UUID

	mu              sync.Mutex
	timer           *time.Timer
	processing      bool
	resyncRequested bool
	pausedUntil     time.Time
	lastEnqueuedID  uuid.UUID
	stopped         bool
}

func NewPlaybackMonitorService(
	sessions repositories.SessionRepository,
	queue *QueueService,
	devices *DeviceReconcilerService,
	skipVotes *SkipVoteService,
	provider ProviderClient,
	tokens TokenResolver,
) *PlaybackMonitorService {
	return &PlaybackMonitorService{
		sessions:  sessions,
		queue:     queue,
		devices:   devices,
		skipVotes: skipVotes,
		provider:  provider,
		tokens:    tokens,
		monitors:  make(map[uuid.UUID]*sessionMonitor),
		log:       logger.New("PlaybackMonitorService"),
	}
}

// SetBroadcaster wires the realtime layer in after construction. Broadcasts
// are skipped while unset.
func (s *PlaybackMonitorService) SetBroadcaster(broadcaster RealtimeBroadcaster) {
	s.broadcaster = broadcaster
}

// EnsureMonitor starts a monitor for the session if one is not already
// running and schedules an immediate poll.
func (s *PlaybackMonitorService) EnsureMonitor(sessionID uuid.UUID) {
	monitor := s.getOrCreate(sessionID)
	monitor.schedule(0)
}

// RequestImmediateSync clears any rate-limit pause and reschedules the
// session's next poll at delay zero. Used after host-initiated actions so the
// collaborators see the result quickly.
func (s *PlaybackMonitorService) RequestImmediateSync(sessionID uuid.UUID) {
	monitor := s.getOrCreate(sessionID)

	monitor.mu.Lock()
	monitor.pausedUntil = time.Time{}
	monitor.mu.Unlock()

	monitor.schedule(0)
}

// RecordManualQueue tells the monitor a caller already pushed this item to
// the provider, so the next poll does not push it again.
func (s *PlaybackMonitorService) RecordManualQueue(sessionID, queueItemID uuid.UUID) {
	s.mu.Lock()
	monitor, exists := s.monitors[sessionID]
	s.mu.Unlock()
	if !exists {
		return
	}

	monitor.mu.Lock()
	monitor.lastEnqueuedID = queueItemID
	monitor.mu.Unlock()
}

// StopMonitor tears down the session's monitor and skip-vote state.
func (s *PlaybackMonitorService) StopMonitor(sessionID uuid.UUID) {
	s.mu.Lock()
	monitor, exists := s.monitors[sessionID]
	delete(s.monitors, sessionID)
	s.mu.Unlock()

	s.skipVotes.Remove(sessionID)

	if !exists {
		return
	}

	monitor.mu.Lock()
	monitor.stopped = true
	if monitor.timer != nil {
		monitor.timer.Stop()
	}
	monitor.mu.Unlock()

	s.log.Function("StopMonitor").Info("monitor stopped", "sessionID", sessionID)
}

// StopAll tears down every monitor, used on shutdown.
func (s *PlaybackMonitorService) StopAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.StopMonitor(id)
	}
}

func (s *PlaybackMonitorService) getOrCreate(sessionID uuid.UUID) *sessionMonitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	monitor, exists := s.monitors[sessionID]
	if !exists {
		monitor = &sessionMonitor{service: s, sessionID: sessionID}
		s.monitors[sessionID] = monitor
		s.log.Function("getOrCreate").Info("monitor created", "sessionID", sessionID)
	}
	return monitor
}

// schedule arms the monitor's timer. While a poll is in flight it only flags
// a follow-up run, never overlaps. A pause window stretches the delay.
func (m *sessionMonitor) schedule(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if m.processing {
		m.resyncRequested = true
		return
	}
	if until := time.Until(m.pausedUntil); until > delay {
		delay = until
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(delay, m.run)
}

func (m *sessionMonitor) run() {
	m.mu.Lock()
	if m.stopped || m.processing {
		m.mu.Unlock()
		return
	}
	if until := time.Until(m.pausedUntil); until > 0 {
		m.mu.Unlock()
		m.schedule(until)
		return
	}
	m.processing = true
	m.mu.Unlock()

	delay := m.service.poll(m)

	m.mu.Lock()
	m.processing = false
	if m.resyncRequested {
		m.resyncRequested = false
		delay = 0
	}
	stopped := m.stopped
	m.mu.Unlock()

	if !stopped {
		m.schedule(delay)
	}
}

// poll is one reconciliation pass. It returns the delay until the next poll;
// errors are absorbed and reported through the delay, never fatal.
func (s *PlaybackMonitorService) poll(monitor *sessionMonitor) time.Duration {
	log := s.log.Function("poll")
	ctx := context.Background()
	sessionID := monitor.sessionID

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.StopMonitor(sessionID)
			return MonitorIdlePollDelay
		}
		log.Warn("failed to load session, retrying", "sessionID", sessionID, "error", err)
		return MonitorIdlePollDelay
	}
	if !session.IsActive {
		s.StopMonitor(sessionID)
		return MonitorIdlePollDelay
	}

	token, err := s.tokens.AccessToken(ctx, session.HostID)
	if err != nil {
		log.Warn("failed to resolve host token", "sessionID", sessionID, "error", err)
		return MonitorIdlePollDelay
	}

	playback, err := s.provider.GetCurrentPlayback(ctx, token)
	if err != nil {
		return s.handleProviderError(monitor, err)
	}

	// Device reconciliation is internally rate limited, a resync inside the
	// minimum interval is a cache hit.
	if _, err := s.devices.EnsureDevice(ctx, session); err != nil {
		log.Warn("device reconciliation failed", "sessionID", sessionID, "error", err)
	}

	delay := MonitorIdlePollDelay
	if playback != nil && playback.Item != nil && playback.IsPlaying {
		s.skipVotes.SyncCurrentTrack(sessionID, playback.Item.ID)

		played, err := s.queue.MarkTrackAsPlayed(ctx, sessionID, playback.Item.ID)
		if err != nil {
			log.Warn("failed to mark track played", "sessionID", sessionID, "error", err)
		}
		if played {
			// New next-up, force a fresh push and come back quickly for the
			// track boundary.
			monitor.mu.Lock()
			monitor.lastEnqueuedID = uuid.Nil
			monitor.mu.Unlock()
			delay = MonitorTrackChangedDelay
		} else {
			delay = ComputePollDelay(playback.Item.DurationMS, playback.ProgressMS)
		}
	}

	snapshot, err := s.queue.GetQueueWithNext(ctx, sessionID)
	if err != nil {
		log.Warn("failed to load queue snapshot", "sessionID", sessionID, "error", err)
		return delay
	}

	s.pushNextUp(ctx, monitor, token, snapshot)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastQueueUpdate(sessionID, snapshot)
		s.broadcaster.BroadcastPlaybackUpdate(sessionID, playback, "", false)
	}

	return delay
}

// ComputePollDelay targets the next poll just past the end of the playing
// track, with a minimum floor so near-finished tracks do not cause tight
// polling.
func ComputePollDelay(durationMS, progressMS int) time.Duration {
	remaining := time.Duration(durationMS-progressMS) * time.Millisecond
	delay := remaining + MonitorTrackEndBuffer
	if delay < MonitorMinPollDelay {
		delay = MonitorMinPollDelay
	}
	return delay
}

// pushNextUp queues the head track on the provider when it differs from the
// last track this monitor pushed. Push failures are retried on the next tick.
func (s *PlaybackMonitorService) pushNextUp(
	ctx context.Context,
	monitor *sessionMonitor,
	token string,
	snapshot *QueueSnapshot,
) {
	if snapshot.NextUp == nil {
		return
	}

	monitor.mu.Lock()
	alreadyPushed := monitor.lastEnqueuedID == snapshot.NextUp.ID
	monitor.mu.Unlock()
	if alreadyPushed {
		return
	}

	if err := s.provider.AddToQueue(ctx, token, snapshot.NextUp.TrackURI, ""); err != nil {
		s.log.Function("pushNextUp").Warn("failed to push next track",
			"sessionID", monitor.sessionID,
			"trackURI", snapshot.NextUp.TrackURI,
			"error", err)
		return
	}

	monitor.mu.Lock()
	monitor.lastEnqueuedID = snapshot.NextUp.ID
	monitor.mu.Unlock()
}

func (s *PlaybackMonitorService) handleProviderError(monitor *sessionMonitor, err error) time.Duration {
	log := s.log.Function("handleProviderError")

	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		backoff := rateLimited.RetryAfter
		if backoff <= 0 {
			backoff = MonitorDefault429Backoff
		}

		monitor.mu.Lock()
		monitor.pausedUntil = time.Now().Add(backoff)
		monitor.mu.Unlock()

		log.Warn("provider rate limited, pausing monitor",
			"sessionID", monitor.sessionID,
			"backoff", backoff)
		return backoff
	}

	log.Warn("playback poll failed, retrying",
		"sessionID", monitor.sessionID,
		"error", err)
	return MonitorIdlePollDelay
}
