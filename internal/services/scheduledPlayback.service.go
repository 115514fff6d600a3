package services

import (
	"context"
	"time"

	"auxparty/internal/logger"
	. "auxparty/internal/models"
	"auxparty/internal/repositories"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MonitorNudger is the slice of the playback monitor the schedule processor
// needs: a way to ask for a fast resync after it rewrites the provider queue.
type MonitorNudger interface {
	RequestImmediateSync(sessionID uuid.UUID)
}

// ScheduledPlaybackService executes time-based playback overrides. It runs on
// its own ticker, independent of any session monitor, claiming due schedules
// with an optimistic conditional update so concurrent processors never
// double-execute one.
type ScheduledPlaybackService struct {
	schedules repositories.ScheduledPlaybackRepository
	sessions  repositories.SessionRepository
	queueRepo repositories.QueueItemRepository
	queue     *QueueService
	devices   *DeviceReconcilerService
	provider  ProviderClient
	tokens    TokenResolver
	monitor   MonitorNudger
	log       logger.Logger
}

func NewScheduledPlaybackService(
	schedules repositories.ScheduledPlaybackRepository,
	sessions repositories.SessionRepository,
	queueRepo repositories.QueueItemRepository,
	queue *QueueService,
	devices *DeviceReconcilerService,
	provider ProviderClient,
	tokens TokenResolver,
	monitor MonitorNudger,
) *ScheduledPlaybackService {
	return &ScheduledPlaybackService{
		schedules: schedules,
		sessions:  sessions,
		queueRepo: queueRepo,
		queue:     queue,
		devices:   devices,
		provider:  provider,
		tokens:    tokens,
		monitor:   monitor,
		log:       logger.New("ScheduledPlaybackService"),
	}
}

// CreateSchedule validates and stores a new schedule. Recurring schedules get
// their first fire time from the wall-clock fields; one-shots use ScheduledFor
// as given.
func (s *ScheduledPlaybackService) CreateSchedule(
	ctx context.Context,
	schedule *ScheduledPlayback,
) error {
	log := s.log.Function("CreateSchedule")

	if len(schedule.Tracks) == 0 {
		return log.Error("schedule requires at least one track", "name", schedule.Name)
	}
	for i := range schedule.Tracks {
		schedule.Tracks[i].Position = i
	}

	schedule.Status = SchedulePending
	if schedule.IsRecurringDaily {
		schedule.ScheduledFor = ComputeNextRun(
			schedule.TimeOfDayMinutes,
			schedule.TimezoneOffsetMinutes,
			time.Now(),
		)
	}

	return s.schedules.Create(ctx, schedule)
}

// ListSchedules returns a session's schedules, tracks included.
func (s *ScheduledPlaybackService) ListSchedules(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]ScheduledPlayback, error) {
	return s.schedules.ListBySession(ctx, sessionID)
}

// CancelSchedule cancels a pending schedule owned by sessionID. A schedule
// belonging to another session reads as not found so schedule IDs leak nothing
// across sessions. Fails ErrScheduleNotPending when the schedule is
// mid-execution or already terminal.
func (s *ScheduledPlaybackService) CancelSchedule(
	ctx context.Context,
	sessionID, scheduleID uuid.UUID,
) error {
	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.SessionID != sessionID {
		return gorm.ErrRecordNotFound
	}

	cancelled, err := s.schedules.Cancel(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrScheduleNotPending
	}
	return nil
}

// ProcessDueSchedules is one processor tick: claim every due PENDING schedule
// and execute the claims. Safe to run concurrently with itself; the claim
// guarantees single execution.
func (s *ScheduledPlaybackService) ProcessDueSchedules(ctx context.Context) {
	log := s.log.Function("ProcessDueSchedules")

	due, err := s.schedules.ListDue(ctx, time.Now())
	if err != nil {
		log.Warn("failed to list due schedules", "error", err)
		return
	}

	for i := range due {
		schedule := &due[i]

		claimed, err := s.schedules.ClaimForProcessing(ctx, schedule.ID)
		if err != nil {
			log.Warn("claim failed", "scheduleID", schedule.ID, "error", err)
			continue
		}
		if !claimed {
			// Another processor won the claim.
			continue
		}

		execErr := s.execute(ctx, schedule)
		s.recordOutcome(ctx, schedule, execErr)
	}
}

// execute runs one claimed schedule: snapshot the live queue and playback
// position, clear the queue, push the scheduled tracks, then restore the
// queue so collaborative ordering resumes after the override.
func (s *ScheduledPlaybackService) execute(
	ctx context.Context,
	schedule *ScheduledPlayback,
) error {
	log := s.log.Function("execute")

	session, err := s.sessions.GetByID(ctx, schedule.SessionID)
	if err != nil {
		return log.Err("failed to load session", err, "scheduleID", schedule.ID)
	}

	token, err := s.tokens.AccessToken(ctx, session.HostID)
	if err != nil {
		return log.Err("failed to resolve host token", err, "scheduleID", schedule.ID)
	}

	deviceID, err := s.devices.EnsureDevice(ctx, session)
	if err != nil {
		return log.Err("failed to resolve playback device", err, "scheduleID", schedule.ID)
	}

	// Restoration point: current provider position plus the entire live
	// queue, votes included.
	playback, err := s.provider.GetCurrentPlayback(ctx, token)
	if err != nil {
		log.Warn("failed to snapshot playback position",
			"scheduleID", schedule.ID, "error", err)
		playback = nil
	}

	snapshot, err := s.queue.GetQueueWithNext(ctx, session.ID)
	if err != nil {
		return log.Err("failed to snapshot queue", err, "scheduleID", schedule.ID)
	}
	snapshotIDs := snapshotItemIDs(snapshot)

	if len(snapshotIDs) > 0 {
		if err := s.queueRepo.RemoveByIDs(ctx, snapshotIDs); err != nil {
			return log.Err("failed to clear queue for override", err, "scheduleID", schedule.ID)
		}
	}

	// Best effort: re-assert the pre-schedule context at its prior position
	// so ending the override lands the host back where they were.
	if playback != nil && playback.Context != nil && playback.Context.URI != "" {
		itemURI := ""
		if playback.Item != nil {
			itemURI = playback.Item.URI
		}
		err := s.provider.PlayContext(ctx, token, deviceID,
			playback.Context.URI, itemURI, playback.ProgressMS)
		if err != nil {
			log.Warn("failed to re-assert playback context",
				"scheduleID", schedule.ID, "error", err)
		}
	}

	pushErr := s.pushScheduledTracks(ctx, token, deviceID, schedule)

	// Restore even when the push failed partway; losing the live queue is
	// worse than a mangled override.
	s.restoreQueue(ctx, schedule.ID, token, snapshot, snapshotIDs)

	s.monitor.RequestImmediateSync(session.ID)

	return pushErr
}

func (s *ScheduledPlaybackService) pushScheduledTracks(
	ctx context.Context,
	token, deviceID string,
	schedule *ScheduledPlayback,
) error {
	log := s.log.Function("pushScheduledTracks")

	for _, track := range schedule.Tracks {
		if err := s.provider.AddToQueue(ctx, token, track.TrackURI, deviceID); err != nil {
			return log.Err("failed to push scheduled track", err,
				"scheduleID", schedule.ID,
				"trackURI", track.TrackURI,
				"position", track.Position)
		}
	}

	return nil
}

// restoreQueue re-inserts the snapshotted items with their attribution and
// votes intact, then re-pushes the restored next-up. Failures are logged
// per item; partial restoration beats total loss.
func (s *ScheduledPlaybackService) restoreQueue(
	ctx context.Context,
	scheduleID uuid.UUID,
	token string,
	snapshot *QueueSnapshot,
	snapshotIDs []uuid.UUID,
) {
	log := s.log.Function("restoreQueue")

	for _, id := range snapshotIDs {
		if err := s.queueRepo.RestoreByIDs(ctx, []uuid.UUID{id}); err != nil {
			log.Warn("failed to restore queue item",
				"scheduleID", scheduleID,
				"queueItemID", id,
				"error", err)
		}
	}

	if snapshot.NextUp != nil {
		if err := s.provider.AddToQueue(ctx, token, snapshot.NextUp.TrackURI, ""); err != nil {
			log.Warn("failed to re-push next track",
				"scheduleID", scheduleID,
				"trackURI", snapshot.NextUp.TrackURI,
				"error", err)
		}
	}
}

// recordOutcome writes the schedule's post-run state. Recurring schedules
// always return to PENDING with the next day's fire time, success or not;
// one-shots land COMPLETED or FAILED. LastRunAt/LastRunStatus capture what
// last happened independent of the schedule's current state.
func (s *ScheduledPlaybackService) recordOutcome(
	ctx context.Context,
	schedule *ScheduledPlayback,
	execErr error,
) {
	log := s.log.Function("recordOutcome")
	now := time.Now()

	runStatus := string(ScheduleCompleted)
	schedule.FailureReason = nil
	if execErr != nil {
		runStatus = string(ScheduleFailed)
		reason := execErr.Error()
		schedule.FailureReason = &reason
	}
	schedule.LastRunAt = &now
	schedule.LastRunStatus = &runStatus

	if schedule.IsRecurringDaily {
		schedule.Status = SchedulePending
		schedule.ScheduledFor = ComputeNextRun(
			schedule.TimeOfDayMinutes,
			schedule.TimezoneOffsetMinutes,
			now,
		)
	} else if execErr != nil {
		schedule.Status = ScheduleFailed
	} else {
		schedule.Status = ScheduleCompleted
	}

	if err := s.schedules.Update(ctx, schedule); err != nil {
		log.Er("failed to record schedule outcome", err)
		return
	}

	if execErr != nil {
		log.Warn("schedule execution failed",
			"scheduleID", schedule.ID,
			"recurring", schedule.IsRecurringDaily,
			"error", execErr)
	} else {
		log.Info("schedule executed",
			"scheduleID", schedule.ID,
			"tracks", len(schedule.Tracks))
	}
}

func snapshotItemIDs(snapshot *QueueSnapshot) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(snapshot.Queue)+1)
	if snapshot.NextUp != nil {
		ids = append(ids, snapshot.NextUp.ID)
	}
	for _, item := range snapshot.Queue {
		ids = append(ids, item.ID)
	}
	return ids
}

// ComputeNextRun converts a wall-clock time of day and a fixed minute offset
// into the next absolute fire instant after reference. A target at or before
// the reference rolls forward exactly one day. Pure and deterministic.
func ComputeNextRun(timeOfDayMinutes, timezoneOffsetMinutes int, reference time.Time) time.Time {
	zone := time.FixedZone("schedule", timezoneOffsetMinutes*60)
	local := reference.In(zone)

	target := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone).
		Add(time.Duration(timeOfDayMinutes) * time.Minute)
	if !target.After(reference) {
		target = target.AddDate(0, 0, 1)
	}

	return target.UTC()
}
