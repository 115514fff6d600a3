package services

import (
	"context"
	"testing"
	"time"

	. "auxparty/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// execRecorder collects the order of provider and repository side effects so
// the override/restore sequencing can be asserted as a whole.
type execRecorder struct {
	ops []string
}

func (r *execRecorder) record(op string) {
	r.ops = append(r.ops, op)
}

type fakeScheduleRepo struct {
	due        []ScheduledPlayback
	denyClaim  map[uuid.UUID]bool
	claims     []uuid.UUID
	updated    []ScheduledPlayback
	cancels    []uuid.UUID
	denyCancel bool
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{denyClaim: make(map[uuid.UUID]bool)}
}

func (f *fakeScheduleRepo) Create(ctx context.Context, schedule *ScheduledPlayback) error {
	f.due = append(f.due, *schedule)
	return nil
}

func (f *fakeScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*ScheduledPlayback, error) {
	for i := range f.due {
		if f.due[i].ID == id {
			return &f.due[i], nil
		}
	}
	return nil, assert.AnError
}

func (f *fakeScheduleRepo) ListBySession(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]ScheduledPlayback, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ListDue(ctx context.Context, now time.Time) ([]ScheduledPlayback, error) {
	return f.due, nil
}

func (f *fakeScheduleRepo) ClaimForProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	f.claims = append(f.claims, id)
	return !f.denyClaim[id], nil
}

func (f *fakeScheduleRepo) Update(ctx context.Context, schedule *ScheduledPlayback) error {
	f.updated = append(f.updated, *schedule)
	return nil
}

func (f *fakeScheduleRepo) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.denyCancel {
		return false, nil
	}
	f.cancels = append(f.cancels, id)
	return true, nil
}

type fakeSessionRepo struct {
	sessions map[uuid.UUID]*Session
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *Session) error { return nil }

func (f *fakeSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, assert.AnError
	}
	return session, nil
}

func (f *fakeSessionRepo) GetByJoinCode(ctx context.Context, joinCode string) (*Session, error) {
	return nil, assert.AnError
}

func (f *fakeSessionRepo) Update(ctx context.Context, session *Session) error { return nil }

func (f *fakeSessionRepo) Deactivate(ctx context.Context, id uuid.UUID) error { return nil }

type fakeTokenResolver struct {
	token string
}

func (f fakeTokenResolver) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return f.token, nil
}

// recordingProvider logs provider calls through the shared recorder and can
// fail AddToQueue for specific URIs to simulate a mid-override push failure.
type recordingProvider struct {
	rec         *execRecorder
	devices     []PlaybackDevice
	devicesErr  error
	deviceLists int
	playback    *PlaybackState
	failURIs    map[string]bool
}

func (p *recordingProvider) GetCurrentPlayback(
	ctx context.Context,
	token string,
) (*PlaybackState, error) {
	return p.playback, nil
}

func (p *recordingProvider) GetAvailableDevices(
	ctx context.Context,
	token string,
) ([]PlaybackDevice, error) {
	p.deviceLists++
	if p.devicesErr != nil {
		return nil, p.devicesErr
	}
	return p.devices, nil
}

func (p *recordingProvider) TransferPlayback(
	ctx context.Context,
	token, deviceID string,
	play bool,
) error {
	p.rec.record("transfer " + deviceID)
	return nil
}

func (p *recordingProvider) AddToQueue(
	ctx context.Context,
	token, trackURI, deviceID string,
) error {
	if p.failURIs[trackURI] {
		return assert.AnError
	}
	p.rec.record("push " + trackURI)
	return nil
}

func (p *recordingProvider) PlayContext(
	ctx context.Context,
	token, deviceID, contextURI, offsetURI string,
	positionMS int,
) error {
	p.rec.record("context " + contextURI)
	return nil
}

func (p *recordingProvider) PlayURIs(
	ctx context.Context,
	token, deviceID string,
	uris []string,
	positionMS int,
) error {
	return nil
}

func (p *recordingProvider) SkipToNext(ctx context.Context, token, deviceID string) error {
	return nil
}

func (p *recordingProvider) GetTrack(
	ctx context.Context,
	token, trackID string,
) (*PlaybackTrack, error) {
	return nil, nil
}

// softDeleteQueueRepo layers removal tracking over the shared in-memory fake
// so a cleared-then-restored queue can be distinguished from one that was
// never touched.
type softDeleteQueueRepo struct {
	*fakeQueueRepo
	rec     *execRecorder
	removed map[uuid.UUID]bool
}

func newSoftDeleteQueueRepo(rec *execRecorder) *softDeleteQueueRepo {
	return &softDeleteQueueRepo{
		fakeQueueRepo: newFakeQueueRepo(),
		rec:           rec,
		removed:       make(map[uuid.UUID]bool),
	}
}

func (f *softDeleteQueueRepo) RemoveByIDs(ctx context.Context, ids []uuid.UUID) error {
	f.rec.record("remove")
	for _, id := range ids {
		f.removed[id] = true
	}
	return nil
}

func (f *softDeleteQueueRepo) RestoreByIDs(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(f.removed, id)
	}
	f.rec.record("restore")
	return nil
}

func (f *softDeleteQueueRepo) ListUnplayed(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]QueueItem, error) {
	items, err := f.fakeQueueRepo.ListUnplayed(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var visible []QueueItem
	for _, item := range items {
		if !f.removed[item.ID] {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

type fakeNudger struct {
	synced []uuid.UUID
}

func (f *fakeNudger) RequestImmediateSync(sessionID uuid.UUID) {
	f.synced = append(f.synced, sessionID)
}

type scheduleHarness struct {
	schedules *fakeScheduleRepo
	queueRepo *softDeleteQueueRepo
	provider  *recordingProvider
	nudger    *fakeNudger
	rec       *execRecorder
	service   *ScheduledPlaybackService
	session   *Session
}

func newScheduleHarness() *scheduleHarness {
	rec := &execRecorder{}
	session := testSession()

	queueRepo := newSoftDeleteQueueRepo(rec)
	provider := &recordingProvider{
		rec:      rec,
		devices:  []PlaybackDevice{{ID: "device-1", Name: "Living Room", IsActive: true}},
		failURIs: make(map[string]bool),
	}
	tokens := fakeTokenResolver{token: "host-token"}
	schedules := newFakeScheduleRepo()
	sessions := &fakeSessionRepo{sessions: map[uuid.UUID]*Session{session.ID: session}}
	nudger := &fakeNudger{}

	service := NewScheduledPlaybackService(
		schedules,
		sessions,
		queueRepo,
		NewQueueService(queueRepo),
		NewDeviceReconcilerService(provider, tokens),
		provider,
		tokens,
		nudger,
	)

	return &scheduleHarness{
		schedules: schedules,
		queueRepo: queueRepo,
		provider:  provider,
		nudger:    nudger,
		rec:       rec,
		service:   service,
		session:   session,
	}
}

func (h *scheduleHarness) addQueueItem(t *testing.T, trackID string) {
	t.Helper()
	item := &QueueItem{
		SessionID: h.session.ID,
		TrackID:   trackID,
		TrackURI:  "spotify:track:" + trackID,
		Name:      "Track " + trackID,
	}
	require.NoError(t, h.queueRepo.Create(context.Background(), item))
}

func (h *scheduleHarness) addDueSchedule(trackIDs ...string) *ScheduledPlayback {
	schedule := ScheduledPlayback{
		SessionID:    h.session.ID,
		CreatedByID:  h.session.HostID,
		Name:         "override",
		ScheduledFor: time.Now().Add(-time.Minute),
		Status:       SchedulePending,
	}
	schedule.ID = uuid.New()
	for i, id := range trackIDs {
		schedule.Tracks = append(schedule.Tracks, ScheduledTrack{
			ScheduledPlaybackID: schedule.ID,
			Position:            i,
			TrackID:             id,
			TrackURI:            "spotify:track:" + id,
		})
	}
	h.schedules.due = append(h.schedules.due, schedule)
	return &h.schedules.due[len(h.schedules.due)-1]
}

func TestProcessDueSchedulesSkipsLostClaim(t *testing.T) {
	h := newScheduleHarness()
	schedule := h.addDueSchedule("s1")
	h.schedules.denyClaim[schedule.ID] = true

	h.service.ProcessDueSchedules(context.Background())

	assert.Equal(t, []uuid.UUID{schedule.ID}, h.schedules.claims)
	assert.Empty(t, h.schedules.updated, "lost claims must not record an outcome")
	assert.Empty(t, h.rec.ops, "lost claims must not touch the provider or queue")
	assert.Empty(t, h.nudger.synced)
}

func TestScheduledExecutionOverridesThenRestores(t *testing.T) {
	h := newScheduleHarness()
	h.addQueueItem(t, "t1")
	h.addQueueItem(t, "t2")
	h.provider.playback = &PlaybackState{
		IsPlaying:  true,
		ProgressMS: 42000,
		Item:       &PlaybackTrack{URI: "spotify:track:current"},
		Context:    &PlaybackContext{URI: "spotify:playlist:host"},
	}
	h.addDueSchedule("s1", "s2")

	h.service.ProcessDueSchedules(context.Background())

	// Clear before context re-assert, pushes before restore, next-up
	// re-pushed last.
	assert.Equal(t, []string{
		"remove",
		"context spotify:playlist:host",
		"push spotify:track:s1",
		"push spotify:track:s2",
		"restore",
		"restore",
		"push spotify:track:t1",
	}, h.rec.ops)

	assert.Empty(t, h.queueRepo.removed, "every snapshotted item must come back")
	items, err := h.queueRepo.ListUnplayed(context.Background(), h.session.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.Len(t, h.schedules.updated, 1)
	recorded := h.schedules.updated[0]
	assert.Equal(t, ScheduleCompleted, recorded.Status)
	require.NotNil(t, recorded.LastRunStatus)
	assert.Equal(t, string(ScheduleCompleted), *recorded.LastRunStatus)
	assert.NotNil(t, recorded.LastRunAt)
	assert.Nil(t, recorded.FailureReason)

	assert.Equal(t, []uuid.UUID{h.session.ID}, h.nudger.synced)
}

func TestScheduledExecutionPushFailureStillRestores(t *testing.T) {
	h := newScheduleHarness()
	h.addQueueItem(t, "t1")
	h.addQueueItem(t, "t2")
	h.provider.failURIs["spotify:track:s1"] = true
	h.addDueSchedule("s1", "s2")

	h.service.ProcessDueSchedules(context.Background())

	assert.Empty(t, h.queueRepo.removed, "restore must run even when the push fails")
	items, err := h.queueRepo.ListUnplayed(context.Background(), h.session.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Contains(t, h.rec.ops, "push spotify:track:t1", "next-up re-push still happens")

	require.Len(t, h.schedules.updated, 1)
	recorded := h.schedules.updated[0]
	assert.Equal(t, ScheduleFailed, recorded.Status)
	require.NotNil(t, recorded.LastRunStatus)
	assert.Equal(t, string(ScheduleFailed), *recorded.LastRunStatus)
	assert.NotNil(t, recorded.FailureReason)

	assert.Equal(t, []uuid.UUID{h.session.ID}, h.nudger.synced)
}

func TestDuplicateCheckSpansOverrideWindow(t *testing.T) {
	h := newScheduleHarness()
	queue := NewQueueService(h.queueRepo)
	host := HostActor(h.session.HostID)

	item, err := queue.AddToQueue(context.Background(), h.session, host, testTrack("t1"))
	require.NoError(t, err)
	require.NoError(t, h.queueRepo.RemoveByIDs(context.Background(), []uuid.UUID{item.ID}))

	// Parked by a running override, the track still counts as queued
	_, err = queue.AddToQueue(context.Background(), h.session, host, testTrack("t1"))
	assert.ErrorIs(t, err, ErrDuplicateTrack)

	require.NoError(t, h.queueRepo.RestoreByIDs(context.Background(), []uuid.UUID{item.ID}))
	items, err := h.queueRepo.ListUnplayed(context.Background(), h.session.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCancelScheduleOwnSession(t *testing.T) {
	h := newScheduleHarness()
	schedule := h.addDueSchedule("s1")

	err := h.service.CancelSchedule(context.Background(), h.session.ID, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{schedule.ID}, h.schedules.cancels)
}

func TestCancelScheduleCrossSessionReadsNotFound(t *testing.T) {
	h := newScheduleHarness()
	schedule := h.addDueSchedule("s1")

	err := h.service.CancelSchedule(context.Background(), uuid.New(), schedule.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, h.schedules.cancels, "another session's host must not cancel the schedule")
}

func TestCancelScheduleNotPending(t *testing.T) {
	h := newScheduleHarness()
	schedule := h.addDueSchedule("s1")
	h.schedules.denyCancel = true

	err := h.service.CancelSchedule(context.Background(), h.session.ID, schedule.ID)
	assert.ErrorIs(t, err, ErrScheduleNotPending)
}

func TestScheduledExecutionRecurringReturnsToPending(t *testing.T) {
	h := newScheduleHarness()
	schedule := h.addDueSchedule("s1")
	schedule.IsRecurringDaily = true
	schedule.TimeOfDayMinutes = 7 * 60

	h.service.ProcessDueSchedules(context.Background())

	require.Len(t, h.schedules.updated, 1)
	recorded := h.schedules.updated[0]
	assert.Equal(t, SchedulePending, recorded.Status)
	assert.True(t, recorded.ScheduledFor.After(time.Now()),
		"recurring schedules reschedule for the next day")
	require.NotNil(t, recorded.LastRunStatus)
	assert.Equal(t, string(ScheduleCompleted), *recorded.LastRunStatus)
}
