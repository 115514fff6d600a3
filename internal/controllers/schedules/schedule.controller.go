package scheduleController

import (
	"context"
	"errors"
	"time"

	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"
	"auxparty/internal/repositories"
	"auxparty/internal/services"

	"github.com/google/uuid"
)

// ScheduleRequest is the host-facing shape for creating a scheduled playback.
type ScheduleRequest struct {
	Name                  string  `json:"name"`
	ScheduledFor          string  `json:"scheduledFor,omitempty"`
	IsRecurringDaily      bool    `json:"isRecurringDaily"`
	TimeOfDayMinutes      int     `json:"timeOfDayMinutes"`
	TimezoneOffsetMinutes int     `json:"timezoneOffsetMinutes"`
	Tracks                []Track `json:"tracks"`
}

type ScheduleController struct {
	sessionRepo repositories.SessionRepository
	scheduled   *services.ScheduledPlaybackService
	db          database.DB
	Config      config.Config
	log         logger.Logger
}

type ScheduleControllerInterface interface {
	Create(
		ctx context.Context,
		host *User,
		sessionID uuid.UUID,
		req ScheduleRequest,
	) (*ScheduledPlayback, error)
	List(ctx context.Context, host *User, sessionID uuid.UUID) ([]ScheduledPlayback, error)
	Cancel(ctx context.Context, host *User, sessionID, scheduleID uuid.UUID) error
}

func New(
	repos repositories.Repository,
	services services.Service,
	config config.Config,
	db database.DB,
) ScheduleControllerInterface {
	return &ScheduleController{
		sessionRepo: repos.Session,
		scheduled:   services.ScheduledPlayback,
		db:          db,
		Config:      config,
		log:         logger.New("scheduleController"),
	}
}

func (sc *ScheduleController) Create(
	ctx context.Context,
	host *User,
	sessionID uuid.UUID,
	req ScheduleRequest,
) (*ScheduledPlayback, error) {
	log := sc.log.Function("Create")

	session, err := sc.hostSession(ctx, host, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, services.ErrSessionInactive
	}

	schedule := &ScheduledPlayback{
		SessionID:             sessionID,
		CreatedByID:           host.ID,
		Name:                  req.Name,
		IsRecurringDaily:      req.IsRecurringDaily,
		TimeOfDayMinutes:      req.TimeOfDayMinutes,
		TimezoneOffsetMinutes: req.TimezoneOffsetMinutes,
	}

	for i, track := range req.Tracks {
		schedule.Tracks = append(schedule.Tracks, ScheduledTrack{
			Position:   i,
			TrackID:    track.TrackID,
			TrackURI:   track.TrackURI,
			Name:       track.Name,
			Artist:     track.Artist,
			DurationMS: track.DurationMS,
		})
	}

	if !req.IsRecurringDaily {
		scheduledFor, err := parseScheduledFor(req.ScheduledFor)
		if err != nil {
			return nil, log.Err("invalid scheduledFor timestamp", err)
		}
		schedule.ScheduledFor = scheduledFor
	}

	if err := sc.scheduled.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	log.Info("Schedule created",
		"scheduleID", schedule.ID,
		"sessionID", sessionID,
		"recurring", schedule.IsRecurringDaily,
		"firesAt", schedule.ScheduledFor)
	return schedule, nil
}

func (sc *ScheduleController) List(
	ctx context.Context,
	host *User,
	sessionID uuid.UUID,
) ([]ScheduledPlayback, error) {
	if _, err := sc.hostSession(ctx, host, sessionID); err != nil {
		return nil, err
	}
	return sc.scheduled.ListSchedules(ctx, sessionID)
}

func (sc *ScheduleController) Cancel(
	ctx context.Context,
	host *User,
	sessionID, scheduleID uuid.UUID,
) error {
	if _, err := sc.hostSession(ctx, host, sessionID); err != nil {
		return err
	}
	return sc.scheduled.CancelSchedule(ctx, sessionID, scheduleID)
}

func parseScheduledFor(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("scheduledFor is required for one-shot schedules")
	}
	return time.Parse(time.RFC3339, raw)
}

func (sc *ScheduleController) hostSession(
	ctx context.Context,
	host *User,
	sessionID uuid.UUID,
) (*Session, error) {
	session, err := sc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID != host.ID {
		return nil, services.ErrNotAuthorized
	}
	return session, nil
}
