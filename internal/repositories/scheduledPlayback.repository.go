package repositories

import (
	"context"
	"time"

	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScheduledPlaybackRepository interface {
	Create(ctx context.Context, schedule *ScheduledPlayback) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledPlayback, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]ScheduledPlayback, error)
	ListDue(ctx context.Context, now time.Time) ([]ScheduledPlayback, error)
	ClaimForProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, schedule *ScheduledPlayback) error
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

type scheduledPlaybackRepository struct {
	db  database.DB
	log logger.Logger
}

func NewScheduledPlaybackRepository(db database.DB) ScheduledPlaybackRepository {
	return &scheduledPlaybackRepository{
		db:  db,
		log: logger.New("scheduledPlaybackRepository"),
	}
}

func (r *scheduledPlaybackRepository) Create(ctx context.Context, schedule *ScheduledPlayback) error {
	log := r.log.Function("Create")

	if err := r.db.SQLWithContext(ctx).Create(schedule).Error; err != nil {
		return log.Err("failed to create scheduled playback", err, "sessionID", schedule.SessionID)
	}

	return nil
}

func (r *scheduledPlaybackRepository) GetByID(ctx context.Context, id uuid.UUID) (*ScheduledPlayback, error) {
	log := r.log.Function("GetByID")

	var schedule ScheduledPlayback
	err := r.db.SQLWithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&schedule, "id = ?", id).Error
	if err != nil {
		return nil, log.Err("failed to get scheduled playback", err, "scheduleID", id)
	}

	return &schedule, nil
}

func (r *scheduledPlaybackRepository) ListBySession(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]ScheduledPlayback, error) {
	log := r.log.Function("ListBySession")

	var schedules []ScheduledPlayback
	err := r.db.SQLWithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("session_id = ?", sessionID).
		Order("scheduled_for ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, log.Err("failed to list scheduled playbacks", err, "sessionID", sessionID)
	}

	return schedules, nil
}

// ListDue returns all PENDING schedules whose fire time has passed.
func (r *scheduledPlaybackRepository) ListDue(
	ctx context.Context,
	now time.Time,
) ([]ScheduledPlayback, error) {
	log := r.log.Function("ListDue")

	var schedules []ScheduledPlayback
	err := r.db.SQLWithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("status = ? AND scheduled_for <= ?", SchedulePending, now).
		Find(&schedules).Error
	if err != nil {
		return nil, log.Err("failed to list due schedules", err)
	}

	return schedules, nil
}

// ClaimForProcessing attempts the atomic PENDING -> PROCESSING transition.
// The affected-row count is the success signal: with two concurrent
// processors, exactly one sees a row flip.
func (r *scheduledPlaybackRepository) ClaimForProcessing(
	ctx context.Context,
	id uuid.UUID,
) (bool, error) {
	log := r.log.Function("ClaimForProcessing")

	result := r.db.SQLWithContext(ctx).
		Model(&ScheduledPlayback{}).
		Where("id = ? AND status = ?", id, SchedulePending).
		Update("status", ScheduleProcessing)
	if result.Error != nil {
		return false, log.Err("failed to claim schedule", result.Error, "scheduleID", id)
	}

	return result.RowsAffected > 0, nil
}

func (r *scheduledPlaybackRepository) Update(ctx context.Context, schedule *ScheduledPlayback) error {
	log := r.log.Function("Update")

	err := r.db.SQLWithContext(ctx).
		Omit("Tracks").
		Save(schedule).Error
	if err != nil {
		return log.Err("failed to update scheduled playback", err, "scheduleID", schedule.ID)
	}

	return nil
}

// Cancel marks a schedule CANCELLED, but only while it is still PENDING.
func (r *scheduledPlaybackRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	log := r.log.Function("Cancel")

	result := r.db.SQLWithContext(ctx).
		Model(&ScheduledPlayback{}).
		Where("id = ? AND status = ?", id, SchedulePending).
		Update("status", ScheduleCancelled)
	if result.Error != nil {
		return false, log.Err("failed to cancel schedule", result.Error, "scheduleID", id)
	}

	return result.RowsAffected > 0, nil
}
