package repositories

import (
	"context"
	"errors"
	"time"

	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QueueItemRepository interface {
	Create(ctx context.Context, item *QueueItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error)
	HasUnplayedTrack(ctx context.Context, sessionID uuid.UUID, trackID string) (bool, error)
	ListUnplayed(ctx context.Context, sessionID uuid.UUID) ([]QueueItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RemoveByIDs(ctx context.Context, ids []uuid.UUID) error
	RestoreByIDs(ctx context.Context, ids []uuid.UUID) error
	MarkPlayed(ctx context.Context, sessionID uuid.UUID, trackID string, playedAt time.Time) (bool, error)

	GetVote(ctx context.Context, itemID uuid.UUID, voterKey string) (*Vote, error)
	CreateVote(ctx context.Context, vote *Vote) error
	UpdateVote(ctx context.Context, vote *Vote) error
	DeleteVote(ctx context.Context, id uuid.UUID) error
	RecomputeScore(ctx context.Context, itemID uuid.UUID) (int, error)
}

type queueItemRepository struct {
	db  database.DB
	log logger.Logger
}

func NewQueueItemRepository(db database.DB) QueueItemRepository {
	return &queueItemRepository{
		db:  db,
		log: logger.New("queueItemRepository"),
	}
}

func (r *queueItemRepository) Create(ctx context.Context, item *QueueItem) error {
	log := r.log.Function("Create")

	if err := r.db.SQLWithContext(ctx).Create(item).Error; err != nil {
		return log.Err("failed to create queue item", err,
			"sessionID", item.SessionID,
			"trackID", item.TrackID)
	}

	return nil
}

func (r *queueItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	log := r.log.Function("GetByID")

	var item QueueItem
	err := r.db.SQLWithContext(ctx).
		Preload("Votes").
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, log.Err("failed to get queue item", err, "queueItemID", id)
	}

	return &item, nil
}

// HasUnplayedTrack counts unscoped so items parked by a scheduled override
// (soft-deleted pending restore) still block a duplicate add. User removals
// delete hard and never linger here.
func (r *queueItemRepository) HasUnplayedTrack(
	ctx context.Context,
	sessionID uuid.UUID,
	trackID string,
) (bool, error) {
	var count int64
	err := r.db.SQLWithContext(ctx).
		Unscoped().
		Model(&QueueItem{}).
		Where("session_id = ? AND track_id = ? AND played = false", sessionID, trackID).
		Count(&count).Error
	if err != nil {
		return false, r.log.Function("HasUnplayedTrack").
			Err("failed to check for unplayed track", err, "sessionID", sessionID, "trackID", trackID)
	}

	return count > 0, nil
}

// ListUnplayed returns the session's unplayed items in play order:
// highest vote score first, oldest first within a score.
func (r *queueItemRepository) ListUnplayed(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]QueueItem, error) {
	log := r.log.Function("ListUnplayed")

	var items []QueueItem
	err := r.db.SQLWithContext(ctx).
		Preload("Votes").
		Where("session_id = ? AND played = false", sessionID).
		Order("vote_score DESC, created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, log.Err("failed to list unplayed queue items", err, "sessionID", sessionID)
	}

	return items, nil
}

// Delete removes an item for good, votes included. Hard delete, not the
// soft delete RemoveByIDs uses: removed items must stop counting against
// the duplicate-track check immediately.
func (r *queueItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	log := r.log.Function("Delete")

	db := r.db.SQLWithContext(ctx)
	if err := db.Unscoped().Delete(&Vote{}, "queue_item_id = ?", id).Error; err != nil {
		return log.Err("failed to delete queue item votes", err, "queueItemID", id)
	}
	if err := db.Unscoped().Delete(&QueueItem{}, "id = ?", id).Error; err != nil {
		return log.Err("failed to delete queue item", err, "queueItemID", id)
	}

	return nil
}

// RemoveByIDs soft-deletes snapshotted items so a scheduled playback can run
// without colliding with collaborative ordering. RestoreByIDs undoes it.
func (r *queueItemRepository) RemoveByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	log := r.log.Function("RemoveByIDs")
	if err := r.db.SQLWithContext(ctx).Delete(&QueueItem{}, "id IN ?", ids).Error; err != nil {
		return log.Err("failed to remove queue items", err, "count", len(ids))
	}

	return nil
}

func (r *queueItemRepository) RestoreByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	log := r.log.Function("RestoreByIDs")
	err := r.db.SQLWithContext(ctx).
		Unscoped().
		Model(&QueueItem{}).
		Where("id IN ?", ids).
		Update("deleted_at", nil).Error
	if err != nil {
		return log.Err("failed to restore queue items", err, "count", len(ids))
	}

	return nil
}

// MarkPlayed flips an unplayed item for (session, track) to played.
// Returns false when nothing matched: already consumed, or never queued.
func (r *queueItemRepository) MarkPlayed(
	ctx context.Context,
	sessionID uuid.UUID,
	trackID string,
	playedAt time.Time,
) (bool, error) {
	log := r.log.Function("MarkPlayed")

	result := r.db.SQLWithContext(ctx).
		Model(&QueueItem{}).
		Where("session_id = ? AND track_id = ? AND played = false", sessionID, trackID).
		Updates(map[string]any{
			"played":    true,
			"played_at": playedAt,
		})
	if result.Error != nil {
		return false, log.Err("failed to mark track as played", result.Error,
			"sessionID", sessionID,
			"trackID", trackID)
	}

	return result.RowsAffected > 0, nil
}

func (r *queueItemRepository) GetVote(
	ctx context.Context,
	itemID uuid.UUID,
	voterKey string,
) (*Vote, error) {
	var vote Vote
	err := r.db.SQLWithContext(ctx).
		First(&vote, "queue_item_id = ? AND voter_key = ?", itemID, voterKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, r.log.Function("GetVote").
			Err("failed to get vote", err, "queueItemID", itemID, "voterKey", voterKey)
	}

	return &vote, nil
}

func (r *queueItemRepository) CreateVote(ctx context.Context, vote *Vote) error {
	log := r.log.Function("CreateVote")

	if err := r.db.SQLWithContext(ctx).Create(vote).Error; err != nil {
		return log.Err("failed to create vote", err, "queueItemID", vote.QueueItemID)
	}

	return nil
}

func (r *queueItemRepository) UpdateVote(ctx context.Context, vote *Vote) error {
	log := r.log.Function("UpdateVote")

	err := r.db.SQLWithContext(ctx).
		Model(&Vote{}).
		Where("id = ?", vote.ID).
		Update("vote_type", vote.VoteType).Error
	if err != nil {
		return log.Err("failed to update vote", err, "voteID", vote.ID)
	}

	return nil
}

// DeleteVote removes a vote for good. Hard delete: the (item, voter) unique
// index must be free for a later re-vote.
func (r *queueItemRepository) DeleteVote(ctx context.Context, id uuid.UUID) error {
	log := r.log.Function("DeleteVote")

	if err := r.db.SQLWithContext(ctx).Unscoped().Delete(&Vote{}, "id = ?", id).Error; err != nil {
		return log.Err("failed to delete vote", err, "voteID", id)
	}

	return nil
}

// RecomputeScore recalculates the cached vote score from the vote rows and
// writes it back to the item.
func (r *queueItemRepository) RecomputeScore(ctx context.Context, itemID uuid.UUID) (int, error) {
	log := r.log.Function("RecomputeScore")

	var score int
	err := r.db.SQLWithContext(ctx).
		Model(&Vote{}).
		Where("queue_item_id = ?", itemID).
		Select("COALESCE(SUM(vote_type), 0)").
		Scan(&score).Error
	if err != nil {
		return 0, log.Err("failed to sum votes", err, "queueItemID", itemID)
	}

	err = r.db.SQLWithContext(ctx).
		Model(&QueueItem{}).
		Where("id = ?", itemID).
		Update("vote_score", score).Error
	if err != nil {
		return 0, log.Err("failed to update vote score", err, "queueItemID", itemID)
	}

	return score, nil
}
