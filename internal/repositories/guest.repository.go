package repositories

import (
	"context"

	appContext "auxparty/internal/context"
	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GuestRepository interface {
	Create(ctx context.Context, guest *Guest) error
	GetByID(ctx context.Context, id uuid.UUID) (*Guest, error)
	FindBySessionAndLinkedUser(ctx context.Context, sessionID, userID uuid.UUID) (*Guest, error)
}

type guestRepository struct {
	db  database.DB
	log logger.Logger
}

func NewGuestRepository(db database.DB) GuestRepository {
	return &guestRepository{
		db:  db,
		log: logger.New("guestRepository"),
	}
}

// sql returns the ambient transaction when one is on the context, so guest
// creation joins the identity-creation transaction.
func (r *guestRepository) sql(ctx context.Context) *gorm.DB {
	if tx, ok := appContext.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *guestRepository) Create(ctx context.Context, guest *Guest) error {
	log := r.log.Function("Create")

	if err := r.sql(ctx).Create(guest).Error; err != nil {
		return log.Err("failed to create guest", err, "sessionID", guest.SessionID)
	}

	return nil
}

func (r *guestRepository) GetByID(ctx context.Context, id uuid.UUID) (*Guest, error) {
	log := r.log.Function("GetByID")

	var guest Guest
	if err := r.db.SQLWithContext(ctx).First(&guest, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to get guest", err, "guestID", id)
	}

	return &guest, nil
}

// FindBySessionAndLinkedUser de-duplicates rejoins: a linked identity gets its
// existing guest record back instead of a second one.
func (r *guestRepository) FindBySessionAndLinkedUser(
	ctx context.Context,
	sessionID, userID uuid.UUID,
) (*Guest, error) {
	var guest Guest
	err := r.db.SQLWithContext(ctx).
		First(&guest, "session_id = ? AND linked_user_id = ?", sessionID, userID).Error
	if err != nil {
		return nil, err
	}

	return &guest, nil
}
