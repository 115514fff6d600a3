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

const (
	SESSION_CACHE_EXPIRY = 24 * time.Hour
	SESSION_CACHE_PREFIX = "session:"
)

type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type sessionRepository struct {
	db  database.DB
	log logger.Logger
}

func NewSessionRepository(db database.DB) SessionRepository {
	return &sessionRepository{
		db:  db,
		log: logger.New("sessionRepository"),
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	log := r.log.Function("Create")

	if err := r.db.SQLWithContext(ctx).Create(session).Error; err != nil {
		return log.Err("failed to create session", err, "hostID", session.HostID)
	}

	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	log := r.log.Function("GetByID")

	var session Session
	cacheKey := SESSION_CACHE_PREFIX + id.String()
	found, err := database.NewCacheBuilder(r.db.Cache.Session, cacheKey).
		WithContext(ctx).
		Get(&session)
	if err == nil && found {
		return &session, nil
	}

	if err := r.db.SQLWithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to get session", err, "sessionID", id)
	}

	if cacheErr := r.addToCache(ctx, &session); cacheErr != nil {
		log.Warn("failed to cache session", "sessionID", id, "error", cacheErr)
	}

	return &session, nil
}

func (r *sessionRepository) GetByJoinCode(ctx context.Context, joinCode string) (*Session, error) {
	log := r.log.Function("GetByJoinCode")

	var session Session
	err := r.db.SQLWithContext(ctx).
		First(&session, "join_code = ? AND is_active = true", joinCode).Error
	if err != nil {
		return nil, log.Err("failed to get session by join code", err, "joinCode", joinCode)
	}

	return &session, nil
}

func (r *sessionRepository) Update(ctx context.Context, session *Session) error {
	log := r.log.Function("Update")

	if err := r.db.SQLWithContext(ctx).Save(session).Error; err != nil {
		return log.Err("failed to update session", err, "sessionID", session.ID)
	}

	if err := r.clearCache(ctx, session.ID); err != nil {
		log.Warn("failed to clear session cache", "sessionID", session.ID, "error", err)
	}

	return nil
}

func (r *sessionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	log := r.log.Function("Deactivate")

	err := r.db.SQLWithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("is_active", false).Error
	if err != nil {
		return log.Err("failed to deactivate session", err, "sessionID", id)
	}

	if err := r.clearCache(ctx, id); err != nil {
		log.Warn("failed to clear session cache", "sessionID", id, "error", err)
	}

	return nil
}

func (r *sessionRepository) addToCache(ctx context.Context, session *Session) error {
	cacheKey := SESSION_CACHE_PREFIX + session.ID.String()
	return database.NewCacheBuilder(r.db.Cache.Session, cacheKey).
		WithStruct(session).
		WithTTL(SESSION_CACHE_EXPIRY).
		WithContext(ctx).
		Set()
}

func (r *sessionRepository) clearCache(ctx context.Context, id uuid.UUID) error {
	cacheKey := SESSION_CACHE_PREFIX + id.String()
	return database.NewCacheBuilder(r.db.Cache.Session, cacheKey).
		WithContext(ctx).
		Delete()
}

// IsNotFound reports whether err is a record-not-found from the store.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
