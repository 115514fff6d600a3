package repositories

import (
	"context"
	"time"

	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
)

const (
	USER_CACHE_EXPIRY           = 7 * 24 * time.Hour // 7 days
	USER_CACHE_PREFIX           = "user:"
	SPOTIFY_MAPPING_CACHE_PREFIX = "spotify:"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetBySpotifyUserID(ctx context.Context, spotifyUserID string) (*User, error)
	Update(ctx context.Context, user *User) error
	FindOrCreateSpotifyUser(ctx context.Context, user *User) (*User, error)

	// Fresh credit-field access for the credit ledger. LoadCreditFields always
	// bypasses the cache; SaveCreditFields writes through and clears it.
	LoadCreditFields(ctx context.Context, id uuid.UUID) (*User, error)
	SaveCreditFields(ctx context.Context, user *User) error
}

type userRepository struct {
	db  database.DB
	log logger.Logger
}

func NewUserRepository(db database.DB) UserRepository {
	return &userRepository{
		db:  db,
		log: logger.New("userRepository"),
	}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	log := r.log.Function("GetByID")

	var user User
	if found := r.getCacheByID(ctx, id, &user); found {
		return &user, nil
	}

	if err := r.db.SQLWithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to get user by id", err, "id", id)
	}

	if err := r.addUserToCache(ctx, &user); err != nil {
		log.Warn("failed to add user to cache", "userID", id, "error", err)
	}

	return &user, nil
}

func (r *userRepository) GetBySpotifyUserID(ctx context.Context, spotifyUserID string) (*User, error) {
	log := r.log.Function("GetBySpotifyUserID")

	var userID uuid.UUID
	mappingKey := SPOTIFY_MAPPING_CACHE_PREFIX + spotifyUserID
	found, err := database.NewCacheBuilder(r.db.Cache.Identity, mappingKey).
		WithContext(ctx).
		Get(&userID)
	if err == nil && found {
		return r.GetByID(ctx, userID)
	}

	var user User
	if err := r.db.SQLWithContext(ctx).First(&user, "spotify_user_id = ?", spotifyUserID).Error; err != nil {
		return nil, log.Err("failed to get user by spotify id", err, "spotifyUserID", spotifyUserID)
	}

	if cacheErr := database.NewCacheBuilder(r.db.Cache.Identity, mappingKey).
		WithStruct(user.ID).
		WithTTL(USER_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); cacheErr != nil {
		log.Warn("failed to cache spotify mapping", "spotifyUserID", spotifyUserID, "error", cacheErr)
	}

	return &user, nil
}

func (r *userRepository) FindOrCreateSpotifyUser(ctx context.Context, user *User) (*User, error) {
	log := r.log.Function("FindOrCreateSpotifyUser")

	var existing User
	err := r.db.SQLWithContext(ctx).
		First(&existing, "spotify_user_id = ?", user.SpotifyUserID).Error
	if err == nil {
		existing.DisplayName = user.DisplayName
		existing.SpotifyAccessToken = user.SpotifyAccessToken
		existing.SpotifyRefreshToken = user.SpotifyRefreshToken
		existing.SpotifyTokenExpiry = user.SpotifyTokenExpiry
		existing.SpotifyProduct = user.SpotifyProduct
		now := time.Now()
		existing.LastLoginAt = &now
		if updateErr := r.Update(ctx, &existing); updateErr != nil {
			return nil, updateErr
		}
		return &existing, nil
	}

	if err := r.db.SQLWithContext(ctx).Create(user).Error; err != nil {
		return nil, log.Err("failed to create user", err, "spotifyUserID", user.SpotifyUserID)
	}

	log.Info("Created new user from Spotify account", "userID", user.ID)
	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *User) error {
	log := r.log.Function("Update")

	if err := r.db.SQLWithContext(ctx).Save(user).Error; err != nil {
		return log.Err("failed to update user", err, "userID", user.ID)
	}

	if err := r.clearUserCache(ctx, user); err != nil {
		log.Warn("failed to clear user cache after update", "userID", user.ID, "error", err)
	}

	return nil
}

func (r *userRepository) LoadCreditFields(ctx context.Context, id uuid.UUID) (*User, error) {
	log := r.log.Function("LoadCreditFields")

	var user User
	if err := r.db.SQLWithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to load credit fields", err, "userID", id)
	}

	return &user, nil
}

func (r *userRepository) SaveCreditFields(ctx context.Context, user *User) error {
	log := r.log.Function("SaveCreditFields")

	err := r.db.SQLWithContext(ctx).
		Model(&User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"total_credits":       user.TotalCredits,
			"current_credits":     user.CurrentCredits,
			"credit_refresh_date": user.CreditRefreshDate,
		}).Error
	if err != nil {
		return log.Err("failed to save credit fields", err, "userID", user.ID)
	}

	if err := r.clearUserCache(ctx, user); err != nil {
		log.Warn("failed to clear user cache after credit update", "userID", user.ID, "error", err)
	}

	return nil
}

func (r *userRepository) getCacheByID(ctx context.Context, userID uuid.UUID, user *User) bool {
	cacheKey := USER_CACHE_PREFIX + userID.String()
	found, err := database.NewCacheBuilder(r.db.Cache.Identity, cacheKey).
		WithContext(ctx).
		Get(user)
	if err != nil {
		r.log.Function("getCacheByID").
			Warn("failed to get user from cache", "userID", userID, "error", err)
		return false
	}

	return found
}

func (r *userRepository) addUserToCache(ctx context.Context, user *User) error {
	cacheKey := USER_CACHE_PREFIX + user.ID.String()
	if err := database.NewCacheBuilder(r.db.Cache.Identity, cacheKey).
		WithStruct(user).
		WithTTL(USER_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); err != nil {
		return r.log.Function("addUserToCache").
			Err("failed to add user to cache", err, "userID", user.ID)
	}
	return nil
}

func (r *userRepository) clearUserCache(ctx context.Context, user *User) error {
	log := r.log.Function("clearUserCache")

	userCacheKey := USER_CACHE_PREFIX + user.ID.String()
	if err := database.NewCacheBuilder(r.db.Cache.Identity, userCacheKey).
		WithContext(ctx).
		Delete(); err != nil {
		log.Warn("failed to clear user cache", "userID", user.ID, "error", err)
	}

	if user.SpotifyUserID != "" {
		mappingKey := SPOTIFY_MAPPING_CACHE_PREFIX + user.SpotifyUserID
		if err := database.NewCacheBuilder(r.db.Cache.Identity, mappingKey).
			WithContext(ctx).
			Delete(); err != nil {
			log.Warn("failed to clear spotify mapping cache", "spotifyUserID", user.SpotifyUserID, "error", err)
		}
	}

	return nil
}
