package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a durable identity backed by a Spotify account. Hosts always have
// one; guests only when they chose to link their account (credit accounting
// and rejoin de-duplication hang off it).
type User struct {
	BaseUUIDModel
	DisplayName string  `gorm:"type:text"               json:"displayName"`
	Email       *string `gorm:"type:text;uniqueIndex"   json:"email,omitempty"`
	IsAdmin     bool    `gorm:"type:bool;default:false" json:"isAdmin"`
	IsActive    bool    `gorm:"type:bool;default:true"  json:"isActive"`

	// Spotify account linkage
	SpotifyUserID       string     `gorm:"column:spotify_user_id;type:text;uniqueIndex" json:"-"`
	SpotifyAccessToken  string     `gorm:"type:text" json:"-"`
	SpotifyRefreshToken string     `gorm:"type:text" json:"-"`
	SpotifyTokenExpiry  *time.Time `gorm:"type:timestamp" json:"-"`
	SpotifyProduct      string     `gorm:"type:text" json:"-"`

	// The host's current session. Stale session actions are rejected by
	// comparing against this back-reference.
	CurrentSessionID *uuid.UUID `gorm:"type:uuid" json:"currentSessionId,omitempty"`

	// Credit state, reconciled by the credit ledger
	TotalCredits      int        `gorm:"type:int;default:0" json:"totalCredits"`
	CurrentCredits    int        `gorm:"type:int;default:0" json:"currentCredits"`
	CreditRefreshDate *time.Time `gorm:"type:timestamp"     json:"creditRefreshDate,omitempty"`

	LastLoginAt *time.Time `gorm:"type:timestamp" json:"lastLoginAt,omitempty"`
}

// UserProfile represents public user profile information
type UserProfile struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	IsActive    bool       `json:"isActive"`
	IsAdmin     bool       `json:"isAdmin"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func (u *User) ToProfile() UserProfile {
	return UserProfile{
		ID:          u.ID.String(),
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		IsAdmin:     u.IsAdmin,
		LastLoginAt: u.LastLoginAt,
	}
}

// TokenExpired reports whether the stored Spotify access token needs a refresh.
// A small skew keeps us from handing out tokens that die mid-request.
func (u *User) TokenExpired() bool {
	if u.SpotifyTokenExpiry == nil {
		return true
	}
	return time.Now().Add(30 * time.Second).After(*u.SpotifyTokenExpiry)
}

// CreditState is the normalized, cacheable view of a user's credits.
type CreditState struct {
	UserID         uuid.UUID  `json:"userId"`
	TotalCredits   int        `json:"totalCredits"`
	CurrentCredits int        `json:"currentCredits"`
	RefreshDate    *time.Time `json:"refreshDate,omitempty"`
}
