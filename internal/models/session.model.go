package models

import (
	"slices"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session is one collaborative listening session. Deactivated (never deleted)
// when the host starts a new one.
type Session struct {
	BaseUUIDModel
	JoinCode string    `gorm:"type:text;uniqueIndex"  json:"joinCode"`
	HostID   uuid.UUID `gorm:"type:uuid;index"        json:"hostId"`
	Host     *User     `gorm:"foreignKey:HostID"      json:"host,omitempty"`
	IsActive bool      `gorm:"type:bool;default:true" json:"isActive"`

	// Content policy
	AllowExplicit      bool `gorm:"type:bool;default:true" json:"allowExplicit"`
	MaxTrackDurationMS *int `gorm:"type:int"               json:"maxTrackDurationMs,omitempty"`

	// Host ban lists, checked on every queue add
	BannedTrackIDs  datatypes.JSONSlice[string] `json:"bannedTrackIds"`
	BannedArtistIDs datatypes.JSONSlice[string] `json:"bannedArtistIds"`

	// Preferred playback output. Empty means "whatever device Spotify reports".
	PreferredDeviceID string `gorm:"type:text" json:"preferredDeviceId,omitempty"`
}

func (s *Session) IsTrackBanned(trackID string) bool {
	return slices.Contains(s.BannedTrackIDs, trackID)
}

func (s *Session) BannedArtist(artistIDs []string) (string, bool) {
	for _, id := range artistIDs {
		if slices.Contains(s.BannedArtistIDs, id) {
			return id, true
		}
	}
	return "", false
}

// Guest is an ephemeral per-session participant. LinkedUserID ties the guest
// to a durable identity for credit accounting and rejoin de-duplication.
type Guest struct {
	BaseUUIDModel
	SessionID    uuid.UUID  `gorm:"type:uuid;index" json:"sessionId"`
	Name         string     `gorm:"type:text"       json:"name"`
	LinkedUserID *uuid.UUID `gorm:"type:uuid;index" json:"linkedUserId,omitempty"`
}
