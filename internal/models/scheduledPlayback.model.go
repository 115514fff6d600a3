package models

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "PENDING"
	ScheduleProcessing ScheduleStatus = "PROCESSING"
	ScheduleCompleted  ScheduleStatus = "COMPLETED"
	ScheduleFailed     ScheduleStatus = "FAILED"
	ScheduleCancelled  ScheduleStatus = "CANCELLED"
)

// ScheduledPlayback is a time-based playback override: at ScheduledFor its
// tracks take over the session's provider queue, then the collaborative queue
// is restored. Recurring schedules never reach a terminal status; they cycle
// PENDING -> PROCESSING -> PENDING with the next day's fire time.
type ScheduledPlayback struct {
	BaseUUIDModel
	SessionID   uuid.UUID `gorm:"type:uuid;index"    json:"sessionId"`
	CreatedByID uuid.UUID `gorm:"type:uuid"          json:"createdById"`
	Name        string    `gorm:"type:text"          json:"name"`

	ScheduledFor     time.Time `gorm:"type:timestamp;index" json:"scheduledFor"`
	IsRecurringDaily bool      `gorm:"type:bool;default:false" json:"isRecurringDaily"`

	// Source of truth for recurrence. The offset is captured at creation and
	// reused; schedules do not follow DST changes.
	TimeOfDayMinutes      int `gorm:"type:int" json:"timeOfDayMinutes"`
	TimezoneOffsetMinutes int `gorm:"type:int" json:"timezoneOffsetMinutes"`

	Status        ScheduleStatus `gorm:"type:text;default:'PENDING';index" json:"status"`
	FailureReason *string        `gorm:"type:text" json:"failureReason,omitempty"`

	LastRunAt     *time.Time `gorm:"type:timestamp" json:"lastRunAt,omitempty"`
	LastRunStatus *string    `gorm:"type:text"      json:"lastRunStatus,omitempty"`

	Tracks []ScheduledTrack `gorm:"foreignKey:ScheduledPlaybackID" json:"tracks,omitempty"`
}

// ScheduledTrack is one track of a scheduled playback, played in Position order.
type ScheduledTrack struct {
	BaseModel
	ScheduledPlaybackID uuid.UUID `gorm:"type:uuid;index" json:"scheduledPlaybackId"`
	Position            int       `gorm:"type:int"        json:"position"`
	TrackID             string    `gorm:"type:text"       json:"trackId"`
	TrackURI            string    `gorm:"type:text"       json:"trackUri"`
	Name                string    `gorm:"type:text"       json:"name"`
	Artist              string    `gorm:"type:text"       json:"artist"`
	DurationMS          int       `gorm:"type:int"        json:"durationMs"`
}
