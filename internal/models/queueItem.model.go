package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	VoteTypeUp   = 1
	VoteTypeDown = -1
)

// Track is the denormalized provider metadata carried on queue items and
// scheduled tracks.
type Track struct {
	TrackID    string   `json:"trackId"`
	TrackURI   string   `json:"trackUri"`
	Name       string   `json:"name"`
	Artist     string   `json:"artist"`
	ArtistIDs  []string `json:"artistIds"`
	Album      string   `json:"album"`
	ImageURL   string   `json:"imageUrl"`
	DurationMS int      `json:"durationMs"`
	Explicit   bool     `json:"explicit"`
}

// QueueItem is one entry in a session's collaborative queue. Attribution is
// exactly one of AddedByUserID (host) or AddedByGuestID.
type QueueItem struct {
	BaseUUIDModel
	SessionID uuid.UUID `gorm:"type:uuid;index:idx_queue_session_track" json:"sessionId"`

	TrackID    string                      `gorm:"type:text;index:idx_queue_session_track" json:"trackId"`
	TrackURI   string                      `gorm:"type:text" json:"trackUri"`
	Name       string                      `gorm:"type:text" json:"name"`
	Artist     string                      `gorm:"type:text" json:"artist"`
	ArtistIDs  datatypes.JSONSlice[string] `json:"artistIds"`
	Album      string                      `gorm:"type:text" json:"album"`
	ImageURL   string                      `gorm:"type:text" json:"imageUrl"`
	DurationMS int                         `gorm:"type:int"  json:"durationMs"`
	Explicit   bool                        `gorm:"type:bool" json:"explicit"`

	AddedByUserID  *uuid.UUID `gorm:"type:uuid" json:"addedByUserId,omitempty"`
	AddedByGuestID *uuid.UUID `gorm:"type:uuid" json:"addedByGuestId,omitempty"`

	// Cached sum of vote types, recomputed on every vote mutation
	VoteScore int `gorm:"type:int;default:0" json:"voteScore"`

	Played   bool       `gorm:"type:bool;default:false" json:"played"`
	PlayedAt *time.Time `gorm:"type:timestamp"          json:"playedAt,omitempty"`

	Votes []Vote `gorm:"foreignKey:QueueItemID" json:"votes,omitempty"`
}

// AddedBy returns the actor that created this item.
func (q *QueueItem) AddedBy() Actor {
	if q.AddedByGuestID != nil {
		return GuestActor(*q.AddedByGuestID)
	}
	if q.AddedByUserID != nil {
		return HostActor(*q.AddedByUserID)
	}
	return Actor{}
}

// Vote is one actor's vote on a queue item, unique per (item, actor).
type Vote struct {
	BaseUUIDModel
	QueueItemID uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_vote_item_voter" json:"queueItemId"`
	VoterKey    string     `gorm:"type:text;uniqueIndex:idx_vote_item_voter" json:"voterKey"`
	UserID      *uuid.UUID `gorm:"type:uuid" json:"userId,omitempty"`
	GuestID     *uuid.UUID `gorm:"type:uuid" json:"guestId,omitempty"`
	VoteType    int        `gorm:"type:int"  json:"voteType"`
}

// QueueSnapshot is what gets broadcast to collaborators and returned from
// queue reads: the head of the queue plus the remainder in play order.
type QueueSnapshot struct {
	NextUp *QueueItem  `json:"nextUp"`
	Queue  []QueueItem `json:"queue"`
}
