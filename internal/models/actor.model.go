package models

import (
	"github.com/google/uuid"
)

type ActorKind int

const (
	ActorUnknown ActorKind = iota
	ActorHost
	ActorGuest
)

// Actor identifies who performed a queue action: the host identity or a
// session guest, never both.
type Actor struct {
	Kind    ActorKind `json:"kind"`
	UserID  uuid.UUID `json:"userId,omitempty"`
	GuestID uuid.UUID `json:"guestId,omitempty"`
}

func HostActor(userID uuid.UUID) Actor {
	return Actor{Kind: ActorHost, UserID: userID}
}

func GuestActor(guestID uuid.UUID) Actor {
	return Actor{Kind: ActorGuest, GuestID: guestID}
}

func (a Actor) IsHost() bool {
	return a.Kind == ActorHost
}

func (a Actor) IsGuest() bool {
	return a.Kind == ActorGuest
}

func (a Actor) Valid() bool {
	switch a.Kind {
	case ActorHost:
		return a.UserID != uuid.Nil
	case ActorGuest:
		return a.GuestID != uuid.Nil
	default:
		return false
	}
}

// VoterKey is the stable string used for vote uniqueness per (item, actor).
func (a Actor) VoterKey() string {
	switch a.Kind {
	case ActorHost:
		return "user:" + a.UserID.String()
	case ActorGuest:
		return "guest:" + a.GuestID.String()
	default:
		return ""
	}
}

// Matches reports whether this actor created the given queue item.
func (a Actor) Matches(item *QueueItem) bool {
	switch a.Kind {
	case ActorHost:
		return item.AddedByUserID != nil && *item.AddedByUserID == a.UserID
	case ActorGuest:
		return item.AddedByGuestID != nil && *item.AddedByGuestID == a.GuestID
	default:
		return false
	}
}
