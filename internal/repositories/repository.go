package repositories

import (
	"auxparty/internal/database"
)

// Repository aggregates all repositories for dependency injection
type Repository struct {
	User     UserRepository
	Session  SessionRepository
	Guest    GuestRepository
	Queue    QueueItemRepository
	Schedule ScheduledPlaybackRepository
}

func New(db database.DB) Repository {
	return Repository{
		User:     NewUserRepository(db),
		Session:  NewSessionRepository(db),
		Guest:    NewGuestRepository(db),
		Queue:    NewQueueItemRepository(db),
		Schedule: NewScheduledPlaybackRepository(db),
	}
}
