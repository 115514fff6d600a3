package middleware

import (
	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/events"
	"auxparty/internal/repositories"

	logger "auxparty/internal/logger"
)

type Middleware struct {
	DB        database.DB
	userRepo  repositories.UserRepository
	guestRepo repositories.GuestRepository
	Config    config.Config
	log       logger.Logger
	eventBus  *events.EventBus
}

func New(
	db database.DB,
	eventBus *events.EventBus,
	config config.Config,
	repos repositories.Repository,
) Middleware {
	log := logger.New("middleware")

	return Middleware{
		DB:        db,
		userRepo:  repos.User,
		guestRepo: repos.Guest,
		Config:    config,
		log:       log,
		eventBus:  eventBus,
	}
}
