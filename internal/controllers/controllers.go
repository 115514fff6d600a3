package controllers

import (
	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/repositories"
	"auxparty/internal/services"

	authController "auxparty/internal/controllers/auth"
	queueController "auxparty/internal/controllers/queues"
	scheduleController "auxparty/internal/controllers/schedules"
	sessionController "auxparty/internal/controllers/sessions"
)

type Controllers struct {
	Auth     authController.AuthControllerInterface
	Session  sessionController.SessionControllerInterface
	Queue    queueController.QueueControllerInterface
	Schedule scheduleController.ScheduleControllerInterface
}

func New(
	services services.Service,
	repos repositories.Repository,
	config config.Config,
	db database.DB,
) Controllers {
	return Controllers{
		Auth:     authController.New(services, repos, config, db),
		Session:  sessionController.New(repos, services, config, db),
		Queue:    queueController.New(repos, services, config, db),
		Schedule: scheduleController.New(repos, services, config, db),
	}
}
