package app

import (
	"context"
	"auxparty/config"
	"auxparty/internal/controllers"
	"auxparty/internal/database"
	"auxparty/internal/events"
	"auxparty/internal/handlers/middleware"
	"auxparty/internal/jobs"
	"auxparty/internal/logger"
	"auxparty/internal/repositories"
	"auxparty/internal/services"
	"auxparty/internal/websockets"
)

type App struct {
	Database   database.DB
	Middleware middleware.Middleware
	Websocket  *websockets.Manager
	EventBus   *events.EventBus
	Config     config.Config

	Services     services.Service
	Repositories repositories.Repository
	Controllers  controllers.Controllers
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.InitConfig()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	eventBus := events.New(db.Cache.Events, config)

	repos := repositories.New(db)

	appServices, err := services.New(db, config)
	if err != nil {
		return &App{}, log.Err("failed to create services", err)
	}

	websocket, err := websockets.New(db, eventBus, config)
	if err != nil {
		return &App{}, log.Err("failed to create websocket manager", err)
	}

	// Playback state changes fan out through the websocket layer. Wired here
	// rather than in services.New so the monitor never imports websockets.
	appServices.PlaybackMonitor.SetBroadcaster(websocket)

	middleware := middleware.New(db, eventBus, config, repos)
	appControllers := controllers.New(appServices, repos, config, db)

	if config.SchedulerEnabled {
		scheduledPlaybackJob := jobs.NewScheduledPlaybackJob(
			appServices.ScheduledPlayback,
			services.TickInterval,
		)
		if err := appServices.Scheduler.AddJob(scheduledPlaybackJob); err != nil {
			return &App{}, log.Err("failed to register scheduled playback job", err)
		}
		log.Info("Registered scheduled playback job with scheduler")
	}

	app := &App{
		Database:     db,
		Config:       config,
		Middleware:   middleware,
		Websocket:    websocket,
		EventBus:     eventBus,
		Services:     appServices,
		Repositories: repos,
		Controllers:  appControllers,
	}

	if err := app.validate(); err != nil {
		return &App{}, log.Err("failed to validate app", err)
	}

	return app, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")
	if a.Database.SQL == nil {
		return log.ErrMsg("database is nil")
	}

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	nilChecks := []any{
		a.Websocket,
		a.EventBus,
		a.Services.Transaction,
		a.Services.Scheduler,
		a.Services.Queue,
		a.Services.CreditLedger,
		a.Services.SkipVote,
		a.Services.DeviceReconciler,
		a.Services.PlaybackMonitor,
		a.Services.ScheduledPlayback,
		a.Controllers.Auth,
		a.Controllers.Session,
		a.Controllers.Queue,
		a.Controllers.Schedule,
		a.Repositories.User,
		a.Repositories.Session,
		a.Repositories.Guest,
		a.Repositories.Queue,
		a.Repositories.Schedule,
	}

	for _, check := range nilChecks {
		if check == nil {
			return log.ErrMsg("nil check failed")
		}
	}

	return nil
}

func (a *App) Close() (err error) {
	if a.Services.PlaybackMonitor != nil {
		a.Services.PlaybackMonitor.StopAll()
	}

	if a.Services.Scheduler != nil {
		if closeErr := a.Services.Scheduler.Stop(context.Background()); closeErr != nil {
			err = closeErr
		}
	}

	if a.EventBus != nil {
		if closeErr := a.EventBus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
