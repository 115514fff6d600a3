package services

import (
	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/repositories"
)

type Service struct {
	SpotifyAuth       *SpotifyAuthService
	Spotify           *SpotifyService
	Transaction       *TransactionService
	Scheduler         *SchedulerService
	Queue             *QueueService
	CreditLedger      *CreditLedgerService
	SkipVote          *SkipVoteService
	DeviceReconciler  *DeviceReconcilerService
	PlaybackMonitor   *PlaybackMonitorService
	ScheduledPlayback *ScheduledPlaybackService
}

func New(db database.DB, config config.Config) (Service, error) {
	transactionService := NewTransactionService(db)
	repos := repositories.New(db)

	spotifyService := NewSpotifyService()
	spotifyAuthService := NewSpotifyAuthService(config, repos.User)
	schedulerService := NewSchedulerService(config.ScheduleTickSeconds)

	queueService := NewQueueService(repos.Queue)
	creditLedgerService := NewCreditLedgerService(
		repos.User,
		db.Cache.Identity,
		config.GuestDailyCredits,
	)
	skipVoteService := NewSkipVoteService(config.SkipVoteThreshold)
	deviceReconcilerService := NewDeviceReconcilerService(spotifyService, spotifyAuthService)

	playbackMonitorService := NewPlaybackMonitorService(
		repos.Session,
		queueService,
		deviceReconcilerService,
		skipVoteService,
		spotifyService,
		spotifyAuthService,
	)

	scheduledPlaybackService := NewScheduledPlaybackService(
		repos.Schedule,
		repos.Session,
		repos.Queue,
		queueService,
		deviceReconcilerService,
		spotifyService,
		spotifyAuthService,
		playbackMonitorService,
	)

	return Service{
		SpotifyAuth:       spotifyAuthService,
		Spotify:           spotifyService,
		Transaction:       transactionService,
		Scheduler:         schedulerService,
		Queue:             queueService,
		CreditLedger:      creditLedgerService,
		SkipVote:          skipVoteService,
		DeviceReconciler:  deviceReconcilerService,
		PlaybackMonitor:   playbackMonitorService,
		ScheduledPlayback: scheduledPlaybackService,
	}, nil
}
