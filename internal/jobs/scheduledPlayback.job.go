package jobs

import (
	"context"
	"auxparty/internal/logger"
	"auxparty/internal/services"
)

type ScheduledPlaybackJob struct {
	scheduledService *services.ScheduledPlaybackService
	log              logger.Logger
	schedule         services.Schedule
}

func NewScheduledPlaybackJob(
	scheduledService *services.ScheduledPlaybackService,
	schedule services.Schedule,
) *ScheduledPlaybackJob {
	log := logger.New("scheduledPlaybackJob")
	log.Info("Creating new scheduled playback job", "schedule", schedule)

	return &ScheduledPlaybackJob{
		scheduledService: scheduledService,
		log:              log,
		schedule:         schedule,
	}
}

func (j *ScheduledPlaybackJob) Name() string {
	return "ScheduledPlaybackProcessor"
}

func (j *ScheduledPlaybackJob) Execute(ctx context.Context) error {
	// Per-schedule failures are recorded on the schedule rows themselves.
	j.scheduledService.ProcessDueSchedules(ctx)
	return nil
}

func (j *ScheduledPlaybackJob) Schedule() services.Schedule {
	return j.schedule
}
