package worker

import (
	"fmt"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/hibiken/asynq"
)

// StartScheduler creates and starts an Asynq Scheduler that fires the
// scheduled-email delivery tick once per minute. The tick task is Unique
// so a slow pass is never overlapped by the next one.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	task := asynq.NewTask(
		TaskScheduledEmailTick,
		nil, // empty payload, the handler scans for due rows itself
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(time.Minute),
	)

	entryID, err := scheduler.Register("* * * * *", task)
	if err != nil {
		return nil, fmt.Errorf("failed to register delivery schedule: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Scheduler started", "schedule", "* * * * *", "entry_id", entryID)

	return func() { scheduler.Shutdown() }, nil
}
