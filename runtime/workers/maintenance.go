package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Maintenance runs a housekeeping task on a cron schedule (badger value-log GC, SQLite VACUUM).
type Maintenance struct {
	log  *slog.Logger
	name string
	cron string
	task func(ctx context.Context) error
}

func NewMaintenance(log *slog.Logger, name, cron string, task func(ctx context.Context) error) Maintenance {
	return Maintenance{log: log, name: name, cron: cron, task: task}
}

func (m Maintenance) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(m.log),
	)
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(m.cron, false),
		gocron.NewTask(func() {
			start := time.Now()
			if err := m.task(ctx); err != nil {
				m.log.Warn("Maintenance task failed", "name", m.name, "error", err)
				return
			}
			m.log.Debug("Maintenance task done", "name", m.name, "elapsed", time.Since(start))
		}),
		gocron.WithName(m.name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return err
	}

	scheduler.Start()
	m.log.Info("Maintenance scheduled", "name", m.name, "cron", m.cron)
	<-ctx.Done()
	if err := scheduler.Shutdown(); err != nil {
		m.log.Warn("Scheduler shutdown failed", "name", m.name, "error", err)
	}
	return nil
}
