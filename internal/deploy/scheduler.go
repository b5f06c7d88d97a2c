package deploy

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/haukkala/procpilot/internal/locker"
)

func NewScheduler() gocron.Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	return scheduler
}

// RegisterJobs installs the background maintenance jobs: persisting the
// supervisor process table, sweeping stale locks and pruning old
// deployment history.
func RegisterJobs(
	scheduler gocron.Scheduler,
	supervisor Supervisor,
	locks *locker.Registry,
	history interface {
		DeleteDeploymentsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	},
	retention time.Duration,
) error {
	if _, err := scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := supervisor.Save(ctx); err != nil {
				log.Printf("err saving supervisor process table: %v", err)
			}
		}),
	); err != nil {
		return err
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			if reclaimed := locks.ReclaimStale(); len(reclaimed) > 0 {
				log.Printf("reclaimed stale locks: %v", reclaimed)
			}
		}),
	); err != nil {
		return err
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			cutoff := time.Now().UTC().Add(-retention)
			n, err := history.DeleteDeploymentsBefore(ctx, cutoff)
			if err != nil {
				log.Printf("err pruning deployment history: %v", err)
				return
			}
			if n > 0 {
				log.Printf("pruned %d deployment history rows", n)
			}
		}),
	); err != nil {
		return err
	}

	return nil
}
