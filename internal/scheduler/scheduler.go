// Package scheduler drives background maintenance jobs (component J):
// rate-limiter bucket pruning, idle-session reaping, template-cache
// eviction and periodic stats logging. Adapted from the teacher
// repository's internal/taskManager, which registers similar periodic
// jobs on a single gocron.Scheduler.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/opendmtp/dmtp-backend/pkg/log"
)

// Scheduler owns the gocron instance and the registered background jobs.
type Scheduler struct {
	s gocron.Scheduler
}

// New creates the underlying gocron scheduler without starting it.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{s: s}, nil
}

// RegisterEvery runs task every interval, the first run coming one
// interval after the scheduler starts. Each run goes through a wrapper
// that recovers and logs (and swallows) a panic, so one failing run never
// kills the scheduler.
func (sc *Scheduler) RegisterEvery(name string, interval time.Duration, task func()) error {
	_, err := sc.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("scheduler: job %q panicked: %v", name, r)
				}
			}()
			task()
		}),
	)
	if err != nil {
		return err
	}
	log.Infof("scheduler: registered %q every %s", name, interval)
	return nil
}

// Start begins running all registered jobs.
func (sc *Scheduler) Start() {
	sc.s.Start()
}

// Shutdown stops the scheduler and waits for in-flight jobs to finish.
func (sc *Scheduler) Shutdown() error {
	return sc.s.Shutdown()
}
