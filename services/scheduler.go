// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// TickInterval drives the round timer; it is independent of the event rate.
const TickInterval = time.Second

// StartScheduler registers the session's periodic jobs and starts them. The returned
// scheduler is shut down by the caller.
func (s *Session) StartScheduler(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.Clock))
	if err != nil {
		return nil, err
	}

	// Every second: advance the round timer
	if _, err := sched.NewJob(
		gocron.DurationJob(TickInterval),
		gocron.NewTask(func() { s.Tick(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("round-tick"),
	); err != nil {
		return nil, err
	}

	// Every dedup window: forget old message ids
	if _, err := sched.NewJob(
		gocron.DurationJob(s.Settings().DedupWindow),
		gocron.NewTask(func() {
			if n := s.Dedup.Sweep(); n > 0 {
				log.Printf("[Scheduler] Forgot %d message ids", n)
			}
		}),
		gocron.WithName("dedup-sweep"),
	); err != nil {
		return nil, err
	}

	// Every minute: expire fan and VIP flags
	if _, err := sched.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			n, err := s.SweepExpiredMemberships(ctx)
			if err != nil {
				log.Printf("[Scheduler] Membership sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("✅ Expired %d fan/VIP flags", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("membership-expiry"),
	); err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
