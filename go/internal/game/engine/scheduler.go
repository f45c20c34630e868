package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const idlePollDuration = 5 * time.Second

// Scheduler sleeps until the soonest round-close deadline across all live
// sessions and fires automatic closes. A session opening a round wakes it
// early in case the new deadline is sooner.
type Scheduler struct {
	manager *Manager
	clock   clockwork.Clock
}

// NewScheduler creates a scheduler over the manager's sessions.
func NewScheduler(manager *Manager, clock clockwork.Clock) *Scheduler {
	return &Scheduler{manager: manager, clock: clock}
}

// Run loops until ctx is cancelled, closing rounds as their windows expire.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Msg("round scheduler started")

	timer := s.clock.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.manager.wakeCh:
			log.Debug().Msg("drained wake channel")
		default:
		}

		deadline, ok := s.manager.NextDeadline()
		if !ok {
			// No active rounds; idle with timer reuse.
			timer.Reset(idlePollDuration)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				log.Info().Msg("scheduler shutdown during idle")
				return nil
			case <-s.manager.wakeCh:
				log.Debug().Msg("woken up from idle")
				continue
			}
		}

		wait := deadline.Sub(s.clock.Now())
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				log.Info().Msg("scheduler shutdown during wait")
				return nil
			case <-s.manager.wakeCh:
				log.Debug().Msg("woken up early, new sooner deadline")
				continue
			}
		}

		if closed := s.manager.CloseDue(ctx, s.clock.Now()); closed > 0 {
			log.Info().Int("rounds_closed", closed).Msg("closed rounds past deadline")
		}
	}
}
