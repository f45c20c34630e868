package client

import (
	"context"
	"sync"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/engine"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is the low-frequency fallback poll, defensive against
// the transport silently dropping pushed events.
const DefaultPollInterval = 10 * time.Second

// SnapshotFunc pulls the current full-state snapshot from the host.
type SnapshotFunc func(ctx context.Context) (*engine.Snapshot, error)

// Poller keeps a ViewState fresh from two inputs: push notifications (via
// Nudge) and a periodic fallback poll. Both paths fetch a snapshot and run
// it through Reconcile.
type Poller struct {
	fetch    SnapshotFunc
	clock    clockwork.Clock
	interval time.Duration
	onChange func(ViewState)

	mu    sync.Mutex
	state ViewState

	nudgeCh chan struct{}
}

// NewPoller creates a poller. onChange may be nil.
func NewPoller(fetch SnapshotFunc, clock clockwork.Clock, interval time.Duration, onChange func(ViewState)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		fetch:    fetch,
		clock:    clock,
		interval: interval,
		onChange: onChange,
		nudgeCh:  make(chan struct{}, 1),
	}
}

// State returns the current local view.
func (p *Poller) State() ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Nudge requests an immediate refresh, typically from the push handler when
// an event arrives carrying a newer state version.
func (p *Poller) Nudge() {
	select {
	case p.nudgeCh <- struct{}{}:
	default:
	}
}

// Run refreshes until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.refresh(ctx)
		case <-p.nudgeCh:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	snapshot, err := p.fetch(ctx)
	if err != nil {
		// Missed refreshes are fine; the next tick retries.
		log.Debug().Err(err).Msg("snapshot fetch failed")
		return
	}

	p.mu.Lock()
	next, changed := Reconcile(p.state, snapshot)
	p.state = next
	p.mu.Unlock()

	if changed && p.onChange != nil {
		p.onChange(next)
	}
}
