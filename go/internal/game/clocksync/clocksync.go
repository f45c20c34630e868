package clocksync

import (
	"sync"
	"time"
)

// DefaultSyncInterval is how often a client re-runs the ping exchange.
// Offsets drift, and a single sample is never trusted outright.
const DefaultSyncInterval = 5 * time.Second

// Message types exchanged on the websocket for clock synchronization.
const (
	MsgTypeSyncPing = "sync_ping"
	MsgTypeSyncPong = "sync_pong"
)

// SyncPing is the client's half of the exchange.
type SyncPing struct {
	Type         string    `json:"type"`
	ClientSentAt time.Time `json:"client_sent_at"`
}

// SyncPong is the host's reply, echoing the client timestamp so the client
// can pair it with the originating ping.
type SyncPong struct {
	Type         string    `json:"type"`
	ClientSentAt time.Time `json:"client_sent_at"`
	HostSentAt   time.Time `json:"host_sent_at"`
}

// Estimator maintains a smoothed estimate of the host clock offset from a
// stream of ping/pong samples. One-way latency is approximated as half the
// round trip; the offset is folded in with an exponential moving average so
// a noisy sample cannot yank the estimate.
type Estimator struct {
	mu      sync.Mutex
	alpha   float64
	offset  time.Duration
	latency time.Duration
	samples int
}

// NewEstimator creates an estimator with the given smoothing factor in (0, 1].
// Higher alpha weighs new samples more heavily.
func NewEstimator(alpha float64) *Estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.25
	}
	return &Estimator{alpha: alpha}
}

// AddSample ingests one completed ping/pong exchange.
func (e *Estimator) AddSample(clientSentAt, hostSentAt, clientReceivedAt time.Time) {
	rtt := clientReceivedAt.Sub(clientSentAt)
	if rtt < 0 {
		return // clock jumped mid-exchange; discard
	}
	oneWay := rtt / 2
	offset := hostSentAt.Sub(clientSentAt.Add(oneWay))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.samples == 0 {
		e.offset = offset
		e.latency = oneWay
		e.samples = 1
		return
	}

	// Damp samples whose latency spikes well above the running estimate;
	// their one-way split is the least trustworthy.
	alpha := e.alpha
	if e.latency > 0 && oneWay > 3*e.latency {
		alpha = e.alpha / 4
	}

	e.offset += time.Duration(alpha * float64(offset-e.offset))
	e.latency += time.Duration(alpha * float64(oneWay-e.latency))
	e.samples++
}

// Offset returns the current smoothed host-minus-client offset.
func (e *Estimator) Offset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offset
}

// Latency returns the current smoothed one-way latency estimate.
func (e *Estimator) Latency() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latency
}

// Samples returns how many exchanges have been folded in.
func (e *Estimator) Samples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples
}

// EstimateHostTime translates a client-local instant into estimated host
// time. Used for answer-window gating on the client as a UX convenience;
// the host independently validates timing and is the final authority.
func (e *Estimator) EstimateHostTime(clientNow time.Time) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clientNow.Add(e.offset)
}

// Reset clears the estimate, typically after a reconnect to a new host.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offset = 0
	e.latency = 0
	e.samples = 0
}
