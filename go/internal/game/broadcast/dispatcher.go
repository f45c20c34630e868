package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/events"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DispatcherConfig holds fan-out and retry configuration.
type DispatcherConfig struct {
	SubjectPrefix  string // e.g. "minigame.events"
	MaxRetries     int
	RetryDelay     time.Duration
	SubscriberSize int // buffered queue depth per subscriber
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SubjectPrefix:  "minigame.events",
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		SubscriberSize: 64,
	}
}

// Subscriber consumes events for one session from a buffered queue.
// A subscriber that stops draining is disconnected rather than allowed
// to block emission to others.
type Subscriber struct {
	ID     string
	C      <-chan *events.GameEvent
	ch     chan *events.GameEvent
	code   string
	closed bool
}

// Dispatcher fans out phase-transition events to subscribed clients over the
// transport and to local subscriber queues. A publish failure is retried with
// backoff and never halts the phase machine.
type Dispatcher struct {
	transport Transport
	cfg       DispatcherConfig
	clock     clockwork.Clock

	pubCh chan *events.GameEvent

	mu            sync.Mutex
	subscribers   map[string]map[string]*Subscriber // session code -> subscriber ID -> subscriber
	subscriptions map[string]Subscription           // session code -> transport subscription
}

// NewDispatcher creates a dispatcher over the given transport.
func NewDispatcher(transport Transport, cfg DispatcherConfig, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		transport:     transport,
		cfg:           cfg,
		clock:         clock,
		pubCh:         make(chan *events.GameEvent, 256),
		subscribers:   make(map[string]map[string]*Subscriber),
		subscriptions: make(map[string]Subscription),
	}
}

// Run drains the async publish queue until ctx is cancelled. Events enqueued
// by the phase machine are published in order without blocking it.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher shutting down")
			return
		case event := <-d.pubCh:
			if err := d.Publish(ctx, event); err != nil {
				log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to publish event")
			}
		}
	}
}

// Enqueue hands an event to the publish queue without blocking the caller.
// On overflow the event is dropped; clients recover via snapshot resync.
func (d *Dispatcher) Enqueue(event *events.GameEvent) {
	select {
	case d.pubCh <- event:
	default:
		log.Warn().
			Str("session_code", event.SessionCode).
			Str("event_type", string(event.Type)).
			Msg("publish queue full, dropping event")
	}
}

func (d *Dispatcher) subject(code string) string {
	return fmt.Sprintf("%s.%s", d.cfg.SubjectPrefix, code)
}

// Publish emits an event on the session's topic. The envelope is marshalled
// once; transport errors are retried with linear backoff and finally logged,
// never propagated as fatal.
func (d *Dispatcher) Publish(ctx context.Context, event *events.GameEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := d.subject(event.SessionCode)

	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := d.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.clock.After(delay):
			}
		}

		if err := d.transport.Publish(subject, data); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("session_code", event.SessionCode).
				Str("event_type", string(event.Type)).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	// Degrade gracefully: clients missed an update and will resync from snapshot.
	log.Error().
		Err(lastErr).
		Str("session_code", event.SessionCode).
		Str("event_type", string(event.Type)).
		Msg("publish failed after retries; clients will recover via snapshot")
	return nil
}

// Subscribe attaches a local consumer to the session's topic. The first
// subscriber for a session establishes the transport subscription.
func (d *Dispatcher) Subscribe(code string) (*Subscriber, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subscriptions[code]; !ok {
		sub, err := d.transport.Subscribe(d.subject(code), func(data []byte) {
			d.deliver(code, data)
		})
		if err != nil {
			return nil, fmt.Errorf("subscribe session %s: %w", code, err)
		}
		d.subscriptions[code] = sub
	}

	ch := make(chan *events.GameEvent, d.cfg.SubscriberSize)
	s := &Subscriber{
		ID:   uuid.New().String(),
		C:    ch,
		ch:   ch,
		code: code,
	}
	if d.subscribers[code] == nil {
		d.subscribers[code] = make(map[string]*Subscriber)
	}
	d.subscribers[code][s.ID] = s

	log.Debug().
		Str("session_code", code).
		Str("subscriber_id", s.ID).
		Int("total_subscribers", len(d.subscribers[code])).
		Msg("subscriber registered")
	return s, nil
}

// Unsubscribe detaches one subscriber and closes its queue.
func (d *Dispatcher) Unsubscribe(s *Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeSubscriberLocked(s)
}

func (d *Dispatcher) removeSubscriberLocked(s *Subscriber) {
	subs, ok := d.subscribers[s.code]
	if !ok {
		return
	}
	if _, ok := subs[s.ID]; !ok {
		return
	}
	delete(subs, s.ID)
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	if len(subs) == 0 {
		delete(d.subscribers, s.code)
		if tsub, ok := d.subscriptions[s.code]; ok {
			if err := tsub.Unsubscribe(); err != nil {
				log.Error().Err(err).Str("session_code", s.code).Msg("failed to unsubscribe transport")
			}
			delete(d.subscriptions, s.code)
		}
	}
}

// deliver fans an incoming transport message out to the session's subscribers.
// A subscriber with a full queue is disconnected so it never blocks the rest.
func (d *Dispatcher) deliver(code string, data []byte) {
	var event events.GameEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to unmarshal event")
		return
	}

	d.mu.Lock()
	var stale []*Subscriber
	for _, s := range d.subscribers[code] {
		select {
		case s.ch <- &event:
		default:
			log.Warn().
				Str("session_code", code).
				Str("subscriber_id", s.ID).
				Msg("subscriber queue full, disconnecting")
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		d.removeSubscriberLocked(s)
	}
	d.mu.Unlock()
}

// CloseSession closes every subscriber queue for the session immediately so
// no client hangs waiting for events that will never come. Idempotent.
func (d *Dispatcher) CloseSession(code string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subscribers[code]
	for _, s := range subs {
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
	}
	delete(d.subscribers, code)
	if tsub, ok := d.subscriptions[code]; ok {
		if err := tsub.Unsubscribe(); err != nil {
			log.Error().Err(err).Str("session_code", code).Msg("failed to unsubscribe transport")
		}
		delete(d.subscriptions, code)
	}

	log.Info().Str("session_code", code).Int("subscribers_closed", len(subs)).Msg("session topic closed")
}

// Close shuts the dispatcher and the underlying transport down.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for code, subs := range d.subscribers {
		for _, s := range subs {
			if !s.closed {
				s.closed = true
				close(s.ch)
			}
		}
		delete(d.subscribers, code)
	}
	for code, tsub := range d.subscriptions {
		_ = tsub.Unsubscribe()
		delete(d.subscriptions, code)
	}
	d.mu.Unlock()

	d.transport.Close()
}
