package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Transport is the pub/sub collaborator the dispatcher publishes through.
// No ordering or delivery guarantee is assumed.
type Transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	Close()
}

// Subscription is a handle to an active transport subscription.
type Subscription interface {
	Unsubscribe() error
}

// NATSTransportConfig holds configuration for the NATS transport.
type NATSTransportConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSTransportConfig returns default NATS transport configuration.
func DefaultNATSTransportConfig() NATSTransportConfig {
	return NATSTransportConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSTransport publishes and subscribes over core NATS. Core NATS delivery
// is at-most-once and unordered across reconnects, which is exactly the
// contract the engine's resync path is built for.
type NATSTransport struct {
	nc *nats.Conn
}

// NewNATSTransport connects to NATS with reconnect handling.
func NewNATSTransport(config NATSTransportConfig) (*NATSTransport, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSTransport{nc: nc}, nil
}

func (t *NATSTransport) Publish(subject string, data []byte) error {
	return t.nc.Publish(subject, data)
}

func (t *NATSTransport) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	sub, err := t.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (t *NATSTransport) Close() {
	if t.nc != nil {
		t.nc.Close()
	}
}

// MemoryTransport is an in-process transport for tests and single-node runs.
type MemoryTransport struct {
	mu       sync.RWMutex
	handlers map[string]map[int]func(data []byte)
	nextID   int
	closed   bool
}

// NewMemoryTransport creates an in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		handlers: make(map[string]map[int]func(data []byte)),
	}
}

func (t *MemoryTransport) Publish(subject string, data []byte) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return fmt.Errorf("transport closed")
	}
	var targets []func(data []byte)
	for _, h := range t.handlers[subject] {
		targets = append(targets, h)
	}
	t.mu.RUnlock()

	for _, h := range targets {
		h(data)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}
	if t.handlers[subject] == nil {
		t.handlers[subject] = make(map[int]func(data []byte))
	}
	id := t.nextID
	t.nextID++
	t.handlers[subject][id] = handler
	return &memorySubscription{transport: t, subject: subject, id: id}, nil
}

func (t *MemoryTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handlers = make(map[string]map[int]func(data []byte))
}

type memorySubscription struct {
	transport *MemoryTransport
	subject   string
	id        int
}

func (s *memorySubscription) Unsubscribe() error {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	delete(s.transport.handlers[s.subject], s.id)
	return nil
}
