package gateway

import (
	"context"
	"sync"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/broadcast"
	"github.com/rs/zerolog/log"
)

// EventForwarder bridges dispatcher subscriptions to WebSocket fan-out: one
// consumer goroutine per live session, started lazily with the first socket.
type EventForwarder struct {
	dispatcher *broadcast.Dispatcher
	cm         *ConnectionManager

	mu      sync.Mutex
	running map[string]bool
}

// NewEventForwarder creates a forwarder over the dispatcher.
func NewEventForwarder(dispatcher *broadcast.Dispatcher, cm *ConnectionManager) *EventForwarder {
	return &EventForwarder{
		dispatcher: dispatcher,
		cm:         cm,
		running:    make(map[string]bool),
	}
}

// EnsureSession starts forwarding for a session if not already running.
func (f *EventForwarder) EnsureSession(ctx context.Context, code string) error {
	f.mu.Lock()
	if f.running[code] {
		f.mu.Unlock()
		return nil
	}
	f.running[code] = true
	f.mu.Unlock()

	sub, err := f.dispatcher.Subscribe(code)
	if err != nil {
		f.mu.Lock()
		delete(f.running, code)
		f.mu.Unlock()
		return err
	}

	go f.forward(ctx, code, sub)
	return nil
}

func (f *EventForwarder) forward(ctx context.Context, code string, sub *broadcast.Subscriber) {
	defer func() {
		f.mu.Lock()
		delete(f.running, code)
		f.mu.Unlock()
	}()

	log.Info().Str("session_code", code).Msg("event forwarding started")

	for {
		select {
		case <-ctx.Done():
			f.dispatcher.Unsubscribe(sub)
			return
		case event, ok := <-sub.C:
			if !ok {
				// Session topic closed (host exited); drop the sockets too.
				log.Info().Str("session_code", code).Msg("session topic closed, disconnecting clients")
				f.cm.CloseSession(code)
				return
			}
			f.cm.BroadcastToSession(code, event)
		}
	}
}
