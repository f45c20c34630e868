package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/broadcast"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/store"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// codeAlphabet omits characters that read ambiguously on a projected screen.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// Manager owns all live sessions, keyed by join code.
type Manager struct {
	clock      clockwork.Clock
	dispatcher *broadcast.Dispatcher
	store      store.Store

	mu       sync.RWMutex
	sessions map[string]*Session

	wakeCh chan struct{}
}

// NewManager creates an empty session manager.
func NewManager(clock clockwork.Clock, dispatcher *broadcast.Dispatcher, st store.Store) *Manager {
	return &Manager{
		clock:      clock,
		dispatcher: dispatcher,
		store:      st,
		sessions:   make(map[string]*Session),
		wakeCh:     make(chan struct{}, 1),
	}
}

// StartSession creates a session under a fresh join code and starts it.
func (m *Manager) StartSession(ctx context.Context, gameType models.GameType, rounds []models.Round) (*Session, error) {
	m.mu.Lock()
	code := m.newCodeLocked()
	session := NewSession(code, m.clock, m.dispatcher, m.store, m.Wake)
	m.sessions[code] = session
	m.mu.Unlock()

	if err := session.Start(ctx, gameType, rounds); err != nil {
		m.mu.Lock()
		delete(m.sessions, code)
		m.mu.Unlock()
		return nil, err
	}
	return session, nil
}

// Get returns the live session for a join code.
func (m *Manager) Get(code string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ResumeSession reloads a session from its persisted recovery record,
// letting the host pick a game back up mid-round after a restart.
func (m *Manager) ResumeSession(ctx context.Context, code string) (*Session, error) {
	if m.store == nil {
		return nil, ErrSessionNotFound
	}

	state, err := m.store.LoadState(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}

	session := NewSession(code, m.clock, m.dispatcher, m.store, m.Wake)
	if err := session.restore(state); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", code, err)
	}

	m.mu.Lock()
	m.sessions[code] = session
	m.mu.Unlock()

	log.Info().
		Str("session_code", code).
		Str("phase", string(state.Phase)).
		Uint64("state_version", state.StateVersion).
		Msg("session resumed from persisted state")

	m.Wake()
	return session, nil
}

// Remove drops a session from the manager after closing its topic.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	_, ok := m.sessions[code]
	delete(m.sessions, code)
	m.mu.Unlock()

	if ok {
		m.dispatcher.CloseSession(code)
	}
}

// Wake nudges the deadline scheduler; safe to call from any goroutine.
func (m *Manager) Wake() {
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

// NextDeadline returns the soonest round-close deadline across all sessions.
func (m *Manager) NextDeadline() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var soonest time.Time
	found := false
	for _, session := range m.sessions {
		deadline, ok := session.NextDeadline()
		if !ok {
			continue
		}
		if !found || deadline.Before(soonest) {
			soonest = deadline
			found = true
		}
	}
	return soonest, found
}

// CloseDue closes every round whose deadline has passed and returns how many
// were closed.
func (m *Manager) CloseDue(ctx context.Context, now time.Time) int {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	closed := 0
	for _, session := range sessions {
		if session.CloseIfDue(ctx, now) {
			closed++
		}
	}
	return closed
}

func (m *Manager) newCodeLocked() string {
	for {
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := m.sessions[code]; !taken {
			return code
		}
	}
}
