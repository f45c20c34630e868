package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/broadcast"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/events"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/scoring"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/store"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Session is the authoritative per-game state machine. The host process is
// the single writer; concurrent answer submissions are serialized behind the
// session mutex. All timing decisions use the injected clock, never client
// payloads.
type Session struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	dispatcher *broadcast.Dispatcher
	store      store.Store // optional; nil disables recovery persistence
	onDeadline func()      // wakes the scheduler when roundClosesAt changes

	id                uuid.UUID
	code              string
	gameType          models.GameType
	phase             models.Phase
	rounds            []models.Round
	currentRoundIndex int
	opensAt           time.Time
	closesAt          time.Time
	version           uint64

	participants map[string]*models.ParticipantScore
	joinSeq      int

	// answered survives round re-opens so a nonce can never score twice.
	answered map[uuid.UUID]map[string]models.AnswerSubmission
	tally    []int
}

// NewSession creates an idle session bound to a join code.
func NewSession(code string, clock clockwork.Clock, dispatcher *broadcast.Dispatcher, st store.Store, onDeadline func()) *Session {
	return &Session{
		clock:        clock,
		dispatcher:   dispatcher,
		store:        st,
		onDeadline:   onDeadline,
		code:         code,
		phase:        models.PhaseIdle,
		participants: make(map[string]*models.ParticipantScore),
		answered:     make(map[uuid.UUID]map[string]models.AnswerSubmission),
	}
}

// Code returns the session's join code.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Phase returns the current phase.
func (s *Session) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start arms the session with its game type and round list and moves it to
// the lobby. Requires at least one round.
func (s *Session) Start(ctx context.Context, gameType models.GameType, rounds []models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseIdle {
		return &PhaseViolationError{Op: "startSession", From: s.phase}
	}
	if !gameType.Valid() {
		return fmt.Errorf("invalid game type %q", gameType)
	}
	if len(rounds) == 0 {
		return fmt.Errorf("session requires at least one round")
	}

	prepared := make([]models.Round, len(rounds))
	for i, r := range rounds {
		if err := validateRound(gameType, r); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
		if r.RoundID == uuid.Nil {
			r.RoundID = uuid.New()
		}
		if r.BasePoints == 0 {
			r.BasePoints = gameType.DefaultBasePoints()
		}
		prepared[i] = r
	}

	s.id = uuid.New()
	s.gameType = gameType
	s.rounds = prepared
	s.currentRoundIndex = 0
	s.phase = models.PhaseLobby
	s.version++

	log.Info().
		Str("session_code", s.code).
		Str("game_type", string(gameType)).
		Int("total_rounds", len(prepared)).
		Msg("session started")

	s.emitLocked(events.EventTypeSessionStarted, events.SessionStartedPayload{
		SessionID:   s.id.String(),
		Code:        s.code,
		GameType:    s.gameType,
		TotalRounds: len(s.rounds),
		StartedAt:   s.clock.Now(),
	})
	s.persistLocked(ctx)
	return nil
}

func validateRound(gameType models.GameType, r models.Round) error {
	min, max := gameType.ChoiceBounds()
	if len(r.ChoiceSet) < min || len(r.ChoiceSet) > max {
		return fmt.Errorf("choice set size %d outside [%d, %d]", len(r.ChoiceSet), min, max)
	}
	if gameType.Scored() {
		if r.CorrectIndex == nil {
			return fmt.Errorf("scored game type requires a correct index")
		}
		if *r.CorrectIndex < 0 || *r.CorrectIndex >= len(r.ChoiceSet) {
			return fmt.Errorf("correct index %d out of range", *r.CorrectIndex)
		}
	} else if r.CorrectIndex != nil {
		return fmt.Errorf("vote rounds have no correct index")
	}
	if r.TimeLimitMs <= 0 {
		return fmt.Errorf("time limit must be positive")
	}
	return nil
}

// OpenRound opens the answer window for the current round. Legal from LOBBY
// or LEADERBOARD. The emitted event never contains the correct index.
func (s *Session) OpenRound(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseLobby && s.phase != models.PhaseLeaderboard {
		return &PhaseViolationError{Op: "openRound", From: s.phase}
	}

	round := s.rounds[s.currentRoundIndex]
	now := s.clock.Now()
	s.opensAt = now
	s.closesAt = now.Add(time.Duration(round.TimeLimitMs) * time.Millisecond)
	s.phase = models.PhaseRoundActive
	s.tally = make([]int, len(round.ChoiceSet))
	if s.answered[round.RoundID] == nil {
		s.answered[round.RoundID] = make(map[string]models.AnswerSubmission)
	}
	s.version++

	log.Info().
		Str("session_code", s.code).
		Str("round_id", round.RoundID.String()).
		Int("round_index", s.currentRoundIndex).
		Time("closes_at", s.closesAt).
		Msg("round opened")

	s.emitLocked(events.EventTypeRoundOpened, events.RoundOpenedPayload{
		RoundID:     round.RoundID,
		RoundIndex:  s.currentRoundIndex,
		Prompt:      round.Prompt,
		ChoiceSet:   round.ChoiceSet,
		BasePoints:  round.BasePoints,
		TimeLimitMs: round.TimeLimitMs,
		OpensAt:     s.opensAt,
		ClosesAt:    s.closesAt,
	})
	s.persistLocked(ctx)

	if s.onDeadline != nil {
		s.onDeadline()
	}
	return nil
}

// CloseRound locks the current round and reveals the correct answer along
// with the final tally. Legal only from ROUND_ACTIVE.
func (s *Session) CloseRound(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseRoundActive {
		return &PhaseViolationError{Op: "closeRound", From: s.phase}
	}
	s.closeRoundLocked(ctx)
	return nil
}

func (s *Session) closeRoundLocked(ctx context.Context) {
	round := s.rounds[s.currentRoundIndex]
	s.phase = models.PhaseRoundLocked
	s.version++

	log.Info().
		Str("session_code", s.code).
		Str("round_id", round.RoundID.String()).
		Int("answers", len(s.answered[round.RoundID])).
		Msg("round closed")

	s.emitLocked(events.EventTypeRoundClosed, events.RoundClosedPayload{
		RoundID:      round.RoundID,
		RoundIndex:   s.currentRoundIndex,
		CorrectIndex: round.CorrectIndex,
		Tally:        s.tallyLocked(round),
		ClosedAt:     s.clock.Now(),
	})
	s.persistLocked(ctx)
}

// CloseIfDue closes the round when the deadline has passed. Called by the
// scheduler; a no-op outside ROUND_ACTIVE or before the deadline.
func (s *Session) CloseIfDue(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseRoundActive || now.Before(s.closesAt) {
		return false
	}
	s.closeRoundLocked(ctx)
	return true
}

// ShowLeaderboard publishes ranked standings. Legal from ROUND_LOCKED.
func (s *Session) ShowLeaderboard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseRoundLocked {
		return &PhaseViolationError{Op: "showLeaderboard", From: s.phase}
	}
	s.phase = models.PhaseLeaderboard
	s.version++

	s.emitLocked(events.EventTypeLeaderboard, events.LeaderboardPayload{
		RoundIndex: s.currentRoundIndex,
		Standings:  scoring.Rank(s.participantsLocked()),
	})
	s.persistLocked(ctx)
	return nil
}

// AdvanceOrFinish moves to the next round's lobby, or finishes the session
// when the last round has been played. Legal from LEADERBOARD.
func (s *Session) AdvanceOrFinish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseLeaderboard {
		return &PhaseViolationError{Op: "advanceOrFinish", From: s.phase}
	}

	if s.currentRoundIndex+1 < len(s.rounds) {
		s.currentRoundIndex++
		s.phase = models.PhaseLobby
		s.version++
		log.Info().
			Str("session_code", s.code).
			Int("round_index", s.currentRoundIndex).
			Msg("advanced to next round")
		s.persistLocked(ctx)
		return nil
	}

	s.phase = models.PhaseFinished
	s.version++
	log.Info().Str("session_code", s.code).Msg("session finished")

	s.emitLocked(events.EventTypeSessionFinished, events.SessionFinishedPayload{
		SessionID:  s.id.String(),
		Standings:  scoring.Rank(s.participantsLocked()),
		FinishedAt: s.clock.Now(),
	})
	s.persistLocked(ctx)
	return nil
}

// Exit forces the session back to IDLE from any phase, clearing all round and
// score state and invalidating nonces. Idempotent; closes all subscriber
// queues so no client hangs waiting for events that will never come.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == models.PhaseIdle {
		s.mu.Unlock()
		return nil
	}

	sessionID := s.id.String()
	s.phase = models.PhaseIdle
	s.rounds = nil
	s.currentRoundIndex = 0
	s.opensAt = time.Time{}
	s.closesAt = time.Time{}
	s.answered = make(map[uuid.UUID]map[string]models.AnswerSubmission)
	s.tally = nil
	for _, p := range s.participants {
		p.TotalScore = 0
		p.CorrectCount = 0
		p.LastAnswerRound = nil
		p.LastScoredAt = nil
	}
	s.version++

	s.emitLocked(events.EventTypeSessionReset, events.SessionResetPayload{
		SessionID: sessionID,
		ResetAt:   s.clock.Now(),
	})
	code := s.code
	s.mu.Unlock()

	log.Info().Str("session_code", code).Msg("session reset")

	s.dispatcher.CloseSession(code)
	if s.store != nil {
		if err := s.store.DeleteState(ctx, code); err != nil {
			log.Warn().Err(err).Str("session_code", code).Msg("failed to delete persisted state")
		}
	}
	return nil
}

// NextDeadline reports the round close deadline, if one is armed.
func (s *Session) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseRoundActive {
		return time.Time{}, false
	}
	return s.closesAt, true
}

// Join registers a participant, assigning a stable join order used as the
// final leaderboard tie-break. Rejoining with the same ID is a no-op.
func (s *Session) Join(participantID, displayName string) *models.ParticipantScore {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.participants[participantID]; ok {
		if displayName != "" {
			p.DisplayName = displayName
		}
		return p
	}

	p := &models.ParticipantScore{
		ParticipantID: participantID,
		DisplayName:   displayName,
		JoinOrder:     s.joinSeq,
	}
	s.joinSeq++
	s.participants[participantID] = p

	log.Info().
		Str("session_code", s.code).
		Str("participant_id", participantID).
		Int("join_order", p.JoinOrder).
		Msg("participant joined")
	return p
}

func (s *Session) participantsLocked() []models.ParticipantScore {
	out := make([]models.ParticipantScore, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

// Rank returns the current ranked standings.
func (s *Session) Rank() []models.RankedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scoring.Rank(s.participantsLocked())
}

func (s *Session) tallyLocked(round models.Round) models.AnswerTally {
	counts := make([]int, len(round.ChoiceSet))
	copy(counts, s.tally)
	total := 0
	for _, c := range counts {
		total += c
	}
	return models.AnswerTally{RoundID: round.RoundID, Counts: counts, Total: total}
}

// emitLocked builds the envelope and hands it to the dispatcher's async
// queue. Must be called with s.mu held.
func (s *Session) emitLocked(eventType events.EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
		return
	}
	s.dispatcher.Enqueue(&events.GameEvent{
		ID:          uuid.New().String(),
		SessionCode: s.code,
		Type:        eventType,
		Version:     s.version,
		Timestamp:   s.clock.Now(),
		Data:        data,
	})
}

// persistLocked saves a recovery record. Failures are logged, never fatal:
// the in-memory state stays authoritative for connected clients.
func (s *Session) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveState(ctx, s.code, s.stateLocked()); err != nil {
		log.Warn().
			Err(err).
			Str("session_code", s.code).
			Msg("failed to persist session state; recovery on reload may be degraded")
	}
}

func (s *Session) stateLocked() *store.SessionState {
	state := &store.SessionState{
		SessionID:         s.id.String(),
		Code:              s.code,
		GameType:          s.gameType,
		Phase:             s.phase,
		StateVersion:      s.version,
		CurrentRoundIndex: s.currentRoundIndex,
		TotalRounds:       len(s.rounds),
		Rounds:            s.rounds,
		Participants:      s.participantsLocked(),
		Answered:          make(map[string][]models.AnswerSubmission),
	}
	if !s.opensAt.IsZero() {
		t := s.opensAt
		state.RoundOpensAt = &t
	}
	if !s.closesAt.IsZero() {
		t := s.closesAt
		state.RoundClosesAt = &t
	}
	for roundID, subs := range s.answered {
		list := make([]models.AnswerSubmission, 0, len(subs))
		for _, sub := range subs {
			list = append(list, sub)
		}
		state.Answered[roundID.String()] = list
	}
	return state
}

// restore rebuilds session state from a persisted record.
func (s *Session) restore(state *store.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.Parse(state.SessionID)
	if err != nil {
		return fmt.Errorf("invalid session ID in state: %w", err)
	}

	s.id = id
	s.gameType = state.GameType
	s.phase = state.Phase
	s.rounds = state.Rounds
	s.currentRoundIndex = state.CurrentRoundIndex
	s.version = state.StateVersion
	if state.RoundOpensAt != nil {
		s.opensAt = *state.RoundOpensAt
	}
	if state.RoundClosesAt != nil {
		s.closesAt = *state.RoundClosesAt
	}

	s.participants = make(map[string]*models.ParticipantScore, len(state.Participants))
	s.joinSeq = 0
	for i := range state.Participants {
		p := state.Participants[i]
		s.participants[p.ParticipantID] = &p
		if p.JoinOrder >= s.joinSeq {
			s.joinSeq = p.JoinOrder + 1
		}
	}

	s.answered = make(map[uuid.UUID]map[string]models.AnswerSubmission, len(state.Answered))
	for roundKey, subs := range state.Answered {
		roundID, err := uuid.Parse(roundKey)
		if err != nil {
			return fmt.Errorf("invalid round ID in state: %w", err)
		}
		byParticipant := make(map[string]models.AnswerSubmission, len(subs))
		for _, sub := range subs {
			byParticipant[sub.ParticipantID] = sub
		}
		s.answered[roundID] = byParticipant
	}

	// Rebuild the current round tally from recorded submissions.
	if s.currentRoundIndex < len(s.rounds) {
		round := s.rounds[s.currentRoundIndex]
		s.tally = make([]int, len(round.ChoiceSet))
		for _, sub := range s.answered[round.RoundID] {
			if sub.ChoiceIndex >= 0 && sub.ChoiceIndex < len(s.tally) {
				s.tally[sub.ChoiceIndex]++
			}
		}
	}
	return nil
}
