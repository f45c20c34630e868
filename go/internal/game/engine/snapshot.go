package engine

import (
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/scoring"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/google/uuid"
)

// RoundView is the client-visible projection of the current round. The
// correct index appears only once the round is locked.
type RoundView struct {
	RoundID      uuid.UUID `json:"round_id"`
	RoundIndex   int       `json:"round_index"`
	Prompt       string    `json:"prompt"`
	ChoiceSet    []string  `json:"choice_set"`
	CorrectIndex *int      `json:"correct_index,omitempty"`
	BasePoints   int       `json:"base_points"`
	TimeLimitMs  int64     `json:"time_limit_ms"`
	OpensAt      time.Time `json:"opens_at"`
	ClosesAt     time.Time `json:"closes_at"`
}

// Snapshot is the full current state of a session. Clients pull it on
// (re)connect or after a missed-message timeout and replace their local
// state wholesale; there is no incremental patching.
type Snapshot struct {
	SessionID         string               `json:"session_id"`
	Code              string               `json:"code"`
	GameType          models.GameType      `json:"game_type"`
	Phase             models.Phase         `json:"phase"`
	StateVersion      uint64               `json:"state_version"`
	CurrentRoundIndex int                  `json:"current_round_index"`
	TotalRounds       int                  `json:"total_rounds"`
	Round             *RoundView           `json:"round,omitempty"`
	Tally             *models.AnswerTally  `json:"tally,omitempty"`
	Standings         []models.RankedEntry `json:"standings"`
	HostTime          time.Time            `json:"host_time"`
}

// Snapshot returns the canonical current state.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		SessionID:         s.id.String(),
		Code:              s.code,
		GameType:          s.gameType,
		Phase:             s.phase,
		StateVersion:      s.version,
		CurrentRoundIndex: s.currentRoundIndex,
		TotalRounds:       len(s.rounds),
		Standings:         scoring.Rank(s.participantsLocked()),
		HostTime:          s.clock.Now(),
	}

	switch s.phase {
	case models.PhaseRoundActive, models.PhaseRoundLocked, models.PhaseLeaderboard, models.PhaseFinished:
		if s.currentRoundIndex >= len(s.rounds) {
			break
		}
		round := s.rounds[s.currentRoundIndex]
		view := &RoundView{
			RoundID:     round.RoundID,
			RoundIndex:  s.currentRoundIndex,
			Prompt:      round.Prompt,
			ChoiceSet:   round.ChoiceSet,
			BasePoints:  round.BasePoints,
			TimeLimitMs: round.TimeLimitMs,
			OpensAt:     s.opensAt,
			ClosesAt:    s.closesAt,
		}
		// Reveal only after the window is locked.
		if s.phase != models.PhaseRoundActive {
			view.CorrectIndex = round.CorrectIndex
		}
		snap.Round = view

		tally := s.tallyLocked(round)
		snap.Tally = &tally
	}

	return snap
}
