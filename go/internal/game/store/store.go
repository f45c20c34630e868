package store

import (
	"context"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
)

// SessionState is the minimal durable record the engine needs to reload a
// live session mid-game: phase, round index, timing, and score blobs.
type SessionState struct {
	SessionID         string                               `json:"session_id"`
	Code              string                               `json:"code"`
	GameType          models.GameType                      `json:"game_type"`
	Phase             models.Phase                         `json:"phase"`
	StateVersion      uint64                               `json:"state_version"`
	CurrentRoundIndex int                                  `json:"current_round_index"`
	TotalRounds       int                                  `json:"total_rounds"`
	RoundOpensAt      *time.Time                           `json:"round_opens_at,omitempty"`
	RoundClosesAt     *time.Time                           `json:"round_closes_at,omitempty"`
	Rounds            []models.Round                       `json:"rounds"`
	Participants      []models.ParticipantScore            `json:"participants"`
	Answered          map[string][]models.AnswerSubmission `json:"answered"` // round ID -> accepted submissions
	SavedAt           time.Time                            `json:"saved_at"`
}

// Store persists session state keyed by join code. LoadState returns
// (nil, nil) for a fresh session. Save failures are retryable and non-fatal;
// the in-memory state stays authoritative for already-connected clients.
type Store interface {
	LoadState(ctx context.Context, code string) (*SessionState, error)
	SaveState(ctx context.Context, code string, state *SessionState) error
	DeleteState(ctx context.Context, code string) error
}
