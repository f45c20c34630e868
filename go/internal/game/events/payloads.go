package events

import (
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/google/uuid"
)

// Event payload types shared between the engine, broadcast and gateway packages.

// SessionStartedPayload is the payload for a SessionStarted event.
type SessionStartedPayload struct {
	SessionID   string          `json:"session_id"`
	Code        string          `json:"code"`
	GameType    models.GameType `json:"game_type"`
	TotalRounds int             `json:"total_rounds"`
	StartedAt   time.Time       `json:"started_at"`
}

// RoundOpenedPayload is the payload for a RoundOpened event.
// It never carries the correct index; the reveal happens on RoundClosed.
type RoundOpenedPayload struct {
	RoundID     uuid.UUID `json:"round_id"`
	RoundIndex  int       `json:"round_index"`
	Prompt      string    `json:"prompt"`
	ChoiceSet   []string  `json:"choice_set"`
	BasePoints  int       `json:"base_points"`
	TimeLimitMs int64     `json:"time_limit_ms"`
	OpensAt     time.Time `json:"opens_at"`
	ClosesAt    time.Time `json:"closes_at"`
}

// RoundClosedPayload is the payload for a RoundClosed event.
type RoundClosedPayload struct {
	RoundID      uuid.UUID          `json:"round_id"`
	RoundIndex   int                `json:"round_index"`
	CorrectIndex *int               `json:"correct_index,omitempty"`
	Tally        models.AnswerTally `json:"tally"`
	ClosedAt     time.Time          `json:"closed_at"`
}

// LeaderboardPayload is the payload for a Leaderboard event.
type LeaderboardPayload struct {
	RoundIndex int                  `json:"round_index"`
	Standings  []models.RankedEntry `json:"standings"`
}

// SessionFinishedPayload is the payload for a SessionFinished event.
type SessionFinishedPayload struct {
	SessionID  string               `json:"session_id"`
	Standings  []models.RankedEntry `json:"standings"`
	FinishedAt time.Time            `json:"finished_at"`
}

// SessionResetPayload is the payload for a SessionReset event.
type SessionResetPayload struct {
	SessionID string    `json:"session_id"`
	ResetAt   time.Time `json:"reset_at"`
}
