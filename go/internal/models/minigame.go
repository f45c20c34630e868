package models

import (
	"time"

	"github.com/google/uuid"
)

// GameType defines which mini-game a session runs.
type GameType string

const (
	GameTypeQuiz     GameType = "QUIZ"
	GameTypeBuzzer   GameType = "BUZZER"
	GameTypeOrdering GameType = "ORDERING"
	GameTypeVote     GameType = "VOTE"
)

// Scored reports whether the game type has a single correct answer.
// Vote games only log a choice; nobody earns points for them.
func (g GameType) Scored() bool {
	return g != GameTypeVote
}

// ChoiceBounds returns the minimum and maximum choice-set size for the game type.
func (g GameType) ChoiceBounds() (min, max int) {
	switch g {
	case GameTypeBuzzer:
		return 2, 4
	case GameTypeOrdering:
		return 3, 4
	default:
		return 2, 4
	}
}

// DefaultBasePoints returns the base points used when a round doesn't set its own.
func (g GameType) DefaultBasePoints() int {
	switch g {
	case GameTypeBuzzer:
		return 15
	case GameTypeVote:
		return 0
	default:
		return 10
	}
}

// Valid reports whether g is a known game type.
func (g GameType) Valid() bool {
	switch g {
	case GameTypeQuiz, GameTypeBuzzer, GameTypeOrdering, GameTypeVote:
		return true
	}
	return false
}

// Phase defines one state of the per-session state machine.
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseLobby       Phase = "LOBBY"
	PhaseRoundActive Phase = "ROUND_ACTIVE"
	PhaseRoundLocked Phase = "ROUND_LOCKED"
	PhaseLeaderboard Phase = "LEADERBOARD"
	PhaseFinished    Phase = "FINISHED"
)

// Round is one question/item within a game session. Immutable once the
// session starts consuming it. RoundID doubles as the anti-replay nonce.
type Round struct {
	RoundID      uuid.UUID `json:"round_id"`
	Prompt       string    `json:"prompt"`
	ChoiceSet    []string  `json:"choice_set"`
	CorrectIndex *int      `json:"correct_index,omitempty"` // nil for vote games
	BasePoints   int       `json:"base_points"`
	TimeLimitMs  int64     `json:"time_limit_ms"`
}

// GameSession is one live game instance, mutated only by the host process.
type GameSession struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	GameType          GameType   `json:"game_type"`
	Phase             Phase      `json:"phase"`
	CurrentRoundIndex int        `json:"current_round_index"`
	TotalRounds       int        `json:"total_rounds"`
	RoundOpensAt      *time.Time `json:"round_opens_at,omitempty"`
	RoundClosesAt     *time.Time `json:"round_closes_at,omitempty"`
}

// ParticipantScore accumulates one joined player's standing.
// TotalScore never decreases; at most one scored answer per
// (participant, round) pair ever contributes to it.
type ParticipantScore struct {
	ParticipantID    string     `json:"participant_id"`
	DisplayName      string     `json:"display_name"`
	TotalScore       int        `json:"total_score"`
	CorrectCount     int        `json:"correct_count"`
	LastAnswerRound  *uuid.UUID `json:"last_answer_round_id,omitempty"`
	LastScoredAt     *time.Time `json:"last_scored_at,omitempty"`
	JoinOrder        int        `json:"join_order"`
}

// AnswerSubmission is one ephemeral answer attempt. It is discarded once
// the round closes and never rewritten.
type AnswerSubmission struct {
	ParticipantID   string    `json:"participant_id"`
	RoundID         uuid.UUID `json:"round_id"`
	ChoiceIndex     int       `json:"choice_index"`
	ClientSentAt    time.Time `json:"client_sent_at"`
	EstimatedHostAt time.Time `json:"estimated_host_at"`
	ReceivedAt      time.Time `json:"received_at"`
	Correct         bool      `json:"correct"`
	Points          int       `json:"points"`
}

// AnswerTally counts accepted submissions per choice index for one round.
type AnswerTally struct {
	RoundID uuid.UUID `json:"round_id"`
	Counts  []int     `json:"counts"`
	Total   int       `json:"total"`
}

// RankedEntry is one row of a computed leaderboard.
type RankedEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	TotalScore    int    `json:"total_score"`
	CorrectCount  int    `json:"correct_count"`
}
