package engine

import (
	"context"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/scoring"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SubmitRequest is one answer attempt from a participant. ClientSentAt and
// EstimatedHostAt come from the client's clock-sync estimate and are recorded
// for statistics only; eligibility and scoring derive from host time.
type SubmitRequest struct {
	ParticipantID   string    `json:"participant_id"`
	RoundID         uuid.UUID `json:"round_id"`
	ChoiceIndex     int       `json:"choice_index"`
	ClientSentAt    time.Time `json:"client_sent_at"`
	EstimatedHostAt time.Time `json:"estimated_host_at"`
}

// ScoreOutcome reports what a successful submission earned.
type ScoreOutcome struct {
	Correct    bool    `json:"correct"`
	Points     int     `json:"points"`
	Tier       string  `json:"tier"`
	TimeUsedMs int64   `json:"time_used_ms"`
	TimeRatio  float64 `json:"time_ratio"`
	TotalScore int     `json:"total_score"`
}

// Submit validates and records one submission per participant per round.
// Validation order: nonce, answer window, duplicate. Every accepted
// submission is recorded for the tally, whether or not it scores.
func (s *Session) Submit(ctx context.Context, req SubmitRequest) (*ScoreOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rounds) == 0 || s.currentRoundIndex >= len(s.rounds) {
		return nil, ErrStaleRound
	}
	round := s.rounds[s.currentRoundIndex]
	if req.RoundID != round.RoundID {
		return nil, ErrStaleRound
	}

	hostNow := s.clock.Now()
	if s.phase != models.PhaseRoundActive || hostNow.Before(s.opensAt) || hostNow.After(s.closesAt) {
		return nil, ErrWindowClosed
	}

	if _, ok := s.answered[round.RoundID][req.ParticipantID]; ok {
		return nil, ErrDuplicateAnswer
	}

	if req.ChoiceIndex < 0 || req.ChoiceIndex >= len(round.ChoiceSet) {
		return nil, ErrInvalidChoice
	}

	participant, ok := s.participants[req.ParticipantID]
	if !ok {
		return nil, ErrUnknownParticipant
	}

	timeUsedMs := hostNow.Sub(s.opensAt).Milliseconds()
	timeRatio := float64(timeUsedMs) / float64(round.TimeLimitMs)
	correct := s.gameType.Scored() && round.CorrectIndex != nil && req.ChoiceIndex == *round.CorrectIndex
	points := scoring.Award(round.BasePoints, correct, timeRatio)

	s.answered[round.RoundID][req.ParticipantID] = models.AnswerSubmission{
		ParticipantID:   req.ParticipantID,
		RoundID:         req.RoundID,
		ChoiceIndex:     req.ChoiceIndex,
		ClientSentAt:    req.ClientSentAt,
		EstimatedHostAt: req.EstimatedHostAt,
		ReceivedAt:      hostNow,
		Correct:         correct,
		Points:          points,
	}
	s.tally[req.ChoiceIndex]++

	participant.TotalScore += points
	if correct {
		participant.CorrectCount++
	}
	roundID := round.RoundID
	participant.LastAnswerRound = &roundID
	if points > 0 {
		scoredAt := hostNow
		participant.LastScoredAt = &scoredAt
	}

	log.Debug().
		Str("session_code", s.code).
		Str("participant_id", req.ParticipantID).
		Str("round_id", round.RoundID.String()).
		Bool("correct", correct).
		Int("points", points).
		Msg("answer recorded")

	s.persistLocked(ctx)

	return &ScoreOutcome{
		Correct:    correct,
		Points:     points,
		Tier:       scoring.TierLabel(correct, timeRatio),
		TimeUsedMs: timeUsedMs,
		TimeRatio:  timeRatio,
		TotalScore: participant.TotalScore,
	}, nil
}
