package engine

import (
	"errors"
	"fmt"

	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
)

// Client-recoverable submission errors. Frequent and expected; surfaced to the
// submitting client as "too late" / "already answered", never escalated.
var (
	// ErrStaleRound means the submission carried a nonce for a round that has
	// since closed or advanced. The submission is discarded, not retried.
	ErrStaleRound = errors.New("stale round")

	// ErrWindowClosed means the session is not accepting answers right now.
	ErrWindowClosed = errors.New("answer window closed")

	// ErrDuplicateAnswer means this participant already answered this round.
	// The first accepted submission is the only one that counts.
	ErrDuplicateAnswer = errors.New("answer already recorded")

	// ErrInvalidChoice means the choice index is outside the round's choice set.
	ErrInvalidChoice = errors.New("choice index out of range")

	// ErrUnknownParticipant means the submitter never joined the session.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrSessionNotFound means no live session exists for the given code.
	ErrSessionNotFound = errors.New("session not found")
)

// PhaseViolationError reports an operation called from an illegal source
// phase. The machine is left in its last valid phase; the host UI treats
// this as a no-op.
type PhaseViolationError struct {
	Op   string
	From models.Phase
}

func (e *PhaseViolationError) Error() string {
	return fmt.Sprintf("phase violation: %s not legal from %s", e.Op, e.From)
}

// IsPhaseViolation reports whether err is a PhaseViolationError.
func IsPhaseViolation(err error) bool {
	var pv *PhaseViolationError
	return errors.As(err, &pv)
}
