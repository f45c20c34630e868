package client

import (
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/engine"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
)

// ViewState is a client's local copy of session state. It is only ever
// replaced wholesale from a snapshot, never patched incrementally, which
// sidesteps ordering bugs at the cost of a full-state refresh.
type ViewState struct {
	SessionID         string
	Phase             models.Phase
	StateVersion      uint64
	CurrentRoundIndex int
	TotalRounds       int
	Round             *engine.RoundView
	Tally             *models.AnswerTally
	Standings         []models.RankedEntry
}

// Reconcile compares the local state against a remote snapshot and returns
// the state to keep. Both the push handler and the fallback poll run through
// here, so there is exactly one code path for "did anything change".
//
// State versions and round indices are monotonically increasing; a snapshot
// that regresses either is a transport artifact and is rejected.
func Reconcile(local ViewState, remote *engine.Snapshot) (ViewState, bool) {
	if remote == nil {
		return local, false
	}

	// Same session: never accept a rewind.
	if local.SessionID == remote.SessionID {
		if remote.StateVersion <= local.StateVersion {
			return local, false
		}
		if remote.CurrentRoundIndex < local.CurrentRoundIndex && remote.Phase != models.PhaseIdle {
			return local, false
		}
	}

	return ViewState{
		SessionID:         remote.SessionID,
		Phase:             remote.Phase,
		StateVersion:      remote.StateVersion,
		CurrentRoundIndex: remote.CurrentRoundIndex,
		TotalRounds:       remote.TotalRounds,
		Round:             remote.Round,
		Tally:             remote.Tally,
		Standings:         remote.Standings,
	}, true
}
