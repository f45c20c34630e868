package client

import (
	"testing"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/engine"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestReconcileNilSnapshot(t *testing.T) {
	local := ViewState{SessionID: "s1", StateVersion: 3}
	next, changed := Reconcile(local, nil)
	assert.False(t, changed)
	assert.Equal(t, local, next)
}

func TestReconcileAcceptsNewerVersion(t *testing.T) {
	local := ViewState{SessionID: "s1", Phase: models.PhaseRoundActive, StateVersion: 3, CurrentRoundIndex: 1}
	remote := &engine.Snapshot{
		SessionID:         "s1",
		Phase:             models.PhaseRoundLocked,
		StateVersion:      4,
		CurrentRoundIndex: 1,
		TotalRounds:       5,
	}

	next, changed := Reconcile(local, remote)
	assert.True(t, changed)
	assert.Equal(t, models.PhaseRoundLocked, next.Phase)
	assert.Equal(t, uint64(4), next.StateVersion)
	assert.Equal(t, 5, next.TotalRounds)
}

func TestReconcileRejectsVersionRewind(t *testing.T) {
	local := ViewState{SessionID: "s1", Phase: models.PhaseRoundLocked, StateVersion: 4}

	for _, version := range []uint64{3, 4} {
		remote := &engine.Snapshot{SessionID: "s1", Phase: models.PhaseRoundActive, StateVersion: version}
		next, changed := Reconcile(local, remote)
		assert.False(t, changed, "version %d must not replace local version 4", version)
		assert.Equal(t, local, next)
	}
}

func TestReconcileRejectsRoundIndexRegression(t *testing.T) {
	local := ViewState{SessionID: "s1", StateVersion: 6, CurrentRoundIndex: 3}
	remote := &engine.Snapshot{
		SessionID:         "s1",
		Phase:             models.PhaseRoundActive,
		StateVersion:      7,
		CurrentRoundIndex: 2,
	}

	next, changed := Reconcile(local, remote)
	assert.False(t, changed, "a round index rewind is a transport artifact")
	assert.Equal(t, local, next)
}

func TestReconcileAllowsIndexResetOnExit(t *testing.T) {
	local := ViewState{SessionID: "s1", Phase: models.PhaseRoundActive, StateVersion: 6, CurrentRoundIndex: 3}
	remote := &engine.Snapshot{
		SessionID:         "s1",
		Phase:             models.PhaseIdle,
		StateVersion:      7,
		CurrentRoundIndex: 0,
	}

	next, changed := Reconcile(local, remote)
	assert.True(t, changed, "exit resets the round index legitimately")
	assert.Equal(t, models.PhaseIdle, next.Phase)
}

func TestReconcileDifferentSessionReplacesWholesale(t *testing.T) {
	local := ViewState{SessionID: "old", StateVersion: 99, CurrentRoundIndex: 5}
	remote := &engine.Snapshot{SessionID: "new", Phase: models.PhaseLobby, StateVersion: 1}

	next, changed := Reconcile(local, remote)
	assert.True(t, changed)
	assert.Equal(t, "new", next.SessionID)
	assert.Equal(t, uint64(1), next.StateVersion)
	assert.Equal(t, 0, next.CurrentRoundIndex)
}
