package store

import (
	"context"
	"testing"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *SessionState {
	roundID := uuid.New()
	opensAt := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	closesAt := opensAt.Add(20 * time.Second)
	correct := 1

	return &SessionState{
		SessionID:         uuid.New().String(),
		Code:              "GAME42",
		GameType:          models.GameTypeQuiz,
		Phase:             models.PhaseRoundActive,
		StateVersion:      4,
		CurrentRoundIndex: 0,
		TotalRounds:       2,
		Rounds: []models.Round{
			{RoundID: roundID, Prompt: "which one?", ChoiceSet: []string{"a", "b"}, CorrectIndex: &correct, BasePoints: 10, TimeLimitMs: 20000},
		},
		Participants: []models.ParticipantScore{
			{ParticipantID: "p1", DisplayName: "Ana", TotalScore: 10, CorrectCount: 1, JoinOrder: 0},
		},
		Answered: map[string][]models.AnswerSubmission{
			roundID.String(): {
				{ParticipantID: "p1", RoundID: roundID, ChoiceIndex: 1, Correct: true, Points: 10},
			},
		},
		RoundOpensAt:  &opensAt,
		RoundClosesAt: &closesAt,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	saved := sampleState()
	require.NoError(t, s.SaveState(ctx, "GAME42", saved))

	loaded, err := s.LoadState(ctx, "GAME42")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.SessionID, loaded.SessionID)
	assert.Equal(t, saved.Phase, loaded.Phase)
	assert.Equal(t, saved.StateVersion, loaded.StateVersion)
	assert.Equal(t, saved.Rounds, loaded.Rounds)
	assert.Equal(t, saved.Answered, loaded.Answered)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestMemoryStoreMissingCode(t *testing.T) {
	s := NewMemoryStore()
	loaded, err := s.LoadState(context.Background(), "NOPE42")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := sampleState()
	require.NoError(t, s.SaveState(ctx, "GAME42", first))

	second := sampleState()
	second.StateVersion = 9
	second.Phase = models.PhaseRoundLocked
	require.NoError(t, s.SaveState(ctx, "GAME42", second))

	loaded, err := s.LoadState(ctx, "GAME42")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), loaded.StateVersion)
	assert.Equal(t, models.PhaseRoundLocked, loaded.Phase)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveState(ctx, "GAME42", sampleState()))
	require.NoError(t, s.DeleteState(ctx, "GAME42"))

	loaded, err := s.LoadState(ctx, "GAME42")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting twice is fine.
	require.NoError(t, s.DeleteState(ctx, "GAME42"))
}
