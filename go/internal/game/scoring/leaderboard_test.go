package scoring

import (
	"testing"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int) *time.Time {
	t := time.Date(2025, 6, 1, 20, 0, sec, 0, time.UTC)
	return &t
}

func TestRankOrdering(t *testing.T) {
	participants := []models.ParticipantScore{
		{ParticipantID: "p1", DisplayName: "Ana", TotalScore: 30, CorrectCount: 3, LastScoredAt: ts(10), JoinOrder: 0},
		{ParticipantID: "p2", DisplayName: "Bo", TotalScore: 50, CorrectCount: 5, LastScoredAt: ts(12), JoinOrder: 1},
		{ParticipantID: "p3", DisplayName: "Cyd", TotalScore: 30, CorrectCount: 4, LastScoredAt: ts(14), JoinOrder: 2},
	}

	ranked := Rank(participants)
	require.Len(t, ranked, 3)
	assert.Equal(t, "p2", ranked[0].ParticipantID)
	// Tie on score: higher correct count first.
	assert.Equal(t, "p3", ranked[1].ParticipantID)
	assert.Equal(t, "p1", ranked[2].ParticipantID)
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
}

func TestRankTieBreakBySubmissionTime(t *testing.T) {
	participants := []models.ParticipantScore{
		{ParticipantID: "slow", TotalScore: 20, CorrectCount: 2, LastScoredAt: ts(30), JoinOrder: 0},
		{ParticipantID: "fast", TotalScore: 20, CorrectCount: 2, LastScoredAt: ts(5), JoinOrder: 1},
	}

	ranked := Rank(participants)
	assert.Equal(t, "fast", ranked[0].ParticipantID)
	assert.Equal(t, "slow", ranked[1].ParticipantID)
}

func TestRankTieBreakByJoinOrder(t *testing.T) {
	participants := []models.ParticipantScore{
		{ParticipantID: "late", TotalScore: 0, CorrectCount: 0, JoinOrder: 7},
		{ParticipantID: "early", TotalScore: 0, CorrectCount: 0, JoinOrder: 2},
	}

	ranked := Rank(participants)
	assert.Equal(t, "early", ranked[0].ParticipantID)
}

func TestRankDeterministic(t *testing.T) {
	participants := []models.ParticipantScore{
		{ParticipantID: "a", TotalScore: 10, CorrectCount: 1, LastScoredAt: ts(1), JoinOrder: 0},
		{ParticipantID: "b", TotalScore: 10, CorrectCount: 1, LastScoredAt: ts(1), JoinOrder: 1},
		{ParticipantID: "c", TotalScore: 25, CorrectCount: 2, LastScoredAt: ts(2), JoinOrder: 2},
	}

	first := Rank(participants)
	second := Rank(participants)
	assert.Equal(t, first, second)
}

func TestRankScoreChangePreservesUntouchedOrder(t *testing.T) {
	participants := []models.ParticipantScore{
		{ParticipantID: "a", TotalScore: 40, CorrectCount: 4, JoinOrder: 0},
		{ParticipantID: "b", TotalScore: 30, CorrectCount: 3, JoinOrder: 1},
		{ParticipantID: "c", TotalScore: 20, CorrectCount: 2, JoinOrder: 2},
	}

	before := Rank(participants)
	assert.Equal(t, "a", before[0].ParticipantID)

	// Only c's score changes; a and b keep their relative order.
	participants[2].TotalScore = 100
	after := Rank(participants)
	assert.Equal(t, "c", after[0].ParticipantID)
	assert.Equal(t, "a", after[1].ParticipantID)
	assert.Equal(t, "b", after[2].ParticipantID)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	participants := []models.ParticipantScore{
		{ParticipantID: "a", TotalScore: 1, JoinOrder: 1},
		{ParticipantID: "b", TotalScore: 2, JoinOrder: 0},
	}

	Rank(participants)
	assert.Equal(t, "a", participants[0].ParticipantID)
}
