package scoring

import (
	"sort"

	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
)

// Rank folds participant scores into a ranked, tie-broken view.
// Order: total score desc, correct count desc, earliest last scoring
// submission asc, then join order as the final deterministic tie-break so
// ranks never change between identical recomputations.
func Rank(participants []models.ParticipantScore) []models.RankedEntry {
	sorted := make([]models.ParticipantScore, len(participants))
	copy(sorted, participants)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.CorrectCount != b.CorrectCount {
			return a.CorrectCount > b.CorrectCount
		}
		if at, bt := a.LastScoredAt, b.LastScoredAt; at != nil || bt != nil {
			switch {
			case at == nil:
				return false
			case bt == nil:
				return true
			case !at.Equal(*bt):
				return at.Before(*bt)
			}
		}
		return a.JoinOrder < b.JoinOrder
	})

	entries := make([]models.RankedEntry, 0, len(sorted))
	for i, p := range sorted {
		entries = append(entries, models.RankedEntry{
			Rank:          i + 1,
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			TotalScore:    p.TotalScore,
			CorrectCount:  p.CorrectCount,
		})
	}
	return entries
}
