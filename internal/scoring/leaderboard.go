package scoring

import (
	"sort"

	"github.com/habit-scoreboard/internal/domain"
	"github.com/shopspring/decimal"
)

// Leaderboard ranks every user present in totals by total score.
// names maps user ids to display names; missing or empty names become "Anonymous".
func (p Policy) Leaderboard(totals DailyTotals, names map[string]string) []domain.LeaderboardEntry {
	byUser := totals.ByUser()
	entries := make([]domain.LeaderboardEntry, 0, len(byUser))
	for userID, days := range byUser {
		name := names[userID]
		if name == "" {
			name = domain.AnonymousName
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:     userID,
			Name:       name,
			TotalScore: p.TotalScore(days),
		})
	}
	SortLeaderboard(entries)
	return entries
}

// SortLeaderboard orders entries by descending score, breaking ties by
// ascending user id, and renumbers their ranks from 1.
func SortLeaderboard(entries []domain.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
}

// GroupTotalPoints sums the leaderboard scores, rounded to one decimal
func GroupTotalPoints(entries []domain.LeaderboardEntry) float64 {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(decimal.NewFromFloat(e.TotalScore))
	}
	return round1(total)
}
