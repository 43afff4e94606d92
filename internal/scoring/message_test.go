package scoring

import (
	"testing"

	"github.com/habit-scoreboard/internal/domain"
	"github.com/stretchr/testify/assert"
)

func board(scores ...float64) []domain.LeaderboardEntry {
	names := []string{"Ann", "Ben", "Cat", "Dan", "Eve"}
	entries := make([]domain.LeaderboardEntry, len(scores))
	for i, s := range scores {
		entries[i] = domain.LeaderboardEntry{
			Rank:       int64(i + 1),
			UserID:     names[i],
			Name:       names[i],
			TotalScore: s,
		}
	}
	return entries
}

func TestMotivationalMessage(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		entries []domain.LeaderboardEntry
		userID  string
		want    string
	}{
		{"empty leaderboard", nil, "Ann", NoEntriesMessage},
		{"not ranked", board(5), "Zoe", NotRankedMessage},
		{"single entrant", board(5), "Ann", SoloMessage},
		{"leader", board(10.5, 8.25, 3), "Ann", "You're in the lead! You're 2.3 points ahead of Ben."},
		{"last place", board(10, 8, 3), "Cat", EncouragementMessage},
		{"catchable", board(10, 8, 3), "Ben", "You're doing great! Ann is only 2.0 points ahead - you can catch up!"},
		{"catchable at exactly the gap", board(10, 7, 3), "Ben", "You're doing great! Ann is only 3.0 points ahead - you can catch up!"},
		{"far behind", board(20, 8, 3), "Ben", EncouragementMessage},
		{"tied with leader", board(6, 6), "Ann", "You're in the lead! You're 0.0 points ahead of Ben."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.MotivationalMessage(tt.entries, tt.userID))
		})
	}
}

func TestDailyMessage_RotatesByDayOfMonth(t *testing.T) {
	first := DailyMessage(domain.NewDate(2025, 1, 1))
	assert.Equal(t, dailyMessages[1], first)
	assert.Equal(t, first, DailyMessage(domain.NewDate(2025, 6, 1)))
	assert.Equal(t, dailyMessages[0], DailyMessage(domain.NewDate(2025, 1, 7)))
	assert.NotEqual(t, first, DailyMessage(domain.NewDate(2025, 1, 2)))
}
