package scoring

import (
	"fmt"

	"github.com/habit-scoreboard/internal/domain"
	"github.com/shopspring/decimal"
)

// Fixed motivational messages
const (
	NoEntriesMessage     = "No rankings yet. Start logging progress!"
	NotRankedMessage     = "Log your first activity to join the leaderboard!"
	SoloMessage          = "You're setting the pace! Keep logging every day."
	EncouragementMessage = "Keep going! Every completed day moves you up."
	FallbackMessage      = "Keep going! You're doing great."
)

var dailyMessages = []string{
	"Small steps every day add up to big results.",
	"Show up today. Your future self is counting on it.",
	"Consistency beats intensity.",
	"One more day, one more point.",
	"Progress, not perfection.",
	"Your streak is built one day at a time.",
	"Your friends are logging. Are you?",
}

// MotivationalMessage describes the user's position in a sorted leaderboard.
// It never panics; unexpected failures yield FallbackMessage.
func (p Policy) MotivationalMessage(entries []domain.LeaderboardEntry, userID string) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = FallbackMessage
		}
	}()

	if len(entries) == 0 {
		return NoEntriesMessage
	}

	pos := -1
	for i, e := range entries {
		if e.UserID == userID {
			pos = i
			break
		}
	}

	switch {
	case pos < 0:
		return NotRankedMessage
	case len(entries) == 1:
		return SoloMessage
	case pos == 0:
		gap := scoreGap(entries[0], entries[1])
		return fmt.Sprintf("You're in the lead! You're %s points ahead of %s.", gap.StringFixed(1), entries[1].Name)
	case pos == len(entries)-1:
		return EncouragementMessage
	}

	above := entries[pos-1]
	gap := scoreGap(above, entries[pos])
	if gap.LessThanOrEqual(p.CatchableGap) {
		return fmt.Sprintf("You're doing great! %s is only %s points ahead - you can catch up!", above.Name, gap.StringFixed(1))
	}
	return EncouragementMessage
}

func scoreGap(higher, lower domain.LeaderboardEntry) decimal.Decimal {
	return decimal.NewFromFloat(higher.TotalScore).Sub(decimal.NewFromFloat(lower.TotalScore)).Round(1)
}

// DailyMessage picks one of a fixed set of messages by day of month
func DailyMessage(date domain.Date) string {
	return dailyMessages[date.Day()%len(dailyMessages)]
}
