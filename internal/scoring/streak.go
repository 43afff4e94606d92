package scoring

import "github.com/habit-scoreboard/internal/domain"

// DayStreak counts consecutive completed days ending at the user's latest
// submission date. The streak is 0 unless the most recent completed day is
// today or yesterday. The walk starts at the latest date, completed or not,
// and stops at the first incomplete day or calendar gap.
// Days after today are ignored.
func (p Policy) DayStreak(days []DayTotal, today domain.Date) int {
	// days are ascending; drop the future tail
	end := len(days)
	for end > 0 && days[end-1].Date.After(today) {
		end--
	}
	days = days[:end]

	var lastCompleted domain.Date
	for i := len(days) - 1; i >= 0; i-- {
		if p.completes(days[i].Points) {
			lastCompleted = days[i].Date
			break
		}
	}
	if lastCompleted.IsZero() || today.DaysSince(lastCompleted) > 1 {
		return 0
	}

	streak := 0
	for i := len(days) - 1; i >= 0; i-- {
		if !p.completes(days[i].Points) {
			break
		}
		streak++
		if i > 0 && days[i].Date.DaysSince(days[i-1].Date) > 1 {
			break
		}
	}
	return streak
}
