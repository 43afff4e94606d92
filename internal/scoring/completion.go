package scoring

import "github.com/habit-scoreboard/internal/domain"

// ActiveDayCompletion rates the user's completed days against the days on
// which they logged anything.
func (p Policy) ActiveDayCompletion(days []DayTotal) domain.CompletionStats {
	completed := 0
	for _, d := range days {
		if p.completes(d.Points) {
			completed++
		}
	}
	return domain.CompletionStats{
		CompletedDays:   completed,
		TotalActiveDays: len(days),
		CompletionRate:  percent(completed, len(days)),
	}
}

// ChallengeCompletion rates the user's completed days against every calendar
// day from their first submission through today, inclusive. Days after today
// are ignored.
func (p Policy) ChallengeCompletion(days []DayTotal, today domain.Date) domain.ChallengeCompletion {
	if len(days) == 0 || days[0].Date.After(today) {
		return domain.ChallengeCompletion{}
	}

	total := today.DaysSince(days[0].Date) + 1
	completed := 0
	for _, d := range days {
		if d.Date.After(today) {
			break
		}
		if p.completes(d.Points) {
			completed++
		}
	}

	return domain.ChallengeCompletion{
		CompletedDays:      completed,
		TotalChallengeDays: total,
		CompletionRate:     percent(completed, total),
	}
}

// GroupCompletion adds up completed and active days over all users and
// divides once, so users with more active days weigh more.
func (p Policy) GroupCompletion(totals DailyTotals) domain.CompletionStats {
	var completed, active int
	for _, days := range totals.ByUser() {
		stats := p.ActiveDayCompletion(days)
		completed += stats.CompletedDays
		active += stats.TotalActiveDays
	}
	return domain.CompletionStats{
		CompletedDays:   completed,
		TotalActiveDays: active,
		CompletionRate:  percent(completed, active),
	}
}

// ChallengeProgress places today within the user's challenge window, which
// starts on their first submission.
func ChallengeProgress(days []DayTotal, today domain.Date, challengeDays int) domain.ChallengeProgress {
	progress := domain.ChallengeProgress{ChallengeDays: challengeDays}
	if len(days) == 0 || days[0].Date.After(today) {
		return progress
	}

	day := today.DaysSince(days[0].Date) + 1
	progress.Day = day
	progress.Week = (day-1)/7 + 1
	if remaining := challengeDays - day; remaining > 0 {
		progress.DaysRemaining = remaining
	}
	return progress
}
