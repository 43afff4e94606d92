package scoring

import (
	"math/rand"
	"testing"

	"github.com/habit-scoreboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = domain.NewDate(2025, 3, 15)

func sub(userID string, daysAgo int, points float64) domain.Submission {
	return domain.Submission{
		UserID:         userID,
		HabitID:        "habit-" + userID,
		SubmissionDate: today.AddDays(-daysAgo),
		Points:         points,
	}
}

func daysFor(subs []domain.Submission, userID string) []DayTotal {
	return Aggregate(subs).ForUser(userID)
}

func TestAggregate_SumsSameDay(t *testing.T) {
	totals := Aggregate([]domain.Submission{
		sub("u1", 0, 0.5),
		sub("u1", 0, 0.25),
		sub("u1", 1, 1),
		sub("u2", 0, 2),
	})

	require.Len(t, totals, 3)
	assert.Equal(t, "0.75", totals[DayKey{UserID: "u1", Date: today}].String())
	assert.Equal(t, []string{"u1", "u2"}, totals.Users())

	days := totals.ForUser("u1")
	require.Len(t, days, 2)
	assert.Equal(t, today.AddDays(-1), days[0].Date)
	assert.Equal(t, today, days[1].Date)
}

func TestAggregate_Empty(t *testing.T) {
	totals := Aggregate(nil)
	assert.Empty(t, totals)
	assert.Empty(t, totals.ForUser("u1"))
	assert.Empty(t, totals.Users())
}

func TestTotalScore_CapsEachDay(t *testing.T) {
	p := DefaultPolicy()
	subs := []domain.Submission{sub("u1", 0, 0.45), sub("u1", 0, 0.6), sub("u1", 0, 2.5)}
	assert.Equal(t, 3.0, p.TotalScore(daysFor(subs, "u1")))

	subs = append(subs, sub("u1", 1, 1.26), sub("u1", 2, 0.33))
	assert.Equal(t, 4.6, p.TotalScore(daysFor(subs, "u1")))
}

func TestTotalScore_CappedDayIgnoresMoreSubmissions(t *testing.T) {
	p := DefaultPolicy()
	subs := []domain.Submission{sub("u1", 0, 3), sub("u1", 1, 1)}
	before := p.TotalScore(daysFor(subs, "u1"))

	subs = append(subs, sub("u1", 0, 5))
	assert.Equal(t, before, p.TotalScore(daysFor(subs, "u1")))
}

func TestTotalScore_NoSubmissions(t *testing.T) {
	assert.Equal(t, 0.0, DefaultPolicy().TotalScore(nil))
}

func TestTotalScore_OrderIndependent(t *testing.T) {
	p := DefaultPolicy()
	subs := []domain.Submission{
		sub("u1", 0, 0.1), sub("u1", 0, 0.2), sub("u1", 1, 1.7),
		sub("u1", 2, 2.9), sub("u1", 2, 0.4), sub("u1", 5, 0.05),
	}
	want := p.TotalScore(daysFor(subs, "u1"))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Submission(nil), subs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, p.TotalScore(daysFor(shuffled, "u1")))
	}
}

func TestTotalScore_CustomCap(t *testing.T) {
	p := DefaultPolicy()
	p.DailyCap = p.CompletionThreshold
	subs := []domain.Submission{sub("u1", 0, 2.5), sub("u1", 1, 0.4)}
	assert.Equal(t, 1.4, p.TotalScore(daysFor(subs, "u1")))
}

func TestActiveDayCompletion(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, domain.CompletionStats{}, p.ActiveDayCompletion(nil))

	subs := []domain.Submission{
		sub("u1", 0, 0.5), sub("u1", 0, 0.5),
		sub("u1", 1, 0.9),
		sub("u1", 4, 1.2),
	}
	stats := p.ActiveDayCompletion(daysFor(subs, "u1"))
	assert.Equal(t, 2, stats.CompletedDays)
	assert.Equal(t, 3, stats.TotalActiveDays)
	assert.Equal(t, 66.7, stats.CompletionRate)
}

func TestChallengeCompletion_FullWeek(t *testing.T) {
	p := DefaultPolicy()
	var subs []domain.Submission
	for i := 0; i <= 6; i++ {
		subs = append(subs, sub("u1", i, 1))
	}

	stats := p.ChallengeCompletion(daysFor(subs, "u1"), today)
	assert.Equal(t, domain.ChallengeCompletion{
		CompletedDays:      7,
		TotalChallengeDays: 7,
		CompletionRate:     100.0,
	}, stats)
}

func TestChallengeCompletion_SkippedDaysCount(t *testing.T) {
	p := DefaultPolicy()
	subs := []domain.Submission{sub("u1", 9, 1), sub("u1", 3, 2), sub("u1", 0, 0.2)}

	stats := p.ChallengeCompletion(daysFor(subs, "u1"), today)
	assert.Equal(t, 2, stats.CompletedDays)
	assert.Equal(t, 10, stats.TotalChallengeDays)
	assert.Equal(t, 20.0, stats.CompletionRate)
}

func TestChallengeCompletion_EmptyAndFuture(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, domain.ChallengeCompletion{}, p.ChallengeCompletion(nil, today))

	future := []domain.Submission{sub("u1", -2, 1)}
	assert.Equal(t, domain.ChallengeCompletion{}, p.ChallengeCompletion(daysFor(future, "u1"), today))
}

func TestGroupCompletion_SumsBeforeDividing(t *testing.T) {
	p := DefaultPolicy()
	subs := []domain.Submission{
		// u1: 1 of 1 day completed (100%)
		sub("u1", 0, 1),
		// u2: 1 of 3 days completed (33.3%)
		sub("u2", 0, 1), sub("u2", 1, 0.2), sub("u2", 2, 0.3),
	}

	stats := p.GroupCompletion(Aggregate(subs))
	assert.Equal(t, 2, stats.CompletedDays)
	assert.Equal(t, 4, stats.TotalActiveDays)
	// average of per-user rates would be 66.7
	assert.Equal(t, 50.0, stats.CompletionRate)

	assert.Equal(t, domain.CompletionStats{}, p.GroupCompletion(Aggregate(nil)))
}

func TestDayStreak(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		subs []domain.Submission
		want int
	}{
		{
			name: "no submissions",
			want: 0,
		},
		{
			name: "today and yesterday only",
			subs: []domain.Submission{sub("u1", 0, 1), sub("u1", 1, 1.5)},
			want: 2,
		},
		{
			name: "gap at day before yesterday",
			subs: []domain.Submission{sub("u1", 0, 1), sub("u1", 1, 1), sub("u1", 3, 1)},
			want: 2,
		},
		{
			name: "ends yesterday",
			subs: []domain.Submission{sub("u1", 1, 1), sub("u1", 2, 1), sub("u1", 3, 1)},
			want: 3,
		},
		{
			name: "latest success two days ago",
			subs: []domain.Submission{sub("u1", 2, 3), sub("u1", 3, 3)},
			want: 0,
		},
		{
			name: "incomplete day inside the run",
			subs: []domain.Submission{sub("u1", 0, 1), sub("u1", 1, 0.4), sub("u1", 2, 1)},
			want: 1,
		},
		{
			name: "incomplete today breaks yesterday's run",
			subs: []domain.Submission{sub("u1", 0, 0.5), sub("u1", 1, 1), sub("u1", 2, 1)},
			want: 0,
		},
		{
			name: "no entry today keeps yesterday's run",
			subs: []domain.Submission{sub("u1", 1, 1), sub("u1", 2, 1), sub("u1", 4, 1)},
			want: 2,
		},
		{
			name: "partial submissions sum to threshold",
			subs: []domain.Submission{sub("u1", 0, 0.5), sub("u1", 0, 0.5)},
			want: 1,
		},
		{
			name: "only incomplete days",
			subs: []domain.Submission{sub("u1", 0, 0.9), sub("u1", 1, 0.9)},
			want: 0,
		},
		{
			name: "future dates ignored",
			subs: []domain.Submission{sub("u1", -1, 1), sub("u1", 0, 1)},
			want: 1,
		},
		{
			name: "incomplete future date does not break the run",
			subs: []domain.Submission{sub("u1", -1, 0.2), sub("u1", 0, 1), sub("u1", 1, 1)},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.DayStreak(daysFor(tt.subs, "u1"), today))
		})
	}
}

func TestChallengeProgress(t *testing.T) {
	assert.Equal(t, domain.ChallengeProgress{ChallengeDays: 42}, ChallengeProgress(nil, today, 42))

	subs := []domain.Submission{sub("u1", 9, 1), sub("u1", 0, 1)}
	assert.Equal(t, domain.ChallengeProgress{
		Day:           10,
		Week:          2,
		DaysRemaining: 32,
		ChallengeDays: 42,
	}, ChallengeProgress(daysFor(subs, "u1"), today, 42))

	long := []domain.Submission{sub("u1", 50, 1)}
	progress := ChallengeProgress(daysFor(long, "u1"), today, 42)
	assert.Equal(t, 51, progress.Day)
	assert.Equal(t, 8, progress.Week)
	assert.Zero(t, progress.DaysRemaining)
}
