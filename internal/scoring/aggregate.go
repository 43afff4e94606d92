// Package scoring turns raw habit submissions into scores, completion rates,
// streaks and leaderboards. Every function is pure: callers fetch the
// submissions and pass them in together with the evaluation date.
package scoring

import (
	"sort"

	"github.com/habit-scoreboard/internal/domain"
	"github.com/shopspring/decimal"
)

// DayKey identifies one user's calendar day
type DayKey struct {
	UserID string
	Date   domain.Date
}

// DayTotal is the summed raw points of one calendar day
type DayTotal struct {
	Date   domain.Date
	Points decimal.Decimal
}

// DailyTotals maps each (user, date) pair to the sum of its submissions' points.
// A missing key means zero points.
type DailyTotals map[DayKey]decimal.Decimal

// Aggregate sums submission points per user and calendar date.
// The result does not depend on the order of subs.
func Aggregate(subs []domain.Submission) DailyTotals {
	totals := make(DailyTotals)
	for _, s := range subs {
		key := DayKey{UserID: s.UserID, Date: s.SubmissionDate}
		totals[key] = totals[key].Add(decimal.NewFromFloat(s.Points))
	}
	return totals
}

// ForUser returns the user's day totals in ascending date order
func (t DailyTotals) ForUser(userID string) []DayTotal {
	var days []DayTotal
	for key, points := range t {
		if key.UserID == userID {
			days = append(days, DayTotal{Date: key.Date, Points: points})
		}
	}
	sortDays(days)
	return days
}

// ByUser groups the day totals per user, each in ascending date order
func (t DailyTotals) ByUser() map[string][]DayTotal {
	grouped := make(map[string][]DayTotal)
	for key, points := range t {
		grouped[key.UserID] = append(grouped[key.UserID], DayTotal{Date: key.Date, Points: points})
	}
	for _, days := range grouped {
		sortDays(days)
	}
	return grouped
}

// Users returns the distinct user ids in ascending order
func (t DailyTotals) Users() []string {
	seen := make(map[string]struct{})
	for key := range t {
		seen[key.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func sortDays(days []DayTotal) {
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
}
