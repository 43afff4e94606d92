package domain

// LeaderboardEntry represents a single ranked user
type LeaderboardEntry struct {
	Rank       int64   `json:"rank"`
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	TotalScore float64 `json:"total_score"`
}

// CompletionStats is the active-days completion rate: completed days over
// days with at least one submission.
type CompletionStats struct {
	CompletedDays   int     `json:"completed_days"`
	TotalActiveDays int     `json:"total_active_days"`
	CompletionRate  float64 `json:"completion_rate"`
}

// ChallengeCompletion is the challenge-days completion rate: completed days over
// every calendar day since the user's first submission, inclusive.
type ChallengeCompletion struct {
	CompletedDays      int     `json:"completed_days"`
	TotalChallengeDays int     `json:"total_challenge_days"`
	CompletionRate     float64 `json:"completion_rate"`
}

// ChallengeProgress locates a user within their challenge window
type ChallengeProgress struct {
	Day           int `json:"day"`
	Week          int `json:"week"`
	DaysRemaining int `json:"days_remaining"`
	ChallengeDays int `json:"challenge_days"`
}

// UserStats bundles every per-user metric computed from one fetch
type UserStats struct {
	UserID              string              `json:"user_id"`
	TotalScore          float64             `json:"total_score"`
	Completion          CompletionStats     `json:"completion"`
	ChallengeCompletion ChallengeCompletion `json:"challenge_completion"`
	DaysActive          int                 `json:"days_active"`
	DayStreak           int                 `json:"day_streak"`
	Progress            ChallengeProgress   `json:"progress"`
	Message             string              `json:"message"`
}

// GroupStats bundles the group-wide metrics computed from one fetch
type GroupStats struct {
	Leaderboard        []LeaderboardEntry `json:"leaderboard"`
	Completion         CompletionStats    `json:"completion"`
	GroupPoints        float64            `json:"group_points"`
	TotalDistinctUsers int                `json:"total_distinct_users"`
}
