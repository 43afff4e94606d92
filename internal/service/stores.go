package service

import (
	"context"

	"github.com/habit-scoreboard/internal/domain"
)

// SubmissionStore is the durable record source of submissions and display names
type SubmissionStore interface {
	ListSubmissions(ctx context.Context, userID string, limit int) ([]domain.Submission, error)
	GetUserNames(ctx context.Context, userIDs []string) (map[string]string, error)
	CreateSubmission(ctx context.Context, sub domain.Submission) (*domain.Submission, error)
	RecentSubmissions(ctx context.Context, limit int) ([]domain.RecentSubmission, error)
}

// UserStore persists users mirrored from the identity provider
type UserStore interface {
	UpsertUser(ctx context.Context, req domain.UpsertUserRequest) (*domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	UpdateUserNames(ctx context.Context, req domain.UpdateNamesRequest) (*domain.User, error)
}

// HabitStore persists habit definitions
type HabitStore interface {
	CreateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error)
	ListHabits(ctx context.Context, userID string) ([]domain.Habit, error)
	UpdateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error)
}

// LeaderboardCache holds the latest leaderboard snapshot and display names
type LeaderboardCache interface {
	StoreLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry) error
	CachedLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	GetUserNames(ctx context.Context, userIDs []string) (map[string]string, error)
	SetUserNames(ctx context.Context, names map[string]string) error
	InvalidateUserName(ctx context.Context, userID string) error
}

// Broadcaster pushes updates to live subscribers
type Broadcaster interface {
	BroadcastLeaderboard(entries []domain.LeaderboardEntry)
	BroadcastSubmission(sub domain.Submission)
}
