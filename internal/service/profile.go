package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/habit-scoreboard/internal/domain"
)

// ProfileService manages users and their habits
type ProfileService struct {
	users      UserStore
	habits     HabitStore
	habitCache *HabitCache
	names      LeaderboardCache
	logger     *slog.Logger
}

// NewProfileService creates a new profile service. names may be nil.
func NewProfileService(
	users UserStore,
	habits HabitStore,
	habitCache *HabitCache,
	names LeaderboardCache,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:      users,
		habits:     habits,
		habitCache: habitCache,
		names:      names,
		logger:     logger,
	}
}

// UpsertUser creates or updates a user keyed by the identity provider's id
func (s *ProfileService) UpsertUser(ctx context.Context, req domain.UpsertUserRequest) (*domain.User, error) {
	if req.ExternalID == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: external_id and email are required", domain.ErrInvalidRequest)
	}

	user, err := s.users.UpsertUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	s.forgetName(ctx, user.ID)

	s.logger.Info("user upserted", "user_id", user.ID, "external_id", user.ExternalID)
	return user, nil
}

// GetUser returns the user with the given identity provider id
func (s *ProfileService) GetUser(ctx context.Context, externalID string) (*domain.User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external_id is required", domain.ErrInvalidRequest)
	}
	return s.users.GetUserByExternalID(ctx, externalID)
}

// UpdateUserNames changes a user's first and last name
func (s *ProfileService) UpdateUserNames(ctx context.Context, req domain.UpdateNamesRequest) (*domain.User, error) {
	if req.ExternalID == "" {
		return nil, fmt.Errorf("%w: external_id is required", domain.ErrInvalidRequest)
	}

	user, err := s.users.UpdateUserNames(ctx, req)
	if err != nil {
		return nil, err
	}
	s.forgetName(ctx, user.ID)
	return user, nil
}

func (s *ProfileService) forgetName(ctx context.Context, userID string) {
	if s.names == nil {
		return
	}
	if err := s.names.InvalidateUserName(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate cached user name", "user_id", userID, "error", err)
	}
}

// CreateHabit defines a new habit for a user
func (s *ProfileService) CreateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidHabit)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	habit, err := s.habits.CreateHabit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating habit: %w", err)
	}
	s.habitCache.Invalidate(habit.UserID)

	s.logger.Info("habit created", "habit_id", habit.ID, "user_id", habit.UserID, "name", habit.Name)
	return habit, nil
}

// ListHabits returns the user's habits
func (s *ProfileService) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	return s.habitCache.Habits(ctx, userID)
}

// CurrentHabit returns the habit the user is currently tracking
func (s *ProfileService) CurrentHabit(ctx context.Context, userID string) (*domain.Habit, error) {
	return s.habitCache.Current(ctx, userID)
}

// UpdateHabit changes a habit's name, unit or daily goal
func (s *ProfileService) UpdateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidHabit)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	habit, err := s.habits.UpdateHabit(ctx, req)
	if err != nil {
		return nil, err
	}
	s.habitCache.Invalidate(habit.UserID)
	return habit, nil
}
