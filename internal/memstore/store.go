// Package memstore is an in-process record store with the same contract as
// the PostgreSQL repository. It backs the "memory" storage driver.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habit-scoreboard/internal/domain"
)

// Store keeps users, habits and submissions in memory
type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	habits      map[string]domain.Habit
	submissions []domain.Submission

	// FailWith, when set, is returned by every read and by CreateSubmission
	FailWith error
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:  make(map[string]domain.User),
		habits: make(map[string]domain.Habit),
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// UpsertUser creates a user or refreshes an existing one by external id
func (s *Store) UpsertUser(ctx context.Context, req domain.UpsertUserRequest) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, u := range s.users {
		if u.ExternalID == req.ExternalID {
			u.Email = req.Email
			u.FirstName = req.FirstName
			u.LastName = req.LastName
			u.UpdatedAt = now
			s.users[id] = u
			return &u, nil
		}
	}

	u := domain.User{
		ID:         uuid.NewString(),
		ExternalID: req.ExternalID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.users[u.ID] = u
	return &u, nil
}

// GetUserByExternalID looks a user up by identity provider id
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ExternalID == externalID {
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// UpdateUserNames changes the display names of an existing user
func (s *Store) UpdateUserNames(ctx context.Context, req domain.UpdateNamesRequest) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.ExternalID == req.ExternalID {
			first, last := req.FirstName, req.LastName
			u.FirstName = &first
			u.LastName = &last
			u.UpdatedAt = time.Now()
			s.users[id] = u
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// GetUserNames returns the first names of the given users keyed by id
func (s *Store) GetUserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok && u.FirstName != nil {
			names[id] = *u.FirstName
		}
	}
	return names, nil
}

// CreateHabit stores a new habit for a user
func (s *Store) CreateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.UserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	now := time.Now()
	h := domain.Habit{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Name:      req.Name,
		Unit:      req.Unit,
		DailyGoal: req.DailyGoal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.habits[h.ID] = h
	return &h, nil
}

// ListHabits returns a user's habits, oldest first
func (s *Store) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var habits []domain.Habit
	for _, h := range s.habits {
		if h.UserID == userID {
			habits = append(habits, h)
		}
	}
	sort.Slice(habits, func(i, j int) bool {
		return habits[i].CreatedAt.Before(habits[j].CreatedAt)
	})
	return habits, nil
}

// UpdateHabit changes the editable fields of an existing habit
func (s *Store) UpdateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.habits[req.ID]
	if !ok {
		return nil, domain.ErrHabitNotFound
	}
	h.Name = req.Name
	h.Unit = req.Unit
	h.DailyGoal = req.DailyGoal
	h.UpdatedAt = time.Now()
	s.habits[h.ID] = h
	return &h, nil
}

// CreateSubmission appends a submission
func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission) (*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	if _, ok := s.users[sub.UserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	if _, ok := s.habits[sub.HabitID]; !ok {
		return nil, domain.ErrHabitNotFound
	}
	s.submissions = append(s.submissions, sub)
	return &sub, nil
}

// AddSubmissions appends submissions without checking references
func (s *Store) AddSubmissions(subs ...domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, subs...)
}

// ListSubmissions returns up to limit submissions ordered by date.
// An empty userID returns every user's submissions.
func (s *Store) ListSubmissions(ctx context.Context, userID string, limit int) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var subs []domain.Submission
	for _, sub := range s.submissions {
		if userID == "" || sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubmissionDate.Before(subs[j].SubmissionDate)
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

// RecentSubmissions returns the newest submissions joined with user and habit details
func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]domain.RecentSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	subs := append([]domain.Submission(nil), s.submissions...)
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}

	recent := make([]domain.RecentSubmission, 0, len(subs))
	for _, sub := range subs {
		rs := domain.RecentSubmission{
			ID:              sub.ID,
			SubmissionDate:  sub.SubmissionDate,
			ActualAmount:    sub.ActualAmount,
			Points:          sub.Points,
			PerceivedRating: sub.PerceivedRating,
			Note:            sub.Note,
			CreatedAt:       sub.CreatedAt,
		}
		if u, ok := s.users[sub.UserID]; ok {
			rs.UserFirstName = u.FirstName
			rs.UserLastName = u.LastName
		}
		if h, ok := s.habits[sub.HabitID]; ok {
			name, unit, goal := h.Name, h.Unit, h.DailyGoal
			rs.HabitName = &name
			rs.HabitUnit = &unit
			rs.HabitDailyGoal = &goal
		}
		recent = append(recent, rs)
	}
	return recent, nil
}
