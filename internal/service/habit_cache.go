package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/habit-scoreboard/internal/domain"
)

// HabitCache is a read-through cache of each user's habit configuration.
// A user's habits are fetched once and then frozen; only Invalidate makes
// the next read go back to the store.
type HabitCache struct {
	store   HabitStore
	mu      sync.Mutex
	entries map[string]*habitEntry
}

type habitEntry struct {
	mu     sync.Mutex
	loaded bool
	habits []domain.Habit
}

// NewHabitCache creates an empty cache over store
func NewHabitCache(store HabitStore) *HabitCache {
	return &HabitCache{
		store:   store,
		entries: make(map[string]*habitEntry),
	}
}

func (c *HabitCache) entry(userID string) *habitEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		e = &habitEntry{}
		c.entries[userID] = e
	}
	return e
}

// Habits returns the user's habits, loading them on first use.
// Failed loads are not cached.
func (c *HabitCache) Habits(ctx context.Context, userID string) ([]domain.Habit, error) {
	e := c.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		habits, err := c.store.ListHabits(ctx, userID)
		if err != nil {
			return nil, &domain.FetchError{Op: "loading habits", UserID: userID, Err: err}
		}
		e.habits = habits
		e.loaded = true
	}
	return append([]domain.Habit(nil), e.habits...), nil
}

// Lookup returns the user's habit with the given id
func (c *HabitCache) Lookup(ctx context.Context, userID, habitID string) (*domain.Habit, error) {
	habits, err := c.Habits(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range habits {
		if habits[i].ID == habitID {
			return &habits[i], nil
		}
	}
	return nil, fmt.Errorf("habit %s of user %s: %w", habitID, userID, domain.ErrHabitNotFound)
}

// Current returns the user's most recently created habit
func (c *HabitCache) Current(ctx context.Context, userID string) (*domain.Habit, error) {
	habits, err := c.Habits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(habits) == 0 {
		return nil, fmt.Errorf("user %s has no habit: %w", userID, domain.ErrHabitNotFound)
	}
	return &habits[len(habits)-1], nil
}

// Invalidate drops the user's cached habits
func (c *HabitCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
