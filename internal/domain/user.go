package domain

import "time"

// User mirrors an account of the external identity provider
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName returns the user's first name, or "Anonymous" if it is unset
func (u User) DisplayName() string {
	return DisplayName(u.FirstName)
}

// DisplayName returns first, or "Anonymous" if first is nil or empty
func DisplayName(first *string) string {
	if first == nil || *first == "" {
		return AnonymousName
	}
	return *first
}

// AnonymousName is shown for users without a first name
const AnonymousName = "Anonymous"

// UpsertUserRequest creates or refreshes a user from identity provider data
type UpsertUserRequest struct {
	ExternalID string  `json:"external_id"`
	Email      string  `json:"email"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
}

// UpdateNamesRequest changes a user's display names
type UpdateNamesRequest struct {
	ExternalID string `json:"external_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// Habit is a user's habit definition
type Habit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	DailyGoal int       `json:"daily_goal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HabitRequest carries the editable fields of a habit
type HabitRequest struct {
	ID        string `json:"id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	DailyGoal int    `json:"daily_goal"`
}

// Validate checks the habit fields
func (r HabitRequest) Validate() error {
	if r.Name == "" || r.Unit == "" || r.DailyGoal < 1 {
		return ErrInvalidHabit
	}
	return nil
}
