package domain

import (
	"fmt"
	"time"
)

// Submission is a single logged activity for one habit on one calendar date.
// Several submissions may exist for the same user and date; they are summed.
type Submission struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	HabitID         string    `json:"habit_id"`
	SubmissionDate  Date      `json:"submission_date"`
	ActualAmount    float64   `json:"actual_amount"`
	Points          float64   `json:"points"`
	PerceivedRating string    `json:"perceived_rating"`
	Note            *string   `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateSubmissionRequest represents a request to log an activity
type CreateSubmissionRequest struct {
	UserID          string  `json:"user_id"`
	HabitID         string  `json:"habit_id"`
	SubmissionDate  string  `json:"submission_date"`
	ActualAmount    float64 `json:"actual_amount"`
	Points          float64 `json:"points"`
	PerceivedRating string  `json:"perceived_rating"`
	Note            *string `json:"note,omitempty"`
}

// BatchSubmission represents multiple submissions
type BatchSubmission struct {
	Submissions []CreateSubmissionRequest `json:"submissions"`
}

// Validate checks the request and returns the parsed submission date
func (r CreateSubmissionRequest) Validate() (Date, error) {
	if r.UserID == "" || r.HabitID == "" {
		return Date{}, fmt.Errorf("%w: user_id and habit_id are required", ErrInvalidSubmission)
	}
	date, err := ParseDate(r.SubmissionDate)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if r.ActualAmount < 0 || r.Points < 0 {
		return Date{}, fmt.Errorf("%w: amount and points must not be negative", ErrInvalidSubmission)
	}
	if r.PerceivedRating == "" {
		return Date{}, fmt.Errorf("%w: perceived_rating is required", ErrInvalidSubmission)
	}
	return date, nil
}

// RecentSubmission is a submission joined with its author and habit for activity feeds
type RecentSubmission struct {
	ID              string    `json:"id"`
	SubmissionDate  Date      `json:"submission_date"`
	ActualAmount    float64   `json:"actual_amount"`
	Points          float64   `json:"points"`
	PerceivedRating string    `json:"perceived_rating"`
	Note            *string   `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UserFirstName   *string   `json:"user_first_name,omitempty"`
	UserLastName    *string   `json:"user_last_name,omitempty"`
	HabitName       *string   `json:"habit_name,omitempty"`
	HabitUnit       *string   `json:"habit_unit,omitempty"`
	HabitDailyGoal  *int      `json:"habit_daily_goal,omitempty"`
}
