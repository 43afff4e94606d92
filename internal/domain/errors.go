package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrHabitNotFound     = errors.New("habit not found")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidHabit      = errors.New("invalid habit")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrDataFetch         = errors.New("failed to fetch data")
	ErrTooManyRows       = errors.New("row limit exceeded")
	ErrInternalError     = errors.New("internal server error")
)

// FetchError reports a failure of the record store while serving an operation.
type FetchError struct {
	Op     string
	UserID string
	Err    error
}

func (e *FetchError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s (user %s): %v", e.Op, e.UserID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes every FetchError match ErrDataFetch
func (e *FetchError) Is(target error) bool {
	return target == ErrDataFetch
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrHabitNotFound)
}

// IsValidationError checks if an error was caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, ErrInvalidHabit) ||
		errors.Is(err, ErrInvalidRequest)
}
