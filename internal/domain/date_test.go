package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2025, time.January, 15), d)
	assert.Equal(t, "2025-01-15", d.String())

	_, err = ParseDate("15/01/2025")
	assert.Error(t, err)
}

func TestDateOf_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	instant := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, NewDate(2025, 3, 1), DateOf(instant))
	assert.Equal(t, NewDate(2025, 3, 2), DateOf(instant.In(loc)))
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)
	assert.Equal(t, NewDate(2024, time.March, 1), d.AddDays(2))
	assert.Equal(t, 2, d.AddDays(2).DaysSince(d))
	assert.Equal(t, -2, d.DaysSince(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, d, d.AddDays(1).AddDays(-1))
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		Date Date `json:"date"`
	}

	data, err := json.Marshal(wrapper{Date: NewDate(2025, 7, 4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-07-04"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-12-31"}`), &w))
	assert.Equal(t, NewDate(2025, 12, 31), w.Date)

	assert.Error(t, json.Unmarshal([]byte(`{"date":"yesterday"}`), &w))
}

func TestFetchError(t *testing.T) {
	err := &FetchError{Op: "listing submissions", UserID: "u1", Err: ErrTooManyRows}
	assert.ErrorIs(t, err, ErrDataFetch)
	assert.ErrorIs(t, err, ErrTooManyRows)
	assert.False(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "u1")
}

func TestCreateSubmissionRequest_Validate(t *testing.T) {
	req := CreateSubmissionRequest{
		UserID:          "u1",
		HabitID:         "h1",
		SubmissionDate:  "2025-01-15",
		ActualAmount:    30,
		Points:          1,
		PerceivedRating: "7",
	}
	date, err := req.Validate()
	require.NoError(t, err)
	assert.Equal(t, NewDate(2025, 1, 15), date)

	bad := req
	bad.Points = -1
	_, err = bad.Validate()
	assert.ErrorIs(t, err, ErrInvalidSubmission)

	bad = req
	bad.SubmissionDate = "2025-13-01"
	_, err = bad.Validate()
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}
