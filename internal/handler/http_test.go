package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
	"github.com/habit-scoreboard/internal/memstore"
	"github.com/habit-scoreboard/internal/scoring"
	"github.com/habit-scoreboard/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

type testServer struct {
	store   *memstore.Store
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	habits := service.NewHabitCache(store)
	stats := service.NewStatsService(store, habits, &cfg.Scoring, &cfg.Leaderboard, logger,
		service.WithClock(func() time.Time { return now }))
	profile := service.NewProfileService(store, store, habits, nil, logger)

	h := NewHandler(stats, profile, nil, NewRateLimiter(&rl), logger)
	return &testServer{store: store, handler: h, router: h.Router()}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

// decode re-encodes resp.Data into out
func decode(t *testing.T, resp APIResponse, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func (s *testServer) seedUser(t *testing.T, external, first string) (domain.User, domain.Habit) {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/api/v1/users", domain.UpsertUserRequest{
		ExternalID: external, Email: external + "@example.com", FirstName: &first,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var user domain.User
	decode(t, resp, &user)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/habits", domain.HabitRequest{
		UserID: user.ID, Name: "Meditate", Unit: "minutes", DailyGoal: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var habit domain.Habit
	decode(t, resp, &habit)
	return user, habit
}

func TestHandler_Health(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})

	rec, resp := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	s.handler.AddReadinessCheck("memory", s.store.Ping)
	rec, _ = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.handler.AddReadinessCheck("redis", func(ctx context.Context) error { return errors.New("down") })
	rec, resp = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "redis unavailable", resp.Error)
}

func TestHandler_SubmissionFlow(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	ann, habit := s.seedUser(t, "ext-ann", "Ann")
	ben, benHabit := s.seedUser(t, "ext-ben", "Ben")

	submit := func(user domain.User, habitID, date string, points float64) int {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/submissions", domain.CreateSubmissionRequest{
			UserID: user.ID, HabitID: habitID, SubmissionDate: date,
			ActualAmount: 10, Points: points, PerceivedRating: "easy",
		})
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, submit(ann, habit.ID, "2025-03-14", 1.0))
	require.Equal(t, http.StatusCreated, submit(ann, habit.ID, "2025-03-15", 2.5))
	require.Equal(t, http.StatusCreated, submit(ann, habit.ID, "2025-03-15", 1.0))
	require.Equal(t, http.StatusCreated, submit(ben, benHabit.ID, "2025-03-15", 0.5))

	assert.Equal(t, http.StatusBadRequest, submit(ann, habit.ID, "yesterday", 1.0))
	assert.Equal(t, http.StatusNotFound, submit(ann, benHabit.ID, "2025-03-15", 1.0))

	rec, resp := s.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.LeaderboardEntry
	decode(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "Ann", entries[0].Name)
	assert.Equal(t, 4.0, entries[0].TotalScore)
	assert.Equal(t, int64(2), entries[1].Rank)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/users/"+ann.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.UserStats
	decode(t, resp, &stats)
	assert.Equal(t, 4.0, stats.TotalScore)
	assert.Equal(t, 2, stats.DayStreak)
	assert.Equal(t, 100.0, stats.Completion.CompletionRate)
	assert.Equal(t, "You're in the lead! You're 3.5 points ahead of Ben.", stats.Message)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/group/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var group domain.GroupStats
	decode(t, resp, &group)
	assert.Equal(t, 4.5, group.GroupPoints)
	assert.Equal(t, 2, group.TotalDistinctUsers)
	assert.Equal(t, domain.CompletionStats{CompletedDays: 2, TotalActiveDays: 3, CompletionRate: 66.7}, group.Completion)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/users/"+ben.ID+"/message", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg map[string]string
	decode(t, resp, &msg)
	assert.Equal(t, scoring.EncouragementMessage, msg["message"])

	rec, resp = s.do(t, http.MethodGet, "/api/v1/submissions/recent?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []domain.RecentSubmission
	decode(t, resp, &recent)
	assert.Len(t, recent, 2)
}

func TestHandler_FetchFailureIsInternalError(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	s.store.FailWith = errors.New("connection reset")

	rec, resp := s.do(t, http.MethodGet, "/api/v1/users/u1/score", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.ErrInternalError.Error(), resp.Error)

	// The motivational message never fails
	rec, resp = s.do(t, http.MethodGet, "/api/v1/users/u1/message", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestHandler_Profile(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	user, habit := s.seedUser(t, "ext-cy", "Cy")

	rec, _ := s.do(t, http.MethodGet, "/api/v1/users/external/ext-none", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp := s.do(t, http.MethodPut, "/api/v1/users/external/ext-cy/names",
		map[string]string{"first_name": "Cyrus", "last_name": "Vance"})
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed domain.User
	decode(t, resp, &renamed)
	assert.Equal(t, user.ID, renamed.ID)
	assert.Equal(t, "Cyrus", renamed.DisplayName())

	rec, _ = s.do(t, http.MethodPut, "/api/v1/habits/"+habit.ID,
		domain.HabitRequest{Name: "Meditate", Unit: "minutes", DailyGoal: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/api/v1/habits/missing",
		domain.HabitRequest{Name: "Meditate", Unit: "minutes", DailyGoal: 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/api/v1/habits/"+habit.ID,
		domain.HabitRequest{Name: "Meditate", Unit: "minutes", DailyGoal: 20})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/users/"+user.ID+"/habits/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current domain.Habit
	decode(t, resp, &current)
	assert.Equal(t, 20, current.DailyGoal)
}

func TestHandler_RateLimitsSubmissions(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	s.handler.limiter.now = func() time.Time { return now }

	body := domain.CreateSubmissionRequest{}
	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/submissions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec, resp := s.do(t, http.MethodPost, "/api/v1/submissions", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, domain.ErrRateLimited.Error(), resp.Error)

	// Reads are not limited
	rec, _ = s.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	l := NewRateLimiter(&config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	clock := now
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	clock = clock.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	clock = clock.Add(visitorIdleTimeout + time.Second)
	l.Allow("10.0.0.3")
	assert.Len(t, l.visitors, 1)
}
