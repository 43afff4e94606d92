package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/habit-scoreboard/internal/domain"
	"github.com/habit-scoreboard/internal/service"
	"github.com/habit-scoreboard/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the scoreboard API
type Handler struct {
	stats   *service.StatsService
	profile *service.ProfileService
	hub     *websocket.Hub
	limiter *RateLimiter
	checks  map[string]ReadinessCheck
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. hub and limiter may be nil.
func NewHandler(
	stats *service.StatsService,
	profile *service.ProfileService,
	hub *websocket.Hub,
	limiter *RateLimiter,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		stats:   stats,
		profile: profile,
		hub:     hub,
		limiter: limiter,
		checks:  make(map[string]ReadinessCheck),
		logger:  logger,
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/submissions", func(r chi.Router) {
			r.With(h.rateLimited).Post("/", h.CreateSubmission)
			r.With(h.rateLimited).Post("/batch", h.CreateSubmissionBatch)
			r.Get("/recent", h.RecentSubmissions)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/cached", h.GetCachedLeaderboard)
			r.Post("/refresh", h.RefreshLeaderboard)
		})

		r.Route("/group", func(r chi.Router) {
			r.Get("/stats", h.GetGroupStats)
			r.Get("/completion-rate", h.GetGroupCompletionRate)
			r.Get("/total-points", h.GetGroupTotalPoints)
			r.Get("/distinct-users", h.GetTotalDistinctUsers)
		})

		r.Get("/messages/daily", h.GetDailyMessage)

		r.Post("/users", h.UpsertUser)
		r.Get("/users/external/{externalID}", h.GetUser)
		r.Put("/users/external/{externalID}/names", h.UpdateUserNames)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/stats", h.GetUserStats)
			r.Get("/score", h.GetTotalScore)
			r.Get("/completion-rate", h.GetCompletionRate)
			r.Get("/challenge-completion-rate", h.GetChallengeCompletionRate)
			r.Get("/days-active", h.GetDaysActive)
			r.Get("/streak", h.GetDayStreak)
			r.Get("/progress", h.GetChallengeProgress)
			r.Get("/message", h.GetMotivationalMessage)
			r.Get("/habits", h.ListHabits)
			r.Get("/habits/current", h.GetCurrentHabit)
		})

		r.Post("/habits", h.CreateHabit)
		r.Put("/habits/{habitID}", h.UpdateHabit)

		if h.hub != nil {
			r.Get("/ws/stats", h.GetWebSocketStats)
		}
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to its HTTP status.
// Unexpected errors are logged and hidden behind a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err)
	default:
		h.logger.Error("failed to "+action,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// queryLimit parses the limit query parameter, returning 0 when absent or invalid
func queryLimit(r *http.Request) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return 0
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections":       h.hub.GetTotalConnections(),
		"leaderboard_subscribers": h.hub.GetSubscriberCount(websocket.TopicLeaderboard),
		"submission_subscribers":  h.hub.GetSubscriberCount(websocket.TopicSubmissions),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Error:   name + " unavailable",
			})
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// CreateSubmission handles a single activity submission
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	sub, err := h.stats.CreateSubmission(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create submission", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    sub,
	})
}

// CreateSubmissionBatch handles several submissions at once
func (h *Handler) CreateSubmissionBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchSubmission
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if len(batch.Submissions) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	created, err := h.stats.CreateSubmissionBatch(r.Context(), batch)
	if err != nil {
		h.writeServiceError(w, r, "create submission batch", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"received": len(batch.Submissions),
		"created":  created,
	})
}

// RecentSubmissions returns the activity feed
func (h *Handler) RecentSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.stats.RecentSubmissions(r.Context(), queryLimit(r))
	if err != nil {
		h.writeServiceError(w, r, "get recent submissions", err)
		return
	}
	h.writeSuccess(w, subs)
}

// GetLeaderboard computes the leaderboard from the record store
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.stats.BuildLeaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "build leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetCachedLeaderboard returns the latest leaderboard snapshot
func (h *Handler) GetCachedLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.stats.CachedLeaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "get cached leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// RefreshLeaderboard recomputes and stores the leaderboard snapshot
func (h *Handler) RefreshLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.stats.RefreshLeaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "refresh leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetGroupStats returns every group metric
func (h *Handler) GetGroupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GroupStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "get group stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetGroupCompletionRate returns the group completion rate
func (h *Handler) GetGroupCompletionRate(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GroupCompletionRate(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "get group completion rate", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetGroupTotalPoints returns the sum of all users' scores
func (h *Handler) GetGroupTotalPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.stats.GroupTotalPoints(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "get group total points", err)
		return
	}
	h.writeSuccess(w, map[string]float64{"total_points": points})
}

// GetTotalDistinctUsers returns how many users have submitted
func (h *Handler) GetTotalDistinctUsers(w http.ResponseWriter, r *http.Request) {
	n, err := h.stats.TotalDistinctUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "count distinct users", err)
		return
	}
	h.writeSuccess(w, map[string]int{"total_distinct_users": n})
}

// GetDailyMessage returns today's encouragement
func (h *Handler) GetDailyMessage(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"message": h.stats.DailyMessage()})
}

// GetUserStats returns every per-user metric
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get user stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetTotalScore returns the user's total score
func (h *Handler) GetTotalScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	score, err := h.stats.TotalScore(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "get total score", err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"user_id": userID, "total_score": score})
}

// GetCompletionRate returns the user's active-days completion rate
func (h *Handler) GetCompletionRate(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.CompletionRate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get completion rate", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetChallengeCompletionRate returns the user's challenge-days completion rate
func (h *Handler) GetChallengeCompletionRate(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.ChallengeCompletionRate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get challenge completion rate", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetDaysActive returns the number of days the user submitted on
func (h *Handler) GetDaysActive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := h.stats.DaysActive(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "get days active", err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"user_id": userID, "days_active": n})
}

// GetDayStreak returns the user's current streak
func (h *Handler) GetDayStreak(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	streak, err := h.stats.DayStreak(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "get day streak", err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"user_id": userID, "day_streak": streak})
}

// GetChallengeProgress returns the user's position in the challenge
func (h *Handler) GetChallengeProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.stats.ChallengeProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get challenge progress", err)
		return
	}
	h.writeSuccess(w, progress)
}

// GetMotivationalMessage returns the user's leaderboard message
func (h *Handler) GetMotivationalMessage(w http.ResponseWriter, r *http.Request) {
	msg := h.stats.MotivationalMessage(r.Context(), chi.URLParam(r, "userID"))
	h.writeSuccess(w, map[string]string{"message": msg})
}

// UpsertUser creates or refreshes a user from identity provider data
func (h *Handler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UpsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user, err := h.profile.UpsertUser(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "upsert user", err)
		return
	}
	h.writeSuccess(w, user)
}

// GetUser returns a user by identity provider id
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.profile.GetUser(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.writeServiceError(w, r, "get user", err)
		return
	}
	h.writeSuccess(w, user)
}

// UpdateUserNames changes a user's names
func (h *Handler) UpdateUserNames(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateNamesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	req.ExternalID = chi.URLParam(r, "externalID")

	user, err := h.profile.UpdateUserNames(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "update user names", err)
		return
	}
	h.writeSuccess(w, user)
}

// ListHabits returns the user's habits
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.profile.ListHabits(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "list habits", err)
		return
	}
	h.writeSuccess(w, habits)
}

// GetCurrentHabit returns the habit the user is tracking
func (h *Handler) GetCurrentHabit(w http.ResponseWriter, r *http.Request) {
	habit, err := h.profile.CurrentHabit(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, r, "get current habit", err)
		return
	}
	h.writeSuccess(w, habit)
}

// CreateHabit defines a new habit
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req domain.HabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	habit, err := h.profile.CreateHabit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create habit", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    habit,
	})
}

// UpdateHabit edits an existing habit
func (h *Handler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	var req domain.HabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	req.ID = chi.URLParam(r, "habitID")

	habit, err := h.profile.UpdateHabit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "update habit", err)
		return
	}
	h.writeSuccess(w, habit)
}
