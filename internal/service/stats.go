package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
	"github.com/habit-scoreboard/internal/metrics"
	"github.com/habit-scoreboard/internal/scoring"
)

// Submission sources used as metric labels
const (
	SourceAPI   = "api"
	SourceKafka = "kafka"
)

// StatsService computes scores, completion rates, streaks and the leaderboard
// from submission records, and accepts new submissions.
type StatsService struct {
	submissions SubmissionStore
	habits      *HabitCache
	cache       LeaderboardCache
	broadcaster Broadcaster
	metrics     *metrics.Metrics

	policy        scoring.Policy
	challengeDays int
	maxRows       int
	loc           *time.Location
	limits        *config.LeaderboardConfig

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a StatsService
type Option func(*StatsService)

// WithClock overrides the clock used to determine today's date
func WithClock(now func() time.Time) Option {
	return func(s *StatsService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCache enables the leaderboard snapshot and display-name cache
func WithCache(cache LeaderboardCache) Option {
	return func(s *StatsService) {
		s.cache = cache
	}
}

// WithBroadcaster publishes new submissions and leaderboards to live subscribers
func WithBroadcaster(b Broadcaster) Option {
	return func(s *StatsService) {
		s.broadcaster = b
	}
}

// WithMetrics records computation and submission metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StatsService) {
		s.metrics = m
	}
}

// NewStatsService creates a new stats service
func NewStatsService(
	submissions SubmissionStore,
	habits *HabitCache,
	scoringCfg *config.ScoringConfig,
	limits *config.LeaderboardConfig,
	logger *slog.Logger,
	opts ...Option,
) *StatsService {
	s := &StatsService{
		submissions:   submissions,
		habits:        habits,
		policy:        scoring.NewPolicy(*scoringCfg),
		challengeDays: scoringCfg.ChallengeDays,
		maxRows:       scoringCfg.MaxFetchRows,
		loc:           scoringCfg.Location(),
		limits:        limits,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// today returns the current calendar date in the configured timezone
func (s *StatsService) today() domain.Date {
	return domain.DateOf(s.now().In(s.loc))
}

func (s *StatsService) observe(op string, started time.Time, err *error) {
	s.metrics.ObserveComputation(op, started, *err)
}

// fetch loads submissions for one user, or for everyone when userID is empty.
// Loading more than maxRows rows fails instead of truncating.
func (s *StatsService) fetch(ctx context.Context, op, userID string) (scoring.DailyTotals, error) {
	subs, err := s.submissions.ListSubmissions(ctx, userID, s.maxRows+1)
	if err != nil {
		return nil, &domain.FetchError{Op: op, UserID: userID, Err: err}
	}
	if len(subs) > s.maxRows {
		return nil, &domain.FetchError{Op: op, UserID: userID, Err: domain.ErrTooManyRows}
	}
	s.metrics.ObserveRows(len(subs))
	return scoring.Aggregate(subs), nil
}

func (s *StatsService) userDays(ctx context.Context, op, userID string) ([]scoring.DayTotal, error) {
	totals, err := s.fetch(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	return totals.ForUser(userID), nil
}

// displayNames resolves leaderboard names, reading the cache first
func (s *StatsService) displayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	missing := userIDs

	if s.cache != nil && len(userIDs) > 0 {
		cached, err := s.cache.GetUserNames(ctx, userIDs)
		if err != nil {
			s.logger.Warn("failed to read cached user names", "error", err)
		} else {
			missing = make([]string, 0, len(userIDs))
			for _, id := range userIDs {
				if name, ok := cached[id]; ok {
					names[id] = name
				} else {
					missing = append(missing, id)
				}
			}
		}
	}

	if len(missing) == 0 {
		return names, nil
	}

	fetched, err := s.submissions.GetUserNames(ctx, missing)
	if err != nil {
		return nil, &domain.FetchError{Op: "fetching display names", Err: err}
	}
	for id, name := range fetched {
		names[id] = name
	}

	if s.cache != nil {
		if err := s.cache.SetUserNames(ctx, fetched); err != nil {
			s.logger.Warn("failed to cache user names", "error", err)
		}
	}
	return names, nil
}

func (s *StatsService) leaderboard(ctx context.Context, totals scoring.DailyTotals) ([]domain.LeaderboardEntry, error) {
	names, err := s.displayNames(ctx, totals.Users())
	if err != nil {
		return nil, err
	}
	return s.policy.Leaderboard(totals, names), nil
}

// TotalScore returns the user's capped score rounded to one decimal
func (s *StatsService) TotalScore(ctx context.Context, userID string) (score float64, err error) {
	defer s.observe("total_score", time.Now(), &err)

	days, err := s.userDays(ctx, "total score", userID)
	if err != nil {
		return 0, err
	}
	score = s.policy.TotalScore(days)
	s.logger.Debug("calculated total score", "user_id", userID, "score", score, "days", len(days))
	return score, nil
}

// CompletionRate returns the share of the user's active days that were completed
func (s *StatsService) CompletionRate(ctx context.Context, userID string) (stats domain.CompletionStats, err error) {
	defer s.observe("completion_rate", time.Now(), &err)

	days, err := s.userDays(ctx, "completion rate", userID)
	if err != nil {
		return domain.CompletionStats{}, err
	}
	stats = s.policy.ActiveDayCompletion(days)
	s.logger.Debug("calculated completion rate", "user_id", userID, "rate", stats.CompletionRate)
	return stats, nil
}

// ChallengeCompletionRate returns the share of calendar days since the user's
// first submission that were completed
func (s *StatsService) ChallengeCompletionRate(ctx context.Context, userID string) (stats domain.ChallengeCompletion, err error) {
	defer s.observe("challenge_completion_rate", time.Now(), &err)

	days, err := s.userDays(ctx, "challenge completion rate", userID)
	if err != nil {
		return domain.ChallengeCompletion{}, err
	}
	stats = s.policy.ChallengeCompletion(days, s.today())
	s.logger.Debug("calculated challenge completion rate", "user_id", userID, "rate", stats.CompletionRate)
	return stats, nil
}

// GroupCompletionRate returns completed user-days over active user-days across everyone
func (s *StatsService) GroupCompletionRate(ctx context.Context) (stats domain.CompletionStats, err error) {
	defer s.observe("group_completion_rate", time.Now(), &err)

	totals, err := s.fetch(ctx, "group completion rate", "")
	if err != nil {
		return domain.CompletionStats{}, err
	}
	stats = s.policy.GroupCompletion(totals)
	s.logger.Debug("calculated group completion rate", "rate", stats.CompletionRate)
	return stats, nil
}

// DaysActive returns the number of distinct dates the user submitted on
func (s *StatsService) DaysActive(ctx context.Context, userID string) (n int, err error) {
	defer s.observe("days_active", time.Now(), &err)

	days, err := s.userDays(ctx, "days active", userID)
	if err != nil {
		return 0, err
	}
	return len(days), nil
}

// DayStreak returns the number of consecutive completed days ending today or yesterday
func (s *StatsService) DayStreak(ctx context.Context, userID string) (streak int, err error) {
	defer s.observe("day_streak", time.Now(), &err)

	days, err := s.userDays(ctx, "day streak", userID)
	if err != nil {
		return 0, err
	}
	streak = s.policy.DayStreak(days, s.today())
	s.logger.Debug("calculated day streak", "user_id", userID, "streak", streak)
	return streak, nil
}

// ChallengeProgress returns the user's position in the challenge window
func (s *StatsService) ChallengeProgress(ctx context.Context, userID string) (progress domain.ChallengeProgress, err error) {
	defer s.observe("challenge_progress", time.Now(), &err)

	days, err := s.userDays(ctx, "challenge progress", userID)
	if err != nil {
		return domain.ChallengeProgress{}, err
	}
	return scoring.ChallengeProgress(days, s.today(), s.challengeDays), nil
}

// BuildLeaderboard ranks every user with at least one submission
func (s *StatsService) BuildLeaderboard(ctx context.Context) (entries []domain.LeaderboardEntry, err error) {
	defer s.observe("leaderboard", time.Now(), &err)

	totals, err := s.fetch(ctx, "leaderboard", "")
	if err != nil {
		return nil, err
	}
	entries, err = s.leaderboard(ctx, totals)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("built leaderboard", "users", len(entries))
	return entries, nil
}

// GroupTotalPoints returns the sum of every user's total score
func (s *StatsService) GroupTotalPoints(ctx context.Context) (float64, error) {
	entries, err := s.BuildLeaderboard(ctx)
	if err != nil {
		return 0, err
	}
	return scoring.GroupTotalPoints(entries), nil
}

// TotalDistinctUsers returns the number of users with at least one submission
func (s *StatsService) TotalDistinctUsers(ctx context.Context) (n int, err error) {
	defer s.observe("distinct_users", time.Now(), &err)

	totals, err := s.fetch(ctx, "distinct users", "")
	if err != nil {
		return 0, err
	}
	return len(totals.Users()), nil
}

// MotivationalMessage returns a message about the user's leaderboard position.
// It never fails; fetch errors yield a generic encouragement.
func (s *StatsService) MotivationalMessage(ctx context.Context, userID string) string {
	entries, err := s.BuildLeaderboard(ctx)
	if err != nil {
		s.logger.Warn("falling back to generic motivational message", "user_id", userID, "error", err)
		return scoring.FallbackMessage
	}
	return s.policy.MotivationalMessage(entries, userID)
}

// DailyMessage returns today's rotating encouragement
func (s *StatsService) DailyMessage() string {
	return scoring.DailyMessage(s.today())
}

// UserStats computes every per-user metric from a single fetch
func (s *StatsService) UserStats(ctx context.Context, userID string) (stats *domain.UserStats, err error) {
	defer s.observe("user_stats", time.Now(), &err)

	totals, err := s.fetch(ctx, "user stats", "")
	if err != nil {
		return nil, err
	}
	today := s.today()
	days := totals.ForUser(userID)

	stats = &domain.UserStats{
		UserID:              userID,
		TotalScore:          s.policy.TotalScore(days),
		Completion:          s.policy.ActiveDayCompletion(days),
		ChallengeCompletion: s.policy.ChallengeCompletion(days, today),
		DaysActive:          len(days),
		DayStreak:           s.policy.DayStreak(days, today),
		Progress:            scoring.ChallengeProgress(days, today, s.challengeDays),
	}

	entries, err := s.leaderboard(ctx, totals)
	if err != nil {
		s.logger.Warn("falling back to generic motivational message", "user_id", userID, "error", err)
		stats.Message = scoring.FallbackMessage
		return stats, nil
	}
	stats.Message = s.policy.MotivationalMessage(entries, userID)
	return stats, nil
}

// GroupStats computes the group-wide metrics from a single fetch
func (s *StatsService) GroupStats(ctx context.Context) (stats *domain.GroupStats, err error) {
	defer s.observe("group_stats", time.Now(), &err)

	totals, err := s.fetch(ctx, "group stats", "")
	if err != nil {
		return nil, err
	}
	entries, err := s.leaderboard(ctx, totals)
	if err != nil {
		return nil, err
	}
	return &domain.GroupStats{
		Leaderboard:        entries,
		Completion:         s.policy.GroupCompletion(totals),
		GroupPoints:        scoring.GroupTotalPoints(entries),
		TotalDistinctUsers: len(entries),
	}, nil
}

// CreateSubmission records a new activity and then refreshes the leaderboard snapshot
func (s *StatsService) CreateSubmission(ctx context.Context, req domain.CreateSubmissionRequest) (*domain.Submission, error) {
	sub, err := s.createSubmission(ctx, req, SourceAPI)
	if err != nil {
		return nil, err
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSubmission(*sub)
	}
	s.refreshAfterWrite(ctx)
	return sub, nil
}

// CreateSubmissionBatch records several submissions, skipping the ones that fail.
// It returns how many were created. When no submission was created and
// every failure came from the store rather than the input, the batch fails
// so the caller can retry it.
func (s *StatsService) CreateSubmissionBatch(ctx context.Context, batch domain.BatchSubmission) (int, error) {
	created := 0
	var storeErr error
	storeFailures := 0
	for _, req := range batch.Submissions {
		sub, err := s.createSubmission(ctx, req, SourceKafka)
		if err != nil {
			s.logger.Error("failed to create submission in batch",
				"user_id", req.UserID,
				"habit_id", req.HabitID,
				"error", err,
			)
			if !domain.IsValidationError(err) && !domain.IsNotFoundError(err) {
				storeErr = err
				storeFailures++
			}
			continue
		}
		created++
		if s.broadcaster != nil {
			s.broadcaster.BroadcastSubmission(*sub)
		}
	}
	if created > 0 {
		s.refreshAfterWrite(ctx)
	}
	if created == 0 && storeFailures > 0 && storeFailures == len(batch.Submissions) {
		return 0, fmt.Errorf("all %d submissions in batch failed: %w", storeFailures, storeErr)
	}
	return created, nil
}

func (s *StatsService) createSubmission(ctx context.Context, req domain.CreateSubmissionRequest, source string) (*domain.Submission, error) {
	date, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if _, err := s.habits.Lookup(ctx, req.UserID, req.HabitID); err != nil {
		return nil, err
	}

	sub := domain.Submission{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		HabitID:         req.HabitID,
		SubmissionDate:  date,
		ActualAmount:    req.ActualAmount,
		Points:          req.Points,
		PerceivedRating: req.PerceivedRating,
		Note:            req.Note,
		CreatedAt:       s.now().UTC(),
	}
	created, err := s.submissions.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("creating submission: %w", err)
	}

	s.metrics.ObserveSubmission(source)
	s.logger.Info("submission created",
		"submission_id", created.ID,
		"user_id", created.UserID,
		"date", created.SubmissionDate.String(),
		"points", created.Points,
	)
	return created, nil
}

// refreshAfterWrite updates the snapshot without failing the write
func (s *StatsService) refreshAfterWrite(ctx context.Context) {
	if s.cache == nil && s.broadcaster == nil {
		return
	}
	if _, err := s.RefreshLeaderboard(ctx); err != nil {
		s.logger.Warn("failed to refresh leaderboard after submission", "error", err)
	}
}

// RecentSubmissions returns the newest submissions with author and habit details
func (s *StatsService) RecentSubmissions(ctx context.Context, limit int) ([]domain.RecentSubmission, error) {
	if limit <= 0 {
		limit = s.limits.DefaultLimit
	}
	if limit > s.limits.MaxLimit {
		limit = s.limits.MaxLimit
	}

	subs, err := s.submissions.RecentSubmissions(ctx, limit)
	if err != nil {
		return nil, &domain.FetchError{Op: "recent submissions", Err: err}
	}
	return subs, nil
}

// RefreshLeaderboard recomputes the leaderboard, stores it as the cached
// snapshot and broadcasts it
func (s *StatsService) RefreshLeaderboard(ctx context.Context) (entries []domain.LeaderboardEntry, err error) {
	defer func() { s.metrics.ObserveSnapshotRefresh(err) }()

	entries, err = s.BuildLeaderboard(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.StoreLeaderboard(ctx, entries); err != nil {
			return nil, fmt.Errorf("storing leaderboard snapshot: %w", err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastLeaderboard(entries)
	}
	return entries, nil
}

// CachedLeaderboard returns the stored snapshot, computing the leaderboard
// when no snapshot is available
func (s *StatsService) CachedLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if s.cache != nil {
		entries, err := s.cache.CachedLeaderboard(ctx)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			s.logger.Warn("failed to read leaderboard snapshot", "error", err)
		}
	}
	return s.BuildLeaderboard(ctx)
}
