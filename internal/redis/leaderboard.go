package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
	"github.com/habit-scoreboard/internal/scoring"
	"github.com/redis/go-redis/v9"
)

const (
	leaderboardScoresKey = "scoreboard:leaderboard:scores"
	leaderboardNamesKey  = "scoreboard:leaderboard:names"
	leaderboardMetaKey   = "scoreboard:leaderboard:meta"
)

// LeaderboardCache stores the latest computed leaderboard and caches user display names
type LeaderboardCache struct {
	client  *redis.Client
	nameTTL time.Duration
	logger  *slog.Logger
}

// NewLeaderboardCache creates a new Redis leaderboard cache
func NewLeaderboardCache(cfg *config.RedisConfig, logger *slog.Logger) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewLeaderboardCacheWithClient(client, cfg.NameTTL, logger), nil
}

// NewLeaderboardCacheWithClient wraps an existing client
func NewLeaderboardCacheWithClient(client *redis.Client, nameTTL time.Duration, logger *slog.Logger) *LeaderboardCache {
	return &LeaderboardCache{
		client:  client,
		nameTTL: nameTTL,
		logger:  logger,
	}
}

// Close closes the Redis connection
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}

// Ping checks that Redis is reachable
func (c *LeaderboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// userNameKey returns the Redis key for a cached display name
func (c *LeaderboardCache) userNameKey(userID string) string {
	return fmt.Sprintf("scoreboard:user:%s:name", userID)
}

// StoreLeaderboard replaces the cached leaderboard with entries
func (c *LeaderboardCache) StoreLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, leaderboardScoresKey, leaderboardNamesKey)

	if len(entries) > 0 {
		members := make([]redis.Z, len(entries))
		names := make([]interface{}, 0, len(entries)*2)
		for i, e := range entries {
			members[i] = redis.Z{Score: e.TotalScore, Member: e.UserID}
			names = append(names, e.UserID, e.Name)
		}
		pipe.ZAdd(ctx, leaderboardScoresKey, members...)
		pipe.HSet(ctx, leaderboardNamesKey, names...)
	}
	pipe.HSet(ctx, leaderboardMetaKey, "refreshed_at", time.Now().UTC().Format(time.RFC3339))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing leaderboard: %w", err)
	}
	return nil
}

// CachedLeaderboard returns the stored leaderboard in ranking order.
// It returns an empty slice when nothing has been stored yet.
func (c *LeaderboardCache) CachedLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	pipe := c.client.Pipeline()
	scoresCmd := pipe.ZRevRangeWithScores(ctx, leaderboardScoresKey, 0, -1)
	namesCmd := pipe.HGetAll(ctx, leaderboardNamesKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("getting cached leaderboard: %w", err)
	}

	results, err := scoresCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting cached scores: %w", err)
	}
	names, err := namesCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting cached names: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		userID, _ := result.Member.(string)
		name := names[userID]
		if name == "" {
			name = domain.AnonymousName
		}
		entries[i] = domain.LeaderboardEntry{
			UserID:     userID,
			Name:       name,
			TotalScore: result.Score,
		}
	}
	// Redis orders equal scores by member, descending; restore our tie-break
	scoring.SortLeaderboard(entries)
	return entries, nil
}

// SetUserNames caches display names for nameTTL
func (c *LeaderboardCache) SetUserNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for userID, name := range names {
		pipe.Set(ctx, c.userNameKey(userID), name, c.nameTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting user names: %w", err)
	}
	return nil
}

// GetUserNames returns the cached names of the given users.
// Users without a cached name are absent from the result.
func (c *LeaderboardCache) GetUserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.userNameKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting user names: %w", err)
	}

	for i, v := range values {
		if name, ok := v.(string); ok {
			names[userIDs[i]] = name
		}
	}
	return names, nil
}

// InvalidateUserName drops a cached display name
func (c *LeaderboardCache) InvalidateUserName(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.userNameKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidating user name: %w", err)
	}
	return nil
}
