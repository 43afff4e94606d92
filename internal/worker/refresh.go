package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
)

// Refresher recomputes and stores the leaderboard snapshot
type Refresher interface {
	RefreshLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// RefreshWorker periodically refreshes the cached leaderboard snapshot
type RefreshWorker struct {
	refresher Refresher
	config    *config.RefreshConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(refresher Refresher, cfg *config.RefreshConfig, logger *slog.Logger) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		config:    cfg,
		logger:    logger,
	}
}

// Start refreshes once and then on every interval until Stop or ctx is done
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("refresh worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh loop
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single refresh cycle
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	startTime := time.Now()

	entries, err := w.refresher.RefreshLeaderboard(ctx)
	if err != nil {
		w.logger.Error("failed to refresh leaderboard", "error", err)
		return
	}

	w.logger.Info("leaderboard refreshed",
		"duration", time.Since(startTime),
		"users", len(entries),
	)
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
