package worker

import (
	"context"
	"sync"

	"codenvibe/internal/domain/model"
	"codenvibe/internal/platform/logger"

	"go.uber.org/zap"
)

type LeaderboardRecomputer interface {
	Recompute(ctx context.Context, year int) ([]model.LeaderboardEntry, error)
}

type LeaderboardPublisher interface {
	Publish(year int, entries []model.LeaderboardEntry) error
}

// LeaderboardWorker recomputes and broadcasts cohort leaderboards off the
// request path. Notifications for a cohort that arrive while it is being
// refreshed collapse into a single follow-up refresh.
type LeaderboardWorker struct {
	recomputer LeaderboardRecomputer
	publisher  LeaderboardPublisher

	wake    chan struct{}
	mu      sync.Mutex
	dirty   map[int]bool
	running map[int]bool
	wg      sync.WaitGroup
}

func NewLeaderboardWorker(recomputer LeaderboardRecomputer, publisher LeaderboardPublisher) *LeaderboardWorker {
	return &LeaderboardWorker{
		recomputer: recomputer,
		publisher:  publisher,
		wake:       make(chan struct{}, 1),
		dirty:      make(map[int]bool),
		running:    make(map[int]bool),
	}
}

// Notify marks a cohort as changed. It never blocks.
func (w *LeaderboardWorker) Notify(year int) {
	w.mu.Lock()
	w.dirty[year] = true
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start blocks until ctx is cancelled and in-flight refreshes finished.
func (w *LeaderboardWorker) Start(ctx context.Context) {
	logger.Info(ctx, "leaderboard worker started", zap.String("component", "leaderboard_worker"))
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			logger.Info(ctx, "leaderboard worker stopped", zap.String("component", "leaderboard_worker"))
			return
		case <-w.wake:
			w.dispatch(ctx)
		}
	}
}

func (w *LeaderboardWorker) dispatch(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for year := range w.dirty {
		if w.running[year] {
			continue
		}
		delete(w.dirty, year)
		w.running[year] = true
		w.wg.Add(1)
		go w.drain(ctx, year)
	}
}

func (w *LeaderboardWorker) drain(ctx context.Context, year int) {
	defer w.wg.Done()
	for {
		w.refresh(ctx, year)

		w.mu.Lock()
		if w.dirty[year] && ctx.Err() == nil {
			delete(w.dirty, year)
			w.mu.Unlock()
			continue
		}
		delete(w.running, year)
		w.mu.Unlock()
		return
	}
}

func (w *LeaderboardWorker) refresh(ctx context.Context, year int) {
	entries, err := w.recomputer.Recompute(ctx, year)
	if err != nil {
		logger.Error(ctx, "leaderboard recompute failed",
			zap.String("component", "leaderboard_worker"), zap.Int("year", year), zap.Error(err))
		return
	}
	if err := w.publisher.Publish(year, entries); err != nil {
		logger.Error(ctx, "leaderboard publish failed",
			zap.String("component", "leaderboard_worker"), zap.Int("year", year), zap.Error(err))
	}
}
