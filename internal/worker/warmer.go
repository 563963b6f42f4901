package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gamesync-backend/internal/config"
	"github.com/gamesync-backend/internal/domain"
)

// ProfileLister reads recently written profiles for warming
type ProfileLister interface {
	RecentlyUpdatedProfiles(ctx context.Context, since time.Time, limit int) ([]domain.Profile, error)
}

// Warmer is the cache surface the worker re-primes
type Warmer interface {
	SetSnapshot(ctx context.Context, playerID int64, snapshot *domain.Snapshot) error
	SetBalance(ctx context.Context, playerID, balance int64) error
}

// CacheWarmer periodically re-primes the Redis cache from recently updated
// profiles so reads stay warm across restarts and TTL expiry. The database
// remains authoritative; warming failures are logged and retried next cycle.
type CacheWarmer struct {
	store   ProfileLister
	cache   Warmer
	config  *config.WarmerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewCacheWarmer creates a new cache warming worker
func NewCacheWarmer(store ProfileLister, cache Warmer, cfg *config.WarmerConfig, logger *slog.Logger) *CacheWarmer {
	return &CacheWarmer{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background warming process
func (w *CacheWarmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("cache warmer started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background warming process
func (w *CacheWarmer) Stop() error {
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

	w.logger.Info("cache warmer stopped")
	return nil
}

// run is the main worker loop
func (w *CacheWarmer) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.warm(ctx)
		}
	}
}

// warm re-primes cache entries for profiles written inside the lookback window
func (w *CacheWarmer) warm(ctx context.Context) {
	startTime := time.Now()
	since := startTime.Add(-w.config.Lookback)

	profiles, err := w.store.RecentlyUpdatedProfiles(ctx, since, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to list profiles for warming", "error", err)
		return
	}

	warmed := 0
	errorCount := 0
	for _, profile := range profiles {
		snapshot := &domain.Snapshot{Data: profile.Data, UpdatedAt: profile.UpdatedAt}
		if err := w.cache.SetSnapshot(ctx, profile.PlayerID, snapshot); err != nil {
			w.logger.Warn("failed to warm snapshot", "player_id", profile.PlayerID, "error", err)
			errorCount++
			continue
		}
		if err := w.cache.SetBalance(ctx, profile.PlayerID, domain.Coins(profile.Data)); err != nil {
			w.logger.Warn("failed to warm balance", "player_id", profile.PlayerID, "error", err)
			errorCount++
			continue
		}
		warmed++
	}

	w.logger.Info("cache warming cycle completed",
		"duration", time.Since(startTime),
		"warmed", warmed,
		"errors", errorCount,
	)
}

// IsRunning returns whether the worker is currently running
func (w *CacheWarmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single warming cycle (used at startup for recovery)
func (w *CacheWarmer) RunOnce(ctx context.Context) {
	w.warm(ctx)
}
