package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/metrics"
)

// CountSource is the authoritative store of like counts
type CountSource interface {
	GetAllLikeCounts(ctx context.Context) (map[string]int64, error)
}

// CountCache is the cache reconciled against the source
type CountCache interface {
	BatchSetLikeCounts(ctx context.Context, counts map[string]int64) error
	CachedWorldIDs(ctx context.Context) ([]string, error)
	Forget(ctx context.Context, worldIDs ...string) error
}

// SyncWorker periodically rebuilds the Redis like counts from PostgreSQL
type SyncWorker struct {
	source  CountSource
	cache   CountCache
	config  *config.SyncConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	source CountSource,
	cache CountCache,
	cfg *config.SyncConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		source:  source,
		cache:   cache,
		config:  cfg,
		metrics: m,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
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

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
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
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single sync cycle and logs its outcome
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	synced, err := w.SyncFromDatabase(ctx)
	w.metrics.CacheSync(synced, err)
	if err != nil {
		w.logger.Error("failed to sync like counts", "error", err)
		return
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"worlds", synced,
	)
}

// SyncFromDatabase copies every world's like count into the cache in
// batches and drops cached worlds that no longer exist. It returns the
// number of worlds written.
//
// Counts are a snapshot; a like committed after the read may be overwritten
// with the older value until the next mutation or the next cycle.
func (w *SyncWorker) SyncFromDatabase(ctx context.Context) (int, error) {
	counts, err := w.source.GetAllLikeCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading like counts: %w", err)
	}

	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	synced := 0
	for worldID, count := range counts {
		batch[worldID] = count
		if len(batch) >= batchSize {
			if err := w.cache.BatchSetLikeCounts(ctx, batch); err != nil {
				return synced, fmt.Errorf("writing like counts: %w", err)
			}
			synced += len(batch)
			batch = make(map[string]int64, batchSize)
		}
	}

	// Process remaining batch
	if len(batch) > 0 {
		if err := w.cache.BatchSetLikeCounts(ctx, batch); err != nil {
			return synced, fmt.Errorf("writing like counts: %w", err)
		}
		synced += len(batch)
	}

	cached, err := w.cache.CachedWorldIDs(ctx)
	if err != nil {
		return synced, fmt.Errorf("listing cached worlds: %w", err)
	}

	var stale []string
	for _, worldID := range cached {
		if _, ok := counts[worldID]; !ok {
			stale = append(stale, worldID)
		}
	}
	if len(stale) > 0 {
		if err := w.cache.Forget(ctx, stale...); err != nil {
			return synced, fmt.Errorf("forgetting stale worlds: %w", err)
		}
		w.logger.Debug("dropped stale cached worlds", "count", len(stale))
	}

	return synced, nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
