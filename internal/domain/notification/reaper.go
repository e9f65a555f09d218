package notification

import (
	"context"
	"log/slog"
	"time"
)

// ReaperConfig holds configuration for the stale log reaper.
type ReaperConfig struct {
	// Interval is how often the reaper scans for stale logs.
	Interval time.Duration

	// StaleThreshold is how long a log can sit in pending before the reaper
	// considers its queue task lost and re-enqueues it.
	StaleThreshold time.Duration

	// BatchSize is the maximum number of stale logs recovered per cycle.
	BatchSize int
}

// Reaper periodically scans the store for logs stuck in pending and
// re-enqueues their delivery. The database is the source of truth; the reaper
// reconciles it with the queue so a wiped Redis or a crashed worker never
// permanently loses a message.
type Reaper struct {
	store    Store
	enqueuer Enqueuer
	config   ReaperConfig
}

// NewReaper creates a new stale log reaper.
func NewReaper(store Store, enqueuer Enqueuer, cfg ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	return &Reaper{
		store:    store,
		enqueuer: enqueuer,
		config:   cfg,
	}
}

// Run starts the reaper loop. It blocks until the context is cancelled.
// Should be called in a goroutine.
func (r *Reaper) Run(ctx context.Context) {
	slog.Info("reaper started",
		"interval", r.config.Interval,
		"stale_threshold", r.config.StaleThreshold,
		"batch_size", r.config.BatchSize,
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep performs one reaper cycle: find stale pending logs and re-enqueue
// their delivery.
func (r *Reaper) sweep(ctx context.Context) {
	olderThan := time.Now().Add(-r.config.StaleThreshold)

	stale, err := r.store.ListStaleLogs(ctx, olderThan, r.config.BatchSize)
	if err != nil {
		slog.Error("reaper: failed to list stale logs", "error", err)
		return
	}

	if len(stale) == 0 {
		return // Nothing to do — the common case
	}

	slog.Warn("reaper: found stale logs", "count", len(stale))

	recovered := 0
	for _, log := range stale {
		if log.CampaignID != "" {
			// Campaign logs are owned by the dispatch loop; resume handles
			// their recovery.
			continue
		}

		if err := r.enqueuer.EnqueueDeliverLog(log.ID); err != nil {
			slog.Error("reaper: failed to re-enqueue delivery",
				"log_id", log.ID,
				"error", err,
			)
			continue
		}

		recovered++
		slog.Info("reaper: recovered stale log",
			"log_id", log.ID,
			"age", time.Since(log.UpdatedAt).Round(time.Second),
		)
	}

	if recovered > 0 {
		slog.Info("reaper: sweep complete", "recovered", recovered, "total_stale", len(stale))
	}
}
