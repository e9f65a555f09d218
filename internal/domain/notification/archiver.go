package notification

import (
	"context"
	"log/slog"
	"time"
)

// ArchiverConfig holds configuration for the periodic log archiver.
type ArchiverConfig struct {
	// Interval is how often an archive sweep runs.
	Interval time.Duration

	// RetentionDays is how many days of logs survive a sweep.
	RetentionDays int
}

// Archiver periodically removes logs older than the retention window. It
// delegates to the service so logs attached to a non-terminal campaign stay
// protected.
type Archiver struct {
	service *Service
	config  ArchiverConfig
}

// NewArchiver creates a new log archiver.
func NewArchiver(service *Service, cfg ArchiverConfig) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}

	return &Archiver{service: service, config: cfg}
}

// Run starts the archiver loop. It blocks until the context is cancelled.
// Should be called in a goroutine.
func (a *Archiver) Run(ctx context.Context) {
	slog.Info("archiver started",
		"interval", a.config.Interval,
		"retention_days", a.config.RetentionDays,
	)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("archiver stopped")
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// sweep performs one archive cycle.
func (a *Archiver) sweep(ctx context.Context) {
	removed, err := a.service.ArchiveOlderThan(ctx, a.config.RetentionDays)
	if err != nil {
		slog.Error("archiver: sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("archiver: sweep complete", "removed", removed)
	}
}
