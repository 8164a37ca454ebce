// Package assist – retention.go prunes idle transcripts on a cron schedule.
package assist

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner is implemented by stores that can drop idle records. Both FileStore
// and SQLiteStore satisfy it.
type Pruner interface {
	PruneOlderThan(age time.Duration) (int, error)
}

// Retention runs the scheduled transcript pruning job.
type Retention struct {
	cfg    RetentionConfig
	store  Pruner
	cron   *cron.Cron
	logger *slog.Logger
}

// NewRetention creates the retention job runner. Returns nil when retention
// is disabled in the config.
func NewRetention(cfg RetentionConfig, store Pruner, logger *slog.Logger) *Retention {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}

	return &Retention{
		cfg:    cfg,
		store:  store,
		cron:   cron.New(),
		logger: logger.With("component", "retention"),
	}
}

// Start registers and starts the cron job.
func (r *Retention) Start() error {
	_, err := r.cron.AddFunc(r.cfg.Schedule, r.runOnce)
	if err != nil {
		return fmt.Errorf("scheduling retention job: %w", err)
	}
	r.cron.Start()
	r.logger.Info("retention job scheduled",
		"schedule", r.cfg.Schedule, "max_age", r.cfg.MaxAge)
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Retention) runOnce() {
	pruned, err := r.store.PruneOlderThan(r.cfg.MaxAge)
	if err != nil {
		r.logger.Error("pruning transcripts", "error", err)
		return
	}
	if pruned > 0 {
		r.logger.Info("pruned idle transcripts", "count", pruned)
	}
}
