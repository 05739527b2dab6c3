package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/campuskit/rollcall/pkg/observability"
)

// DefaultRetention is how long audit logs are kept when not configured
const DefaultRetention = 90 * 24 * time.Hour

// Retention runs a scheduled cleanup of expired audit logs
type Retention struct {
	store     *DBLogger
	retention time.Duration
	logger    *observability.Logger
	cron      *cron.Cron
}

// NewRetention creates a retention job. A non-positive retention falls back
// to DefaultRetention.
func NewRetention(store *DBLogger, retention time.Duration, logger *observability.Logger) *Retention {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Retention{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules the daily cleanup
func (r *Retention) Start() error {
	_, err := r.cron.AddFunc("@daily", r.run)
	if err != nil {
		return fmt.Errorf("failed to schedule audit retention: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running cleanup to finish
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := r.store.Cleanup(ctx, r.retention)
	if err != nil {
		r.logger.WithError(err).Error("audit retention cleanup failed")
		return
	}
	if deleted > 0 {
		r.logger.WithField("deleted", deleted).Info("audit retention cleanup completed")
	}
}
