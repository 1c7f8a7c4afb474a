package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes records created before a cutoff and reports how many were
// removed.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// RetentionJob keeps a store bounded by deleting records older than MaxAge.
type RetentionJob struct {
	Store        Pruner
	MaxAge       time.Duration
	Logger       *slog.Logger
	Label        string // distinguishes several stores; empty for one
	ScheduleExpr string // empty = hourly
	Now          func() time.Time
}

var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (j *RetentionJob) Name() string {
	if j.Label != "" {
		return "retention:" + j.Label
	}
	return "retention"
}

// Schedule implements Job.
func (j *RetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run deletes everything older than MaxAge. A non-positive MaxAge keeps
// records forever.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.MaxAge <= 0 {
		return nil
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	n, err := j.Store.Prune(ctx, now().Add(-j.MaxAge))
	if err != nil {
		return fmt.Errorf("cron: %s: %w", j.Name(), err)
	}
	if n > 0 {
		j.Logger.Info("cron: pruned expired records", "job", j.Name(), "count", n)
	}
	return nil
}
