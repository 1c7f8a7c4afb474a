// Package cron runs periodic maintenance jobs such as audit log retention.
package cron

import "context"

// Job is a periodic task.
type Job interface {
	// Name identifies the job in logs. Names must be unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression.
	Schedule() string

	// Run executes one tick. It must return when ctx is cancelled.
	Run(ctx context.Context) error
}
