// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/guildbot/internal/cron"
)

// MockJob is a configurable cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and counts the call.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPruner is a cron.Pruner that records the cutoffs it was given.
type MockPruner struct {
	Removed int64
	Err     error

	mu      sync.Mutex
	cutoffs []time.Time
}

var _ cron.Pruner = (*MockPruner)(nil)

// Prune implements cron.Pruner.
func (m *MockPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, before)
	m.mu.Unlock()
	return m.Removed, m.Err
}

// Cutoffs returns every cutoff passed to Prune.
func (m *MockPruner) Cutoffs() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}
