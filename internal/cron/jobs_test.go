package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/guildbot/internal/cron"
	"github.com/flemzord/guildbot/internal/cron/crontest"
)

func TestRetentionJob_NameAndSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job          cron.RetentionJob
		wantName     string
		wantSchedule string
	}{
		{cron.RetentionJob{}, "retention", "0 * * * *"},
		{cron.RetentionJob{Label: "audit", ScheduleExpr: "*/10 * * * *"}, "retention:audit", "*/10 * * * *"},
	}
	for _, tt := range tests {
		if got := tt.job.Name(); got != tt.wantName {
			t.Errorf("Name() = %q, want %q", got, tt.wantName)
		}
		if got := tt.job.Schedule(); got != tt.wantSchedule {
			t.Errorf("Schedule() = %q, want %q", got, tt.wantSchedule)
		}
	}
}

func TestRetentionJob_Run(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := &crontest.MockPruner{Removed: 3}
	j := &cron.RetentionJob{
		Store:  store,
		MaxAge: 24 * time.Hour,
		Logger: slog.Default(),
		Now:    func() time.Time { return now },
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	cutoffs := store.Cutoffs()
	if len(cutoffs) != 1 || !cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Errorf("cutoffs = %v", cutoffs)
	}
}

func TestRetentionJob_KeepForever(t *testing.T) {
	t.Parallel()

	store := &crontest.MockPruner{}
	j := &cron.RetentionJob{Store: store, Logger: slog.Default()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.Cutoffs()) != 0 {
		t.Error("zero MaxAge must not prune")
	}
}

func TestRetentionJob_StoreError(t *testing.T) {
	t.Parallel()

	store := &crontest.MockPruner{Err: errors.New("disk full")}
	j := &cron.RetentionJob{Store: store, MaxAge: time.Hour, Logger: slog.Default(), Label: "audit"}
	err := j.Run(context.Background())
	if err == nil || err.Error() != "cron: retention:audit: disk full" {
		t.Errorf("Run() = %v", err)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	job := &crontest.MockJob{NameVal: "tick", ScheduleVal: "0 0 1 1 *"}
	s := cron.NewScheduler(slog.Default())
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}

	if !s.RunNow(context.Background(), "tick") {
		t.Fatal("RunNow() = false for a registered idle job")
	}
	if s.RunNow(context.Background(), "missing") {
		t.Error("RunNow() = true for an unknown job")
	}
	if job.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", job.CallCount())
	}
}

func TestScheduler_RunNowSkipsBusyJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	job := &crontest.MockJob{
		NameVal:     "slow",
		ScheduleVal: "0 0 1 1 *",
		RunFunc: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	s := cron.NewScheduler(slog.Default())
	_ = s.RegisterJob(job)

	done := make(chan bool)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	if s.RunNow(context.Background(), "slow") {
		t.Error("second RunNow() should be skipped while the first runs")
	}
	close(release)
	if !<-done {
		t.Error("first RunNow() = false")
	}
}
