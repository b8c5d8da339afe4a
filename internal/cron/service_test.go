package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLock) TryLock(context.Context) (func(context.Context) error, bool, error) {
	if f.held {
		return nil, false, nil
	}
	f.held = true
	f.acquired++
	return func(context.Context) error {
		f.held = false
		f.released++
		return nil
	}, true, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, registry *Registry, lock Lock) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry := NewRegistry()
	registry.Register(success, time.Minute)
	registry.Register(failure, time.Minute)
	lock := &fakeLock{}
	service := newTestService(t, registry, lock)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", success.runs, failure.runs)
	}
	if lock.released != 1 {
		t.Fatalf("expected lock released once, got %d", lock.released)
	}
}

func TestServiceSkipsJobsUntilIntervalElapses(t *testing.T) {
	job := &testJob{name: "expiry"}
	registry := NewRegistry()
	registry.Register(job, 15*time.Minute)
	lock := &fakeLock{}
	service := newTestService(t, registry, lock)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	ctx := context.Background()
	_ = service.runCycle(ctx)
	now = now.Add(5 * time.Minute)
	_ = service.runCycle(ctx)
	if job.runs != 1 {
		t.Fatalf("expected one run inside the interval, got %d", job.runs)
	}
	if lock.acquired != 1 {
		t.Fatalf("lock should not be taken when nothing is due, acquired %d", lock.acquired)
	}
	now = now.Add(10 * time.Minute)
	_ = service.runCycle(ctx)
	if job.runs != 2 {
		t.Fatalf("expected second run after interval, got %d", job.runs)
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "expiry"}
	registry := NewRegistry()
	registry.Register(job, time.Minute)
	service := newTestService(t, registry, &fakeLock{held: true})

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock")
	}
}
