package export

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "export-test", Output: io.Discard})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestCoalescerCollapsesBurst(t *testing.T) {
	var runs int32
	c, err := NewCoalescer(CoalescerParams{
		Run:      func(context.Context) error { atomic.AddInt32(&runs, 1); return nil },
		Logger:   testLogger(),
		Debounce: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new coalescer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	for i := 0; i < 20; i++ {
		c.Trigger()
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 1 })
	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected one run for the burst, got %d", got)
	}
}

func TestCoalescerHonoursMinInterval(t *testing.T) {
	var stamps []time.Time
	done := make(chan struct{}, 2)
	c, _ := NewCoalescer(CoalescerParams{
		Run: func(context.Context) error {
			stamps = append(stamps, time.Now())
			done <- struct{}{}
			return nil
		},
		Logger:      testLogger(),
		Debounce:    time.Millisecond,
		MinInterval: 200 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.Trigger()
	<-done
	c.Trigger()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("second run never happened")
	}
	if gap := stamps[1].Sub(stamps[0]); gap < 200*time.Millisecond {
		t.Fatalf("runs spaced %s, want at least 200ms", gap)
	}
}

func TestCoalescerStopsOnCancel(t *testing.T) {
	c, _ := NewCoalescer(CoalescerParams{Run: func(context.Context) error { return nil }, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}
