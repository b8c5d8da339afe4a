package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
)

const (
	defaultWorkers     = 4
	defaultBuffer      = 256
	defaultSendTimeout = 10 * time.Second
	failureBuffer      = 64
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notification dispatcher closed")
)

// Failure reports a notification that could not be delivered.
type Failure struct {
	Notification Notification
	Err          error
}

type DispatcherParams struct {
	Sink        Sink
	Logger      *logger.Logger
	Metrics     *metrics.ReconciliationMetrics
	Workers     int
	Buffer      int
	SendTimeout time.Duration
}

// Dispatcher delivers notifications asynchronously. Notify never blocks the
// caller; undeliverable notifications are logged and published on Failures.
type Dispatcher struct {
	sink        Sink
	logg        *logger.Logger
	metrics     *metrics.ReconciliationMetrics
	sendTimeout time.Duration

	mu       sync.RWMutex
	closed   bool
	queue    chan Notification
	failures chan Failure
	wg       sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Sink == nil {
		return nil, errors.New("notification sink required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	buffer := params.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	d := &Dispatcher{
		sink:        params.Sink,
		logg:        params.Logger,
		metrics:     params.Metrics,
		sendTimeout: timeout,
		queue:       make(chan Notification, buffer),
		failures:    make(chan Failure, failureBuffer),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d, nil
}

// Notify enqueues n for delivery.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logFailure(ctx, n, ErrClosed)
		return
	}
	select {
	case d.queue <- n:
	default:
		d.fail(ctx, n, ErrQueueFull)
	}
}

// Failures exposes undeliverable notifications. The channel is closed by Close.
func (d *Dispatcher) Failures() <-chan Failure {
	return d.failures
}

// Close stops accepting notifications and waits for queued ones to drain.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		close(d.failures)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		if err := d.sink.Send(ctx, n); err != nil {
			d.fail(ctx, n, err)
		}
		cancel()
	}
}

// fail must only be called before the failures channel is closed.
func (d *Dispatcher) fail(ctx context.Context, n Notification, err error) {
	d.logFailure(ctx, n, err)
	select {
	case d.failures <- Failure{Notification: n, Err: err}:
	default:
	}
}

func (d *Dispatcher) logFailure(ctx context.Context, n Notification, err error) {
	d.metrics.IncSideEffectFailure("notification")
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"order_ref": n.OrderRef,
		"status_to": string(n.To),
	})
	d.logg.Warn(logCtx, "notification delivery failed: "+err.Error())
}
