package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

// RunFunc performs one export pass.
type RunFunc func(ctx context.Context) error

type CoalescerParams struct {
	Run         RunFunc
	Logger      *logger.Logger
	Debounce    time.Duration
	MinInterval time.Duration
}

// Coalescer collapses bursts of Trigger calls into single export runs.
// The first trigger opens a debounce window; every trigger inside it joins
// the same run, and consecutive runs are spaced by at least MinInterval.
type Coalescer struct {
	run         RunFunc
	logg        *logger.Logger
	debounce    time.Duration
	minInterval time.Duration
	pending     chan struct{}

	mu      sync.Mutex
	lastRun time.Time
}

func NewCoalescer(params CoalescerParams) (*Coalescer, error) {
	if params.Run == nil {
		return nil, errors.New("export run func required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Debounce < 0 || params.MinInterval < 0 {
		return nil, errors.New("export intervals must be non-negative")
	}
	return &Coalescer{
		run:         params.Run,
		logg:        params.Logger,
		debounce:    params.Debounce,
		minInterval: params.MinInterval,
		pending:     make(chan struct{}, 1),
	}, nil
}

// Trigger requests an export. It never blocks.
func (c *Coalescer) Trigger() {
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// Run serves triggers until ctx is cancelled.
func (c *Coalescer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.pending:
		}

		wait := c.debounce
		c.mu.Lock()
		if !c.lastRun.IsZero() {
			if remaining := c.minInterval - time.Since(c.lastRun); remaining > wait {
				wait = remaining
			}
		}
		c.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		// triggers that arrived during the window belong to this run
		select {
		case <-c.pending:
		default:
		}

		c.mu.Lock()
		c.lastRun = time.Now()
		c.mu.Unlock()
		if err := c.run(ctx); err != nil {
			c.logg.Error(ctx, "order export failed", err)
		}
	}
}
