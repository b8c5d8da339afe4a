package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type expirySweeper interface {
	RunExpirySweep(ctx context.Context) (reconciliation.ExpirySummary, error)
}

// NewExpiryJob builds the job that cancels orders left unpaid past the expiry window.
func NewExpiryJob(sweeper expirySweeper, logg *logger.Logger) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("expiry sweeper required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &expiryJob{sweeper: sweeper, logg: logg}, nil
}

type expiryJob struct {
	sweeper expirySweeper
	logg    *logger.Logger
}

func (j *expiryJob) Name() string { return "order-expiry" }

// Run fails only when the sweep could not list candidates or every cancellation failed.
func (j *expiryJob) Run(ctx context.Context) error {
	summary, err := j.sweeper.RunExpirySweep(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}
	if summary.Errors > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"errors": summary.Errors,
			"error":  summary.Err.Error(),
		}), "expiry sweep finished with per-order failures")
	}
	if summary.Errors > 0 && summary.Errors == summary.Checked {
		return fmt.Errorf("expiry sweep: all %d cancellations failed: %w", summary.Errors, summary.Err)
	}
	return nil
}
