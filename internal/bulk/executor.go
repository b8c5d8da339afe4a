package bulk

import (
	"context"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

type orderLister interface {
	List(ctx context.Context, filter orders.Filter) ([]models.Order, error)
}

type transitioner interface {
	ApplyTransition(ctx context.Context, ref string, to enums.OrderStatus, trigger enums.TransitionTrigger, actor string, meta reconciliation.TransitionMeta) (*models.Order, bool, error)
}

// Predicate selects the orders a bulk transition applies to.
type Predicate func(order *models.Order) bool

// Request describes one bulk transition. Scope narrows the scan; Match decides per order.
type Request struct {
	Scope   orders.Filter
	Match   Predicate
	To      enums.OrderStatus
	Trigger enums.TransitionTrigger
	Actor   string
	Meta    reconciliation.TransitionMeta
}

// Result counts one bulk run. Err combines the per-order failures.
type Result struct {
	Matched int   `json:"matched"`
	Updated int   `json:"updated"`
	Skipped int   `json:"skipped"`
	Errors  int   `json:"errors"`
	Err     error `json:"-"`
}

type ExecutorParams struct {
	Orders      orderLister
	Engine      transitioner
	Logger      *logger.Logger
	Concurrency int
}

// Executor fans a status change out over every matching order. Each order goes
// through the engine on its own, so a failure never rolls back the others.
type Executor struct {
	orders      orderLister
	engine      transitioner
	logg        *logger.Logger
	concurrency int
}

func NewExecutor(params ExecutorParams) (*Executor, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{
		orders:      params.Orders,
		engine:      params.Engine,
		logg:        params.Logger,
		concurrency: concurrency,
	}, nil
}

// RunBulkTransition applies req to every matching order. Only the initial scan
// can fail the run as a whole.
func (e *Executor) RunBulkTransition(ctx context.Context, req Request) (Result, error) {
	if req.Match == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "bulk predicate required")
	}
	if !req.To.IsValid() || !req.Trigger.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "bulk target status and trigger required")
	}
	candidates, err := e.orders.List(ctx, req.Scope)
	if err != nil {
		return Result{}, err
	}

	var (
		mu     sync.Mutex
		result Result
		g      errgroup.Group
	)
	g.SetLimit(e.concurrency)
	for i := range candidates {
		order := &candidates[i]
		if !req.Match(order) {
			continue
		}
		result.Matched++
		ref := order.Ref
		g.Go(func() error {
			_, changed, err := e.engine.ApplyTransition(ctx, ref, req.To, req.Trigger, req.Actor, req.Meta)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors++
				result.Err = multierr.Append(result.Err, err)
			case changed:
				result.Updated++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"status_to": string(req.To),
		"trigger":   string(req.Trigger),
		"actor":     req.Actor,
		"scanned":   len(candidates),
		"matched":   result.Matched,
		"updated":   result.Updated,
		"skipped":   result.Skipped,
		"errors":    result.Errors,
	})
	e.logg.Info(logCtx, "bulk transition complete")
	return result, nil
}

// EnablePickup moves every PAID order containing productID to READY.
func (e *Executor) EnablePickup(ctx context.Context, productID, location, actor string) (Result, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	return e.RunBulkTransition(ctx, Request{
		Scope: orders.Filter{Statuses: []enums.OrderStatus{enums.OrderStatusPaid}},
		Match: func(order *models.Order) bool {
			return order.Status == enums.OrderStatusPaid && order.ContainsProduct(productID)
		},
		To:      enums.OrderStatusReady,
		Trigger: enums.TriggerPickup,
		Actor:   actor,
		Meta: reconciliation.TransitionMeta{
			Reason:          "pickup enabled",
			PickupProductID: productID,
			PickupLocation:  location,
		},
	})
}
