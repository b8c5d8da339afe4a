// Package bootstrap assembles the reconciliation engine and its collaborators
// from configuration. Both the API and the cron worker build the same stack.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-orders/internal/audit"
	"github.com/angelmondragon/storefront-orders/internal/bulk"
	"github.com/angelmondragon/storefront-orders/internal/customerindex"
	"github.com/angelmondragon/storefront-orders/internal/evidence"
	"github.com/angelmondragon/storefront-orders/internal/export"
	"github.com/angelmondragon/storefront-orders/internal/gateway"
	"github.com/angelmondragon/storefront-orders/internal/notifications"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/permissions"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/internal/verifier"
	"github.com/angelmondragon/storefront-orders/pkg/bigquery"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/pubsub"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
	"github.com/angelmondragon/storefront-orders/pkg/square"
)

const (
	deliveryScope       = "square-webhook"
	verifierBackoffBase = 500 * time.Millisecond
)

type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// Stack holds every long-lived collaborator. Optional pieces are nil when
// their configuration is absent.
type Stack struct {
	Engine      *reconciliation.Engine
	Orders      orders.Store
	Audit       *audit.Repository
	Index       *customerindex.Index
	Permissions *permissions.Resolver
	Bulk        *bulk.Executor
	Dispatcher  *notifications.Dispatcher
	Exporter    *export.Exporter
	Coalescer   *export.Coalescer
	Normalizer  *gateway.SquareNormalizer
	Guard       *gateway.DeliveryGuard
	PubSub      *pubsub.Client
	BigQuery    *bigquery.Client

	closers []func(context.Context) error
}

func Build(ctx context.Context, p Params) (*Stack, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil || p.Redis == nil {
		return nil, errors.New("config, logger, db and redis are required")
	}
	cfg, logg := p.Config, p.Logger
	reg := p.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Stack{}
	fail := func(step string, err error) (*Stack, error) {
		closeErr := s.Close(ctx)
		return nil, multierr.Append(fmt.Errorf("%s: %w", step, err), closeErr)
	}

	reconMetrics := metrics.NewReconciliationMetrics(reg)
	s.Orders = orders.NewRepository(p.DB.DB())
	s.Audit = audit.NewRepository(p.DB.DB())

	index, err := customerindex.NewIndex(customerindex.IndexParams{
		Store:     p.Redis,
		Orders:    s.Orders,
		Logger:    logg,
		Retention: cfg.Orders.IndexRetention,
	})
	if err != nil {
		return fail("customer index", err)
	}
	s.Index = index

	registry, err := evidence.NewRegistry(p.Redis, cfg.Orders.EvidenceClaimTTL)
	if err != nil {
		return fail("evidence registry", err)
	}

	slips, err := verifier.NewSlipClient(cfg.Verifier.BaseURL, cfg.Verifier.APIKey,
		verifier.WithTimeouts(cfg.Verifier.CallTimeout, cfg.Verifier.TotalTimeout),
		verifier.WithRetries(cfg.Verifier.MaxRetries, verifierBackoffBase),
	)
	if err != nil {
		return fail("slip verifier", err)
	}
	paymentVerifier, err := verifier.New(slips, cfg.Verifier.ReceiverAccount)
	if err != nil {
		return fail("payment verifier", err)
	}

	resolver, err := permissions.NewResolver(permissions.ResolverParams{
		Store:      p.Redis,
		ConfigName: cfg.Admin.ConfigKey,
		Fallback:   cfg.Admin.Emails,
		Logger:     logg,
	})
	if err != nil {
		return fail("permission resolver", err)
	}
	s.Permissions = resolver

	sink, err := notificationSink(ctx, cfg, logg, s)
	if err != nil {
		return fail("notification sink", err)
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Sink:    sink,
		Logger:  logg,
		Metrics: reconMetrics,
		Workers: cfg.Orders.NotificationWorkers,
		Buffer:  cfg.Orders.NotificationBuffer,
	})
	if err != nil {
		return fail("notification dispatcher", err)
	}
	s.Dispatcher = dispatcher
	s.closers = append(s.closers, dispatcher.Close)

	if err := buildExport(ctx, cfg, logg, s); err != nil {
		return fail("export", err)
	}

	engineParams := reconciliation.EngineParams{
		Orders:           s.Orders,
		Index:            index,
		Verifier:         paymentVerifier,
		Evidence:         registry,
		Audit:            s.Audit,
		Notifier:         dispatcher,
		Permissions:      resolver,
		Metrics:          reconMetrics,
		Logger:           logg,
		ExpiryWindow:     cfg.Orders.ExpiryWindow,
		SweepConcurrency: cfg.Orders.SweepConcurrency,
	}
	if s.Coalescer != nil {
		engineParams.Exporter = s.Coalescer
	}
	engine, err := reconciliation.NewEngine(engineParams)
	if err != nil {
		return fail("reconciliation engine", err)
	}
	s.Engine = engine

	executor, err := bulk.NewExecutor(bulk.ExecutorParams{
		Orders:      s.Orders,
		Engine:      engine,
		Logger:      logg,
		Concurrency: cfg.Orders.BulkConcurrency,
	})
	if err != nil {
		return fail("bulk executor", err)
	}
	s.Bulk = executor

	guard, err := gateway.NewDeliveryGuard(p.Redis, cfg.Orders.WebhookDedupeTTL, deliveryScope)
	if err != nil {
		return fail("delivery guard", err)
	}
	s.Guard = guard

	if strings.TrimSpace(cfg.Square.AccessToken) == "" {
		logg.Warn(ctx, "square access token not set, square webhooks disabled")
	} else {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return fail("square client", err)
		}
		s.Normalizer = gateway.NewSquareNormalizer(squareClient)
	}

	return s, nil
}

func notificationSink(ctx context.Context, cfg *config.Config, logg *logger.Logger, s *Stack) (notifications.Sink, error) {
	if strings.TrimSpace(cfg.GCP.ProjectID) == "" {
		logg.Warn(ctx, "gcp project not set, notifications go to the log")
		return notifications.NewLogSink(logg)
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, err
	}
	s.PubSub = client
	s.closers = append(s.closers, func(context.Context) error { return client.Close() })
	return notifications.NewPubSubSink(client.NotificationPublisher())
}

func buildExport(ctx context.Context, cfg *config.Config, logg *logger.Logger, s *Stack) error {
	if !cfg.Export.Enabled {
		return nil
	}
	client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return err
	}
	s.BigQuery = client
	s.closers = append(s.closers, func(context.Context) error { return client.Close() })

	exporter, err := export.NewExporter(export.ExporterParams{
		Orders:   s.Orders,
		Inserter: client,
		Logger:   logg,
		Lookback: cfg.Export.Lookback,
	})
	if err != nil {
		return err
	}
	s.Exporter = exporter

	coalescer, err := export.NewCoalescer(export.CoalescerParams{
		Run: func(ctx context.Context) error {
			_, err := exporter.Export(ctx)
			return err
		},
		Logger:      logg,
		Debounce:    cfg.Export.Debounce,
		MinInterval: cfg.Export.MinInterval,
	})
	if err != nil {
		return err
	}
	s.Coalescer = coalescer
	return nil
}

// Close releases collaborators in reverse construction order.
func (s *Stack) Close(ctx context.Context) error {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errs
}
