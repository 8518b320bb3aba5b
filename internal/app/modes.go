package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
	"github.com/alanyoungcy/condex/internal/metrics"
	"github.com/alanyoungcy/condex/internal/server"
	"github.com/alanyoungcy/condex/internal/server/ws"
	"github.com/alanyoungcy/condex/internal/service"
)

// writerLeaseKey names the lease held by the single writing instance.
const writerLeaseKey = "condex:writer"

const shutdownTimeout = 5 * time.Second

// runtime is the exchange and the background services built around it.
type runtime struct {
	engine       *exchange.Engine
	admin        *service.Admin
	svc          *service.ExchangeService
	publisher    *service.EventPublisher
	feeder       *service.OracleFeeder
	checkpointer *service.Checkpointer
	archive      *service.ArchiveJob
	metrics      *metrics.Metrics
}

func (a *App) buildRuntime(deps *Dependencies) (*runtime, error) {
	xc := a.cfg.Exchange
	rt := &runtime{
		admin:   service.NewAdmin(xc.Paused, xc.AllowedAssets, uint32(xc.FeeRateBps)),
		metrics: metrics.New(),
	}
	rt.publisher = service.NewEventPublisher(
		xc.EventBuffer,
		deps.EventStore, deps.ProposalStore, deps.AuditStore,
		deps.SignalBus, deps.Notifier, rt.metrics, a.logger,
	)

	engine, err := exchange.New(exchange.Config{
		Custody: deps.Custody,
		Seeds:   deps.Seeds,
		Params:  rt.admin,
		OnEvent: rt.publisher.Enqueue,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	rt.engine = engine
	rt.svc = service.NewExchangeService(engine, rt.admin, deps.PriceCache, deps.AuditStore, rt.metrics, a.logger)
	rt.feeder = service.NewOracleFeeder(deps.PriceCache, engine, rt.admin, xc.OraclePollInterval.Duration, a.logger)
	rt.checkpointer = service.NewCheckpointer(engine, deps.SnapshotStore, xc.CheckpointInterval.Duration, a.logger)
	if deps.Archiver != nil {
		rt.archive = service.NewArchiveJob(deps.Archiver, engine, xc.ArchiveInterval.Duration, xc.ArchiveAfter.Duration, a.logger)
	}
	return rt, nil
}

// ServeMode holds the writer lease, restores the last checkpoint and runs the
// API with every background service. Losing the lease stops the process.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting serve mode")

	ttl := a.cfg.Exchange.WriterLeaseTTL.Duration
	lease, err := deps.LockManager.Acquire(ctx, writerLeaseKey, ttl)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another instance holds the writer lease: %w", err)
		}
		return fmt.Errorf("app: acquire writer lease: %w", err)
	}
	a.closers = append(a.closers, lease.Release)

	rt, err := a.buildRuntime(deps)
	if err != nil {
		return err
	}
	if err := rt.checkpointer.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.holdLease(ctx, lease, ttl) })
	a.startRuntime(ctx, g, rt, deps)

	return ignoreCanceled(g.Wait())
}

// StandaloneMode runs the same services over in-process adapters. State does
// not survive a restart.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting standalone mode")

	rt, err := a.buildRuntime(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startRuntime(ctx, g, rt, deps)

	return ignoreCanceled(g.Wait())
}

func (a *App) startRuntime(ctx context.Context, g *errgroup.Group, rt *runtime, deps *Dependencies) {
	g.Go(func() error { return rt.publisher.Run(ctx) })
	g.Go(func() error { return rt.checkpointer.Run(ctx) })
	g.Go(func() error { return rt.feeder.Run(ctx) })
	if rt.archive != nil {
		g.Go(func() error { return rt.archive.Run(ctx) })
	}
	g.Go(func() error { return a.reconcileLoop(ctx, rt.svc) })

	if !a.cfg.Server.Enabled {
		return
	}
	a.startHTTPServer(ctx, g, rt, deps)
}

// startHTTPServer adds the API server and websocket hub to g. The server is
// shut down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, rt *runtime, deps *Dependencies) {
	sc := a.cfg.Server
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		Channel:        service.ChannelEvents,
		StartedAt:      time.Now().UTC(),
		Status:         func() any { return rt.svc.Status() },
		AllowedOrigins: sc.CORSOrigins,
	})
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        sc.Port,
		CORSOrigins: sc.CORSOrigins,
		APIKey:      sc.APIKey,
		AdminKey:    sc.AdminKey,
		RateLimit:   sc.RateLimit,
		RateWindow:  sc.RateWindow.Duration,
	}, rt.svc, hub, deps.RateLimiter, rt.metrics.Handler(), a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "app: http server listening",
			slog.Int("port", sc.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", sc.Port)),
		)
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// holdLease refreshes the writer lease at a third of its TTL. A failed
// refresh ends the run so a second writer can never act on stale state.
func (a *App) holdLease(ctx context.Context, lease domain.Lease, ttl time.Duration) error {
	ticker := time.NewTicker(max(ttl/3, 100*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lease.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "app: writer lease lost", slog.String("error", err.Error()))
				return fmt.Errorf("app: writer lease: %w", err)
			}
		}
	}
}

// reconcileInterval is how often the ledger is audited in the background.
const reconcileInterval = 5 * time.Minute

// reconcileLoop audits the ledger periodically. Imbalances are logged by the
// service and never stop the process.
func (a *App) reconcileLoop(ctx context.Context, svc *service.ExchangeService) error {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = svc.Reconcile(ctx)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
