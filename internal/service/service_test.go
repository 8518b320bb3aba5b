package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/custody"
	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
	"github.com/alanyoungcy/condex/internal/metrics"
	"github.com/alanyoungcy/condex/internal/notify"
	"github.com/alanyoungcy/condex/internal/store/mem"
)

type fixedSeed []byte

func (s fixedSeed) Seed(context.Context) ([]byte, error) { return s, nil }

type fixture struct {
	t   *testing.T
	ctx context.Context

	engine    *exchange.Engine
	admin     *Admin
	svc       *ExchangeService
	pub       *EventPublisher
	metrics   *metrics.Metrics
	custody   *custody.Journal
	events    *mem.EventStore
	proposals *mem.ProposalStore
	snapshots *mem.SnapshotStore
	audit     *mem.AuditStore
	bus       *mem.Bus
	prices    *mem.PriceCache
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, admin *Admin) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		admin:     admin,
		metrics:   metrics.New(),
		custody:   custody.NewJournal(nil),
		events:    mem.NewEventStore(),
		proposals: mem.NewProposalStore(),
		snapshots: mem.NewSnapshotStore(),
		audit:     mem.NewAuditStore(),
		bus:       mem.NewBus(),
		prices:    mem.NewPriceCache(),
	}
	f.pub = NewEventPublisher(1024, f.events, f.proposals, f.audit, f.bus, nil, f.metrics, quietLogger())
	eng, err := exchange.New(exchange.Config{
		Custody: f.custody,
		Seeds:   fixedSeed("seed"),
		Params:  admin,
		OnEvent: f.pub.Enqueue,
	})
	require.NoError(t, err)
	f.engine = eng
	f.svc = NewExchangeService(eng, admin, f.prices, f.audit, f.metrics, quietLogger())
	return f
}

// flush publishes everything queued so far.
func (f *fixture) flush() {
	for {
		select {
		case evt := <-f.pub.queue:
			f.pub.Publish(f.ctx, evt)
		default:
			return
		}
	}
}

func counterValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matches(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestExchangeServiceRecordsOutcomes(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 10))
	require.ErrorIs(f.svc.Deposit(f.ctx, "alice", "X", 0), domain.ErrZeroAmount)
	require.ErrorIs(f.svc.Withdraw(f.ctx, "alice", "X", 11), domain.ErrInsufficientBalance)

	require.Equal(1.0, counterValue(t, f.metrics, "condex_operations_total", map[string]string{"op": "deposit", "outcome": "ok"}))
	require.Equal(1.0, counterValue(t, f.metrics, "condex_operations_total", map[string]string{"op": "deposit", "outcome": "rejected"}))
	require.Equal(1.0, counterValue(t, f.metrics, "condex_operations_total", map[string]string{"op": "withdraw", "outcome": "rejected"}))
	require.EqualValues(10, f.svc.Balance("alice", "X"))
}

func TestEventPublisherFansOutSettlement(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 1000))

	sub, err := f.bus.Subscribe(f.ctx, ChannelEvents)
	require.NoError(err)

	require.NoError(f.svc.Deposit(f.ctx, "lp", "Y", 1000))
	_, err = f.svc.AddLiquidity(f.ctx, "lp", "Y", 1000)
	require.NoError(err)
	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 100))

	p, err := f.svc.Propose(f.ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 100)},
		[]domain.Item{domain.PlainItem("Y", 50)},
		domain.CounterAtLeast(0),
	)
	require.NoError(err)
	_, err = f.svc.Execute(f.ctx, p.ID, "bob")
	require.NoError(err)
	f.flush()

	last, err := f.events.LastSeq(f.ctx)
	require.NoError(err)
	require.Equal(f.engine.Seq(), last)

	proj, err := f.proposals.GetByID(f.ctx, p.ID)
	require.NoError(err)
	require.Equal(domain.ProposalExecuted, proj.Status)
	require.Equal(domain.Account("bob"), proj.SettledBy)

	stream, err := f.bus.StreamRead(f.ctx, StreamEvents, "0", 100)
	require.NoError(err)
	require.Len(stream, int(last))

	entries, err := f.audit.List(f.ctx, domain.ListOpts{Limit: 1})
	require.NoError(err)
	require.Equal("exchange.proposal_executed", entries[0].Event)

	require.Len(sub, int(last))
	require.Equal(1.0, counterValue(t, f.metrics, "condex_proposals_executed_total", nil))
	require.EqualValues(45, f.svc.Balance("alice", "Y"))
}

type failingSender struct{}

func (failingSender) Send(context.Context, string, string) error { return io.ErrClosedPipe }
func (failingSender) Name() string                               { return "broken" }

func TestEventPublisherSinkFailureIsCounted(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))
	f.pub.notifier = notify.NewNotifier([]notify.Sender{failingSender{}}, nil, quietLogger())

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	f.flush()

	require.Equal(1.0, counterValue(t, f.metrics, "condex_events_published_total", map[string]string{"sink": "notify", "outcome": "error"}))
	require.Equal(1.0, counterValue(t, f.metrics, "condex_events_published_total", map[string]string{"sink": "journal", "outcome": "ok"}))
}

func TestEventPublisherRunDrainsAndThenDrops(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	require.NoError(f.pub.Run(ctx))

	last, err := f.events.LastSeq(f.ctx)
	require.NoError(err)
	require.EqualValues(1, last)

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	require.EqualValues(1, f.pub.Dropped())
}

func TestSetPriceMirrorsCache(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, []string{"ETH"}, 0))

	require.NoError(f.svc.SetPrice(f.ctx, "ETH", 3000))
	p, _, err := f.prices.GetPrice(f.ctx, "ETH")
	require.NoError(err)
	require.EqualValues(3000, p)

	require.ErrorIs(f.svc.SetPrice(f.ctx, "DOGE", 1), domain.ErrUnknownAsset)
	_, _, err = f.prices.GetPrice(f.ctx, "DOGE")
	require.ErrorIs(err, domain.ErrNotFound)
}

func TestSetPausedAuditsChanges(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))

	require.NoError(f.svc.SetPaused(f.ctx, true, "ops"))
	require.NoError(f.svc.SetPaused(f.ctx, true, "ops"))
	require.True(f.svc.Status().Paused)
	require.ErrorIs(f.svc.Deposit(f.ctx, "alice", "X", 1), domain.ErrPaused)

	entries, err := f.audit.List(f.ctx, domain.ListOpts{})
	require.NoError(err)
	require.Len(entries, 1)
	require.Equal("admin.pause", entries[0].Event)
}

func TestAdminAllowList(t *testing.T) {
	require := require.New(t)
	a := NewAdmin(false, []string{"USDC", " ETH ", ""}, 30)
	require.True(a.AssetAllowed("ETH"))
	require.False(a.AssetAllowed("BTC"))
	require.Equal([]domain.AssetType{"ETH", "USDC"}, a.AllowedAssets())
	require.EqualValues(30, a.FeeRateBps())

	open := NewAdmin(false, nil, 0)
	require.True(open.AssetAllowed("anything"))
	require.Nil(open.AllowedAssets())
	require.True(open.SetPaused(true))
	require.False(open.SetPaused(true))
}

func TestOracleFeederSync(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, []string{"ETH", "BTC"}, 0))
	feeder := NewOracleFeeder(f.prices, f.engine, f.admin, time.Second, quietLogger())

	n, err := feeder.Sync(f.ctx)
	require.NoError(err)
	require.Zero(n)

	require.NoError(f.prices.SetPrice(f.ctx, "ETH", 3000, time.Now()))
	n, err = feeder.Sync(f.ctx)
	require.NoError(err)
	require.Equal(1, n)
	p, ok := f.engine.Price("ETH")
	require.True(ok)
	require.EqualValues(3000, p)

	n, err = feeder.Sync(f.ctx)
	require.NoError(err)
	require.Zero(n)
}

func TestOracleFeederOpenAllowListRefreshesKnownAssets(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))
	feeder := NewOracleFeeder(f.prices, f.engine, f.admin, time.Second, quietLogger())

	require.NoError(f.engine.SetPrice("X", 1))
	require.NoError(f.prices.SetPrice(f.ctx, "X", 5, time.Now()))
	require.NoError(f.prices.SetPrice(f.ctx, "Y", 7, time.Now()))

	n, err := feeder.Sync(f.ctx)
	require.NoError(err)
	require.Equal(1, n)
	_, ok := f.engine.Price("Y")
	require.False(ok)
}

func TestCheckpointerSkipsAndRestores(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))
	cp := NewCheckpointer(f.engine, f.snapshots, time.Minute, quietLogger())

	require.NoError(cp.Restore(f.ctx))

	_, fresh, err := cp.Checkpoint(f.ctx)
	require.NoError(err)
	require.True(fresh)
	_, fresh, err = cp.Checkpoint(f.ctx)
	require.NoError(err)
	require.False(fresh)

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 42))
	snap, fresh, err := cp.Checkpoint(f.ctx)
	require.NoError(err)
	require.True(fresh)
	require.Equal(f.engine.Seq(), snap.Seq)
	require.Equal(2, f.snapshots.Saves())

	g := newFixture(t, NewAdmin(false, nil, 0))
	restored := NewCheckpointer(g.engine, f.snapshots, time.Minute, quietLogger())
	require.NoError(restored.Restore(g.ctx))
	require.EqualValues(42, g.engine.Balance("alice", "X"))
	require.Equal(f.engine.Seq(), g.engine.Seq())

	_, fresh, err = restored.Checkpoint(g.ctx)
	require.NoError(err)
	require.False(fresh)
}

func TestCheckpointerRunSavesOnShutdown(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))
	cp := NewCheckpointer(f.engine, f.snapshots, time.Hour, quietLogger())

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	require.NoError(cp.Run(ctx))
	require.Equal(1, f.snapshots.Saves())
}

type countingArchiver struct {
	before    []time.Time
	snapshots []uint64
	// archived is the seq already in storage, when set.
	archived *uint64
}

func (c *countingArchiver) LatestSnapshotSeq(context.Context) (uint64, bool, error) {
	if c.archived == nil {
		return 0, false, nil
	}
	return *c.archived, true, nil
}

func (c *countingArchiver) ArchiveProposals(_ context.Context, before time.Time) (int64, error) {
	c.before = append(c.before, before)
	return 0, nil
}

func (c *countingArchiver) ArchiveSnapshot(_ context.Context, snap domain.Snapshot) (string, error) {
	c.snapshots = append(c.snapshots, snap.Seq)
	return "archive/snapshots/x.json", nil
}

func TestArchiveJobShipsSnapshotOnlyWhenAdvanced(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))
	arch := &countingArchiver{}
	job := NewArchiveJob(arch, f.engine, time.Hour, 24*time.Hour, quietLogger())
	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(job.RunOnce(f.ctx))
	require.NoError(job.RunOnce(f.ctx))
	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	require.NoError(job.RunOnce(f.ctx))

	require.Len(arch.before, 3)
	require.Equal(now.Add(-24*time.Hour), arch.before[0])
	require.Equal([]uint64{0, 1}, arch.snapshots)
}

func TestArchiveJobSkipsSnapshotAlreadyArchived(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, NewAdmin(false, nil, 0))
	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	seq := f.engine.Seq()
	arch := &countingArchiver{archived: &seq}
	job := NewArchiveJob(arch, f.engine, time.Hour, time.Hour, quietLogger())

	require.NoError(job.RunOnce(f.ctx))
	require.Empty(arch.snapshots)

	require.NoError(f.svc.Deposit(f.ctx, "alice", "X", 1))
	require.NoError(job.RunOnce(f.ctx))
	require.Equal([]uint64{seq + 1}, arch.snapshots)
}
