package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/metrics"
	"github.com/alanyoungcy/condex/internal/notify"
)

// Bus names used for exchange events.
const (
	ChannelEvents = "condex:events"
	StreamEvents  = "condex:stream"
)

// drainTimeout bounds how long Run keeps flushing queued events after its
// context ends.
const drainTimeout = 10 * time.Second

// EventPublisher moves committed exchange events to every side channel: the
// Postgres journal, the proposal projection, the audit log, the bus and the
// notifier. Sink failures are logged and counted, never retried.
type EventPublisher struct {
	queue     chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64

	events    domain.EventStore
	proposals domain.ProposalStore
	audit     domain.AuditStore
	bus       domain.SignalBus
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEventPublisher creates a publisher with a queue of the given size.
func NewEventPublisher(
	buffer int,
	events domain.EventStore,
	proposals domain.ProposalStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *EventPublisher {
	return &EventPublisher{
		queue:     make(chan domain.Event, max(buffer, 1)),
		done:      make(chan struct{}),
		events:    events,
		proposals: proposals,
		audit:     audit,
		bus:       bus,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With(slog.String("component", "event_publisher")),
	}
}

// Enqueue is the engine's event hook. It blocks while the queue is full and
// drops the event once the publisher has stopped.
func (p *EventPublisher) Enqueue(evt domain.Event) {
	select {
	case <-p.done:
		p.drop(evt)
		return
	default:
	}
	select {
	case p.queue <- evt:
	case <-p.done:
		p.drop(evt)
	}
}

func (p *EventPublisher) drop(evt domain.Event) {
	p.dropped.Add(1)
	p.logger.Warn("event_publisher: dropped event after shutdown",
		slog.Uint64("seq", evt.Seq),
		slog.String("type", string(evt.Type)),
	)
}

// Dropped reports how many events arrived after shutdown.
func (p *EventPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run publishes events until ctx ends, then flushes what is already queued.
func (p *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-p.queue:
			p.Publish(ctx, evt)
		case <-ctx.Done():
			p.closeOnce.Do(func() { close(p.done) })
			p.drain()
			return nil
		}
	}
}

func (p *EventPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case evt := <-p.queue:
			p.Publish(ctx, evt)
		default:
			return
		}
	}
}

// Publish hands one event to every sink.
func (p *EventPublisher) Publish(ctx context.Context, evt domain.Event) {
	p.sink(ctx, "journal", evt, p.events.Append(ctx, evt))

	if evt.Proposal != nil {
		p.sink(ctx, "projection", evt, p.proposals.Upsert(ctx, *evt.Proposal))
	}

	if evt.Type != domain.EventOraclePriceUpdated {
		p.sink(ctx, "audit", evt, p.audit.Log(ctx, "exchange."+string(evt.Type), auditDetail(evt)))
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		p.sink(ctx, "bus", evt, err)
	} else {
		p.sink(ctx, "bus", evt, p.bus.Publish(ctx, ChannelEvents, payload))
		p.sink(ctx, "stream", evt, p.bus.StreamAppend(ctx, StreamEvents, payload))
	}

	if p.notifier.Enabled() && p.notifier.Wants(evt.Type) {
		p.sink(ctx, "notify", evt, p.notifier.NotifyEvent(ctx, evt))
	}
}

func (p *EventPublisher) sink(ctx context.Context, name string, evt domain.Event, err error) {
	p.metrics.ObserveSink(name, err)
	if err != nil {
		p.logger.WarnContext(ctx, "event_publisher: sink failed",
			slog.String("sink", name),
			slog.Uint64("seq", evt.Seq),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func auditDetail(evt domain.Event) map[string]any {
	d := map[string]any{"seq": evt.Seq, "event_id": evt.ID}
	if evt.ProposalID != 0 {
		d["proposal_id"] = evt.ProposalID
	}
	if evt.BundleID != 0 {
		d["bundle_id"] = evt.BundleID
	}
	if evt.Account != "" {
		d["account"] = string(evt.Account)
	}
	if evt.Asset != "" {
		d["asset"] = string(evt.Asset)
		d["amount"] = evt.Amount
	}
	for k, v := range evt.Detail {
		if _, taken := d[k]; !taken {
			d[k] = v
		}
	}
	return d
}
