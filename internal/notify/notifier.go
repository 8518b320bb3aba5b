// Package notify fans exchange events out to chat channels (Telegram,
// Discord), filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Sender delivers a single titled message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier forwards events whose type is in its allow list to every sender.
// An empty allow list lets everything through.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier for the given senders and event names.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Wants reports whether events of type t pass the filter.
func (n *Notifier) Wants(t domain.EventType) bool {
	return len(n.events) == 0 || n.events[t]
}

// NotifyEvent formats evt and sends it if its type passes the filter.
func (n *Notifier) NotifyEvent(ctx context.Context, evt domain.Event) error {
	if !n.Enabled() {
		return nil
	}
	if !n.Wants(evt.Type) {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("type", string(evt.Type)))
		return nil
	}
	title, body := Format(evt)
	return n.dispatch(ctx, title, body)
}

// NotifyAll sends a message to every sender regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failing sender does not stop the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Format renders evt as a title and a short multi-line body.
func Format(evt domain.Event) (string, string) {
	title := strings.ReplaceAll(string(evt.Type), "_", " ")
	var lines []string
	add := func(k string, v any) { lines = append(lines, fmt.Sprintf("%s: %v", k, v)) }

	if evt.ProposalID != 0 {
		add("proposal", evt.ProposalID)
	}
	if evt.BundleID != 0 {
		add("bundle", evt.BundleID)
	}
	if evt.Account != "" {
		add("account", evt.Account)
	}
	if evt.Asset != "" {
		add("asset", evt.Asset)
	}
	if evt.Amount != 0 {
		add("amount", evt.Amount)
	}
	if p := evt.Proposal; p != nil {
		add("status", p.Status)
		add("condition", p.Condition.Kind)
		if len(p.Fees) > 0 {
			add("fees", formatFees(p.Fees))
		}
	}
	add("seq", evt.Seq)
	return title, strings.Join(lines, "\n")
}

func formatFees(fees map[domain.AssetType]domain.Amount) string {
	parts := make([]string, 0, len(fees))
	for a, v := range fees {
		parts = append(parts, fmt.Sprintf("%d %s", v, a))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
