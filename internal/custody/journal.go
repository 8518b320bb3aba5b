// Package custody provides custody adapters for the exchange.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Direction of a custody movement.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ErrRejected is returned when the journal refuses a movement.
var ErrRejected = errors.New("custody: movement rejected")

// Entry is one recorded custody movement.
type Entry struct {
	ID        string
	Direction Direction
	Account   domain.Account
	Asset     domain.AssetType
	Amount    domain.Amount
	At        time.Time
}

// Journal is an in-process custody that records every movement and keeps
// per-asset totals. It never moves real value and is used by standalone mode
// and in tests.
type Journal struct {
	mu       sync.Mutex
	entries  []Entry
	in       map[domain.AssetType]domain.Amount
	out      map[domain.AssetType]domain.Amount
	failNext error
	logger   *slog.Logger
}

// NewJournal creates an empty Journal.
func NewJournal(logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		in:     make(map[domain.AssetType]domain.Amount),
		out:    make(map[domain.AssetType]domain.Amount),
		logger: logger.With(slog.String("component", "custody_journal")),
	}
}

// Receive implements domain.Custody.
func (j *Journal) Receive(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) error {
	return j.record(ctx, DirectionIn, account, asset, amount)
}

// Payout implements domain.Custody. Payouts never exceed what was received.
func (j *Journal) Payout(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) error {
	return j.record(ctx, DirectionOut, account, asset, amount)
}

// FailNext makes the next movement fail with err.
func (j *Journal) FailNext(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failNext = err
}

// Totals returns the amount received and paid out for asset.
func (j *Journal) Totals(asset domain.AssetType) (in, out domain.Amount) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.in[asset], j.out[asset]
}

// Entries returns a copy of every recorded movement in order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

func (j *Journal) record(ctx context.Context, dir Direction, account domain.Account, asset domain.AssetType, amount domain.Amount) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("custody: %s: %w", dir, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failNext != nil {
		err := j.failNext
		j.failNext = nil
		return fmt.Errorf("custody: %s: %w", dir, err)
	}
	if amount == 0 {
		return fmt.Errorf("custody: %s: zero amount: %w", dir, ErrRejected)
	}
	switch dir {
	case DirectionIn:
		j.in[asset] += amount
	case DirectionOut:
		if j.out[asset]+amount > j.in[asset] {
			return fmt.Errorf("custody: out: %s exceeds holdings: %w", asset, ErrRejected)
		}
		j.out[asset] += amount
	}

	e := Entry{
		ID:        uuid.NewString(),
		Direction: dir,
		Account:   account,
		Asset:     asset,
		Amount:    amount,
		At:        time.Now().UTC(),
	}
	j.entries = append(j.entries, e)
	j.logger.Debug("custody: recorded movement",
		slog.String("direction", string(dir)),
		slog.String("account", string(account)),
		slog.String("asset", string(asset)),
		slog.Uint64("amount", amount),
	)
	return nil
}
