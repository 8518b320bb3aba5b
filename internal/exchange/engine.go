// Package exchange implements the conditional settlement core: an asset
// ledger, bundle registry, proposal registry, condition evaluator, settlement
// ("measurement"), liquidity accounting and the puzzle subsystem.
//
// All state lives on one Engine. Every mutating operation holds the engine
// lock for its whole duration and validates its full plan before applying
// anything, so a failed call never leaves partial state behind.
package exchange

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Config carries the collaborators of an Engine.
type Config struct {
	Custody  domain.Custody
	Seeds    domain.SeedSource
	Params   domain.AdminParams
	Clock    domain.Clock
	Verifier domain.ProofVerifier
	// OnEvent is invoked after every committed mutation while the engine
	// lock is still held. It must not call back into the engine, and a slow
	// hook delays every operation.
	OnEvent func(domain.Event)
}

// Engine is the single authoritative exchange state.
type Engine struct {
	mu sync.RWMutex

	custody  domain.Custody
	seeds    domain.SeedSource
	params   domain.AdminParams
	clock    domain.Clock
	verifier domain.ProofVerifier
	onEvent  func(domain.Event)

	balances    map[domain.Account]map[domain.AssetType]domain.Amount
	pool        map[domain.AssetType]domain.Amount
	shares      map[domain.Account]domain.Amount
	totalShares domain.Amount
	bundles     map[uint64]*domain.Bundle
	proposals   map[uint64]*domain.Proposal
	puzzles     map[uint64]*domain.Puzzle
	prices      map[domain.AssetType]uint64
	open        *openIndex

	executed       uint64
	nextProposalID uint64
	nextBundleID   uint64
	seq            uint64

	deposited map[domain.AssetType]domain.Amount
	withdrawn map[domain.AssetType]domain.Amount
}

// New creates an empty Engine. Custody, Seeds and Params are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Custody == nil {
		return nil, errors.New("exchange: custody is required")
	}
	if cfg.Seeds == nil {
		return nil, errors.New("exchange: seed source is required")
	}
	if cfg.Params == nil {
		return nil, errors.New("exchange: admin params are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Verifier == nil {
		cfg.Verifier = EqualityVerifier{}
	}

	e := &Engine{
		custody:  cfg.Custody,
		seeds:    cfg.Seeds,
		params:   cfg.Params,
		clock:    cfg.Clock,
		verifier: cfg.Verifier,
		onEvent:  cfg.OnEvent,
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.balances = make(map[domain.Account]map[domain.AssetType]domain.Amount)
	e.pool = make(map[domain.AssetType]domain.Amount)
	e.shares = make(map[domain.Account]domain.Amount)
	e.totalShares = 0
	e.bundles = make(map[uint64]*domain.Bundle)
	e.proposals = make(map[uint64]*domain.Proposal)
	e.puzzles = make(map[uint64]*domain.Puzzle)
	e.prices = make(map[domain.AssetType]uint64)
	e.open = newOpenIndex()
	e.executed = 0
	e.nextProposalID = 0
	e.nextBundleID = 0
	e.seq = 0
	e.deposited = make(map[domain.AssetType]domain.Amount)
	e.withdrawn = make(map[domain.AssetType]domain.Amount)
}

// Seq returns the sequence number of the last committed event.
func (e *Engine) Seq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

// emit stamps evt and hands it to the event hook. Callers hold e.mu.
func (e *Engine) emit(evt domain.Event) {
	e.seq++
	evt.Seq = e.seq
	evt.ID = uuid.NewString()
	evt.At = e.clock.Now()
	if e.onEvent != nil {
		e.onEvent(evt)
	}
}

func (e *Engine) checkWritable() error {
	if e.params.Paused() {
		return domain.ErrPaused
	}
	return nil
}

func (e *Engine) checkAsset(asset domain.AssetType) error {
	if asset == "" || !e.params.AssetAllowed(asset) {
		return domain.ErrUnknownAsset
	}
	return nil
}

// checkAccount rejects empty accounts and the pool sentinel, which only the
// engine itself may act as.
func checkAccount(account domain.Account) error {
	if account == "" || account == domain.PoolAccount {
		return domain.ErrInvalidAccount
	}
	return nil
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements domain.Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// StaticParams is a fixed set of administrative inputs. An empty
// AllowedAssets list allows every non-empty asset type.
type StaticParams struct {
	IsPaused      bool
	AllowedAssets []domain.AssetType
	FeeBps        uint32
}

// Paused implements domain.AdminParams.
func (p StaticParams) Paused() bool { return p.IsPaused }

// AssetAllowed implements domain.AdminParams.
func (p StaticParams) AssetAllowed(asset domain.AssetType) bool {
	if len(p.AllowedAssets) == 0 {
		return true
	}
	for _, a := range p.AllowedAssets {
		if a == asset {
			return true
		}
	}
	return false
}

// FeeRateBps implements domain.AdminParams.
func (p StaticParams) FeeRateBps() uint32 { return p.FeeBps }
