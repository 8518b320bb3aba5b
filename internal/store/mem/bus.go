package mem

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
)

var (
	_ domain.SignalBus   = (*Bus)(nil)
	_ domain.PriceCache  = (*PriceCache)(nil)
	_ domain.LockManager = (*LockManager)(nil)
)

// Bus is an in-process domain.SignalBus. Slow subscribers drop messages
// rather than block publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[string][]chan []byte{}, streams: map[string][]domain.StreamMessage{}}
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, subs := range b.subs {
		if ok, _ := path.Match(pattern, channel); !ok {
			continue
		}
		for _, ch := range subs {
			select {
			case ch <- append([]byte(nil), payload...):
			default:
			}
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, err
	}
	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strconv.Itoa(len(b.streams[stream])+1) + "-0"
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{
		ID:      id,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// StreamRead treats lastID as the sequence prefix of a previously returned id.
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := streamSeq(lastID)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.streams[stream]
	if after >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[after:]
	if count > 0 && len(msgs) > count {
		msgs = msgs[:count]
	}
	return append([]domain.StreamMessage(nil), msgs...), nil
}

func streamSeq(id string) (int, error) {
	if id == "" || id == "0" || id == "0-0" {
		return 0, nil
	}
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0, errors.New("mem: invalid stream id " + id)
	}
	return n, nil
}

type priceEntry struct {
	price uint64
	ts    time.Time
}

// PriceCache is an in-process domain.PriceCache.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[domain.AssetType]priceEntry
}

// NewPriceCache returns an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: map[domain.AssetType]priceEntry{}}
}

func (c *PriceCache) SetPrice(_ context.Context, asset domain.AssetType, price uint64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[asset] = priceEntry{price: price, ts: ts}
	return nil
}

func (c *PriceCache) GetPrice(_ context.Context, asset domain.AssetType) (uint64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.prices[asset]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return e.price, e.ts, nil
}

func (c *PriceCache) GetPrices(_ context.Context, assets []domain.AssetType) (map[domain.AssetType]uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.AssetType]uint64, len(assets))
	for _, a := range assets {
		if e, ok := c.prices[a]; ok {
			out[a] = e.price
		}
	}
	return out, nil
}

// LockManager is a process-local domain.LockManager. Leases never expire.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager returns a lock manager with no locks held.
func NewLockManager() *LockManager {
	return &LockManager{held: map[string]bool{}}
}

func (m *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (domain.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return &localLease{m: m, key: key}, nil
}

type localLease struct {
	m    *LockManager
	key  string
	once sync.Once
}

func (l *localLease) Refresh(context.Context) error { return nil }

func (l *localLease) Release() {
	l.once.Do(func() {
		l.m.mu.Lock()
		delete(l.m.held, l.key)
		l.m.mu.Unlock()
	})
}
