package mem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

func TestBusPublishSubscribe(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()

	exact, err := b.Subscribe(ctx, "condex:events")
	require.NoError(err)
	wild, err := b.Subscribe(ctx, "condex:*")
	require.NoError(err)

	require.NoError(b.Publish(ctx, "condex:events", []byte("hello")))
	require.Equal([]byte("hello"), <-exact)
	require.Equal([]byte("hello"), <-wild)

	require.NoError(b.Publish(ctx, "other", []byte("nope")))
	select {
	case msg := <-exact:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	require.Eventually(func() bool {
		_, ok := <-exact
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestBusStream(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	b := NewBus()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(b.StreamAppend(ctx, "s", []byte(p)))
	}

	first, err := b.StreamRead(ctx, "s", "0", 2)
	require.NoError(err)
	require.Len(first, 2)
	require.Equal("a", string(first[0].Payload))

	rest, err := b.StreamRead(ctx, "s", first[1].ID, 10)
	require.NoError(err)
	require.Len(rest, 1)
	require.Equal("c", string(rest[0].Payload))

	none, err := b.StreamRead(ctx, "s", rest[0].ID, 10)
	require.NoError(err)
	require.Empty(none)

	_, err = b.StreamRead(ctx, "s", "x-1", 1)
	require.Error(err)
}

func TestLockManagerExclusive(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := NewLockManager()

	lease, err := m.Acquire(ctx, "writer", time.Second)
	require.NoError(err)
	_, err = m.Acquire(ctx, "writer", time.Second)
	require.ErrorIs(err, domain.ErrLockHeld)

	lease.Release()
	lease.Release()
	again, err := m.Acquire(ctx, "writer", time.Second)
	require.NoError(err)
	require.NoError(again.Refresh(ctx))
}

func TestPriceCache(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := NewPriceCache()

	_, _, err := c.GetPrice(ctx, "ETH")
	require.ErrorIs(err, domain.ErrNotFound)

	ts := time.Unix(100, 0)
	require.NoError(c.SetPrice(ctx, "ETH", 3000, ts))
	p, at, err := c.GetPrice(ctx, "ETH")
	require.NoError(err)
	require.EqualValues(3000, p)
	require.Equal(ts, at)

	all, err := c.GetPrices(ctx, []domain.AssetType{"ETH", "BTC"})
	require.NoError(err)
	require.Equal(map[domain.AssetType]uint64{"ETH": 3000}, all)
}
