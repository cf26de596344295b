package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctfledger/internal/domain"
	"github.com/alanyoungcy/ctfledger/internal/store/memory"
)

// captureBus records published payloads for assertions.
type captureBus struct {
	channels []string
	payloads [][]byte
}

func (b *captureBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func TestOpenInterestLedgerApplyMarketDelta(t *testing.T) {
	ctx := context.Background()
	store := memory.New().OpenInterest()
	l := NewOpenInterestLedger(store, nil, nil, testLogger())

	require.NoError(t, l.ApplyMarketDelta(ctx, "cond-1", big.NewInt(100)))
	require.NoError(t, l.ApplyMarketDelta(ctx, "cond-1", big.NewInt(40)))

	oi, err := store.GetOrCreateMarket(ctx, "cond-1")
	require.NoError(t, err)
	assert.Equal(t, int64(140), oi.Amount.Int64())

	// Other markets are untouched.
	other, err := store.GetOrCreateMarket(ctx, "cond-2")
	require.NoError(t, err)
	assert.Zero(t, other.Amount.Sign())
}

func TestOpenInterestLedgerNegativeWrittenThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.New().OpenInterest()
	l := NewOpenInterestLedger(store, nil, nil, testLogger())

	require.NoError(t, l.ApplyMarketDelta(ctx, "cond-1", big.NewInt(10)))
	require.NoError(t, l.ApplyMarketDelta(ctx, "cond-1", big.NewInt(-25)))

	oi, err := store.GetOrCreateMarket(ctx, "cond-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-15), oi.Amount.Int64(), "negative totals are surfaced, not clamped")

	require.NoError(t, l.ApplyGlobalDelta(ctx, big.NewInt(-7)))
	global, err := store.GetOrCreateGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), global.Amount.Int64())
}

func TestOpenInterestLedgerApplyDeltaUpdatesBothRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New().OpenInterest()
	l := NewOpenInterestLedger(store, nil, nil, testLogger())

	require.NoError(t, l.ApplyDelta(ctx, "cond-1", big.NewInt(100)))
	require.NoError(t, l.ApplyDelta(ctx, "cond-2", big.NewInt(50)))
	require.NoError(t, l.ApplyDelta(ctx, "cond-1", big.NewInt(-30)))

	m1, err := store.GetOrCreateMarket(ctx, "cond-1")
	require.NoError(t, err)
	m2, err := store.GetOrCreateMarket(ctx, "cond-2")
	require.NoError(t, err)
	global, err := store.GetOrCreateGlobal(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(70), m1.Amount.Int64())
	assert.Equal(t, int64(50), m2.Amount.Int64())
	assert.Equal(t, int64(120), global.Amount.Int64(), "global equals the sum of market totals")
}

func TestOpenInterestLedgerPublishesUpdates(t *testing.T) {
	ctx := context.Background()
	bus := &captureBus{}
	l := NewOpenInterestLedger(memory.New().OpenInterest(), nil, bus, testLogger())

	require.NoError(t, l.ApplyDelta(ctx, "cond-1", big.NewInt(100)))

	// One global update and one market update.
	require.Len(t, bus.payloads, 2)
	for _, ch := range bus.channels {
		assert.Equal(t, OpenInterestChannel, ch)
	}

	var global OpenInterestUpdate
	require.NoError(t, json.Unmarshal(bus.payloads[0], &global))
	assert.Empty(t, global.ConditionID)
	assert.Equal(t, "100", global.Amount)

	var market OpenInterestUpdate
	require.NoError(t, json.Unmarshal(bus.payloads[1], &market))
	assert.Equal(t, "cond-1", market.ConditionID)
	assert.Equal(t, "100", market.Amount)
}

func TestOpenInterestLedgerWritesCache(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cache := &fakeCache{markets: map[string]domain.MarketOpenInterest{}}
	l := NewOpenInterestLedger(mem.OpenInterest(), cache, nil, testLogger())

	require.NoError(t, l.ApplyDelta(ctx, "cond-1", big.NewInt(42)))

	assert.Equal(t, int64(42), cache.markets["cond-1"].Amount.Int64())
	require.NotNil(t, cache.global)
	assert.Equal(t, int64(42), cache.global.Amount.Int64())
}

// fakeCache records the last written snapshot per key.
type fakeCache struct {
	markets map[string]domain.MarketOpenInterest
	global  *domain.GlobalOpenInterest
}

func (c *fakeCache) SetMarket(_ context.Context, oi domain.MarketOpenInterest) error {
	c.markets[oi.ConditionID] = oi
	return nil
}

func (c *fakeCache) GetMarket(_ context.Context, conditionID string) (domain.MarketOpenInterest, error) {
	oi, ok := c.markets[conditionID]
	if !ok {
		return domain.MarketOpenInterest{}, domain.ErrNotFound
	}
	return oi, nil
}

func (c *fakeCache) SetGlobal(_ context.Context, oi domain.GlobalOpenInterest) error {
	c.global = &oi
	return nil
}

func (c *fakeCache) GetGlobal(_ context.Context) (domain.GlobalOpenInterest, error) {
	if c.global == nil {
		return domain.GlobalOpenInterest{}, domain.ErrNotFound
	}
	return *c.global, nil
}
