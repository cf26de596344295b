package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctfledger/internal/ctf"
	"github.com/alanyoungcy/ctfledger/internal/domain"
)

const marketA = "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc00"

// setupNegRiskMarket prepares a neg-risk market with questionCount binary
// questions and returns the derived condition IDs in question order.
func setupNegRiskMarket(t *testing.T, f *fixture, feeBps int64, questionCount int) []string {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, domain.MarketPreparedEvent{
		Meta:     meta(1, 0),
		MarketID: marketA,
		FeeBps:   feeBps,
	}))

	conditionIDs := make([]string, questionCount)
	for i := 0; i < questionCount; i++ {
		require.NoError(t, f.processor.Process(ctx, domain.QuestionPreparedEvent{
			Meta:          meta(1, uint(i+1)),
			MarketID:      marketA,
			QuestionIndex: i,
		}))
		conditionIDs[i] = ctf.NegRiskConditionID(
			common.HexToAddress(adapterAddr),
			common.HexToHash(marketA),
			i,
		).Hex()
	}
	return conditionIDs
}

// splitOn gives the holder a complete outcome set on the given condition.
func splitOn(t *testing.T, f *fixture, holder, conditionID string, amount int64, logIndex uint) {
	t.Helper()
	require.NoError(t, f.processor.Process(context.Background(), domain.PositionSplitEvent{
		Meta:            meta(2, logIndex),
		Stakeholder:     holder,
		CollateralToken: usdc,
		ConditionID:     conditionID,
		Amount:          big.NewInt(amount),
	}))
}

func TestMarketPrepared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, domain.MarketPreparedEvent{
		Meta:     meta(1, 0),
		MarketID: marketA,
		FeeBps:   200,
	}))

	market, err := f.store.NegRisk().Get(ctx, marketA)
	require.NoError(t, err)
	assert.Equal(t, int64(200), market.FeeBps)
	assert.Zero(t, market.QuestionCount)
}

func TestMarketPreparedReplayKeepsQuestionCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setupNegRiskMarket(t, f, 0, 2)

	require.NoError(t, f.processor.Process(ctx, domain.MarketPreparedEvent{
		Meta:     meta(3, 0),
		MarketID: marketA,
		FeeBps:   0,
	}))

	market, err := f.store.NegRisk().Get(ctx, marketA)
	require.NoError(t, err)
	assert.Equal(t, 2, market.QuestionCount, "replay must not reset the counter")
}

func TestQuestionPreparedCreatesConditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conditionIDs := setupNegRiskMarket(t, f, 0, 3)

	market, err := f.store.NegRisk().Get(ctx, marketA)
	require.NoError(t, err)
	assert.Equal(t, 3, market.QuestionCount)

	for _, id := range conditionIDs {
		cond, err := f.store.Conditions().GetCondition(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, cond.PositionIDs[0])
		assert.NotEmpty(t, cond.PositionIDs[1])
	}
}

func TestQuestionPreparedUnknownMarketIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, domain.QuestionPreparedEvent{
		Meta:          meta(1, 0),
		MarketID:      marketA,
		QuestionIndex: 0,
	}))

	_, err := f.store.NegRisk().Get(ctx, marketA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionsConvertedNoFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conditionIDs := setupNegRiskMarket(t, f, 0, 3)
	splitOn(t, f, alice, conditionIDs[0], 100, 1)
	splitOn(t, f, alice, conditionIDs[1], 100, 2)
	require.Equal(t, int64(200), f.globalOI(t).Int64())

	// Convert complete-NO sets on questions 0 and 1.
	require.NoError(t, f.processor.Process(ctx, domain.PositionsConvertedEvent{
		Meta:        meta(3, 1),
		Stakeholder: alice,
		MarketID:    marketA,
		IndexSet:    big.NewInt(0b011),
		Amount:      big.NewInt(100),
	}))

	// Each involved market releases 100·(2−1)/2 = 50; global drops by 100.
	assert.Equal(t, int64(50), f.marketOI(t, conditionIDs[0]).Int64())
	assert.Equal(t, int64(50), f.marketOI(t, conditionIDs[1]).Int64())
	assert.Zero(t, f.marketOI(t, conditionIDs[2]).Sign())
	assert.Equal(t, int64(100), f.globalOI(t).Int64())

	// NO legs of the involved questions are sold out.
	for i := 0; i < 2; i++ {
		noID, err := ctf.PositionIDFromCondition(
			common.HexToAddress(usdc), common.HexToHash(conditionIDs[i]), 1)
		require.NoError(t, err)
		pos := f.holding(t, alice, noID.String())
		assert.Zero(t, pos.Amount.Sign())
	}

	// The YES leg of the remaining question is acquired at
	// scale − ⌊Σ(noAvg)/questionCount⌋ = 1000000 − ⌊1000000/3⌋ = 666667.
	yesID, err := ctf.PositionIDFromCondition(
		common.HexToAddress(usdc), common.HexToHash(conditionIDs[2]), 0)
	require.NoError(t, err)
	yes := f.holding(t, alice, yesID.String())
	assert.Equal(t, int64(100), yes.Amount.Int64())
	assert.Equal(t, int64(666_667), yes.AvgPrice.Int64())

	entries, err := f.store.Activity().ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "conversion", entries[0].Kind)
}

func TestPositionsConvertedWithFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1% adapter fee.
	conditionIDs := setupNegRiskMarket(t, f, 100, 3)
	splitOn(t, f, alice, conditionIDs[0], 10_000, 1)
	splitOn(t, f, alice, conditionIDs[1], 10_000, 2)
	require.Equal(t, int64(20_000), f.globalOI(t).Int64())

	require.NoError(t, f.processor.Process(ctx, domain.PositionsConvertedEvent{
		Meta:        meta(3, 1),
		Stakeholder: alice,
		MarketID:    marketA,
		IndexSet:    big.NewInt(0b011),
		Amount:      big.NewInt(10_000),
	}))

	// fee = 10000·100/10000 = 100, net = 9900.
	// Per market: −(100·1)/2 − (9900·1)/2 = −50 − 4950 = −5000.
	// Global: +100 − 9900 = −9800.
	assert.Equal(t, int64(5_000), f.marketOI(t, conditionIDs[0]).Int64())
	assert.Equal(t, int64(5_000), f.marketOI(t, conditionIDs[1]).Int64())
	assert.Equal(t, int64(10_200), f.globalOI(t).Int64())

	// Position quantities trade net of the fee: the involved NO legs keep
	// the 100 fee-retained units, the YES leg acquires the 9900 net.
	for i := 0; i < 2; i++ {
		noID, err := ctf.PositionIDFromCondition(
			common.HexToAddress(usdc), common.HexToHash(conditionIDs[i]), 1)
		require.NoError(t, err)
		pos := f.holding(t, alice, noID.String())
		assert.Equal(t, int64(100), pos.Amount.Int64())
	}
	yesID, err := ctf.PositionIDFromCondition(
		common.HexToAddress(usdc), common.HexToHash(conditionIDs[2]), 0)
	require.NoError(t, err)
	yes := f.holding(t, alice, yesID.String())
	assert.Equal(t, int64(9_900), yes.Amount.Int64())
	assert.Equal(t, int64(666_667), yes.AvgPrice.Int64())

	entries, err := f.store.Activity().ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPositionsConvertedSingleLegLeavesOpenInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conditionIDs := setupNegRiskMarket(t, f, 0, 3)
	splitOn(t, f, alice, conditionIDs[0], 100, 1)

	require.NoError(t, f.processor.Process(ctx, domain.PositionsConvertedEvent{
		Meta:        meta(3, 1),
		Stakeholder: alice,
		MarketID:    marketA,
		IndexSet:    big.NewInt(0b001),
		Amount:      big.NewInt(100),
	}))

	// One NO leg nets nothing across markets.
	assert.Equal(t, int64(100), f.globalOI(t).Int64())
	assert.Equal(t, int64(100), f.marketOI(t, conditionIDs[0]).Int64())
}

func TestPositionsConvertedWholeMarketSkipsYesLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conditionIDs := setupNegRiskMarket(t, f, 0, 2)
	splitOn(t, f, alice, conditionIDs[0], 100, 1)
	splitOn(t, f, alice, conditionIDs[1], 100, 2)

	require.NoError(t, f.processor.Process(ctx, domain.PositionsConvertedEvent{
		Meta:        meta(3, 1),
		Stakeholder: alice,
		MarketID:    marketA,
		IndexSet:    big.NewInt(0b011),
		Amount:      big.NewInt(100),
	}))

	// No complementary questions, so no YES buys happen anywhere.
	positions, err := f.store.UserPositions().ListByHolder(ctx, alice)
	require.NoError(t, err)
	for _, pos := range positions {
		if pos.Amount.Sign() != 0 {
			// Only the YES legs from the original splits remain.
			assert.Equal(t, int64(100), pos.Amount.Int64())
			assert.Equal(t, int64(500_000), pos.AvgPrice.Int64())
		}
	}

	// Open interest still releases 100·(2−1) globally.
	assert.Equal(t, int64(100), f.globalOI(t).Int64())
}

func TestPositionsConvertedUnknownMarketIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.processor.Process(ctx, domain.PositionsConvertedEvent{
		Meta:        meta(3, 1),
		Stakeholder: alice,
		MarketID:    marketA,
		IndexSet:    big.NewInt(1),
		Amount:      big.NewInt(100),
	}))

	entries, err := f.store.Activity().ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPositionsConvertedInternalStakeholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conditionIDs := setupNegRiskMarket(t, f, 0, 3)
	splitOn(t, f, exchange, conditionIDs[0], 100, 1)
	splitOn(t, f, exchange, conditionIDs[1], 100, 2)

	require.NoError(t, f.processor.Process(ctx, domain.PositionsConvertedEvent{
		Meta:        meta(3, 1),
		Stakeholder: exchange,
		MarketID:    marketA,
		IndexSet:    big.NewInt(0b011),
		Amount:      big.NewInt(100),
	}))

	// Collateral accounting applies; position accounting does not.
	assert.Equal(t, int64(100), f.globalOI(t).Int64())
	positions, err := f.store.UserPositions().ListByHolder(ctx, exchange)
	require.NoError(t, err)
	for _, pos := range positions {
		assert.Zero(t, pos.Amount.Sign())
	}

	// The conversion is still recorded.
	entries, err := f.store.Activity().ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "conversion", entries[0].Kind)
}
