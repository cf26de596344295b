package ctf

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCondition  = common.HexToHash("0xd3a9ac4ebcdcd3c6ed3f2bbb744007b1825ca1e51e0dfed0990e92bb0ba6b7d2")
	testCollateral = common.HexToAddress("0x2791bca1f2de4661ed88a30c99a7a9449aa84174")
)

func TestCollectionIDDeterministic(t *testing.T) {
	a, err := CollectionID(testCondition, 0)
	require.NoError(t, err)
	b, err := CollectionID(testCondition, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCollectionIDDistinctPerOutcome(t *testing.T) {
	yes, err := CollectionID(testCondition, 0)
	require.NoError(t, err)
	no, err := CollectionID(testCondition, 1)
	require.NoError(t, err)
	assert.NotEqual(t, yes, no)
}

func TestCollectionIDOutcomeRange(t *testing.T) {
	for _, idx := range []int{-1, 8, 255} {
		_, err := CollectionID(testCondition, idx)
		assert.Error(t, err, "outcome index %d must be rejected", idx)
	}
	for idx := 0; idx < 8; idx++ {
		_, err := CollectionID(testCondition, idx)
		assert.NoError(t, err)
	}
}

func TestCollectionIDFitsCurveEncoding(t *testing.T) {
	// The x-coordinate is reduced below the field order (< 2^254) before the
	// branch flag lands in bit 254, so bit 255 is never set.
	for idx := 0; idx < 2; idx++ {
		id, err := CollectionID(testCondition, idx)
		require.NoError(t, err)
		v := new(big.Int).SetBytes(id[:])
		assert.LessOrEqual(t, v.BitLen(), 255)

		// Stripping the branch flag must leave a valid curve x-coordinate.
		x := new(big.Int).SetBit(v, 254, 0)
		require.Less(t, x.Cmp(FieldPrime), 0)
		yy := AddMod(MulMod(MulMod(x, x), x), curveB)
		assert.True(t, IsQuadraticResidue(yy))
	}
}

func TestPositionID(t *testing.T) {
	collection, err := CollectionID(testCondition, 0)
	require.NoError(t, err)

	a := PositionID(testCollateral, collection)
	b := PositionID(testCollateral, collection)
	assert.Zero(t, a.Cmp(b))
	assert.Positive(t, a.Sign())

	other := PositionID(common.HexToAddress("0x0000000000000000000000000000000000000001"), collection)
	assert.NotZero(t, a.Cmp(other), "different collateral must give a different position id")
}

func TestPositionIDFromCondition(t *testing.T) {
	direct, err := CollectionID(testCondition, 1)
	require.NoError(t, err)
	want := PositionID(testCollateral, direct)

	got, err := PositionIDFromCondition(testCollateral, testCondition, 1)
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(want))
}

func TestNegRiskQuestionID(t *testing.T) {
	marketID := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa00")

	q := NegRiskQuestionID(marketID, 5)
	assert.Equal(t, byte(5), q[31])
	assert.Equal(t, marketID[:31], q[:31], "only the last byte may change")
}

func TestNegRiskConditionID(t *testing.T) {
	oracle := common.HexToAddress("0xd91e80cf2e7be2e162c6513ced06f1dd0da35296")
	marketID := common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb00")

	a := NegRiskConditionID(oracle, marketID, 0)
	assert.Equal(t, a, NegRiskConditionID(oracle, marketID, 0))

	b := NegRiskConditionID(oracle, marketID, 1)
	assert.NotEqual(t, a, b, "questions of one market must map to distinct conditions")

	otherOracle := NegRiskConditionID(common.HexToAddress("0x0000000000000000000000000000000000000002"), marketID, 0)
	assert.NotEqual(t, a, otherOracle)
}
