package ctf

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// maxProbeIterations caps the x-coordinate search. The curve has ~P/2
// residues so the probe terminates within a handful of steps in practice;
// hitting the cap means the inputs or the arithmetic are broken.
const maxProbeIterations = 1000

// oddToggle is bit 254, the flag the contract uses to select between the two
// square-root branches of a curve point.
var oddToggle = new(big.Int).Lsh(big.NewInt(1), 254)

// CollectionID derives the 32-byte collection identifier for one outcome leg
// of a condition. It hashes the condition ID with a bit mask selecting the
// outcome, then searches for the nearest valid curve x-coordinate and encodes
// the square-root branch in bit 254.
func CollectionID(conditionID common.Hash, outcomeIndex int) ([32]byte, error) {
	var id [32]byte
	if outcomeIndex < 0 || outcomeIndex > 7 {
		return id, fmt.Errorf("ctf: outcome index %d out of range for index-set byte", outcomeIndex)
	}

	var payload [64]byte
	copy(payload[:32], conditionID[:])
	payload[63] = 1 << uint(outcomeIndex)

	digest := ethcrypto.Keccak256(payload[:])
	h := new(big.Int).SetBytes(reverse(digest))

	// Bit 255 of the (reversed) digest decides which square root the
	// contract committed to.
	odd := h.Bit(255) == 1

	x := new(big.Int).Set(h)
	one := big.NewInt(1)
	for i := 0; ; i++ {
		if i >= maxProbeIterations {
			return id, fmt.Errorf("ctf: no curve point found for condition %s outcome %d after %d probes",
				conditionID.Hex(), outcomeIndex, maxProbeIterations)
		}
		x = AddMod(x, one)
		yy := AddMod(MulMod(MulMod(x, x), x), curveB)
		if IsQuadraticResidue(yy) {
			break
		}
	}

	// Toggle bit 254 outside the field, exactly as the reference
	// implementation does: plain integer add/sub, no reduction.
	if odd {
		if x.Bit(254) == 0 {
			x = new(big.Int).Add(x, oddToggle)
		} else {
			x = new(big.Int).Sub(x, oddToggle)
		}
	}

	x.FillBytes(id[:])
	return id, nil
}

// PositionID derives the canonical ERC-1155 token ID for a collection under a
// collateral asset: keccak256(collateral ‖ collectionID) with the digest
// byte-reversed and read as a big-endian unsigned integer.
func PositionID(collateral common.Address, collectionID [32]byte) *big.Int {
	var payload [52]byte
	copy(payload[:20], collateral[:])
	copy(payload[20:], collectionID[:])

	digest := ethcrypto.Keccak256(payload[:])
	return new(big.Int).SetBytes(reverse(digest))
}

// PositionIDFromCondition composes CollectionID and PositionID.
func PositionIDFromCondition(collateral common.Address, conditionID common.Hash, outcomeIndex int) (*big.Int, error) {
	collectionID, err := CollectionID(conditionID, outcomeIndex)
	if err != nil {
		return nil, err
	}
	return PositionID(collateral, collectionID), nil
}

// NegRiskQuestionID builds the per-question ID of a neg-risk market: the
// market ID with its last byte replaced by the question index. The adapter
// reserves the low byte of market IDs for exactly this.
func NegRiskQuestionID(marketID common.Hash, questionIndex int) common.Hash {
	questionID := marketID
	questionID[31] = byte(questionIndex)
	return questionID
}

// NegRiskConditionID derives the conditional-token condition ID for one
// question of a neg-risk market: keccak256(oracle ‖ questionID ‖ uint256(2)),
// the adapter always preparing binary conditions.
func NegRiskConditionID(oracle common.Address, marketID common.Hash, questionIndex int) common.Hash {
	questionID := NegRiskQuestionID(marketID, questionIndex)

	var payload [84]byte
	copy(payload[:20], oracle[:])
	copy(payload[20:52], questionID[:])
	payload[83] = 2 // outcome slot count as a uint256

	return common.BytesToHash(ethcrypto.Keccak256(payload[:]))
}

// reverse returns a reversed copy of b.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
