package domain

import "math/big"

// UserPosition is one holder's exposure to one outcome leg, valued at the
// quantity-weighted average acquisition price.
type UserPosition struct {
	Holder     string // lowercase hex address
	PositionID string // derived position ID, decimal string

	// Amount is the held token quantity. Non-negative under correct event
	// ordering; a sell past zero is a logic error surfaced by the ledger.
	Amount *big.Int

	// AvgPrice is the average cost per unit in collateral smallest units,
	// in the range [0, CollateralScale]. Meaningless while Amount is zero.
	AvgPrice *big.Int
}

// UserPositionID builds the composite entity key for a (holder, position)
// pair.
func UserPositionID(holder, positionID string) string {
	return holder + "-" + positionID
}
