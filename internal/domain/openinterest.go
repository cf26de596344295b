package domain

import "math/big"

// GlobalOpenInterestID is the sentinel row key for the single global
// open-interest entity.
const GlobalOpenInterestID = "GlobalOpenInterest"

// MarketOpenInterest is the running collateral locked behind one condition.
// Amount equals the sum of all signed deltas ever applied for that condition.
// A negative total indicates lost or duplicated events upstream and is
// surfaced rather than clamped.
type MarketOpenInterest struct {
	ConditionID string
	Amount      *big.Int
}

// GlobalOpenInterest aggregates open interest across every condition that
// settles in the tracked collateral asset.
type GlobalOpenInterest struct {
	Amount *big.Int
}
