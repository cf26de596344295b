package domain

import "math/big"

// Condition represents a binary (two-outcome) prediction market question
// prepared on the conditional-token contract. Non-binary conditions are not
// tracked.
type Condition struct {
	ID string

	// PositionIDs holds the derived ERC-1155 token IDs for outcome index 0
	// and 1, as decimal strings. Set once at preparation, immutable after.
	PositionIDs [2]string

	// PayoutNumerators is empty until the condition resolves.
	PayoutNumerators []*big.Int

	// PayoutDenominator is zero while the condition is unresolved. Once set
	// it equals the sum of PayoutNumerators.
	PayoutDenominator *big.Int
}

// Resolved reports whether payout vectors have been recorded.
func (c Condition) Resolved() bool {
	return c.PayoutDenominator != nil && c.PayoutDenominator.Sign() != 0
}

// OutcomePosition is one outcome leg of a condition. Created lazily the first
// time its identifier is derived for a prepared condition; never mutated.
type OutcomePosition struct {
	ID           string // derived position ID, decimal string
	ConditionID  string
	OutcomeIndex int // 0 or 1
}
