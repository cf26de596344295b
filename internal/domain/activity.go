package domain

import (
	"fmt"
	"math/big"
	"time"
)

// ActivityID builds the append-only activity row key from the emitting
// transaction hash and log index. One row per qualifying event.
func ActivityID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}

// Split records a user splitting collateral into a complete outcome set.
type Split struct {
	ID          string // ActivityID(txHash, logIndex)
	Timestamp   time.Time
	Stakeholder string
	ConditionID string
	Amount      *big.Int
}

// Merge records a user merging a complete outcome set back into collateral.
type Merge struct {
	ID          string
	Timestamp   time.Time
	Stakeholder string
	ConditionID string
	Amount      *big.Int
}

// Redemption records a user redeeming outcome tokens after resolution.
type Redemption struct {
	ID          string
	Timestamp   time.Time
	Redeemer    string
	ConditionID string
	Payout      *big.Int
}

// NegRiskConversion records a conversion of complete-NO sets into YES tokens
// across the sibling conditions of a neg-risk market.
type NegRiskConversion struct {
	ID          string
	Timestamp   time.Time
	Stakeholder string
	MarketID    string
	IndexSet    *big.Int
	Amount      *big.Int
	FeeAmount   *big.Int
}
