package domain

import (
	"math/big"
	"time"
)

// EventMeta carries the chain coordinates shared by every inbound log event.
// Events are delivered in strictly increasing (block, txIndex, logIndex)
// order, at-least-once.
type EventMeta struct {
	Address     string // emitting contract, lowercase hex
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Timestamp   time.Time
}

// ActivityID returns the activity row key for the event.
func (m EventMeta) ActivityID() string {
	return ActivityID(m.TxHash, m.LogIndex)
}

// Event is any decoded conditional-token or neg-risk adapter log.
type Event interface {
	EventMeta() EventMeta
}

// ConditionPreparationEvent announces a new condition on the conditional-token
// contract.
type ConditionPreparationEvent struct {
	Meta             EventMeta
	ConditionID      string
	Oracle           string
	QuestionID       string
	OutcomeSlotCount int
}

// ConditionResolutionEvent reports the oracle's payout vector for a condition.
type ConditionResolutionEvent struct {
	Meta             EventMeta
	ConditionID      string
	PayoutNumerators []*big.Int
}

// PositionSplitEvent reports collateral split into a complete outcome set.
type PositionSplitEvent struct {
	Meta            EventMeta
	Stakeholder     string
	CollateralToken string
	ConditionID     string
	Amount          *big.Int
}

// PositionsMergeEvent reports a complete outcome set merged back into
// collateral.
type PositionsMergeEvent struct {
	Meta            EventMeta
	Stakeholder     string
	CollateralToken string
	ConditionID     string
	Amount          *big.Int
}

// PayoutRedemptionEvent reports outcome tokens redeemed for collateral after
// resolution.
type PayoutRedemptionEvent struct {
	Meta            EventMeta
	Redeemer        string
	CollateralToken string
	ConditionID     string
	Payout          *big.Int
}

// MarketPreparedEvent announces a new neg-risk market on the adapter.
type MarketPreparedEvent struct {
	Meta     EventMeta
	MarketID string
	FeeBps   int64
}

// QuestionPreparedEvent registers one more binary condition under a neg-risk
// market.
type QuestionPreparedEvent struct {
	Meta          EventMeta
	MarketID      string
	QuestionID    string
	QuestionIndex int
}

// PositionsConvertedEvent reports complete-NO sets converted into YES tokens
// across the neg-risk conditions selected by IndexSet.
type PositionsConvertedEvent struct {
	Meta        EventMeta
	Stakeholder string
	MarketID    string
	IndexSet    *big.Int
	Amount      *big.Int
}

func (e ConditionPreparationEvent) EventMeta() EventMeta { return e.Meta }
func (e ConditionResolutionEvent) EventMeta() EventMeta  { return e.Meta }
func (e PositionSplitEvent) EventMeta() EventMeta        { return e.Meta }
func (e PositionsMergeEvent) EventMeta() EventMeta       { return e.Meta }
func (e PayoutRedemptionEvent) EventMeta() EventMeta     { return e.Meta }
func (e MarketPreparedEvent) EventMeta() EventMeta       { return e.Meta }
func (e QuestionPreparedEvent) EventMeta() EventMeta     { return e.Meta }
func (e PositionsConvertedEvent) EventMeta() EventMeta   { return e.Meta }
