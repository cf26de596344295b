package domain

// NegRiskEvent is a multi-outcome market synthesized from several underlying
// binary conditions registered against a neg-risk adapter.
type NegRiskEvent struct {
	MarketID string

	// QuestionCount is the number of binary conditions registered so far.
	// Incremented by one on each QuestionPrepared; never decremented.
	QuestionCount int

	// FeeBps is the basis-point fee charged on conversions.
	FeeBps int64
}
