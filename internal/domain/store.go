package domain

import (
	"context"
	"io"
	"math/big"
)

// ConditionStore persists prepared conditions and their outcome positions.
type ConditionStore interface {
	GetCondition(ctx context.Context, id string) (Condition, error)
	SetCondition(ctx context.Context, c Condition) error
	GetPosition(ctx context.Context, id string) (OutcomePosition, error)
	SetPosition(ctx context.Context, p OutcomePosition) error
}

// OpenInterestStore persists per-market and global open-interest totals.
// GetOrCreate variants return a zero-amount row when none exists yet.
type OpenInterestStore interface {
	GetOrCreateMarket(ctx context.Context, conditionID string) (MarketOpenInterest, error)
	SetMarket(ctx context.Context, oi MarketOpenInterest) error
	ListMarkets(ctx context.Context) ([]MarketOpenInterest, error)
	GetOrCreateGlobal(ctx context.Context) (GlobalOpenInterest, error)
	SetGlobal(ctx context.Context, oi GlobalOpenInterest) error
}

// UserPositionStore persists per-holder per-outcome cost-basis positions.
type UserPositionStore interface {
	GetOrCreate(ctx context.Context, holder, positionID string) (UserPosition, error)
	Set(ctx context.Context, p UserPosition) error
	ListByHolder(ctx context.Context, holder string) ([]UserPosition, error)
}

// NegRiskStore persists neg-risk market registrations.
type NegRiskStore interface {
	Get(ctx context.Context, marketID string) (NegRiskEvent, error)
	Set(ctx context.Context, ev NegRiskEvent) error
}

// ActivityStore persists the append-only activity records. Inserts are
// idempotent on the activity ID so at-least-once delivery can replay safely.
type ActivityStore interface {
	InsertSplit(ctx context.Context, s Split) error
	InsertMerge(ctx context.Context, m Merge) error
	InsertRedemption(ctx context.Context, r Redemption) error
	InsertConversion(ctx context.Context, c NegRiskConversion) error
	ListRecent(ctx context.Context, limit int) ([]ActivityEntry, error)
}

// ActivityEntry is a flattened activity row for read APIs.
type ActivityEntry struct {
	ID          string
	Kind        string // "split", "merge", "redemption", "conversion"
	Timestamp   int64
	Account     string
	ConditionID string
	Amount      *big.Int
}

// Checkpoint marks the last fully processed chain coordinate so ingestion can
// resume after a restart.
type Checkpoint struct {
	ID          string
	BlockNumber uint64
	LogIndex    uint
}

// CheckpointStore persists ingestion cursors.
type CheckpointStore interface {
	Get(ctx context.Context, id string) (Checkpoint, error)
	Set(ctx context.Context, cp Checkpoint) error
}

// SignalBus publishes ephemeral update notifications to interested readers
// (the WebSocket hub subscribes to these).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// OpenInterestCache is a fast read-side snapshot of open-interest totals.
type OpenInterestCache interface {
	SetMarket(ctx context.Context, oi MarketOpenInterest) error
	GetMarket(ctx context.Context, conditionID string) (MarketOpenInterest, error)
	SetGlobal(ctx context.Context, oi GlobalOpenInterest) error
	GetGlobal(ctx context.Context) (GlobalOpenInterest, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
