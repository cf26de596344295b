// Package ledger maintains the derived accounting state: open-interest
// totals per market and globally, and per-holder weighted-average cost
// positions. Every update is an explicit read-modify-write against the
// backing store; the indexing runtime serializes events, so no locking
// happens here.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// OpenInterestChannel is the signal-bus channel open-interest updates are
// published on.
const OpenInterestChannel = "ch:oi"

// OpenInterestUpdate is the payload published after every applied delta.
// ConditionID is empty for global updates.
type OpenInterestUpdate struct {
	ConditionID string `json:"condition_id,omitempty"`
	Amount      string `json:"amount"`
}

// OpenInterestLedger applies signed collateral deltas to the per-market and
// global open-interest rows. The cache and bus are optional read-side
// fan-outs; failures there are logged and never fail the ledger write.
type OpenInterestLedger struct {
	store  domain.OpenInterestStore
	cache  domain.OpenInterestCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOpenInterestLedger creates an OpenInterestLedger over the given store.
// cache and bus may be nil.
func NewOpenInterestLedger(store domain.OpenInterestStore, cache domain.OpenInterestCache, bus domain.SignalBus, logger *slog.Logger) *OpenInterestLedger {
	return &OpenInterestLedger{
		store:  store,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "oi_ledger")),
	}
}

// ApplyMarketDelta adds delta to the condition's open interest, creating the
// row at zero on first touch. A negative result is written through and logged
// at warn level: it signals a lost or duplicated event upstream and clamping
// would only hide that.
func (l *OpenInterestLedger) ApplyMarketDelta(ctx context.Context, conditionID string, delta *big.Int) error {
	oi, err := l.store.GetOrCreateMarket(ctx, conditionID)
	if err != nil {
		return fmt.Errorf("ledger: get market open interest %s: %w", conditionID, err)
	}

	oi.Amount = new(big.Int).Add(oi.Amount, delta)
	if oi.Amount.Sign() < 0 {
		l.logger.Warn("market open interest went negative",
			slog.String("condition_id", conditionID),
			slog.String("amount", oi.Amount.String()),
			slog.String("delta", delta.String()),
		)
	}

	if err := l.store.SetMarket(ctx, oi); err != nil {
		return fmt.Errorf("ledger: set market open interest %s: %w", conditionID, err)
	}

	if l.cache != nil {
		if err := l.cache.SetMarket(ctx, oi); err != nil {
			l.logger.Warn("open interest cache update failed",
				slog.String("condition_id", conditionID),
				slog.String("error", err.Error()),
			)
		}
	}
	l.publish(ctx, OpenInterestUpdate{ConditionID: conditionID, Amount: oi.Amount.String()})
	return nil
}

// ApplyGlobalDelta adds delta to the single global open-interest row.
func (l *OpenInterestLedger) ApplyGlobalDelta(ctx context.Context, delta *big.Int) error {
	oi, err := l.store.GetOrCreateGlobal(ctx)
	if err != nil {
		return fmt.Errorf("ledger: get global open interest: %w", err)
	}

	oi.Amount = new(big.Int).Add(oi.Amount, delta)
	if oi.Amount.Sign() < 0 {
		l.logger.Warn("global open interest went negative",
			slog.String("amount", oi.Amount.String()),
			slog.String("delta", delta.String()),
		)
	}

	if err := l.store.SetGlobal(ctx, oi); err != nil {
		return fmt.Errorf("ledger: set global open interest: %w", err)
	}

	if l.cache != nil {
		if err := l.cache.SetGlobal(ctx, oi); err != nil {
			l.logger.Warn("open interest cache update failed",
				slog.String("error", err.Error()),
			)
		}
	}
	l.publish(ctx, OpenInterestUpdate{Amount: oi.Amount.String()})
	return nil
}

// ApplyDelta applies the same delta to both the market and the global row.
// Callers treat the pair as one logical unit; event serialization guarantees
// nothing interleaves between the two writes.
func (l *OpenInterestLedger) ApplyDelta(ctx context.Context, conditionID string, delta *big.Int) error {
	if err := l.ApplyGlobalDelta(ctx, delta); err != nil {
		return err
	}
	return l.ApplyMarketDelta(ctx, conditionID, delta)
}

func (l *OpenInterestLedger) publish(ctx context.Context, upd OpenInterestUpdate) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(upd)
	if err != nil {
		l.logger.Warn("marshal open interest update", slog.String("error", err.Error()))
		return
	}
	if err := l.bus.Publish(ctx, OpenInterestChannel, payload); err != nil {
		l.logger.Warn("publish open interest update", slog.String("error", err.Error()))
	}
}
