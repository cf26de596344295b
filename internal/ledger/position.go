package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// PositionLedger maintains per-holder per-outcome positions valued at the
// quantity-weighted average acquisition price.
type PositionLedger struct {
	store  domain.UserPositionStore
	logger *slog.Logger
}

// NewPositionLedger creates a PositionLedger over the given store.
func NewPositionLedger(store domain.UserPositionStore, logger *slog.Logger) *PositionLedger {
	return &PositionLedger{
		store:  store,
		logger: logger.With(slog.String("component", "position_ledger")),
	}
}

// Buy adds quantity units acquired at price to the holder's position and
// recomputes the average price as the quantity-weighted mean:
//
//	newAvg = (amount·avgPrice + quantity·price) / (amount + quantity)
//
// The division truncates toward zero, so the recorded cost basis can be up to
// one collateral smallest-unit below the exact mean.
func (l *PositionLedger) Buy(ctx context.Context, holder, positionID string, price, quantity *big.Int) error {
	if quantity.Sign() == 0 {
		return nil
	}

	pos, err := l.store.GetOrCreate(ctx, holder, positionID)
	if err != nil {
		return fmt.Errorf("ledger: get position %s/%s: %w", holder, positionID, err)
	}

	newAmount := new(big.Int).Add(pos.Amount, quantity)

	held := new(big.Int).Mul(pos.Amount, pos.AvgPrice)
	added := new(big.Int).Mul(quantity, price)
	pos.AvgPrice = new(big.Int).Quo(new(big.Int).Add(held, added), newAmount)
	pos.Amount = newAmount

	if err := l.store.Set(ctx, pos); err != nil {
		return fmt.Errorf("ledger: set position %s/%s: %w", holder, positionID, err)
	}
	return nil
}

// Sell removes quantity units from the holder's position. The average price
// is untouched: a sell realizes gain or loss against the existing cost basis
// without changing the basis of what remains. Selling more than is held is a
// logic error under correct event ordering; it is logged and written through
// rather than clamped.
func (l *PositionLedger) Sell(ctx context.Context, holder, positionID string, price, quantity *big.Int) error {
	if quantity.Sign() == 0 {
		return nil
	}

	pos, err := l.store.GetOrCreate(ctx, holder, positionID)
	if err != nil {
		return fmt.Errorf("ledger: get position %s/%s: %w", holder, positionID, err)
	}

	pos.Amount = new(big.Int).Sub(pos.Amount, quantity)
	if pos.Amount.Sign() < 0 {
		l.logger.Error("position sold below zero",
			slog.String("holder", holder),
			slog.String("position_id", positionID),
			slog.String("amount", pos.Amount.String()),
			slog.String("quantity", quantity.String()),
		)
	}

	if err := l.store.Set(ctx, pos); err != nil {
		return fmt.Errorf("ledger: set position %s/%s: %w", holder, positionID, err)
	}
	return nil
}

// Holding returns the holder's current position, zero-valued when absent.
func (l *PositionLedger) Holding(ctx context.Context, holder, positionID string) (domain.UserPosition, error) {
	pos, err := l.store.GetOrCreate(ctx, holder, positionID)
	if err != nil {
		return domain.UserPosition{}, fmt.Errorf("ledger: get position %s/%s: %w", holder, positionID, err)
	}
	return pos, nil
}
