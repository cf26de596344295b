package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ctfledger/internal/ctf"
	"github.com/alanyoungcy/ctfledger/internal/domain"
)

var bpsDenominator = big.NewInt(10_000)

// HandlePositionsConverted applies a neg-risk conversion: the stakeholder
// turns `amount` complete-NO sets on the conditions selected by the index set
// into YES tokens on the remaining conditions plus released collateral.
//
// Open interest: with noCount involved conditions, each involved market
// releases amount·(noCount−1)/noCount of collateral (after the adapter fee,
// when one is configured) and the global total drops by amount·(noCount−1).
// Integer division truncates toward zero; the per-market remainder of at most
// noCount−1 smallest units is a known rounding leak, not redistributed.
//
// Positions: each involved NO leg is sold at its own recorded average price;
// the complementary YES legs are bought at a price derived from the mean NO
// cost. The adapter retains the fee in tokens, so both sides trade the
// fee-reduced amount.
func (p *Processor) HandlePositionsConverted(ctx context.Context, ev domain.PositionsConvertedEvent) error {
	market, err := p.negRisk.Get(ctx, ev.MarketID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("conversion for unknown neg-risk market", slog.String("market_id", ev.MarketID))
		return nil
	} else if err != nil {
		return fmt.Errorf("indexer: lookup neg-risk market %s: %w", ev.MarketID, err)
	}

	if ev.IndexSet == nil || ev.Amount == nil {
		p.logger.Error("conversion with missing index set or amount", slog.String("market_id", ev.MarketID))
		return nil
	}

	marketHash := common.HexToHash(ev.MarketID)

	var noConditionIDs []string
	var yesConditionIDs []string
	for i := 0; i < market.QuestionCount; i++ {
		conditionID := ctf.NegRiskConditionID(p.adapter, marketHash, i).Hex()
		if ev.IndexSet.Bit(i) == 1 {
			noConditionIDs = append(noConditionIDs, conditionID)
		} else {
			yesConditionIDs = append(yesConditionIDs, conditionID)
		}
	}

	// The fee is taken off the top; everything downstream works on the net.
	feeAmount := new(big.Int)
	netAmount := new(big.Int).Set(ev.Amount)
	if market.FeeBps > 0 && len(noConditionIDs) > 1 {
		feeAmount.Mul(ev.Amount, big.NewInt(market.FeeBps))
		feeAmount.Quo(feeAmount, bpsDenominator)
		netAmount.Sub(netAmount, feeAmount)
	}

	if err := p.convertOpenInterest(ctx, noConditionIDs, netAmount, feeAmount); err != nil {
		return err
	}

	if !p.isInternal(ev.Stakeholder) {
		if err := p.convertPositions(ctx, market, ev, netAmount, noConditionIDs, yesConditionIDs); err != nil {
			return err
		}
	}

	conversion := domain.NegRiskConversion{
		ID:          ev.Meta.ActivityID(),
		Timestamp:   ev.Meta.Timestamp,
		Stakeholder: lower(ev.Stakeholder),
		MarketID:    ev.MarketID,
		IndexSet:    ev.IndexSet,
		Amount:      ev.Amount,
		FeeAmount:   feeAmount,
	}
	if err := p.activity.InsertConversion(ctx, conversion); err != nil {
		return fmt.Errorf("indexer: insert conversion %s: %w", conversion.ID, err)
	}
	return nil
}

// convertOpenInterest performs the collateral-release bookkeeping on the
// fee-reduced amount.
func (p *Processor) convertOpenInterest(ctx context.Context, noConditionIDs []string, netAmount, feeAmount *big.Int) error {
	noCount := int64(len(noConditionIDs))
	if noCount <= 1 {
		// A single NO leg nets nothing across markets.
		return nil
	}

	multiplier := big.NewInt(noCount - 1)
	divisor := big.NewInt(noCount)

	if feeAmount.Sign() > 0 {
		// The fee vault holds the collateral backing fee-retained tokens, so
		// each involved market releases its share of the fee.
		feeReleased := new(big.Int).Neg(new(big.Int).Mul(feeAmount, multiplier))
		perMarketFee := new(big.Int).Quo(feeReleased, divisor)
		for _, conditionID := range noConditionIDs {
			if err := p.oi.ApplyMarketDelta(ctx, conditionID, perMarketFee); err != nil {
				return err
			}
		}
		if err := p.oi.ApplyGlobalDelta(ctx, feeAmount); err != nil {
			return err
		}
	}

	released := new(big.Int).Neg(new(big.Int).Mul(netAmount, multiplier))
	perMarket := new(big.Int).Quo(released, divisor)
	for _, conditionID := range noConditionIDs {
		if err := p.oi.ApplyMarketDelta(ctx, conditionID, perMarket); err != nil {
			return err
		}
	}
	return p.oi.ApplyGlobalDelta(ctx, released)
}

// convertPositions sells the involved NO legs at their recorded cost and buys
// the complementary YES legs at the derived YES price, amount units each.
//
// yesPrice = scale − Σ(noAvgPrice) / questionCount, one truncating division.
// With noPrice = Σ/noCount this equals scale − noPrice·noCount/questionCount
// computed without the intermediate mean truncation.
func (p *Processor) convertPositions(ctx context.Context, market domain.NegRiskEvent, ev domain.PositionsConvertedEvent, amount *big.Int, noConditionIDs, yesConditionIDs []string) error {
	if len(noConditionIDs) == 0 {
		return nil
	}

	stakeholder := lower(ev.Stakeholder)

	noPriceSum := new(big.Int)
	for _, conditionID := range noConditionIDs {
		noPositionID, err := ctf.PositionIDFromCondition(p.collateral, common.HexToHash(conditionID), 1)
		if err != nil {
			return fmt.Errorf("indexer: derive NO position for %s: %w", conditionID, err)
		}

		held, err := p.positions.Holding(ctx, stakeholder, noPositionID.String())
		if err != nil {
			return err
		}
		noPriceSum.Add(noPriceSum, held.AvgPrice)

		if err := p.positions.Sell(ctx, stakeholder, noPositionID.String(), held.AvgPrice, amount); err != nil {
			return err
		}
	}

	// No complementary legs when the whole market converts.
	if len(yesConditionIDs) == 0 {
		return nil
	}

	yesPrice := new(big.Int).Sub(p.scale, new(big.Int).Quo(noPriceSum, big.NewInt(int64(market.QuestionCount))))
	if yesPrice.Sign() < 0 {
		yesPrice.SetInt64(0)
	}

	for _, conditionID := range yesConditionIDs {
		yesPositionID, err := ctf.PositionIDFromCondition(p.collateral, common.HexToHash(conditionID), 0)
		if err != nil {
			return fmt.Errorf("indexer: derive YES position for %s: %w", conditionID, err)
		}
		if err := p.positions.Buy(ctx, stakeholder, yesPositionID.String(), yesPrice, amount); err != nil {
			return err
		}
	}
	return nil
}
