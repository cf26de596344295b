// Package indexer applies decoded conditional-token and neg-risk adapter
// events to the accounting state. One handler per event kind; the runner
// feeds events strictly in (block, logIndex) order, one at a time, so
// handlers never run concurrently.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ctfledger/internal/ctf"
	"github.com/alanyoungcy/ctfledger/internal/domain"
	"github.com/alanyoungcy/ctfledger/internal/ledger"
)

// Config holds the protocol constants the processor needs.
type Config struct {
	// CollateralToken is the tracked collateral asset. Events settling in
	// any other token are ignored for open-interest accounting.
	CollateralToken common.Address

	// CollateralScale is the collateral token's smallest-unit scale
	// (10^6 for 6-decimal USDC).
	CollateralScale *big.Int

	// NegRiskAdapter is the adapter contract. It acts as the oracle for
	// per-question condition derivation and is an internal actor.
	NegRiskAdapter common.Address

	// InternalAddresses are protocol components (adapter, exchanges) whose
	// splits and merges are plumbing, not user trades. They are excluded
	// from position and activity bookkeeping but not from open interest.
	InternalAddresses []common.Address
}

// Processor is the event-accounting engine. It orchestrates identifier
// derivation, the two ledgers, and the activity log.
type Processor struct {
	conditions domain.ConditionStore
	negRisk    domain.NegRiskStore
	activity   domain.ActivityStore
	oi         *ledger.OpenInterestLedger
	positions  *ledger.PositionLedger

	collateral common.Address
	scale      *big.Int
	fiftyCents *big.Int
	adapter    common.Address
	internal   map[common.Address]struct{}

	logger *slog.Logger
}

// NewProcessor creates a Processor from its collaborators and the protocol
// constants.
func NewProcessor(
	conditions domain.ConditionStore,
	negRisk domain.NegRiskStore,
	activity domain.ActivityStore,
	oi *ledger.OpenInterestLedger,
	positions *ledger.PositionLedger,
	cfg Config,
	logger *slog.Logger,
) *Processor {
	internal := make(map[common.Address]struct{}, len(cfg.InternalAddresses)+1)
	internal[cfg.NegRiskAdapter] = struct{}{}
	for _, addr := range cfg.InternalAddresses {
		internal[addr] = struct{}{}
	}

	return &Processor{
		conditions: conditions,
		negRisk:    negRisk,
		activity:   activity,
		oi:         oi,
		positions:  positions,
		collateral: cfg.CollateralToken,
		scale:      new(big.Int).Set(cfg.CollateralScale),
		fiftyCents: new(big.Int).Rsh(cfg.CollateralScale, 1),
		adapter:    cfg.NegRiskAdapter,
		internal:   internal,
		logger:     logger.With(slog.String("component", "processor")),
	}
}

// Process dispatches a single event to its handler.
func (p *Processor) Process(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.ConditionPreparationEvent:
		return p.HandleConditionPreparation(ctx, e)
	case domain.ConditionResolutionEvent:
		return p.HandleConditionResolution(ctx, e)
	case domain.PositionSplitEvent:
		return p.HandlePositionSplit(ctx, e)
	case domain.PositionsMergeEvent:
		return p.HandlePositionsMerge(ctx, e)
	case domain.PayoutRedemptionEvent:
		return p.HandlePayoutRedemption(ctx, e)
	case domain.MarketPreparedEvent:
		return p.HandleMarketPrepared(ctx, e)
	case domain.QuestionPreparedEvent:
		return p.HandleQuestionPrepared(ctx, e)
	case domain.PositionsConvertedEvent:
		return p.HandlePositionsConverted(ctx, e)
	default:
		p.logger.Warn("unknown event type", slog.String("type", fmt.Sprintf("%T", ev)))
		return nil
	}
}

// HandleConditionPreparation creates the Condition and its two outcome
// positions. Non-binary conditions are ignored. Replays are no-ops.
func (p *Processor) HandleConditionPreparation(ctx context.Context, ev domain.ConditionPreparationEvent) error {
	if ev.OutcomeSlotCount != 2 {
		p.logger.Debug("skipping non-binary condition",
			slog.String("condition_id", ev.ConditionID),
			slog.Int("outcome_slot_count", ev.OutcomeSlotCount),
		)
		return nil
	}
	return p.createCondition(ctx, ev.ConditionID)
}

// createCondition derives both position IDs and persists the condition and
// its outcome positions if they do not exist yet.
func (p *Processor) createCondition(ctx context.Context, conditionID string) error {
	if _, err := p.conditions.GetCondition(ctx, conditionID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("indexer: lookup condition %s: %w", conditionID, err)
	}

	cond := domain.Condition{ID: conditionID}
	hash := common.HexToHash(conditionID)

	for outcome := 0; outcome < 2; outcome++ {
		positionID, err := ctf.PositionIDFromCondition(p.collateral, hash, outcome)
		if err != nil {
			return fmt.Errorf("indexer: derive position id for %s outcome %d: %w", conditionID, outcome, err)
		}
		cond.PositionIDs[outcome] = positionID.String()

		pos := domain.OutcomePosition{
			ID:           positionID.String(),
			ConditionID:  conditionID,
			OutcomeIndex: outcome,
		}
		if err := p.conditions.SetPosition(ctx, pos); err != nil {
			return fmt.Errorf("indexer: set position %s: %w", pos.ID, err)
		}
	}

	if err := p.conditions.SetCondition(ctx, cond); err != nil {
		return fmt.Errorf("indexer: set condition %s: %w", conditionID, err)
	}

	p.logger.Info("condition prepared",
		slog.String("condition_id", conditionID),
		slog.String("position_0", cond.PositionIDs[0]),
		slog.String("position_1", cond.PositionIDs[1]),
	)
	return nil
}

// HandleConditionResolution records the payout vector. The denominator is the
// sum of the reported numerators; both are set exactly once.
func (p *Processor) HandleConditionResolution(ctx context.Context, ev domain.ConditionResolutionEvent) error {
	cond, err := p.conditions.GetCondition(ctx, ev.ConditionID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("resolution for unknown condition", slog.String("condition_id", ev.ConditionID))
		return nil
	} else if err != nil {
		return fmt.Errorf("indexer: lookup condition %s: %w", ev.ConditionID, err)
	}

	if cond.Resolved() {
		p.logger.Warn("condition already resolved", slog.String("condition_id", ev.ConditionID))
		return nil
	}

	numerators := make([]*big.Int, 0, len(ev.PayoutNumerators))
	denominator := new(big.Int)
	for i, n := range ev.PayoutNumerators {
		if n == nil {
			p.logger.Error("missing payout numerator",
				slog.String("condition_id", ev.ConditionID),
				slog.Int("index", i),
			)
			continue
		}
		numerators = append(numerators, new(big.Int).Set(n))
		denominator.Add(denominator, n)
	}

	cond.PayoutNumerators = numerators
	cond.PayoutDenominator = denominator
	if err := p.conditions.SetCondition(ctx, cond); err != nil {
		return fmt.Errorf("indexer: set condition %s: %w", ev.ConditionID, err)
	}

	p.logger.Info("condition resolved",
		slog.String("condition_id", ev.ConditionID),
		slog.String("payout_denominator", denominator.String()),
	)
	return nil
}

// HandlePositionSplit credits open interest and records a simultaneous
// fifty-cent buy of both outcome legs for the splitting account.
func (p *Processor) HandlePositionSplit(ctx context.Context, ev domain.PositionSplitEvent) error {
	cond, ok, err := p.trackedCondition(ctx, ev.ConditionID, ev.CollateralToken)
	if err != nil || !ok {
		return err
	}

	if err := p.oi.ApplyDelta(ctx, ev.ConditionID, ev.Amount); err != nil {
		return err
	}

	if p.isInternal(ev.Stakeholder) {
		return nil
	}

	for outcome := 0; outcome < 2; outcome++ {
		if err := p.positions.Buy(ctx, lower(ev.Stakeholder), cond.PositionIDs[outcome], p.fiftyCents, ev.Amount); err != nil {
			return err
		}
	}

	split := domain.Split{
		ID:          ev.Meta.ActivityID(),
		Timestamp:   ev.Meta.Timestamp,
		Stakeholder: lower(ev.Stakeholder),
		ConditionID: ev.ConditionID,
		Amount:      ev.Amount,
	}
	if err := p.activity.InsertSplit(ctx, split); err != nil {
		return fmt.Errorf("indexer: insert split %s: %w", split.ID, err)
	}
	return nil
}

// HandlePositionsMerge debits open interest and records a fifty-cent sell of
// both outcome legs for the merging account.
func (p *Processor) HandlePositionsMerge(ctx context.Context, ev domain.PositionsMergeEvent) error {
	cond, ok, err := p.trackedCondition(ctx, ev.ConditionID, ev.CollateralToken)
	if err != nil || !ok {
		return err
	}

	if err := p.oi.ApplyDelta(ctx, ev.ConditionID, new(big.Int).Neg(ev.Amount)); err != nil {
		return err
	}

	if p.isInternal(ev.Stakeholder) {
		return nil
	}

	for outcome := 0; outcome < 2; outcome++ {
		if err := p.positions.Sell(ctx, lower(ev.Stakeholder), cond.PositionIDs[outcome], p.fiftyCents, ev.Amount); err != nil {
			return err
		}
	}

	merge := domain.Merge{
		ID:          ev.Meta.ActivityID(),
		Timestamp:   ev.Meta.Timestamp,
		Stakeholder: lower(ev.Stakeholder),
		ConditionID: ev.ConditionID,
		Amount:      ev.Amount,
	}
	if err := p.activity.InsertMerge(ctx, merge); err != nil {
		return fmt.Errorf("indexer: insert merge %s: %w", merge.ID, err)
	}
	return nil
}

// HandlePayoutRedemption debits open interest by the payout and closes out
// the redeemer's legs at their resolved prices. The open-interest decrement
// and the activity record do not depend on the payout vector, so both are
// applied even when the condition is (incorrectly) still unresolved; only
// the position pricing is skipped then.
func (p *Processor) HandlePayoutRedemption(ctx context.Context, ev domain.PayoutRedemptionEvent) error {
	cond, ok, err := p.trackedCondition(ctx, ev.ConditionID, ev.CollateralToken)
	if err != nil || !ok {
		return err
	}

	if err := p.oi.ApplyDelta(ctx, ev.ConditionID, new(big.Int).Neg(ev.Payout)); err != nil {
		return err
	}

	redeemer := lower(ev.Redeemer)
	redemption := domain.Redemption{
		ID:          ev.Meta.ActivityID(),
		Timestamp:   ev.Meta.Timestamp,
		Redeemer:    redeemer,
		ConditionID: ev.ConditionID,
		Payout:      ev.Payout,
	}
	if err := p.activity.InsertRedemption(ctx, redemption); err != nil {
		return fmt.Errorf("indexer: insert redemption %s: %w", redemption.ID, err)
	}

	if !cond.Resolved() {
		p.logger.Warn("redemption on unresolved condition, skipping pricing",
			slog.String("condition_id", ev.ConditionID),
			slog.String("redeemer", ev.Redeemer),
		)
		return nil
	}

	for outcome := 0; outcome < 2; outcome++ {
		if outcome >= len(cond.PayoutNumerators) {
			p.logger.Error("missing payout numerator for outcome",
				slog.String("condition_id", ev.ConditionID),
				slog.Int("outcome", outcome),
			)
			continue
		}

		// price = numerator · scale / denominator
		price := new(big.Int).Mul(cond.PayoutNumerators[outcome], p.scale)
		price.Quo(price, cond.PayoutDenominator)

		held, err := p.positions.Holding(ctx, redeemer, cond.PositionIDs[outcome])
		if err != nil {
			return err
		}
		if held.Amount.Sign() == 0 {
			continue
		}
		if err := p.positions.Sell(ctx, redeemer, cond.PositionIDs[outcome], price, held.Amount); err != nil {
			return err
		}
	}
	return nil
}

// HandleMarketPrepared registers a neg-risk market. Replays are no-ops so the
// question counter never resets.
func (p *Processor) HandleMarketPrepared(ctx context.Context, ev domain.MarketPreparedEvent) error {
	if _, err := p.negRisk.Get(ctx, ev.MarketID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("indexer: lookup neg-risk market %s: %w", ev.MarketID, err)
	}

	market := domain.NegRiskEvent{
		MarketID:      ev.MarketID,
		QuestionCount: 0,
		FeeBps:        ev.FeeBps,
	}
	if err := p.negRisk.Set(ctx, market); err != nil {
		return fmt.Errorf("indexer: set neg-risk market %s: %w", ev.MarketID, err)
	}

	p.logger.Info("neg-risk market prepared",
		slog.String("market_id", ev.MarketID),
		slog.Int64("fee_bps", ev.FeeBps),
	)
	return nil
}

// HandleQuestionPrepared registers one more binary condition under a neg-risk
// market and lazily creates the derived condition and positions for it.
func (p *Processor) HandleQuestionPrepared(ctx context.Context, ev domain.QuestionPreparedEvent) error {
	market, err := p.negRisk.Get(ctx, ev.MarketID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("question for unknown neg-risk market", slog.String("market_id", ev.MarketID))
		return nil
	} else if err != nil {
		return fmt.Errorf("indexer: lookup neg-risk market %s: %w", ev.MarketID, err)
	}

	conditionID := ctf.NegRiskConditionID(p.adapter, common.HexToHash(ev.MarketID), ev.QuestionIndex)
	if err := p.createCondition(ctx, conditionID.Hex()); err != nil {
		return err
	}

	market.QuestionCount++
	if err := p.negRisk.Set(ctx, market); err != nil {
		return fmt.Errorf("indexer: set neg-risk market %s: %w", ev.MarketID, err)
	}
	return nil
}

// trackedCondition looks up the condition and applies the collateral filter.
// ok is false when the event should be skipped entirely.
func (p *Processor) trackedCondition(ctx context.Context, conditionID, collateralToken string) (domain.Condition, bool, error) {
	cond, err := p.conditions.GetCondition(ctx, conditionID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Debug("event for unknown condition", slog.String("condition_id", conditionID))
		return domain.Condition{}, false, nil
	} else if err != nil {
		return domain.Condition{}, false, fmt.Errorf("indexer: lookup condition %s: %w", conditionID, err)
	}

	if common.HexToAddress(collateralToken) != p.collateral {
		return domain.Condition{}, false, nil
	}
	return cond, true, nil
}

// isInternal reports whether addr is a protocol component rather than a user.
func (p *Processor) isInternal(addr string) bool {
	_, ok := p.internal[common.HexToAddress(addr)]
	return ok
}

func lower(addr string) string {
	return strings.ToLower(addr)
}
