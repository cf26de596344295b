package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// ConditionStore implements domain.ConditionStore using PostgreSQL.
type ConditionStore struct {
	pool *pgxpool.Pool
}

// NewConditionStore creates a ConditionStore backed by the given pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

// GetCondition loads a condition by ID. Returns domain.ErrNotFound when no
// row exists.
func (s *ConditionStore) GetCondition(ctx context.Context, id string) (domain.Condition, error) {
	const query = `
		SELECT id, position_id_0, position_id_1, payout_numerators, payout_denominator
		FROM conditions
		WHERE id = $1`

	var (
		cond        domain.Condition
		numerators  []string
		denominator pgtype.Numeric
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&cond.ID, &cond.PositionIDs[0], &cond.PositionIDs[1], &numerators, &denominator,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Condition{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", id, err)
	}

	for _, n := range numerators {
		v, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return domain.Condition{}, fmt.Errorf("postgres: condition %s: bad payout numerator %q", id, n)
		}
		cond.PayoutNumerators = append(cond.PayoutNumerators, v)
	}
	cond.PayoutDenominator = bigFromNumeric(denominator)
	return cond, nil
}

// SetCondition inserts or replaces a condition row.
func (s *ConditionStore) SetCondition(ctx context.Context, c domain.Condition) error {
	const query = `
		INSERT INTO conditions (id, position_id_0, position_id_1, payout_numerators, payout_denominator, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			payout_numerators  = EXCLUDED.payout_numerators,
			payout_denominator = EXCLUDED.payout_denominator,
			updated_at         = NOW()`

	numerators := make([]string, 0, len(c.PayoutNumerators))
	for _, n := range c.PayoutNumerators {
		numerators = append(numerators, n.String())
	}

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.PositionIDs[0], c.PositionIDs[1], numerators, numeric(c.PayoutDenominator),
	)
	if err != nil {
		return fmt.Errorf("postgres: set condition %s: %w", c.ID, err)
	}
	return nil
}

// GetPosition loads an outcome position by its derived ID.
func (s *ConditionStore) GetPosition(ctx context.Context, id string) (domain.OutcomePosition, error) {
	const query = `
		SELECT id, condition_id, outcome_index
		FROM outcome_positions
		WHERE id = $1`

	var pos domain.OutcomePosition
	err := s.pool.QueryRow(ctx, query, id).Scan(&pos.ID, &pos.ConditionID, &pos.OutcomeIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OutcomePosition{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OutcomePosition{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return pos, nil
}

// SetPosition inserts an outcome position. Positions are immutable, so a
// replayed insert is a no-op.
func (s *ConditionStore) SetPosition(ctx context.Context, p domain.OutcomePosition) error {
	const query = `
		INSERT INTO outcome_positions (id, condition_id, outcome_index)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, p.ID, p.ConditionID, p.OutcomeIndex)
	if err != nil {
		return fmt.Errorf("postgres: set position %s: %w", p.ID, err)
	}
	return nil
}
