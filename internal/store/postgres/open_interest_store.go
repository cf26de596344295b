package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// OpenInterestStore implements domain.OpenInterestStore using PostgreSQL.
type OpenInterestStore struct {
	pool *pgxpool.Pool
}

// NewOpenInterestStore creates an OpenInterestStore backed by the given pool.
func NewOpenInterestStore(pool *pgxpool.Pool) *OpenInterestStore {
	return &OpenInterestStore{pool: pool}
}

// GetOrCreateMarket returns the market row, inserting a zero row on first
// touch.
func (s *OpenInterestStore) GetOrCreateMarket(ctx context.Context, conditionID string) (domain.MarketOpenInterest, error) {
	const query = `
		INSERT INTO market_open_interest (condition_id, amount)
		VALUES ($1, 0)
		ON CONFLICT (condition_id) DO UPDATE SET condition_id = EXCLUDED.condition_id
		RETURNING amount`

	var amount pgtype.Numeric
	if err := s.pool.QueryRow(ctx, query, conditionID).Scan(&amount); err != nil {
		return domain.MarketOpenInterest{}, fmt.Errorf("postgres: get-or-create market open interest %s: %w", conditionID, err)
	}
	return domain.MarketOpenInterest{ConditionID: conditionID, Amount: bigFromNumeric(amount)}, nil
}

// SetMarket writes the market total back.
func (s *OpenInterestStore) SetMarket(ctx context.Context, oi domain.MarketOpenInterest) error {
	const query = `
		INSERT INTO market_open_interest (condition_id, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (condition_id) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, oi.ConditionID, numeric(oi.Amount)); err != nil {
		return fmt.Errorf("postgres: set market open interest %s: %w", oi.ConditionID, err)
	}
	return nil
}

// ListMarkets returns every market row ordered by condition ID.
func (s *OpenInterestStore) ListMarkets(ctx context.Context) ([]domain.MarketOpenInterest, error) {
	const query = `
		SELECT condition_id, amount
		FROM market_open_interest
		ORDER BY condition_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market open interest: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketOpenInterest
	for rows.Next() {
		var (
			conditionID string
			amount      pgtype.Numeric
		)
		if err := rows.Scan(&conditionID, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan market open interest: %w", err)
		}
		out = append(out, domain.MarketOpenInterest{ConditionID: conditionID, Amount: bigFromNumeric(amount)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list market open interest: %w", err)
	}
	return out, nil
}

// GetOrCreateGlobal returns the global row, inserting a zero row on first
// touch.
func (s *OpenInterestStore) GetOrCreateGlobal(ctx context.Context) (domain.GlobalOpenInterest, error) {
	const query = `
		INSERT INTO global_open_interest (id, amount)
		VALUES ($1, 0)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING amount`

	var amount pgtype.Numeric
	if err := s.pool.QueryRow(ctx, query, domain.GlobalOpenInterestID).Scan(&amount); err != nil {
		return domain.GlobalOpenInterest{}, fmt.Errorf("postgres: get-or-create global open interest: %w", err)
	}
	return domain.GlobalOpenInterest{Amount: bigFromNumeric(amount)}, nil
}

// SetGlobal writes the global total back.
func (s *OpenInterestStore) SetGlobal(ctx context.Context, oi domain.GlobalOpenInterest) error {
	const query = `
		INSERT INTO global_open_interest (id, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, domain.GlobalOpenInterestID, numeric(oi.Amount)); err != nil {
		return fmt.Errorf("postgres: set global open interest: %w", err)
	}
	return nil
}
