package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// UserPositionStore implements domain.UserPositionStore using PostgreSQL.
type UserPositionStore struct {
	pool *pgxpool.Pool
}

// NewUserPositionStore creates a UserPositionStore backed by the given pool.
func NewUserPositionStore(pool *pgxpool.Pool) *UserPositionStore {
	return &UserPositionStore{pool: pool}
}

// GetOrCreate returns the holder's position row, inserting a zero row on
// first touch.
func (s *UserPositionStore) GetOrCreate(ctx context.Context, holder, positionID string) (domain.UserPosition, error) {
	const query = `
		INSERT INTO user_positions (holder, position_id, amount, avg_price)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (holder, position_id) DO UPDATE SET holder = EXCLUDED.holder
		RETURNING amount, avg_price`

	var amount, avgPrice pgtype.Numeric
	if err := s.pool.QueryRow(ctx, query, holder, positionID).Scan(&amount, &avgPrice); err != nil {
		return domain.UserPosition{}, fmt.Errorf("postgres: get-or-create user position %s/%s: %w", holder, positionID, err)
	}
	return domain.UserPosition{
		Holder:     holder,
		PositionID: positionID,
		Amount:     bigFromNumeric(amount),
		AvgPrice:   bigFromNumeric(avgPrice),
	}, nil
}

// Set writes the position back.
func (s *UserPositionStore) Set(ctx context.Context, p domain.UserPosition) error {
	const query = `
		INSERT INTO user_positions (holder, position_id, amount, avg_price, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (holder, position_id) DO UPDATE SET
			amount     = EXCLUDED.amount,
			avg_price  = EXCLUDED.avg_price,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, p.Holder, p.PositionID, numeric(p.Amount), numeric(p.AvgPrice)); err != nil {
		return fmt.Errorf("postgres: set user position %s/%s: %w", p.Holder, p.PositionID, err)
	}
	return nil
}

// ListByHolder returns all of a holder's positions ordered by position ID.
func (s *UserPositionStore) ListByHolder(ctx context.Context, holder string) ([]domain.UserPosition, error) {
	const query = `
		SELECT position_id, amount, avg_price
		FROM user_positions
		WHERE holder = $1
		ORDER BY position_id`

	rows, err := s.pool.Query(ctx, query, holder)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", holder, err)
	}
	defer rows.Close()

	var out []domain.UserPosition
	for rows.Next() {
		var (
			positionID      string
			amount, avgPrice pgtype.Numeric
		)
		if err := rows.Scan(&positionID, &amount, &avgPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan position for %s: %w", holder, err)
		}
		out = append(out, domain.UserPosition{
			Holder:     holder,
			PositionID: positionID,
			Amount:     bigFromNumeric(amount),
			AvgPrice:   bigFromNumeric(avgPrice),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", holder, err)
	}
	return out, nil
}
