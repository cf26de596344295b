package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// NegRiskStore implements domain.NegRiskStore using PostgreSQL.
type NegRiskStore struct {
	pool *pgxpool.Pool
}

// NewNegRiskStore creates a NegRiskStore backed by the given pool.
func NewNegRiskStore(pool *pgxpool.Pool) *NegRiskStore {
	return &NegRiskStore{pool: pool}
}

// Get loads a neg-risk market registration.
func (s *NegRiskStore) Get(ctx context.Context, marketID string) (domain.NegRiskEvent, error) {
	const query = `
		SELECT market_id, question_count, fee_bps
		FROM neg_risk_markets
		WHERE market_id = $1`

	var ev domain.NegRiskEvent
	err := s.pool.QueryRow(ctx, query, marketID).Scan(&ev.MarketID, &ev.QuestionCount, &ev.FeeBps)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NegRiskEvent{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.NegRiskEvent{}, fmt.Errorf("postgres: get neg-risk market %s: %w", marketID, err)
	}
	return ev, nil
}

// Set inserts or updates a neg-risk market registration.
func (s *NegRiskStore) Set(ctx context.Context, ev domain.NegRiskEvent) error {
	const query = `
		INSERT INTO neg_risk_markets (market_id, question_count, fee_bps)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id) DO UPDATE SET
			question_count = EXCLUDED.question_count,
			fee_bps        = EXCLUDED.fee_bps`

	if _, err := s.pool.Exec(ctx, query, ev.MarketID, ev.QuestionCount, ev.FeeBps); err != nil {
		return fmt.Errorf("postgres: set neg-risk market %s: %w", ev.MarketID, err)
	}
	return nil
}
