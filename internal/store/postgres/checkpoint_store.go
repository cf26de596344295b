package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// CheckpointStore implements domain.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a CheckpointStore backed by the given pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Get loads an ingestion cursor.
func (s *CheckpointStore) Get(ctx context.Context, id string) (domain.Checkpoint, error) {
	const query = `
		SELECT id, block_number, log_index
		FROM checkpoints
		WHERE id = $1`

	var cp domain.Checkpoint
	err := s.pool.QueryRow(ctx, query, id).Scan(&cp.ID, &cp.BlockNumber, &cp.LogIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("postgres: get checkpoint %s: %w", id, err)
	}
	return cp, nil
}

// Set writes an ingestion cursor.
func (s *CheckpointStore) Set(ctx context.Context, cp domain.Checkpoint) error {
	const query = `
		INSERT INTO checkpoints (id, block_number, log_index, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			log_index    = EXCLUDED.log_index,
			updated_at   = NOW()`

	if _, err := s.pool.Exec(ctx, query, cp.ID, cp.BlockNumber, cp.LogIndex); err != nil {
		return fmt.Errorf("postgres: set checkpoint %s: %w", cp.ID, err)
	}
	return nil
}
