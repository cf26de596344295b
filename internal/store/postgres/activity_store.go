package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL. All inserts
// are ON CONFLICT DO NOTHING on the (txHash, logIndex) derived ID, so
// at-least-once delivery can replay an event without duplicating rows.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates an ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

const insertActivity = `
	INSERT INTO activity (id, kind, ts, account, condition_id, amount, index_set, fee_amount)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

// InsertSplit appends a split record.
func (s *ActivityStore) InsertSplit(ctx context.Context, sp domain.Split) error {
	_, err := s.pool.Exec(ctx, insertActivity,
		sp.ID, "split", sp.Timestamp, sp.Stakeholder, sp.ConditionID, numeric(sp.Amount), nil, nil,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert split %s: %w", sp.ID, err)
	}
	return nil
}

// InsertMerge appends a merge record.
func (s *ActivityStore) InsertMerge(ctx context.Context, m domain.Merge) error {
	_, err := s.pool.Exec(ctx, insertActivity,
		m.ID, "merge", m.Timestamp, m.Stakeholder, m.ConditionID, numeric(m.Amount), nil, nil,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert merge %s: %w", m.ID, err)
	}
	return nil
}

// InsertRedemption appends a redemption record.
func (s *ActivityStore) InsertRedemption(ctx context.Context, r domain.Redemption) error {
	_, err := s.pool.Exec(ctx, insertActivity,
		r.ID, "redemption", r.Timestamp, r.Redeemer, r.ConditionID, numeric(r.Payout), nil, nil,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert redemption %s: %w", r.ID, err)
	}
	return nil
}

// InsertConversion appends a neg-risk conversion record.
func (s *ActivityStore) InsertConversion(ctx context.Context, c domain.NegRiskConversion) error {
	_, err := s.pool.Exec(ctx, insertActivity,
		c.ID, "conversion", c.Timestamp, c.Stakeholder, c.MarketID, numeric(c.Amount), numeric(c.IndexSet), numeric(c.FeeAmount),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert conversion %s: %w", c.ID, err)
	}
	return nil
}

// ListRecent returns the latest activity rows, newest first.
func (s *ActivityStore) ListRecent(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, kind, ts, account, condition_id, amount
		FROM activity
		ORDER BY ts DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityEntry
	for rows.Next() {
		var (
			e      domain.ActivityEntry
			ts     time.Time
			amount pgtype.Numeric
		)
		if err := rows.Scan(&e.ID, &e.Kind, &ts, &e.Account, &e.ConditionID, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		e.Timestamp = ts.Unix()
		e.Amount = bigFromNumeric(amount)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	return out, nil
}
