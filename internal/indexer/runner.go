package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// CheckpointID is the single ingestion cursor row.
const CheckpointID = "ctf-events"

// EventFetcher retrieves decoded events at or after the given chain
// coordinate, in ascending (block, logIndex) order.
type EventFetcher interface {
	FetchEvents(ctx context.Context, fromBlock uint64, fromLogIndex uint, limit int) ([]domain.Event, error)
}

// Runner drives the processor: it fetches event batches from the fetcher,
// applies them strictly in order, and persists a resume checkpoint after each
// applied event, so a crash replays at most the event in flight. Events are
// applied one at a time; nothing here runs concurrently.
type Runner struct {
	fetcher     EventFetcher
	processor   *Processor
	checkpoints domain.CheckpointStore
	logger      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(fetcher EventFetcher, processor *Processor, checkpoints domain.CheckpointStore, logger *slog.Logger) *Runner {
	return &Runner{
		fetcher:     fetcher,
		processor:   processor,
		checkpoints: checkpoints,
		logger:      logger.With(slog.String("component", "runner")),
	}
}

// Run executes a single ingest pass, fetching until the cursor catches up
// with the subgraph. It returns the number of events applied. The cursor is
// persisted after every applied event: handlers are not idempotent, and a
// batch-level cursor would re-apply the whole batch after a mid-batch crash.
func (r *Runner) Run(ctx context.Context) (int, error) {
	const fetchLimit = 1000

	cp, err := r.checkpoints.Get(ctx, CheckpointID)
	if errors.Is(err, domain.ErrNotFound) {
		cp = domain.Checkpoint{ID: CheckpointID}
	} else if err != nil {
		return 0, fmt.Errorf("indexer: load checkpoint: %w", err)
	}

	total := 0
	for {
		events, err := r.fetcher.FetchEvents(ctx, cp.BlockNumber, cp.LogIndex, fetchLimit)
		if err != nil {
			return total, fmt.Errorf("indexer: fetch events from block %d: %w", cp.BlockNumber, err)
		}
		if len(events) == 0 {
			return total, nil
		}

		for _, ev := range events {
			meta := ev.EventMeta()
			if err := r.processor.Process(ctx, ev); err != nil {
				return total, fmt.Errorf("indexer: process event %s/%d: %w", meta.TxHash, meta.LogIndex, err)
			}
			total++

			cp = domain.Checkpoint{
				ID:          CheckpointID,
				BlockNumber: meta.BlockNumber,
				LogIndex:    meta.LogIndex + 1,
			}
			if err := r.checkpoints.Set(ctx, cp); err != nil {
				return total, fmt.Errorf("indexer: save checkpoint: %w", err)
			}
		}

		last := events[len(events)-1].EventMeta()
		r.logger.Info("ingest batch applied",
			slog.Int("events", len(events)),
			slog.Uint64("block", last.BlockNumber),
		)
	}
}

// RunLoop runs ingest passes on a repeating interval until the context is
// cancelled. Fetch failures are logged and retried on the next tick; the
// per-event cursor limits any retry overlap to the event that failed.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration) error {
	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("ingest pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ingest loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("ingest pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
