package indexer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// scriptedFetcher returns pre-built batches in order and records the cursor
// it was called with.
type scriptedFetcher struct {
	batches [][]domain.Event
	calls   []domain.Checkpoint
}

func (f *scriptedFetcher) FetchEvents(_ context.Context, fromBlock uint64, fromLogIndex uint, _ int) ([]domain.Event, error) {
	f.calls = append(f.calls, domain.Checkpoint{BlockNumber: fromBlock, LogIndex: fromLogIndex})
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func newRunnerFixture(t *testing.T, fetcher EventFetcher) (*Runner, *fixture) {
	t.Helper()
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(fetcher, f.processor, f.store.Checkpoints(), logger), f
}

func TestRunnerAppliesBatchAndCheckpoints(t *testing.T) {
	ctx := context.Background()

	fetcher := &scriptedFetcher{batches: [][]domain.Event{{
		domain.ConditionPreparationEvent{
			Meta:             meta(10, 3),
			ConditionID:      condA,
			OutcomeSlotCount: 2,
		},
	}}}
	runner, f := newRunnerFixture(t, fetcher)

	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// The event actually reached the processor.
	_, err = f.store.Conditions().GetCondition(ctx, condA)
	require.NoError(t, err)

	// The cursor points one log past the last applied event.
	cp, err := f.store.Checkpoints().Get(ctx, CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cp.BlockNumber)
	assert.Equal(t, uint(4), cp.LogIndex)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()

	fetcher := &scriptedFetcher{}
	runner, f := newRunnerFixture(t, fetcher)

	require.NoError(t, f.store.Checkpoints().Set(ctx, domain.Checkpoint{
		ID:          CheckpointID,
		BlockNumber: 42,
		LogIndex:    7,
	}))

	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, uint64(42), fetcher.calls[0].BlockNumber)
	assert.Equal(t, uint(7), fetcher.calls[0].LogIndex)
}

// recordingCheckpoints wraps a checkpoint store and keeps every Set call.
type recordingCheckpoints struct {
	domain.CheckpointStore
	sets []domain.Checkpoint
}

func (r *recordingCheckpoints) Set(ctx context.Context, cp domain.Checkpoint) error {
	r.sets = append(r.sets, cp)
	return r.CheckpointStore.Set(ctx, cp)
}

func TestRunnerCheckpointsAfterEveryEvent(t *testing.T) {
	ctx := context.Background()

	const condB = "0x69f3c75d4abe342b494104b9c0c4899b5ca564e3384a1e4cbc9f3b1836465b31"
	fetcher := &scriptedFetcher{batches: [][]domain.Event{{
		domain.ConditionPreparationEvent{
			Meta:             meta(10, 3),
			ConditionID:      condA,
			OutcomeSlotCount: 2,
		},
		domain.ConditionPreparationEvent{
			Meta:             meta(12, 0),
			ConditionID:      condB,
			OutcomeSlotCount: 2,
		},
	}}}

	f := newFixture(t)
	cps := &recordingCheckpoints{CheckpointStore: f.store.Checkpoints()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(fetcher, f.processor, cps, logger)

	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	// One cursor write per applied event: a crash between events replays at
	// most the event in flight, never the whole batch.
	require.Len(t, cps.sets, 2)
	assert.Equal(t, domain.Checkpoint{ID: CheckpointID, BlockNumber: 10, LogIndex: 4}, cps.sets[0])
	assert.Equal(t, domain.Checkpoint{ID: CheckpointID, BlockNumber: 12, LogIndex: 1}, cps.sets[1])
}

func TestRunnerDrainsSuccessiveBatches(t *testing.T) {
	ctx := context.Background()

	// Two short batches, as a fetcher capping truncated pages would return
	// them, then the empty batch that ends the pass.
	fetcher := &scriptedFetcher{batches: [][]domain.Event{
		{domain.MarketPreparedEvent{Meta: meta(5, 0), MarketID: marketA, FeeBps: 0}},
		{domain.QuestionPreparedEvent{Meta: meta(8, 1), MarketID: marketA, QuestionIndex: 0}},
	}}
	runner, f := newRunnerFixture(t, fetcher)

	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	market, err := f.store.NegRisk().Get(ctx, marketA)
	require.NoError(t, err)
	assert.Equal(t, 1, market.QuestionCount)

	// Each fetch resumes from the cursor left by the previous batch.
	require.Len(t, fetcher.calls, 3)
	assert.Equal(t, uint64(5), fetcher.calls[1].BlockNumber)
	assert.Equal(t, uint(1), fetcher.calls[1].LogIndex)
	assert.Equal(t, uint64(8), fetcher.calls[2].BlockNumber)
	assert.Equal(t, uint(2), fetcher.calls[2].LogIndex)
}

func TestRunnerStartsFromZeroWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()

	fetcher := &scriptedFetcher{}
	runner, _ := newRunnerFixture(t, fetcher)

	_, err := runner.Run(ctx)
	require.NoError(t, err)

	require.Len(t, fetcher.calls, 1)
	assert.Zero(t, fetcher.calls[0].BlockNumber)
	assert.Zero(t, fetcher.calls[0].LogIndex)
}
