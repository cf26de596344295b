// Package snapshot exports periodic open-interest snapshots to blob storage
// for offline analytics.
package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// Exporter reads every open-interest row from the store, converts the set to
// CSV, and uploads it to object storage under a dated path.
type Exporter struct {
	store  domain.OpenInterestStore
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(store domain.OpenInterestStore, writer domain.BlobWriter, logger *slog.Logger) *Exporter {
	return &Exporter{
		store:  store,
		writer: writer,
		logger: logger.With(slog.String("component", "snapshot")),
	}
}

// Run executes a single export. It returns the uploaded object path.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	runID := uuid.NewString()

	markets, err := e.store.ListMarkets(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: list markets: %w", err)
	}
	global, err := e.store.GetOrCreateGlobal(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: get global open interest: %w", err)
	}

	csvData, err := toCSV(markets, global)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode csv: %w", err)
	}

	path := fmt.Sprintf("openinterest/%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	if err := e.writer.Put(ctx, path, bytes.NewReader(csvData), "text/csv"); err != nil {
		return "", fmt.Errorf("snapshot: upload %s: %w", path, err)
	}

	e.logger.Info("open interest snapshot uploaded",
		slog.String("run_id", runID),
		slog.String("path", path),
		slog.Int("markets", len(markets)),
		slog.String("global_amount", global.Amount.String()),
	)
	return path, nil
}

// RunLoop runs exports on a repeating interval until the context is
// cancelled.
func (e *Exporter) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("snapshot loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Run(ctx); err != nil {
				e.logger.Error("snapshot export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// toCSV renders the snapshot with a header row. The global total is written
// as a row with an empty condition ID.
func toCSV(markets []domain.MarketOpenInterest, global domain.GlobalOpenInterest) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"condition_id", "amount"}); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	if err := w.Write([]string{"", global.Amount.String()}); err != nil {
		return nil, fmt.Errorf("writing CSV global row: %w", err)
	}
	for _, m := range markets {
		if err := w.Write([]string{m.ConditionID, m.Amount.String()}); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}
