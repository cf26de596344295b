package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ctfledger/internal/domain"
	"github.com/alanyoungcy/ctfledger/internal/indexer"
	"github.com/alanyoungcy/ctfledger/internal/ledger"
	"github.com/alanyoungcy/ctfledger/internal/platform/goldsky"
	"github.com/alanyoungcy/ctfledger/internal/server"
	"github.com/alanyoungcy/ctfledger/internal/server/handler"
	"github.com/alanyoungcy/ctfledger/internal/server/ws"
	"github.com/alanyoungcy/ctfledger/internal/snapshot"
)

// IndexMode runs event ingestion only: the subgraph poller feeding the
// accounting processor, plus the snapshot exporter when enabled.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIndexer(ctx, g, deps); err != nil {
		return fmt.Errorf("index mode: %w", err)
	}
	a.startSnapshot(ctx, g, deps)

	return g.Wait()
}

// ServeMode runs the read-only API server against an existing database.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs ingestion, the API server, and the snapshot exporter
// together in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIndexer(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startServer(ctx, g, deps)
	a.startSnapshot(ctx, g, deps)

	return g.Wait()
}

// DevMode serves the API from the in-memory store with no external
// dependencies. When a Goldsky URL is configured it also runs ingestion so
// the store fills up with live data.
func (a *App) DevMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dev mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Goldsky.URL != "" {
		if err := a.startIndexer(ctx, g, deps); err != nil {
			return fmt.Errorf("dev mode: %w", err)
		}
	}
	a.startServer(ctx, g, deps)

	return g.Wait()
}

// buildProcessor assembles the ledgers and the event processor from the
// wired stores and the configured protocol constants.
func (a *App) buildProcessor(deps *Dependencies) (*indexer.Processor, error) {
	scale, ok := new(big.Int).SetString(a.cfg.Ledger.CollateralScale, 10)
	if !ok {
		return nil, fmt.Errorf("bad collateral scale %q", a.cfg.Ledger.CollateralScale)
	}

	internal := make([]common.Address, 0, len(a.cfg.Ledger.InternalAddresses))
	for _, addr := range a.cfg.Ledger.InternalAddresses {
		internal = append(internal, common.HexToAddress(addr))
	}

	oiLedger := ledger.NewOpenInterestLedger(deps.OpenInterest, deps.OICache, deps.SignalBus, a.logger)
	posLedger := ledger.NewPositionLedger(deps.UserPositions, a.logger)

	return indexer.NewProcessor(
		deps.Conditions,
		deps.NegRisk,
		deps.Activity,
		oiLedger,
		posLedger,
		indexer.Config{
			CollateralToken:   common.HexToAddress(a.cfg.Ledger.CollateralToken),
			CollateralScale:   scale,
			NegRiskAdapter:    common.HexToAddress(a.cfg.Ledger.NegRiskAdapter),
			InternalAddresses: internal,
		},
		a.logger,
	), nil
}

// startIndexer adds the ingestion loop to the given errgroup. When a start
// block is configured and no checkpoint exists yet, it seeds the cursor so
// the first run skips historic blocks.
func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	processor, err := a.buildProcessor(deps)
	if err != nil {
		return err
	}

	if a.cfg.Indexer.StartBlock > 0 {
		if _, err := deps.Checkpoints.Get(ctx, indexer.CheckpointID); errors.Is(err, domain.ErrNotFound) {
			seed := domain.Checkpoint{
				ID:          indexer.CheckpointID,
				BlockNumber: a.cfg.Indexer.StartBlock,
			}
			if err := deps.Checkpoints.Set(ctx, seed); err != nil {
				return fmt.Errorf("seed checkpoint: %w", err)
			}
		}
	}

	fetcher := goldsky.NewClient(a.cfg.Goldsky.URL, a.cfg.Goldsky.APIKey)
	runner := indexer.NewRunner(fetcher, processor, deps.Checkpoints, a.logger)

	g.Go(func() error {
		return runner.RunLoop(ctx, a.cfg.Indexer.PollInterval.Duration)
	})
	return nil
}

// startServer adds the HTTP server (and the WebSocket hub when a signal bus
// is wired) to the given errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:       handler.NewHealthHandler(a.logger),
		OpenInterest: handler.NewOpenInterestHandler(deps.OpenInterest, deps.OICache, a.logger),
		Positions:    handler.NewPositionHandler(deps.UserPositions, a.logger),
		Activity:     handler.NewActivityHandler(deps.Activity, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startSnapshot adds the open-interest export loop when snapshots are
// enabled and blob storage is wired.
func (a *App) startSnapshot(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Snapshot.Enabled || deps.BlobWriter == nil {
		return
	}

	exporter := snapshot.NewExporter(deps.OpenInterest, deps.BlobWriter, a.logger)
	g.Go(func() error {
		return exporter.RunLoop(ctx, a.cfg.Snapshot.Interval.Duration)
	})
}
