// Command backfill embeds memory blocks that are missing embeddings.
// It runs outside the request path and retries transient provider
// failures with backoff.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/backfill"
	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/store"
)

func main() {
	var (
		batchSize = flag.Int("batch-size", 50, "blocks embedded per store round trip")
		dryRun    = flag.Bool("dry-run", false, "report pending blocks without embedding")
		maxBlocks = flag.Int("max-blocks", 0, "stop after this many blocks (0 = all)")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(log, backfill.Options{
		BatchSize: *batchSize,
		DryRun:    *dryRun,
		MaxBlocks: *maxBlocks,
	}); err != nil {
		log.Fatal().Err(err).Msg("backfill failed")
	}
}

func run(log zerolog.Logger, opts backfill.Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	provider, err := embedder.New(cfg.Embedding)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	runner := backfill.NewRunner(st, provider, log)
	report, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("scanned=%d embedded=%d failed=%d skipped=%d dry_run=%v dimension=%d elapsed=%s\n",
		report.Scanned, report.Embedded, report.Failed, report.Skipped,
		report.DryRun, report.Dimension, report.Elapsed)
	return nil
}
