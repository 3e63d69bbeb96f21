// Package backfill embeds memory blocks that have no stored embedding,
// as a batch operation outside the request path. Unlike the live
// gateway, backfill retries transient provider failures with
// exponential backoff: a batch job has the latency budget that a search
// request does not.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

// Options configures one backfill run.
type Options struct {
	// BatchSize bounds how many blocks are fetched and embedded per
	// round trip to the store.
	BatchSize int

	// DryRun reports what would be embedded without calling the
	// provider or writing anything.
	DryRun bool

	// MaxBlocks caps the total number of blocks processed; 0 means
	// process everything pending.
	MaxBlocks int
}

// Report summarizes a backfill run.
type Report struct {
	Scanned   int
	Embedded  int
	Failed    int
	Skipped   int
	DryRun    bool
	Dimension int
	Elapsed   time.Duration
}

// Runner walks pending blocks and writes embeddings.
type Runner struct {
	store    *store.SQLiteStore
	provider embedder.Provider
	retry    RetryConfig
	log      zerolog.Logger
}

// NewRunner creates a backfill runner with the default retry policy.
func NewRunner(st *store.SQLiteStore, provider embedder.Provider, log zerolog.Logger) *Runner {
	return &Runner{
		store:    st,
		provider: provider,
		retry:    DefaultRetryConfig(),
		log:      log.With().Str("component", "backfill").Logger(),
	}
}

// Run embeds all blocks missing an embedding of the provider's active
// dimension. Individual block failures are logged and counted, not
// fatal; the run aborts only on context cancellation or when the
// provider is unavailable even after retries.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	dimension := r.provider.Dimension()
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: provider %q has no embedding dimension", types.ErrProviderUnavailable, r.provider.Name())
	}

	started := time.Now()
	report := &Report{DryRun: opts.DryRun, Dimension: dimension}

	if opts.DryRun {
		// Nothing is written on a dry run, so paging would see the
		// same blocks forever. List the whole pending set once.
		blocks, err := r.store.ListUnembedded(ctx, dimension, opts.MaxBlocks)
		if err != nil {
			return report, fmt.Errorf("list unembedded: %w", err)
		}
		for _, block := range blocks {
			r.log.Info().Str("block_id", block.ID).Msg("would embed")
		}
		report.Scanned = len(blocks)
		report.Skipped = len(blocks)
		report.Elapsed = time.Since(started)
		return report, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batchSize := opts.BatchSize
		if opts.MaxBlocks > 0 && report.Scanned+batchSize > opts.MaxBlocks {
			batchSize = opts.MaxBlocks - report.Scanned
		}
		if batchSize <= 0 {
			break
		}

		blocks, err := r.store.ListUnembedded(ctx, dimension, batchSize)
		if err != nil {
			return report, fmt.Errorf("list unembedded: %w", err)
		}
		if len(blocks) == 0 {
			break
		}
		report.Scanned += len(blocks)

		embeddedBefore := report.Embedded
		for _, block := range blocks {
			if err := r.embedBlock(ctx, block); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return report, err
				}
				if errors.Is(err, types.ErrProviderUnavailable) {
					return report, fmt.Errorf("provider unavailable after retries: %w", err)
				}
				report.Failed++
				r.log.Warn().Str("block_id", block.ID).Err(err).Msg("embed failed, skipping block")
				continue
			}
			report.Embedded++
		}

		// Failed blocks stay unembedded and would be listed again next
		// page. A batch with zero progress means everything pending is
		// failing; stop instead of spinning.
		if report.Embedded == embeddedBefore {
			break
		}
	}

	report.Elapsed = time.Since(started)
	r.log.Info().
		Int("scanned", report.Scanned).
		Int("embedded", report.Embedded).
		Int("failed", report.Failed).
		Bool("dry_run", report.DryRun).
		Dur("elapsed", report.Elapsed).
		Msg("backfill complete")
	return report, nil
}

func (r *Runner) embedBlock(ctx context.Context, block *types.MemoryBlock) error {
	vector, err := retryWithBackoff(ctx, r.retry, func() ([]float32, error) {
		return r.provider.Embed(ctx, block.Content)
	})
	if err != nil {
		return err
	}
	return r.store.UpsertEmbedding(ctx, block.ID, vector, r.provider.Name(), r.provider.Model())
}
