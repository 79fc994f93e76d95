// Package builder commits normalized graph candidates to the graph store in
// checkpointed batches. Upserts are idempotent, so a crashed batch can be
// retried from its start: completed batches apply at most once, interrupted
// ones at least once.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/expertgraph/pkg/checkpoint"
	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/types"
)

// Batch is one unit of graph commit, identified by a monotonically
// increasing sequence assigned at submission.
type Batch struct {
	Seq   int64
	Nodes []*types.Node
	Edges []*types.Edge
}

// BatchError reports a batch that failed after retry exhaustion. It carries
// enough context to resume: the stage and the failing sequence; everything
// before it is already checkpointed.
type BatchError struct {
	Stage checkpoint.Stage
	Seq   int64
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("stage %s: batch %d failed: %v", e.Stage, e.Seq, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Options configures a Builder.
type Options struct {
	// Workers bounds the upsert worker pool.
	Workers int
	// BatchTimeout bounds one batch commit attempt; exceeding it is a
	// transient failure subject to the retry policy.
	BatchTimeout time.Duration
	// Policy is the retry policy for transient store errors.
	Policy retry.Policy
}

// Result summarizes a build stage run.
type Result struct {
	BatchesCommitted int
	BatchesSkipped   int
	NodesUpserted    int
	EdgesUpserted    int
}

// Builder applies batches to the graph store with bounded concurrency and
// advances the graph-stage checkpoint in submission order.
type Builder struct {
	store  driver.GraphStore
	cp     *checkpoint.Manager
	opts   Options
	logger *slog.Logger
}

// New creates a Builder.
func New(store driver.GraphStore, cp *checkpoint.Manager, opts Options, logger *slog.Logger) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, cp: cp, opts: opts, logger: logger}
}

// Run commits all batches. Batches already reflected in the checkpoint are
// skipped. Workers apply batches concurrently, but the checkpoint advances
// strictly in submission order under a single committer, so an out-of-order
// completion can never record progress past an uncommitted predecessor. The
// first exhausted batch halts the stage with a BatchError.
func (b *Builder) Run(ctx context.Context, batches []*Batch) (*Result, error) {
	result := &Result{}
	last := b.cp.LastCommitted(checkpoint.StageGraph)

	var pending []*Batch
	for _, batch := range batches {
		if batch.Seq <= last {
			result.BatchesSkipped++
			continue
		}
		pending = append(pending, batch)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })

	if len(pending) == 0 {
		b.logger.Info("graph stage already complete", "last_committed", last)
		return result, nil
	}

	b.logger.Info("graph stage starting",
		"batches", len(pending),
		"skipped", result.BatchesSkipped,
		"resume_from", pending[0].Seq)

	// The committer tracks which sequences have been applied and advances
	// the checkpoint only when the next-in-order batch is done.
	committer := &orderedCommitter{
		cp:    b.cp,
		stage: checkpoint.StageGraph,
		next:  pending[0].Seq,
		done:  make(map[int64]bool),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	var mu sync.Mutex
	for _, batch := range pending {
		g.Go(func() error {
			if err := b.applyBatch(gctx, batch); err != nil {
				return &BatchError{Stage: checkpoint.StageGraph, Seq: batch.Seq, Err: err}
			}
			if err := committer.markDone(batch.Seq); err != nil {
				return err
			}

			mu.Lock()
			result.BatchesCommitted++
			result.NodesUpserted += len(batch.Nodes)
			result.EdgesUpserted += len(batch.Edges)
			mu.Unlock()

			b.logger.Debug("batch committed",
				"seq", batch.Seq,
				"nodes", len(batch.Nodes),
				"edges", len(batch.Edges))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.Error("graph stage halted",
			"error", err,
			"last_committed", b.cp.LastCommitted(checkpoint.StageGraph))
		return result, err
	}

	b.logger.Info("graph stage complete",
		"batches", result.BatchesCommitted,
		"nodes", result.NodesUpserted,
		"edges", result.EdgesUpserted)
	return result, nil
}

// applyBatch upserts one batch with retry. Nodes go first so edges never
// reference wholly absent endpoints within the batch.
func (b *Builder) applyBatch(ctx context.Context, batch *Batch) error {
	op := fmt.Sprintf("graph batch %d", batch.Seq)
	return b.opts.Policy.Do(ctx, op, func(ctx context.Context) error {
		if b.opts.BatchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.opts.BatchTimeout)
			defer cancel()
		}

		if err := b.store.UpsertNodes(ctx, batch.Nodes); err != nil {
			return err
		}
		return b.store.UpsertEdges(ctx, batch.Edges)
	})
}

// orderedCommitter serializes checkpoint advances so they happen in batch
// submission order, buffering completions that arrive early.
type orderedCommitter struct {
	cp    *checkpoint.Manager
	stage checkpoint.Stage

	mu   sync.Mutex
	next int64
	done map[int64]bool
}

func (c *orderedCommitter) markDone(seq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done[seq] = true
	for c.done[c.next] {
		if err := c.cp.Advance(c.stage, c.next); err != nil {
			return err
		}
		delete(c.done, c.next)
		c.next++
	}
	return nil
}
