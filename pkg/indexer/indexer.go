// Package indexer embeds node text into the vector store. It is incremental:
// each (node, chunk) carries the content hash of the text that produced its
// vector, and unchanged text is skipped on re-runs, so indexing the same
// graph twice costs one embedding pass the first time and zero the second.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/soundprediction/expertgraph/pkg/checkpoint"
	"github.com/soundprediction/expertgraph/pkg/embedder"
	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/types"
	"github.com/soundprediction/expertgraph/pkg/utils"
	"github.com/soundprediction/expertgraph/pkg/vectorstore"
)

// Options configures an Indexer.
type Options struct {
	// EmbedBatchSize caps how many texts go into one embedding request.
	EmbedBatchSize int
	// Concurrency bounds in-flight embedding requests.
	Concurrency int
	// ChunkSize and ChunkOverlap control splitting of long descriptions,
	// measured in runes.
	ChunkSize    int
	ChunkOverlap int
	// RequestTimeout bounds one embedding request attempt.
	RequestTimeout time.Duration
	// Policy is the retry policy for transient embedder errors.
	Policy retry.Policy
}

func (o *Options) defaults() {
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 64
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 2000
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
}

// ItemFailure records one chunk that could not be embedded. Failures are
// reported, not fatal: the rest of the run proceeds and a later run retries
// the missing chunks because their hashes were never stored.
type ItemFailure struct {
	NodeID  string
	ChunkID string
	Err     error
}

// Result summarizes an indexing run.
type Result struct {
	Embedded int
	Cached   int
	Failures []ItemFailure
}

// item is one embeddable chunk pending a cache check.
type item struct {
	nodeID  string
	chunkID string
	text    string
	hash    string
}

// Indexer drives the embedding stage.
type Indexer struct {
	embedder embedder.Client
	store    vectorstore.Store
	cp       *checkpoint.Manager
	opts     Options
	logger   *slog.Logger
}

// New creates an Indexer.
func New(emb embedder.Client, store vectorstore.Store, cp *checkpoint.Manager, opts Options, logger *slog.Logger) *Indexer {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: emb, store: store, cp: cp, opts: opts, logger: logger}
}

// Run indexes the given nodes. Placeholder nodes are skipped: they carry no
// text worth embedding until enrichment fills them in. Nodes are processed
// in batches ordered by node ID so checkpoint sequences are stable across
// runs over the same graph. The embedding stage sequence is informational
// only; resumption is driven by the per-chunk content hashes, not by batch
// skip logic.
func (ix *Indexer) Run(ctx context.Context, nodes []*types.Node) (*Result, error) {
	sorted := make([]*types.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })

	result := &Result{}
	var pending []item
	for _, node := range sorted {
		if node.Placeholder {
			continue
		}
		items := ix.chunks(node)
		// Text that shrank since the last run leaves chunks past the new
		// count behind; drop them before they serve stale evidence.
		if err := ix.store.PruneChunks(ctx, node.NodeID, len(items)); err != nil {
			return result, fmt.Errorf("pruning stale chunks for %s: %w", node.NodeID, err)
		}
		for _, it := range items {
			stored, err := ix.store.ContentHash(ctx, it.nodeID, it.chunkID)
			if err != nil {
				return result, fmt.Errorf("content hash lookup for %s/%s: %w", it.nodeID, it.chunkID, err)
			}
			if stored == it.hash {
				result.Cached++
				continue
			}
			pending = append(pending, it)
		}
	}

	if len(pending) == 0 {
		ix.logger.Info("embedding stage complete", "embedded", 0, "cached", result.Cached)
		return result, nil
	}

	ix.logger.Info("embedding stage starting",
		"pending", len(pending),
		"cached", result.Cached,
		"batch_size", ix.opts.EmbedBatchSize)

	sem := semaphore.NewWeighted(int64(ix.opts.Concurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	seq := ix.cp.LastCommitted(checkpoint.StageEmbedding)
	for start := 0; start < len(pending); start += ix.opts.EmbedBatchSize {
		end := start + ix.opts.EmbedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, err
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			embedded, failures := ix.embedBatch(ctx, batch)

			mu.Lock()
			result.Embedded += embedded
			result.Failures = append(result.Failures, failures...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(result.Failures) == 0 {
		seq++
		if err := ix.cp.Advance(checkpoint.StageEmbedding, seq); err != nil {
			return result, err
		}
	}

	ix.logger.Info("embedding stage complete",
		"embedded", result.Embedded,
		"cached", result.Cached,
		"failed", len(result.Failures))
	return result, nil
}

// chunks splits a node into embeddable items. Short nodes yield a single
// chunk keyed "0"; long descriptions split into overlapping windows.
func (ix *Indexer) chunks(node *types.Node) []item {
	text := node.EmbeddingText()
	if text == "" {
		return nil
	}

	pieces := utils.ChunkText(text, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	items := make([]item, 0, len(pieces))
	for i, piece := range pieces {
		items = append(items, item{
			nodeID:  node.NodeID,
			chunkID: fmt.Sprintf("%d", i),
			text:    piece,
			hash:    utils.ContentHash(piece),
		})
	}
	return items
}

// embedBatch embeds one sub-batch and upserts the resulting records. A
// failed batch is recorded per-item so the caller can see exactly which
// chunks are missing.
func (ix *Indexer) embedBatch(ctx context.Context, batch []item) (int, []ItemFailure) {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.text
	}

	var vectors [][]float32
	err := ix.opts.Policy.Do(ctx, "embed batch", func(ctx context.Context) error {
		if ix.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, ix.opts.RequestTimeout)
			defer cancel()
		}
		var embedErr error
		vectors, embedErr = ix.embedder.Embed(ctx, texts)
		return embedErr
	})
	if err != nil {
		failures := make([]ItemFailure, len(batch))
		for i, it := range batch {
			failures[i] = ItemFailure{NodeID: it.nodeID, ChunkID: it.chunkID, Err: err}
		}
		return 0, failures
	}
	if len(vectors) != len(batch) {
		err := fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		failures := make([]ItemFailure, len(batch))
		for i, it := range batch {
			failures[i] = ItemFailure{NodeID: it.nodeID, ChunkID: it.chunkID, Err: err}
		}
		return 0, failures
	}

	records := make([]*vectorstore.Record, len(batch))
	for i, it := range batch {
		records[i] = &vectorstore.Record{
			NodeID:      it.nodeID,
			ChunkID:     it.chunkID,
			Vector:      vectors[i],
			ContentHash: it.hash,
			Text:        it.text,
		}
	}
	if err := ix.store.Upsert(ctx, records); err != nil {
		failures := make([]ItemFailure, len(batch))
		for i, it := range batch {
			failures[i] = ItemFailure{NodeID: it.nodeID, ChunkID: it.chunkID, Err: err}
		}
		return 0, failures
	}
	return len(batch), nil
}
