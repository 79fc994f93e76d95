package expertgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/expertgraph/pkg/builder"
	"github.com/soundprediction/expertgraph/pkg/checkpoint"
	"github.com/soundprediction/expertgraph/pkg/config"
	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/embedder"
	"github.com/soundprediction/expertgraph/pkg/indexer"
	"github.com/soundprediction/expertgraph/pkg/loader"
	"github.com/soundprediction/expertgraph/pkg/nlp"
	"github.com/soundprediction/expertgraph/pkg/normalizer"
	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/search"
	"github.com/soundprediction/expertgraph/pkg/types"
	"github.com/soundprediction/expertgraph/pkg/vectorstore"
)

// BuildResult summarizes one end-to-end build run across all stages.
type BuildResult struct {
	RecordsLoaded    int                        `json:"records_loaded"`
	RecordsFailed    int                        `json:"records_failed"`
	Failures         []normalizer.RecordFailure `json:"-"`
	BatchesCommitted int                        `json:"batches_committed"`
	BatchesSkipped   int                        `json:"batches_skipped"`
	NodesUpserted    int                        `json:"nodes_upserted"`
	EdgesUpserted    int                        `json:"edges_upserted"`
	ChunksEmbedded   int                        `json:"chunks_embedded"`
	ChunksCached     int                        `json:"chunks_cached"`
	EmbedFailures    []indexer.ItemFailure      `json:"-"`
}

// Client is the top-level entry point: it owns the pipeline components and
// exposes graph construction and hybrid retrieval.
type Client struct {
	graph    driver.GraphStore
	vectors  vectorstore.Store
	embedder embedder.Client
	synth    nlp.Client
	cp       *checkpoint.Manager
	cfg      *config.Config
	logger   *slog.Logger

	retriever *search.Retriever
}

// New assembles a Client from explicit components. Tests and embedders of
// the library use this; the CLI goes through NewFromConfig.
func New(graph driver.GraphStore, vectors vectorstore.Store, emb embedder.Client, synth nlp.Client, cp *checkpoint.Manager, cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		graph:    graph,
		vectors:  vectors,
		embedder: emb,
		synth:    synth,
		cp:       cp,
		cfg:      cfg,
		logger:   logger,
	}
	c.retriever = search.New(emb, vectors, graph, synth, search.Options{
		TopK:           cfg.Search.TopK,
		MaxDepth:       cfg.Search.MaxDepth,
		VectorWeight:   cfg.Search.VectorWeight,
		GraphWeight:    cfg.Search.GraphWeight,
		Limit:          cfg.Search.Limit,
		RequestTimeout: cfg.Search.RequestTimeout,
		Policy:         retryPolicy(cfg),
	}, logger)
	return c
}

// NewFromConfig assembles a Client with production backends: Neo4j for the
// graph, Badger for vectors, OpenAI for embeddings and synthesis. The
// synthesis client is wrapped with retry and, when enabled, a circuit
// breaker.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	graph, err := driver.NewNeo4jStore(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}

	vectors, err := vectorstore.NewBadgerStore(cfg.VectorStore.Path)
	if err != nil {
		graph.Close(ctx)
		return nil, fmt.Errorf("vector store: %w", err)
	}

	emb, err := embedder.NewOpenAIClient(&embedder.Config{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		graph.Close(ctx)
		vectors.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	openaiSynth, err := nlp.NewOpenAIClient(&nlp.OpenAIConfig{
		Model:     cfg.NLP.Model,
		APIKey:    cfg.NLP.APIKey,
		BaseURL:   cfg.NLP.BaseURL,
		MaxTokens: cfg.NLP.MaxTokens,
	})
	if err != nil {
		graph.Close(ctx)
		vectors.Close()
		emb.Close()
		return nil, fmt.Errorf("synthesis client: %w", err)
	}
	var synth nlp.Client = nlp.NewRetryClient(openaiSynth, retryPolicy(cfg))
	if cfg.CircuitBreaker.Enabled {
		synth = nlp.NewCircuitBreakerClient(synth, nlp.BreakerConfig{
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         time.Duration(cfg.CircuitBreaker.Interval) * time.Second,
			Timeout:          time.Duration(cfg.CircuitBreaker.Timeout) * time.Second,
			ReadyToTripRatio: cfg.CircuitBreaker.ReadyToTripRatio,
		}, logger)
	}

	cp, err := checkpoint.Open(cfg.Build.CheckpointPath)
	if err != nil {
		graph.Close(ctx)
		vectors.Close()
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	return New(graph, vectors, emb, synth, cp, cfg, logger), nil
}

func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		p.BaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		p.MaxDelay = cfg.Retry.MaxDelay
	}
	if cfg.Retry.Multiplier > 0 {
		p.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.Jitter > 0 {
		p.Jitter = cfg.Retry.Jitter
	}
	return p
}

// Build runs the full construction pipeline over the source records found
// under dataDir: normalization, checkpointed graph commits, then embedding
// indexing. Re-running over the same data is safe; committed batches are
// skipped via the checkpoint and unchanged text is skipped via the embedding
// cache.
func (c *Client) Build(ctx context.Context, dataDir string) (*BuildResult, error) {
	records, err := loader.New(c.logger).LoadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("loading source records: %w", err)
	}
	return c.BuildRecords(ctx, records)
}

// BuildRecords runs the construction pipeline over already-loaded records.
func (c *Client) BuildRecords(ctx context.Context, records []types.SourceRecord) (*BuildResult, error) {
	result := &BuildResult{RecordsLoaded: len(records)}

	norm := normalizer.New(c.logger)
	var candidates []*normalizer.Candidates
	failures, err := norm.Stream(records, func(cand *normalizer.Candidates) error {
		candidates = append(candidates, cand)
		return nil
	})
	if err != nil {
		return result, err
	}
	result.Failures = failures
	result.RecordsFailed = len(failures)

	batches := builder.Partition(candidates, c.cfg.Build.BatchSize)
	b := builder.New(c.graph, c.cp, builder.Options{
		Workers:      c.cfg.Build.Workers,
		BatchTimeout: c.cfg.Build.BatchTimeout,
		Policy:       retryPolicy(c.cfg),
	}, c.logger)
	buildRes, err := b.Run(ctx, batches)
	if buildRes != nil {
		result.BatchesCommitted = buildRes.BatchesCommitted
		result.BatchesSkipped = buildRes.BatchesSkipped
		result.NodesUpserted = buildRes.NodesUpserted
		result.EdgesUpserted = buildRes.EdgesUpserted
	}
	if err != nil {
		return result, err
	}

	var nodes []*types.Node
	for _, batch := range batches {
		nodes = append(nodes, batch.Nodes...)
	}
	ix := indexer.New(c.embedder, c.vectors, c.cp, indexer.Options{
		EmbedBatchSize: c.cfg.Embedding.BatchSize,
		Concurrency:    c.cfg.Build.Concurrency,
		ChunkSize:      c.cfg.Build.ChunkSize,
		ChunkOverlap:   c.cfg.Build.ChunkOverlap,
		RequestTimeout: c.cfg.Search.RequestTimeout,
		Policy:         retryPolicy(c.cfg),
	}, c.logger)
	ixRes, err := ix.Run(ctx, nodes)
	if ixRes != nil {
		result.ChunksEmbedded = ixRes.Embedded
		result.ChunksCached = ixRes.Cached
		result.EmbedFailures = ixRes.Failures
	}
	if err != nil {
		return result, err
	}

	c.logger.Info("build complete",
		"records", result.RecordsLoaded,
		"record_failures", result.RecordsFailed,
		"nodes", result.NodesUpserted,
		"edges", result.EdgesUpserted,
		"embedded", result.ChunksEmbedded,
		"cached", result.ChunksCached)
	return result, nil
}

// Query answers one natural-language query with hybrid retrieval and
// synthesis.
func (c *Client) Query(ctx context.Context, query string) (*types.RetrievalResponse, error) {
	if c.cfg.Search.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Search.QueryTimeout)
		defer cancel()
	}
	return c.retriever.Query(ctx, query)
}

// BatchQuery answers many queries concurrently. Results come back in the
// same order as the input, one slot per query, and a failing query fills its
// own slot with an error without disturbing its siblings.
func (c *Client) BatchQuery(ctx context.Context, queries []string) []types.QueryResult {
	results := make([]types.QueryResult, len(queries))

	parallel := c.cfg.Search.BatchParallel
	if parallel <= 0 {
		parallel = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, query := range queries {
		g.Go(func() error {
			resp, err := c.Query(gctx, query)
			if err != nil {
				results[i] = types.QueryResult{Err: err}
				return nil
			}
			results[i] = types.QueryResult{Response: resp}
			return nil
		})
	}
	// Workers never return errors; Wait only orders the writes above.
	g.Wait()
	return results
}

// Stats reports node and edge counts of the stored graph.
func (c *Client) Stats(ctx context.Context) (*driver.GraphStats, error) {
	return c.graph.Stats(ctx)
}

// CreateIndices creates database indices and constraints for the graph
// identity keys. Run once before the first build.
func (c *Client) CreateIndices(ctx context.Context) error {
	return c.graph.CreateIndices(ctx)
}

// ResetCheckpoint clears build progress so the next build starts from the
// first batch. Upserts are idempotent, so this is safe on a populated graph.
func (c *Client) ResetCheckpoint() error {
	return c.cp.Reset()
}

// Close releases all backend connections.
func (c *Client) Close(ctx context.Context) error {
	var firstErr error
	if err := c.synth.Close(); err != nil {
		firstErr = err
	}
	if err := c.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.graph.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
