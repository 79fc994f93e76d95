package expertgraph

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/expertgraph"
	"github.com/soundprediction/expertgraph/pkg/config"
)

var buildCmd = &cobra.Command{
	Use:   "build <data-dir>",
	Short: "Build the expert graph from source records",
	Long: `Build loads JSON source records from the given directory, normalizes
them into graph elements, commits them to the graph store in checkpointed
batches, and indexes node text into the vector store.

Builds are idempotent and resumable: re-running over the same data skips
committed batches via the checkpoint and unchanged text via the embedding
cache. Use --reset-checkpoint to replay all batches from the start.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().Bool("reset-checkpoint", false, "Clear build progress and replay all batches")
	buildCmd.Flags().Bool("create-indices", false, "Create database indices and constraints before building")
	buildCmd.Flags().Int("batch-size", 0, "Records per graph commit batch")
	buildCmd.Flags().Int("workers", 0, "Concurrent graph commit workers")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Build.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Build.Workers, _ = cmd.Flags().GetInt("workers")
	}

	logger, flush, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	ctx := context.Background()
	client, err := expertgraph.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer client.Close(ctx)

	if reset, _ := cmd.Flags().GetBool("reset-checkpoint"); reset {
		if err := client.ResetCheckpoint(); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
	}
	if create, _ := cmd.Flags().GetBool("create-indices"); create {
		if err := client.CreateIndices(ctx); err != nil {
			return fmt.Errorf("failed to create indices: %w", err)
		}
	}

	result, err := client.Build(ctx, args[0])
	if result != nil {
		fmt.Printf("Records: %d loaded, %d failed\n", result.RecordsLoaded, result.RecordsFailed)
		fmt.Printf("Graph: %d batches committed, %d skipped, %d nodes, %d edges\n",
			result.BatchesCommitted, result.BatchesSkipped, result.NodesUpserted, result.EdgesUpserted)
		fmt.Printf("Embeddings: %d computed, %d cached, %d failed\n",
			result.ChunksEmbedded, result.ChunksCached, len(result.EmbedFailures))
		for _, f := range result.Failures {
			fmt.Printf("  record %s skipped: %s\n", f.RecordID, f.Reason)
		}
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}
