package expertgraph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/expertgraph"
	"github.com/soundprediction/expertgraph/pkg/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print node and edge counts of the stored graph",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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

	stats, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	raw, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(raw))
	return nil
}
