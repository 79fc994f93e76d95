package expertgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soundprediction/expertgraph"
	"github.com/soundprediction/expertgraph/pkg/config"
	"github.com/soundprediction/expertgraph/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query <question> [question...]",
	Short: "Query the expert graph",
	Long: `Query answers natural-language questions against the built graph.
A single question prints the synthesized answer and its evidence; multiple
questions run as a batch with results in submission order.

Examples:
  expertgraph query 'Who has the "Patient Outcomes" skill?'
  expertgraph query --json 'Who works on vaccines?' 'Who knows immunology?'
  expertgraph query --file questions.txt`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().Bool("json", false, "Print raw JSON responses")
	queryCmd.Flags().String("file", "", "Read one question per line from a file")
	queryCmd.Flags().Int("top-k", 0, "Vector seeds per query")
	queryCmd.Flags().Int("max-depth", 0, "Graph expansion depth")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("top-k") {
		cfg.Search.TopK, _ = cmd.Flags().GetInt("top-k")
	}
	if cmd.Flags().Changed("max-depth") {
		cfg.Search.MaxDepth, _ = cmd.Flags().GetInt("max-depth")
	}

	queries := args
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read query file: %w", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				queries = append(queries, line)
			}
		}
	}
	if len(queries) == 0 {
		return fmt.Errorf("no questions given")
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

	asJSON, _ := cmd.Flags().GetBool("json")

	if len(queries) == 1 {
		resp, err := client.Query(ctx, queries[0])
		if err != nil {
			return err
		}
		printResponse(resp, asJSON)
		return nil
	}

	results := client.BatchQuery(ctx, queries)
	var failed int
	for i, r := range results {
		fmt.Printf("--- [%d/%d] %s\n", i+1, len(results), queries[i])
		if r.Err != nil {
			failed++
			fmt.Printf("error: %v\n", r.Err)
			continue
		}
		printResponse(r.Response, asJSON)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(results))
	}
	return nil
}

func printResponse(resp *types.RetrievalResponse, asJSON bool) {
	if asJSON {
		raw, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(raw))
		return
	}
	if resp.NoEvidence {
		fmt.Println("No supporting evidence found.")
		return
	}
	fmt.Println(resp.Answer)
	fmt.Println("Evidence:")
	for _, ev := range resp.Evidence {
		line := fmt.Sprintf("  %-12s %-30s score=%.3f", ev.Type, ev.Name, ev.FusedScore)
		if len(ev.Path) > 0 {
			parts := make([]string, len(ev.Path))
			for i, p := range ev.Path {
				parts[i] = string(p)
			}
			line += " via " + strings.Join(parts, " -> ")
		}
		fmt.Println(line)
	}
}
