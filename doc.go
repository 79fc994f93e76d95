// Package expertgraph builds and queries an expert knowledge graph from
// structured people and publication records.
//
// Construction normalizes source records into canonical graph elements,
// commits them to the graph store in checkpointed idempotent batches, and
// indexes node text into a vector store keyed by content hash so re-runs
// only embed what changed.
//
// Retrieval is hybrid: a query is embedded, the nearest indexed nodes seed a
// bounded graph expansion, vector and graph signals are fused into one
// deterministic ranking, and a language model synthesizes an answer from the
// top evidence.
//
// Basic usage:
//
//	cfg, _ := config.Load()
//	client, err := expertgraph.NewFromConfig(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	client.Build(ctx, "./data")
//	resp, err := client.Query(ctx, `Who has the "Patient Outcomes" skill?`)
package expertgraph
