package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// Neo4jStore implements GraphStore on a Neo4j database. Node identity is the
// node_id property; edge identity is the (source, type, target) tuple, which
// MERGE makes idempotent.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a Neo4j-backed graph store.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jStore{
		client:   client,
		database: database,
	}, nil
}

// UpsertNodes merges each node by node_id. Full nodes overwrite properties;
// placeholder nodes only set properties on create so they never clobber an
// already-enriched node.
func (s *Neo4jStore) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, node := range nodes {
			if err := node.Validate(); err != nil {
				return nil, fmt.Errorf("node %q: %w", node.NodeID, err)
			}

			sourceIDs := node.SourceIDs
			if sourceIDs == nil {
				sourceIDs = []string{}
			}
			if _, err := tx.Run(ctx, upsertNodeQuery(node.Type, node.Placeholder), map[string]any{
				"node_id":    node.NodeID,
				"properties": nodeToProperties(node),
				"source_ids": sourceIDs,
				"updated_at": time.Now().Format(time.RFC3339Nano),
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// upsertNodeQuery builds the MERGE statement for one node. Provenance is
// unioned rather than assigned: $properties never carries source_ids, and
// the trailing SET appends only the record IDs the node has not seen, so
// repeated upserts and placeholder merges both accumulate provenance.
func upsertNodeQuery(nodeType types.NodeType, placeholder bool) string {
	const unionSourceIDs = `SET n.source_ids = coalesce(n.source_ids, []) + [x IN $source_ids WHERE NOT x IN coalesce(n.source_ids, [])]`

	if placeholder {
		return fmt.Sprintf(`
			MERGE (n:%s {node_id: $node_id})
			ON CREATE SET n = $properties, n.node_id = $node_id
			ON MATCH SET n.updated_at = $updated_at
			%s
		`, nodeType, unionSourceIDs)
	}
	return fmt.Sprintf(`
		MERGE (n:%s {node_id: $node_id})
		SET n += $properties
		SET n.placeholder = false, n.updated_at = $updated_at
		%s
	`, nodeType, unionSourceIDs)
}

// UpsertEdges merges each edge by its (source, type, target) tuple.
func (s *Neo4jStore) UpsertEdges(ctx context.Context, edges []*types.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, edge := range edges {
			if err := edge.Validate(); err != nil {
				return nil, fmt.Errorf("edge %q: %w", edge.Identity(), err)
			}

			// Relationship types cannot be parameterized; edge.Type
			// is one of the pipeline's own constants.
			query := fmt.Sprintf(`
				MATCH (s {node_id: $source_id})
				MATCH (t {node_id: $target_id})
				MERGE (s)-[r:%s]->(t)
				ON CREATE SET r.created_at = $now, r.weight = $weight, r.source_record_id = $source_record_id
				SET r.updated_at = $now
			`, edge.Type)

			if _, err := tx.Run(ctx, query, map[string]any{
				"source_id":        edge.SourceID,
				"target_id":        edge.TargetID,
				"weight":           edge.Weight,
				"source_record_id": edge.SourceRecordID,
				"now":              time.Now().Format(time.RFC3339Nano),
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// GetNode retrieves a node by ID.
func (s *Neo4jStore) GetNode(ctx context.Context, nodeID string) (*types.Node, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n {node_id: $node_id})
			RETURN n
			LIMIT 1
		`, map[string]any{"node_id": nodeID})
		if err != nil {
			return nil, err
		}

		record, err := res.Single(ctx)
		if err != nil {
			return nil, ErrNodeNotFound
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}

	record := result.(*neo4j.Record)
	nodeValue, found := record.Get("n")
	if !found {
		return nil, ErrNodeNotFound
	}
	dbNode, ok := nodeValue.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for node: got %T", nodeValue)
	}
	return nodeFromProperties(dbNode.Props), nil
}

// Neighborhood expands from the seed set up to opts.MaxDepth, following edges
// in both directions, and returns each reached node once at its minimum
// depth with the edge-type path of the shortest discovered route.
func (s *Neo4jStore) Neighborhood(ctx context.Context, seedIDs []string, opts *TraversalOptions) ([]*NeighborHit, error) {
	if len(seedIDs) == 0 || opts == nil || opts.MaxDepth < 1 {
		return []*NeighborHit{}, nil
	}

	// Variable-length bounds and relationship types cannot be
	// parameterized; both come from trusted pipeline constants.
	relPattern := ""
	if len(opts.EdgeTypes) > 0 {
		names := make([]string, len(opts.EdgeTypes))
		for i, t := range opts.EdgeTypes {
			names[i] = string(t)
		}
		relPattern = ":" + strings.Join(names, "|")
	}

	query := neighborhoodQuery(relPattern, opts.MaxDepth)

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"seed_ids": seedIDs})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records := result.([]*neo4j.Record)
	hits := make([]*NeighborHit, 0, len(records))
	for _, record := range records {
		nodeValue, _ := record.Get("n")
		dbNode, ok := nodeValue.(dbtype.Node)
		if !ok {
			continue
		}

		hit := &NeighborHit{Node: nodeFromProperties(dbNode.Props)}
		if v, ok := record.Get("seed_id"); ok {
			hit.SeedID, _ = v.(string)
		}
		if v, ok := record.Get("depth"); ok {
			if d, ok := v.(int64); ok {
				hit.Depth = int(d)
			}
		}
		if v, ok := record.Get("rels"); ok {
			if rels, ok := v.([]any); ok {
				for _, rel := range rels {
					if name, ok := rel.(string); ok {
						hit.Path = append(hit.Path, types.EdgeType(name))
					}
				}
			}
		}
		hits = append(hits, hit)

		if opts.Limit > 0 && len(hits) >= opts.Limit {
			break
		}
	}
	return hits, nil
}

// neighborhoodQuery builds the variable-length expansion statement. Row
// order fixes which path wins for a node reached more than once: shortest
// path first, then seed node ID, then the relationship-type list, so the
// chosen seed and path never depend on database row order. Results come
// back ordered by node ID for a stable Limit cut.
func neighborhoodQuery(relPattern string, maxDepth int) string {
	return fmt.Sprintf(`
		MATCH (seed) WHERE seed.node_id IN $seed_ids
		MATCH p = (seed)-[%s*1..%d]-(n)
		WHERE NOT n.node_id IN $seed_ids
		WITH n, seed, length(p) AS depth, [r IN relationships(p) | type(r)] AS rels
		ORDER BY depth ASC, seed.node_id ASC, rels ASC
		WITH n, collect({seed: seed.node_id, depth: depth, rels: rels})[0] AS best
		RETURN n, best.seed AS seed_id, best.depth AS depth, best.rels AS rels
		ORDER BY n.node_id ASC
	`, relPattern, maxDepth)
}

// CreateIndices creates the node_id uniqueness constraints per node label.
func (s *Neo4jStore) CreateIndices(ctx context.Context) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	labels := []types.NodeType{
		types.ExpertNodeType,
		types.SkillNodeType,
		types.TopicNodeType,
		types.OrganizationNodeType,
		types.WorkNodeType,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range labels {
			query := fmt.Sprintf(
				"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.node_id IS UNIQUE",
				label,
			)
			if _, err := tx.Run(ctx, query, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Stats reports node and edge counts grouped by type.
func (s *Neo4jStore) Stats(ctx context.Context) (*GraphStats, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	stats := &GraphStats{
		NodesByType: make(map[string]int64),
		EdgesByType: make(map[string]int64),
	}

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n)
			RETURN labels(n)[0] AS label, count(n) AS count
		`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			label, _ := record.Get("label")
			count, _ := record.Get("count")
			if name, ok := label.(string); ok {
				if c, ok := count.(int64); ok {
					stats.NodesByType[name] = c
					stats.NodeCount += c
				}
			}
		}

		res, err = tx.Run(ctx, `
			MATCH ()-[r]->()
			RETURN type(r) AS rel_type, count(r) AS count
		`, nil)
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			relType, _ := record.Get("rel_type")
			count, _ := record.Get("count")
			if name, ok := relType.(string); ok {
				if c, ok := count.(int64); ok {
					stats.EdgesByType[name] = c
					stats.EdgeCount += c
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func nodeToProperties(node *types.Node) map[string]any {
	props := map[string]any{
		"node_id":     node.NodeID,
		"type":        string(node.Type),
		"name":        node.Name,
		"placeholder": node.Placeholder,
	}
	if node.Description != "" {
		props["description"] = node.Description
	}
	if !node.CreatedAt.IsZero() {
		props["created_at"] = node.CreatedAt.Format(time.RFC3339Nano)
	}
	for k, v := range node.Metadata {
		props["meta_"+k] = v
	}
	return props
}

func nodeFromProperties(props map[string]any) *types.Node {
	node := &types.Node{Metadata: map[string]string{}}
	for k, v := range props {
		switch k {
		case "node_id":
			node.NodeID, _ = v.(string)
		case "type":
			if s, ok := v.(string); ok {
				node.Type = types.NodeType(s)
			}
		case "name":
			node.Name, _ = v.(string)
		case "description":
			node.Description, _ = v.(string)
		case "placeholder":
			node.Placeholder, _ = v.(bool)
		case "source_ids":
			if ids, ok := v.([]any); ok {
				for _, id := range ids {
					if s, ok := id.(string); ok {
						node.SourceIDs = append(node.SourceIDs, s)
					}
				}
			}
		case "created_at":
			if s, ok := v.(string); ok {
				node.CreatedAt, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "updated_at":
			if s, ok := v.(string); ok {
				node.UpdatedAt, _ = time.Parse(time.RFC3339Nano, s)
			}
		default:
			if strings.HasPrefix(k, "meta_") {
				if s, ok := v.(string); ok {
					node.Metadata[strings.TrimPrefix(k, "meta_")] = s
				}
			}
		}
	}
	if len(node.Metadata) == 0 {
		node.Metadata = nil
	}
	return node
}
