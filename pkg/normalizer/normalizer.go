// Package normalizer turns raw combined profile+works records into canonical
// entity and relationship candidates with stable, order-independent
// identities.
package normalizer

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// RecordFailure records one malformed input record that was skipped. A single
// bad record never aborts the sequence.
type RecordFailure struct {
	RecordID string `json:"record_id"`
	Err      error  `json:"-"`
	Reason   string `json:"reason"`
}

// Candidates is the normalized output of one source record: the nodes and
// edges it contributes, deduplicated within the record.
type Candidates struct {
	SourceID string
	Nodes    []*types.Node
	Edges    []*types.Edge
}

// Normalizer emits canonical graph candidates for source records.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a Normalizer. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Stream normalizes records one at a time, invoking emit for each record's
// candidates. Malformed records are skipped and reported in the returned
// failure list; an emit error aborts the stream.
func (n *Normalizer) Stream(records []types.SourceRecord, emit func(*Candidates) error) ([]RecordFailure, error) {
	var failures []RecordFailure

	for i := range records {
		rec := &records[i]
		cands, err := n.Record(rec)
		if err != nil {
			n.logger.Warn("skipping malformed record",
				"record_id", rec.ID,
				"error", err)
			failures = append(failures, RecordFailure{
				RecordID: rec.ID,
				Err:      err,
				Reason:   err.Error(),
			})
			continue
		}
		if err := emit(cands); err != nil {
			return failures, err
		}
	}

	return failures, nil
}

// Record normalizes a single source record into its candidate nodes and
// edges: the Expert node, Skill/Topic/Organization nodes with their edges,
// and per work a Work node, AUTHORED edges for every listed author, and
// COAUTHOR_WITH edges between all pairs of co-authors.
func (n *Normalizer) Record(rec *types.SourceRecord) (*Candidates, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("record %q: %w", rec.ID, err)
	}

	b := newCandidateBuilder(rec.ID)
	now := time.Now()

	expertID := types.NodeID(types.ExpertNodeType, rec.ID)
	b.addNode(&types.Node{
		NodeID:      expertID,
		Type:        types.ExpertNodeType,
		Name:        rec.Name,
		Description: expertDescription(rec),
		CreatedAt:   now,
		SourceIDs:   []string{rec.ID},
	})

	for _, skill := range rec.Skills {
		if types.CanonicalKey(skill) == "" {
			continue
		}
		skillID := types.NodeID(types.SkillNodeType, skill)
		b.addNode(&types.Node{
			NodeID:    skillID,
			Type:      types.SkillNodeType,
			Name:      skill,
			CreatedAt: now,
			SourceIDs: []string{rec.ID},
		})
		b.addEdge(&types.Edge{
			SourceID:       expertID,
			Type:           types.HasSkillEdgeType,
			TargetID:       skillID,
			SourceRecordID: rec.ID,
			CreatedAt:      now,
		})
	}

	for _, topic := range rec.Topics {
		if types.CanonicalKey(topic) == "" {
			continue
		}
		topicID := types.NodeID(types.TopicNodeType, topic)
		b.addNode(&types.Node{
			NodeID:    topicID,
			Type:      types.TopicNodeType,
			Name:      topic,
			CreatedAt: now,
			SourceIDs: []string{rec.ID},
		})
		b.addEdge(&types.Edge{
			SourceID:       expertID,
			Type:           types.WorksInEdgeType,
			TargetID:       topicID,
			SourceRecordID: rec.ID,
			CreatedAt:      now,
		})
	}

	if types.CanonicalKey(rec.Organization) != "" {
		orgID := types.NodeID(types.OrganizationNodeType, rec.Organization)
		b.addNode(&types.Node{
			NodeID:    orgID,
			Type:      types.OrganizationNodeType,
			Name:      rec.Organization,
			CreatedAt: now,
			SourceIDs: []string{rec.ID},
		})
		b.addEdge(&types.Edge{
			SourceID:       expertID,
			Type:           types.MemberOfEdgeType,
			TargetID:       orgID,
			SourceRecordID: rec.ID,
			CreatedAt:      now,
		})
	}

	for i := range rec.Works {
		work := &rec.Works[i]
		if err := work.Validate(); err != nil {
			// A malformed nested work is skipped like a malformed
			// record, without dropping the rest of the profile.
			n.logger.Warn("skipping malformed work",
				"record_id", rec.ID,
				"work_id", work.ID,
				"error", err)
			continue
		}
		n.normalizeWork(b, rec, work, now)
	}

	return b.build(), nil
}

// normalizeWork emits the Work node, its topic edges, AUTHORED edges for
// every listed author, and COAUTHOR_WITH edges between all author pairs. An
// author whose own record has not been normalized yet gets a placeholder
// Expert node; the later full upsert enriches it.
func (n *Normalizer) normalizeWork(b *candidateBuilder, rec *types.SourceRecord, work *types.WorkRecord, now time.Time) {
	workID := types.NodeID(types.WorkNodeType, work.ID)
	b.addNode(&types.Node{
		NodeID:      workID,
		Type:        types.WorkNodeType,
		Name:        work.Title,
		Description: work.Abstract,
		CreatedAt:   now,
		SourceIDs:   []string{rec.ID},
	})

	for _, topic := range work.Topics {
		if types.CanonicalKey(topic) == "" {
			continue
		}
		topicID := types.NodeID(types.TopicNodeType, topic)
		b.addNode(&types.Node{
			NodeID:    topicID,
			Type:      types.TopicNodeType,
			Name:      topic,
			CreatedAt: now,
			SourceIDs: []string{rec.ID},
		})
		b.addEdge(&types.Edge{
			SourceID:       workID,
			Type:           types.WorksInEdgeType,
			TargetID:       topicID,
			SourceRecordID: rec.ID,
			CreatedAt:      now,
		})
	}

	authors := work.Authors
	if len(authors) == 0 {
		// The owning expert is always an author of their own work.
		authors = []types.Author{{ID: rec.ID, Name: rec.Name}}
	}

	authorIDs := make([]string, 0, len(authors))
	for _, author := range authors {
		if author.ID == "" && types.CanonicalKey(author.Name) == "" {
			continue
		}
		key := author.ID
		if key == "" {
			// Co-authors outside the exported set are identified by
			// canonical name.
			key = author.Name
		}
		name := author.Name
		if types.CanonicalKey(name) == "" {
			// An ID-only co-author still needs a valid node name; the
			// ID stands in until their own record enriches it.
			name = author.ID
		}
		authorNodeID := types.NodeID(types.ExpertNodeType, key)
		if authorNodeID != types.NodeID(types.ExpertNodeType, rec.ID) {
			b.addNode(&types.Node{
				NodeID:      authorNodeID,
				Type:        types.ExpertNodeType,
				Name:        name,
				Placeholder: true,
				CreatedAt:   now,
				SourceIDs:   []string{rec.ID},
			})
		}
		authorIDs = append(authorIDs, authorNodeID)

		b.addEdge(&types.Edge{
			SourceID:       authorNodeID,
			Type:           types.AuthoredEdgeType,
			TargetID:       workID,
			SourceRecordID: rec.ID,
			CreatedAt:      now,
		})
	}

	// COAUTHOR_WITH between all pairs. The pair is ordered by node ID so
	// the edge identity is stable regardless of author list order.
	sort.Strings(authorIDs)
	for i := 0; i < len(authorIDs); i++ {
		for j := i + 1; j < len(authorIDs); j++ {
			if authorIDs[i] == authorIDs[j] {
				continue
			}
			b.addEdge(&types.Edge{
				SourceID:       authorIDs[i],
				Type:           types.CoauthorEdgeType,
				TargetID:       authorIDs[j],
				SourceRecordID: rec.ID,
				CreatedAt:      now,
			})
		}
	}
}

func expertDescription(rec *types.SourceRecord) string {
	desc := rec.Bio
	if desc == "" {
		desc = rec.Title
	}
	return desc
}

// candidateBuilder deduplicates nodes by ID and edges by identity within one
// record.
type candidateBuilder struct {
	sourceID string
	nodes    []*types.Node
	edges    []*types.Edge
	seenNode map[string]*types.Node
	seenEdge map[string]bool
}

func newCandidateBuilder(sourceID string) *candidateBuilder {
	return &candidateBuilder{
		sourceID: sourceID,
		seenNode: make(map[string]*types.Node),
		seenEdge: make(map[string]bool),
	}
}

func (b *candidateBuilder) addNode(node *types.Node) {
	if existing, ok := b.seenNode[node.NodeID]; ok {
		// A full node wins over a placeholder for the same identity.
		if existing.Placeholder && !node.Placeholder {
			*existing = *node
		}
		return
	}
	b.seenNode[node.NodeID] = node
	b.nodes = append(b.nodes, node)
}

func (b *candidateBuilder) addEdge(edge *types.Edge) {
	key := edge.Identity()
	if b.seenEdge[key] {
		return
	}
	b.seenEdge[key] = true
	b.edges = append(b.edges, edge)
}

func (b *candidateBuilder) build() *Candidates {
	return &Candidates{
		SourceID: b.sourceID,
		Nodes:    b.nodes,
		Edges:    b.edges,
	}
}
