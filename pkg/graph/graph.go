// Package graph implements the evidence-graph collaborator (spec.md §6)
// as a thin, typed-id wrapper over the edges table: no owned
// back-references, arena-plus-typed-id representation per spec.md §9's
// design note. Concurrency is entirely the database's problem, as the
// spec's concurrency model assumes (spec.md §5: "The evidence graph is
// an external collaborator; any concurrency there is its problem").
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/models"
)

// Graph is a Postgres-backed EvidenceGraph.
type Graph struct {
	edges *database.EdgeStore
}

// New constructs a Graph over the given edge store.
func New(edges *database.EdgeStore) *Graph {
	return &Graph{edges: edges}
}

var _ collaborators.EvidenceGraph = (*Graph)(nil)

// AddNode is a no-op in this representation: page and claim rows are
// already nodes by virtue of existing; there is no separate node table
// to populate.
func (g *Graph) AddNode(ctx context.Context, nodeType models.NodeType, id string) error {
	return nil
}

// AddClaimEvidence persists the claim->fragment edge with the NLI
// collaborator's sanitized label, taking nliConfidence as the source of
// truth for confidence (spec.md §4.4 `_persist_claim`, §7
// "Edge-persistence path").
func (g *Graph) AddClaimEvidence(ctx context.Context, claimID, fragmentID, taskID string, relation models.EdgeRelation, nliLabel models.NLILabel, nliConfidence, confidence float64) error {
	edge := models.Edge{
		ID:            uuid.NewString(),
		SourceType:    models.NodeClaim,
		SourceID:      claimID,
		TargetType:    models.NodeFragment,
		TargetID:      fragmentID,
		Relation:      relation,
		Confidence:    nliConfidence, // nli_confidence is the source of truth, spec.md §3
		NLILabel:      nliLabel,
		NLIConfidence: nliConfidence,
	}
	if err := g.edges.InsertEdge(ctx, edge); err != nil {
		return fmt.Errorf("graph: adding claim evidence: %w", err)
	}
	return nil
}

// AddCitation wires a single CITES edge between two pages.
func (g *Graph) AddCitation(ctx context.Context, fromPageID, toPageID string) error {
	edge := models.Edge{
		ID:         uuid.NewString(),
		SourceType: models.NodePage,
		SourceID:   fromPageID,
		TargetType: models.NodePage,
		TargetID:   toPageID,
		Relation:   models.RelationCites,
	}
	if err := g.edges.InsertEdge(ctx, edge); err != nil {
		return fmt.Errorf("graph: adding citation: %w", err)
	}
	return nil
}

// AddAcademicPageWithCitations wires CITES edges from one source paper's
// page to every cited page retained by citation-graph expansion
// (spec.md §4.3).
func (g *Graph) AddAcademicPageWithCitations(ctx context.Context, sourcePageID string, citedPageIDs []string) error {
	for _, citedID := range citedPageIDs {
		if err := g.AddCitation(ctx, sourcePageID, citedID); err != nil {
			return err
		}
	}
	return nil
}

// Summary computes the stop_task evidence_graph_summary projection
// (spec.md §6: `{nodes, edges, primary_source_ratio}`).
func (g *Graph) Summary(ctx context.Context, taskID string) (collaborators.GraphSummary, error) {
	nodes, err := g.edges.NodeCountForTask(ctx, taskID)
	if err != nil {
		return collaborators.GraphSummary{}, err
	}
	edgeCount, err := g.edges.EdgeCountForTask(ctx, taskID)
	if err != nil {
		return collaborators.GraphSummary{}, err
	}
	ratio, err := g.edges.PrimarySourceRatioForTask(ctx, taskID, config.PrimarySourceDomainSuffixes())
	if err != nil {
		return collaborators.GraphSummary{}, err
	}
	return collaborators.GraphSummary{Nodes: nodes, Edges: edgeCount, PrimarySourceRatio: ratio}, nil
}
