package database

import (
	"context"
	"fmt"

	"github.com/openclaim/excore/pkg/models"
)

// EdgeStore persists evidence-graph edges and answers the aggregate
// queries pkg/graph needs for GraphSummary (spec.md §6 `edges` table).
type EdgeStore struct {
	pool *Pool
}

// NewEdgeStore wraps a Pool as an EdgeStore.
func NewEdgeStore(pool *Pool) *EdgeStore {
	return &EdgeStore{pool: pool}
}

// InsertEdge writes one typed relation between two graph nodes. Neutral
// NLI results are still persisted, never dropped (spec.md §3 Edge invariant).
func (s *EdgeStore) InsertEdge(ctx context.Context, e models.Edge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO edges (id, source_type, source_id, target_type, target_id, relation, confidence, nli_label, nli_confidence, source_domain_category, target_domain_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, string(e.SourceType), e.SourceID, string(e.TargetType), e.TargetID,
		string(e.Relation), e.Confidence, string(e.NLILabel), e.NLIConfidence,
		e.SourceDomainCategory, e.TargetDomainCategory)
	if err != nil {
		return fmt.Errorf("database: inserting edge: %w", err)
	}
	return nil
}

// NodeCountForTask counts distinct pages and claims reachable for a
// task, used by GraphSummary.Nodes.
func (s *EdgeStore) NodeCountForTask(ctx context.Context, taskID string) (int, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT p.id) FROM pages p
				JOIN fragments f ON f.page_id = p.id
				JOIN serp_items si ON si.url = p.url
				JOIN queries q ON q.id = si.query_id
				WHERE q.task_id = $1)
			+ (SELECT COUNT(*) FROM claims WHERE task_id = $1)
	`, taskID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("database: counting graph nodes: %w", err)
	}
	return n, nil
}

// EdgeCountForTask counts edges whose source claim belongs to the task.
func (s *EdgeStore) EdgeCountForTask(ctx context.Context, taskID string) (int, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM edges e
		JOIN claims c ON c.id = e.source_id AND e.source_type = 'claim'
		WHERE c.task_id = $1
	`, taskID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("database: counting graph edges: %w", err)
	}
	return n, nil
}

// PrimarySourceRatioForTask is the fraction of a task's pages whose
// domain matches the fixed primary-source suffix set, feeding
// evidence_graph_summary.primary_source_ratio (spec.md §6 stop_task).
func (s *EdgeStore) PrimarySourceRatioForTask(ctx context.Context, taskID string, primarySuffixes []string) (float64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE p.domain LIKE ANY($2))
		FROM pages p
		JOIN fragments f ON f.page_id = p.id
		JOIN serp_items si ON si.url = p.url
		JOIN queries q ON q.id = si.query_id
		WHERE q.task_id = $1
	`, taskID, likePatternsFromSuffixes(primarySuffixes))

	var total, primary int
	if err := row.Scan(&total, &primary); err != nil {
		return 0, fmt.Errorf("database: computing primary source ratio: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(primary) / float64(total), nil
}

func likePatternsFromSuffixes(suffixes []string) []string {
	patterns := make([]string, len(suffixes))
	for i, s := range suffixes {
		patterns[i] = "%" + s
	}
	return patterns
}
