package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openclaim/excore/pkg/models"
)

// ContentStore persists the search/page/fragment/claim/edge rows the
// pipeline, executor, and refutation executor produce (spec.md §6
// "Persisted state"). Methods are narrow and single-purpose, mirroring
// the deterministic per-target persistence order spec.md §5 requires:
// page -> fragment -> claim -> edge.
type ContentStore struct {
	pool *Pool
}

// NewContentStore wraps a Pool as a ContentStore.
func NewContentStore(pool *Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

// CreateQuery inserts a `queries` row for a newly registered search.
func (s *ContentStore) CreateQuery(ctx context.Context, search *models.Search) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO queries (id, task_id, query_text, priority, status) VALUES ($1, $2, $3, $4, $5)`,
		search.ID, search.TaskID, search.Text, string(search.Priority), string(search.Status),
	)
	if err != nil {
		return fmt.Errorf("database: inserting query: %w", err)
	}
	return nil
}

// UpdateQueryStats writes a search's mutable harvest-rate/status/engines
// fields back after a pipeline run.
func (s *ContentStore) UpdateQueryStats(ctx context.Context, search *models.Search, enginesUsed []string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE queries SET harvest_rate = $1, status = $2, engines_used = $3 WHERE id = $4`,
		search.HarvestRate, string(search.Status), enginesUsed, search.ID,
	)
	if err != nil {
		return fmt.Errorf("database: updating query stats: %w", err)
	}
	return nil
}

// InsertSERPItem records one ranked SERP result against its parent query.
func (s *ContentStore) InsertSERPItem(ctx context.Context, id, queryID string, r models.SerpResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO serp_items (id, query_id, url, title, snippet, engine, rank) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, queryID, r.URL, r.Title, r.Snippet, r.Engine, r.Rank,
	)
	if err != nil {
		return fmt.Errorf("database: inserting serp item: %w", err)
	}
	return nil
}

// UpsertPage implements the Page invariant from spec.md §3: a URL
// always maps to the same page id across re-observations, and a
// placeholder upgraded by a later real fetch keeps its id and mutates
// in place. Returns the page's id (existing or newly assigned).
func (s *ContentStore) UpsertPage(ctx context.Context, id string, p models.Page) (string, error) {
	var paperJSON []byte
	if p.PaperMetadata != nil {
		var err error
		paperJSON, err = json.Marshal(p.PaperMetadata)
		if err != nil {
			return "", fmt.Errorf("database: encoding paper metadata: %w", err)
		}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO pages (id, url, domain, page_type, fetch_method, title, paper_metadata, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE SET
			page_type      = EXCLUDED.page_type,
			fetch_method   = EXCLUDED.fetch_method,
			title          = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE pages.title END,
			paper_metadata = COALESCE(EXCLUDED.paper_metadata, pages.paper_metadata),
			fetched_at     = EXCLUDED.fetched_at
		RETURNING id
	`, id, p.URL, p.Domain, string(p.Type), string(p.FetchMethod), p.Title, paperJSON, p.FetchedAt)

	var resolvedID string
	if err := row.Scan(&resolvedID); err != nil {
		return "", fmt.Errorf("database: upserting page: %w", err)
	}
	return resolvedID, nil
}

// InsertFragment writes one fragment row under an existing page.
func (s *ContentStore) InsertFragment(ctx context.Context, f models.Fragment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fragments (id, page_id, fragment_type, text_content, heading, position, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.PageID, string(f.Type), f.Text, f.Heading, f.Position, f.ContentHash, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("database: inserting fragment: %w", err)
	}
	return nil
}

// FragmentText reads back a fragment's text, used as the NLI premise
// when available (spec.md §4.4 `_persist_claim`).
func (s *ContentStore) FragmentText(ctx context.Context, fragmentID string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT text_content FROM fragments WHERE id = $1`, fragmentID)
	var text string
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("database: reading fragment text: %w", err)
	}
	return text, nil
}

// InsertClaim writes a claim row (spec.md §3: "Claims from non-primary
// sources are never created" — enforced by the caller, not here).
func (s *ContentStore) InsertClaim(ctx context.Context, c models.Claim) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO claims (id, task_id, claim_text, confidence_score, source_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.TaskID, c.Text, c.Confidence, c.SourceURL, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("database: inserting claim: %w", err)
	}
	return nil
}

// DecayClaimConfidence applies RefutationExecutor's no-refutation decay,
// floored at 0 (spec.md §4.7).
func (s *ContentStore) DecayClaimConfidence(ctx context.Context, claimID string, decay float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE claims SET confidence_score = GREATEST(0, confidence_score - $1) WHERE id = $2`,
		decay, claimID,
	)
	if err != nil {
		return fmt.Errorf("database: decaying claim confidence: %w", err)
	}
	return nil
}

// ClaimsForTaskSince lists a task's claims created at or after `since`,
// newest first. Claims are task-scoped, not per-search (spec.md's claims
// table carries no search_id), so a search action's `claims_found` is
// this: every claim the task has accrued since that search began.
func (s *ContentStore) ClaimsForTaskSince(ctx context.Context, taskID string, since time.Time) ([]models.Claim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, claim_text, confidence_score, source_url, created_at
		FROM claims WHERE task_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, taskID, since)
	if err != nil {
		return nil, fmt.Errorf("database: listing claims: %w", err)
	}
	defer rows.Close()

	var out []models.Claim
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Text, &c.Confidence, &c.SourceURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: scanning claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Claim loads a claim row by id.
func (s *ContentStore) Claim(ctx context.Context, claimID string) (models.Claim, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, task_id, claim_text, confidence_score, source_url, created_at FROM claims WHERE id = $1`, claimID)
	var c models.Claim
	if err := row.Scan(&c.ID, &c.TaskID, &c.Text, &c.Confidence, &c.SourceURL, &c.CreatedAt); err != nil {
		return models.Claim{}, fmt.Errorf("database: loading claim: %w", err)
	}
	return c, nil
}
