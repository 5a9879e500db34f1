// Package refutation implements RefutationExecutor (spec.md §4.7):
// claim-directed counter-evidence search using only mechanical suffix
// patterns, never an LLM-generated hypothesis.
package refutation

import (
	"context"
	"fmt"

	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/executor"
	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/state"
)

// noRefutationConfidenceDecay is applied when a claim search turns up
// zero refutations (spec.md §4.7 `NO_REFUTATION_CONFIDENCE_DECAY`).
const noRefutationConfidenceDecay = 0.05

// claimPrefixChars bounds how much of the claim text seeds a reverse
// query (spec.md §4.7 "first 100 chars").
const claimPrefixChars = 100

// refutationStanceThreshold is the NLI acceptance bar for a refutation
// hit (spec.md §4.7: "stance=refutes ∧ confidence > 0.6").
const refutationStanceThreshold = 0.6

// serpLimit/takeTop bound the reverse-query search per spec.md §4.7
// ("limit 5, take top 3 pages").
const (
	serpLimit = 5
	takeTop   = 3
)

// Executor runs refutation searches for claims and searches.
type Executor struct {
	collab  collaborators.Collaborators
	content *database.ContentStore
	exec    *executor.Executor
	cfg     config.SearchConfig
}

// New constructs a refutation Executor.
func New(collab collaborators.Collaborators, content *database.ContentStore, exec *executor.Executor, cfg config.SearchConfig) *Executor {
	return &Executor{collab: collab, content: content, exec: exec, cfg: cfg}
}

// ReverseQueries appends the fixed mechanical suffix list to the first
// claimPrefixChars characters of the source text (spec.md §4.7: "up to
// five reverse queries by appending suffixes").
func ReverseQueries(text string) []string {
	prefix := text
	if len(prefix) > claimPrefixChars {
		prefix = prefix[:claimPrefixChars]
	}
	suffixes := config.RefutationSuffixes()
	queries := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		queries = append(queries, prefix+" "+suffix)
	}
	return queries
}

// runReverseSearches executes every reverse query (top `takeTop` pages
// each) and runs each fetched passage through NLI, counting accepted
// refutation hits against originalText. sourceID is the claim or search
// id the resulting refutes edges are anchored on.
func (e *Executor) runReverseSearches(ctx context.Context, taskID, sourceID, originalText string) (hits int, err error) {
	for _, query := range ReverseQueries(originalText) {
		results, serr := e.exec.ExecuteSearch(ctx, query, nil, taskID, serpLimit, "refutation")
		if serr != nil {
			continue // transient external failure: skip this reverse query (spec.md §7)
		}
		if len(results) > takeTop {
			results = results[:takeTop]
		}
		for _, item := range results {
			outcome, ferr := e.exec.FetchAndExtract(ctx, sourceID, taskID, item)
			if ferr != nil || outcome.Skipped {
				continue
			}
			if e.collab.NLI == nil {
				continue
			}
			nliResults, nerr := e.collab.NLI.Check(ctx, []collaborators.NLIPair{
				{PairID: item.URL, Premise: outcome.Text, Hypothesis: originalText},
			})
			if nerr != nil || len(nliResults) == 0 {
				continue // NLI exception: safe-no-refutation signal (spec.md §4.7)
			}
			r := nliResults[0]
			if models.SanitizeNLILabel(r.Stance) == models.NLIRefutes && r.Confidence > refutationStanceThreshold {
				hits++
				_ = e.persistRefutationEdge(ctx, sourceID, outcome.FragmentID, taskID, r.Confidence)
			}
		}
	}
	return hits, nil
}

// persistRefutationEdge wires a claim/search -> counter-evidence-fragment
// refutes edge (spec.md §4.7), using the NLI confidence for both of the
// edge's confidence fields. No domain category is attached to the edge.
func (e *Executor) persistRefutationEdge(ctx context.Context, sourceID, fragmentID, taskID string, confidence float64) error {
	if e.collab.Graph == nil {
		return nil
	}
	return e.collab.Graph.AddClaimEvidence(ctx, sourceID, fragmentID, taskID, models.RelationRefutes, models.NLIRefutes, confidence, confidence)
}

// ExecuteForClaim runs the counter-evidence search for one claim,
// decaying its confidence if nothing is found (spec.md §4.7
// `execute_for_claim`).
func (e *Executor) ExecuteForClaim(ctx context.Context, claimID string) (hits int, err error) {
	claim, err := e.content.Claim(ctx, claimID)
	if err != nil {
		return 0, fmt.Errorf("refutation: loading claim: %w", err)
	}

	hits, err = e.runReverseSearches(ctx, claim.TaskID, claimID, claim.Text)
	if err != nil {
		return 0, err
	}
	if hits == 0 {
		if derr := e.content.DecayClaimConfidence(ctx, claimID, noRefutationConfidenceDecay); derr != nil {
			return 0, fmt.Errorf("refutation: decaying claim confidence: %w", derr)
		}
	}
	return hits, nil
}

// ExecuteForSearch runs the same procedure keyed on a search's text,
// setting the search's refutation_status (spec.md §4.7 `execute_for_search`).
// Returns the number of accepted refutation hits alongside the status so
// callers (the pipeline's refutation-mode branch) can report it verbatim.
func (e *Executor) ExecuteForSearch(ctx context.Context, st *state.State, searchID string) (models.RefutationStatus, int, error) {
	search, ok := st.Search(searchID)
	if !ok {
		return models.RefutationNotFound, 0, fmt.Errorf("refutation: unknown search %q", searchID)
	}

	hits, err := e.runReverseSearches(ctx, search.TaskID, searchID, search.Text)
	if err != nil {
		return models.RefutationNotFound, 0, err
	}

	status := models.RefutationNotFound
	if hits > 0 {
		status = models.RefutationFound
	}
	if err := st.SetRefutationStatus(searchID, status); err != nil {
		return status, hits, err
	}
	return status, hits, nil
}
