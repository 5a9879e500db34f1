package api

import (
	"context"
	"strings"
	"time"

	"github.com/openclaim/excore/pkg/executor"
)

// claimView is one entry of a `search` response's `claims_found` list
// (spec.md §6).
type claimView struct {
	ID              string  `json:"id"`
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	SourceURL       string  `json:"source_url"`
	IsPrimarySource bool    `json:"is_primary_source"`
}

// claimsFoundSince lists a task's claims accrued since a search began.
// Claims are task-scoped, not per-search (spec.md's claims table carries
// no search_id), so this is the closest faithful projection: everything
// the task has accrued since that search's start timestamp.
func (s *Server) claimsFoundSince(ctx context.Context, taskID string, since time.Time) ([]claimView, error) {
	claims, err := s.content.ClaimsForTaskSince(ctx, taskID, since)
	if err != nil {
		return nil, err
	}

	out := make([]claimView, 0, len(claims))
	for _, c := range claims {
		out = append(out, claimView{
			ID:              c.ID,
			Text:            c.Text,
			Confidence:      c.Confidence,
			SourceURL:       c.SourceURL,
			IsPrimarySource: executor.IsPrimarySource(domainOfURL(c.SourceURL)),
		})
	}
	return out, nil
}

func domainOfURL(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if idx := strings.IndexAny(u, "/?#"); idx >= 0 {
		u = u[:idx]
	}
	return strings.ToLower(u)
}
