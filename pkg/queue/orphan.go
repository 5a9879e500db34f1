package queue

import (
	"context"
	"log/slog"
	"time"
)

// runOrphanDetection periodically reclaims jobs a crashed worker left
// `running` (SPEC_FULL.md §12 "Orphan/stuck-target recovery", grounded
// on the teacher's pkg/queue/orphan.go). Disabled when the configured
// scan interval is zero.
func (p *Pool) runOrphanDetection(ctx context.Context) {
	if p.cfg.OrphanScanIntervalSeconds <= 0 {
		return
	}

	interval := time.Duration(p.cfg.OrphanScanIntervalSeconds) * time.Second
	threshold := time.Duration(p.cfg.OrphanThresholdSeconds) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.jobs.ReclaimOrphans(ctx, threshold)
			if err != nil {
				slog.Error("orphan detection failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("reclaimed orphaned jobs", "count", n)
			}
		}
	}
}
