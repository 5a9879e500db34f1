package queue

import (
	"context"
	"fmt"

	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/pipeline"
	"github.com/openclaim/excore/pkg/state"
)

// Dispatcher routes a claimed job to the right execution path by kind
// (spec.md §4.5 "Kinds"): `query` -> SearchPipeline, `url` -> direct
// fetch, `doi` -> the academic provider path.
type Dispatcher struct {
	pipeline *pipeline.Pipeline
}

// NewDispatcher wraps a Pipeline as a Dispatcher.
func NewDispatcher(p *pipeline.Pipeline) *Dispatcher {
	return &Dispatcher{pipeline: p}
}

// Dispatch merges per-target options over task options (per-target wins),
// annotates the call with the worker id for tab-pool isolation, and
// runs the job's kind through the matching pipeline entry point.
func (d *Dispatcher) Dispatch(ctx context.Context, st *state.State, job *models.Job, workerID string) (map[string]any, error) {
	target, _ := job.Input["target"].(string)
	if target == "" {
		return nil, fmt.Errorf("queue: job %s has no target", job.ID)
	}

	opts := mergeOptions(asMap(job.Input["task_options"]), asMap(job.Input["options"]))
	opts.WorkerID = workerID

	var result pipeline.Result
	switch job.Kind {
	case models.JobQuery:
		result = d.pipeline.Execute(ctx, st, job.TaskID, job.ID, target, opts)
	case models.JobURL:
		result = d.pipeline.IngestURL(ctx, st, job.TaskID, job.ID, target)
	case models.JobDOI:
		result = d.pipeline.IngestDOI(ctx, st, job.TaskID, job.ID, target)
	default:
		return nil, fmt.Errorf("queue: unknown job kind %q", job.Kind)
	}

	return resultToOutput(result), nil
}

func resultToOutput(r pipeline.Result) map[string]any {
	return map[string]any{
		"ok":                 r.OK,
		"search_id":          r.SearchID,
		"status":             string(r.Status),
		"pages_fetched":      r.PagesFetched,
		"useful_fragments":   r.UsefulFragments,
		"harvest_rate":       r.HarvestRate,
		"satisfaction_score": r.SatisfactionScore,
		"novelty_score":      r.NoveltyScore,
		"refutations_found":  r.RefutationsFound,
		"is_partial":         r.IsPartial,
		"is_timeout":         r.IsTimeout,
		"errors":             r.Errors,
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// mergeOptions builds pipeline.Options from task-level defaults
// overridden field-by-field by target-level options, per spec.md §4.5
// "per-target options take precedence over task options".
func mergeOptions(taskOpts, targetOpts map[string]any) pipeline.Options {
	var opts pipeline.Options
	applyOptionFields(&opts, taskOpts)
	applyOptionFields(&opts, targetOpts)
	return opts
}

func applyOptionFields(opts *pipeline.Options, src map[string]any) {
	if src == nil {
		return
	}
	if v, ok := src["serp_engines"].([]any); ok {
		opts.SERPEngines = toStringSlice(v)
	}
	if v, ok := src["academic_apis"].([]any); ok {
		opts.AcademicAPIs = toStringSlice(v)
	}
	if v, ok := toInt(src["max_pages"]); ok {
		opts.MaxPages = v
	}
	if v, ok := toInt(src["serp_max_pages"]); ok {
		opts.SERPMaxPages = v
	}
	if v, ok := src["seek_primary"].(bool); ok {
		opts.SeekPrimary = v
	}
	if v, ok := src["refute"].(bool); ok {
		opts.Refute = v
	}
}

func toStringSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
