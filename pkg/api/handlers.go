package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/pipeline"
)

// Health reports worker-pool liveness for readiness probes (SPEC_FULL.md
// §12 "Health/readiness endpoint").
func (s *Server) Health(c *gin.Context) {
	health := s.pool.Health()
	status := http.StatusOK
	if health.TotalWorkers == 0 {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":         "ok",
		"total_workers":  health.TotalWorkers,
		"active_workers": health.ActiveWorkers,
	})
}

// SearchRequest is the `search` action's body (spec.md §6).
type SearchRequest struct {
	Query    string        `json:"query" binding:"required"`
	Priority string        `json:"priority"`
	Options  SearchOptions `json:"options"`
}

// SearchOptions mirrors pipeline.Options' agent-facing fields.
type SearchOptions struct {
	SERPEngines  []string `json:"serp_engines"`
	AcademicAPIs []string `json:"academic_apis"`
	MaxPages     int      `json:"max_pages"`
	SeekPrimary  bool     `json:"seek_primary"`
	Refute       bool     `json:"refute"`
	SERPMaxPages int      `json:"serp_max_pages"`
}

func (o SearchOptions) toPipelineOptions() pipeline.Options {
	return pipeline.Options{
		SERPEngines:  o.SERPEngines,
		AcademicAPIs: o.AcademicAPIs,
		MaxPages:     o.MaxPages,
		SeekPrimary:  o.SeekPrimary,
		Refute:       o.Refute,
		SERPMaxPages: o.SERPMaxPages,
	}
}

// Search runs a query through SearchPipeline synchronously and returns
// its full result (spec.md §6 `search` action). Unlike enqueue_target,
// this executes inline rather than going through the target queue,
// matching the direct agent-facing "search" call.
func (s *Server) Search(c *gin.Context) {
	taskID := c.Param("task_id")

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidRequest(err.Error()))
		return
	}

	st, err := s.states.GetOrCreate(c.Request.Context(), taskID, s.stateFactory())
	if err != nil {
		writeError(c, err)
		return
	}

	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.SearchPriority(req.Priority)
	}

	searchID := uuid.NewString()
	searchStarted := time.Now()
	st.RegisterSearch(searchID, req.Query, priority, req.Options.MaxPages)
	if err := st.StartSearch(searchID); err != nil {
		writeError(c, err)
		return
	}

	opts := req.Options.toPipelineOptions()
	opts.WorkerID = searchID

	result := s.pipeline.Execute(c.Request.Context(), st, taskID, searchID, req.Query, opts)

	claimsFound, err := s.claimsFoundSince(c.Request.Context(), taskID, searchStarted)
	if err != nil {
		claimsFound = nil
	}

	sv, _ := st.Search(searchID)

	c.JSON(http.StatusOK, gin.H{
		"ok":                 result.OK,
		"search_id":          result.SearchID,
		"query":              result.Query,
		"status":             string(result.Status),
		"pages_fetched":      result.PagesFetched,
		"useful_fragments":   result.UsefulFragments,
		"harvest_rate":       result.HarvestRate,
		"claims_found":       claimsFound,
		"satisfaction_score": result.SatisfactionScore,
		"novelty_score":      result.NoveltyScore,
		"budget_remaining": gin.H{
			"pages":   remainingPages(sv),
			"percent": remainingPercent(sv),
		},
		"refutations_found": result.RefutationsFound,
		"is_partial":        result.IsPartial,
		"errors":            result.Errors,
	})
}

// GetStatus serves §4.1's full status projection, optionally long-polling
// for a status-changing event (spec.md §6 `get_status(task_id, wait?)`).
func (s *Server) GetStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	wait := parseWaitSeconds(c.Query("wait"))

	st, err := s.states.GetOrCreate(c.Request.Context(), taskID, s.stateFactory())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, st.GetStatus(c.Request.Context(), wait))
}

// StopTaskRequest is `stop_task`'s body.
type StopTaskRequest struct {
	Mode   string `json:"mode" binding:"required"` // graceful|immediate
	Reason string `json:"reason"`
}

// StopTask finalizes a task, cancelling or draining its running target
// jobs first depending on mode (spec.md §6 `stop_task`).
func (s *Server) StopTask(c *gin.Context) {
	taskID := c.Param("task_id")

	var req StopTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidRequest(err.Error()))
		return
	}

	st, err := s.states.GetOrCreate(c.Request.Context(), taskID, s.stateFactory())
	if err != nil {
		writeError(c, err)
		return
	}

	switch req.Mode {
	case "immediate":
		s.pool.CancelJobsForTask(c.Request.Context(), taskID)
	case "graceful":
		s.pool.WaitForTaskJobsToComplete(c.Request.Context(), taskID, time.Duration(s.limits.PipelineTimeoutSeconds)*time.Second)
	default:
		writeError(c, invalidRequest("mode must be graceful or immediate"))
		return
	}

	reason := req.Reason
	if reason == "" && req.Mode == "immediate" {
		reason = "user_cancelled"
	}
	summary, err := st.Finalize(c.Request.Context(), reason)
	if err != nil {
		writeError(c, err)
		return
	}

	graphSummary, err := s.graph.Summary(c.Request.Context(), taskID)
	if err != nil {
		graphSummary.Nodes = summary.EvidenceGraphNodes
		graphSummary.Edges = summary.EvidenceGraphEdges
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"task_id":      taskID,
		"final_status": string(summary.FinalStatus),
		"summary": gin.H{
			"satisfied_count":   summary.SatisfiedCount,
			"partial_count":     summary.PartialCount,
			"unsatisfied_count": summary.UnsatisfiedCount,
			"followup_hints":    summary.FollowupHints,
		},
		"evidence_graph_summary": gin.H{
			"nodes":                graphSummary.Nodes,
			"edges":                graphSummary.Edges,
			"primary_source_ratio": graphSummary.PrimarySourceRatio,
		},
		"is_resumable": true,
	})
}

// EnqueueTargetRequest is `enqueue_target`'s body.
type EnqueueTargetRequest struct {
	Target struct {
		Kind  string `json:"kind" binding:"required"` // query|url|doi
		Value string `json:"value" binding:"required"`
	} `json:"target" binding:"required"`
	Priority string         `json:"priority"`
	Options  map[string]any `json:"options"`
}

// EnqueueTarget places a target on the task queue for asynchronous
// processing by the worker pool (spec.md §6 `enqueue_target`).
func (s *Server) EnqueueTarget(c *gin.Context) {
	taskID := c.Param("task_id")

	var req EnqueueTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidRequest(err.Error()))
		return
	}

	kind := models.JobKind(req.Target.Kind)
	switch kind {
	case models.JobQuery, models.JobURL, models.JobDOI:
	default:
		writeError(c, invalidRequest("target.kind must be query, url, or doi"))
		return
	}

	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.SearchPriority(req.Priority)
	}

	job := models.Job{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Kind:     kind,
		State:    models.JobQueued,
		Priority: priority,
		Input: map[string]any{
			"target":  req.Target.Value,
			"options": req.Options,
		},
		QueuedAt: time.Now(),
	}

	if err := s.jobs.Enqueue(c.Request.Context(), job); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "target_id": job.ID})
}

func remainingPages(sv models.Search) int {
	r := sv.PageBudget - sv.PagesFetched
	if r < 0 {
		return 0
	}
	return r
}

func remainingPercent(sv models.Search) float64 {
	if sv.PageBudget <= 0 {
		return 0
	}
	return float64(remainingPages(sv)) / float64(sv.PageBudget)
}

// parseWaitSeconds accepts a plain integer/float seconds count; an empty
// or malformed value means no long-poll wait.
func parseWaitSeconds(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	secs, err := time.ParseDuration(raw + "s")
	if err != nil {
		return 0
	}
	return secs
}
