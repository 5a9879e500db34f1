// Package api exposes the four agent-facing actions (spec.md §6) over
// HTTP with gin, mirroring the transport-agnostic contract: `search`,
// `get_status`, `stop_task`, `enqueue_target`.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/pipeline"
	"github.com/openclaim/excore/pkg/queue"
	"github.com/openclaim/excore/pkg/state"
)

// Server wires the exploration core's components behind gin handlers.
// It owns no business logic itself; every action delegates to
// ExplorationState, the queue pool, or the pipeline directly.
type Server struct {
	tasks    *database.TaskStore
	content  *database.ContentStore
	jobs     *database.JobStore
	states   *state.Cache
	pipeline *pipeline.Pipeline
	pool     *queue.Pool
	graph    collaborators.EvidenceGraph
	limits   config.TaskLimitsConfig
}

// NewServer constructs a Server from the core components built at
// startup (cmd/excore wires these together).
func NewServer(
	tasks *database.TaskStore,
	content *database.ContentStore,
	jobs *database.JobStore,
	states *state.Cache,
	p *pipeline.Pipeline,
	pool *queue.Pool,
	graph collaborators.EvidenceGraph,
	limits config.TaskLimitsConfig,
) *Server {
	return &Server{
		tasks:    tasks,
		content:  content,
		jobs:     jobs,
		states:   states,
		pipeline: p,
		pool:     pool,
		graph:    graph,
		limits:   limits,
	}
}

// RegisterRoutes mounts the agent-facing actions on r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", s.Health)
	r.POST("/tasks/:task_id/search", s.Search)
	r.GET("/tasks/:task_id/status", s.GetStatus)
	r.POST("/tasks/:task_id/stop", s.StopTask)
	r.POST("/tasks/:task_id/targets", s.EnqueueTarget)
}

// stateFactory builds the ExplorationState for a task not yet cached,
// loading its row and reconstructed tallies from the store (spec.md
// §4.1 "load_state").
func (s *Server) stateFactory() state.Factory {
	return NewStateFactory(s.tasks, s.limits)
}
