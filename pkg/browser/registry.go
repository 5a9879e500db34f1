package browser

import (
	"fmt"
	"sync"

	"github.com/openclaim/excore/pkg/config"
)

// Registry hands out a singleton TabPool per worker id, each backed by
// its own isolated Chrome process (spec.md §4.6 "Worker isolation").
type Registry struct {
	cfg config.Config

	mu    sync.Mutex
	pools map[int]*TabPool
}

// NewRegistry builds a registry that lazily launches one Chrome instance
// per worker id on first use.
func NewRegistry(cfg config.Config) *Registry {
	return &Registry{cfg: cfg, pools: make(map[int]*TabPool)}
}

// TabPoolFor returns the worker's TabPool, launching its dedicated
// Chrome instance on first access.
func (r *Registry) TabPoolFor(workerID int) (*TabPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[workerID]; ok {
		return p, nil
	}

	browser, err := launchChrome(r.cfg.Chrome, workerID)
	if err != nil {
		return nil, fmt.Errorf("browser: registry launching worker %d: %w", workerID, err)
	}
	pool := newTabPool(browser, r.cfg.Concurrency.BrowserSERP, r.cfg.Concurrency.Backoff.BrowserSERP)
	r.pools[workerID] = pool
	return pool, nil
}

// CloseAll shuts down every worker's Chrome instance, used at process
// shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pool := range r.pools {
		_ = pool.Close()
		delete(r.pools, id)
	}
}
