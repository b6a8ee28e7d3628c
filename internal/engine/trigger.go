package engine

import (
	"context"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"github.com/scrypster/continuum/internal/config"
	"github.com/scrypster/continuum/internal/storage"
)

// RunResult is delivered on the trigger's Results channel when a
// background consolidation finishes.
type RunResult struct {
	AgentID string
	Stats   *Stats
	Err     error
}

// Trigger watches the episodic store and fires background consolidation
// runs when enough unconsolidated evidence accumulates: either a bulk
// backlog (TriggerCount) or a handful of high-importance episodes
// (TriggerHighImportance).
//
// Runs are fire-and-forget with three guardrails: trigger evaluation is
// rate-limited so hot recording paths don't hammer the count query, at
// most one run per agent is in flight (single-flight), and the total
// number of concurrent runs is bounded.
type Trigger struct {
	engine   *Engine
	episodic storage.EpisodicStore
	cfg      config.ConsolidationConfig

	limiter *rate.Limiter
	sem     chan struct{}

	mu       sync.Mutex
	inflight map[string]bool
	closed   bool

	wg sync.WaitGroup

	// Results surfaces finished runs to a monitoring loop. Buffered;
	// when nobody drains it, results are dropped rather than blocking
	// the pool.
	Results chan RunResult
}

// NewTrigger returns a trigger bound to one engine and its episodic
// store.
func NewTrigger(engine *Engine, episodic storage.EpisodicStore, cfg config.ConsolidationConfig) *Trigger {
	return &Trigger{
		engine:   engine,
		episodic: episodic,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.TriggerRatePerMinute/60.0), 1),
		sem:      make(chan struct{}, cfg.MaxConcurrentRuns),
		inflight: map[string]bool{},
		Results:  make(chan RunResult, 16),
	}
}

// Notify evaluates the trigger condition after an episode write and
// starts a background run when it holds. It returns true when a run was
// started. It never blocks the recording path: throttled evaluations,
// in-flight agents and a full pool all return false immediately.
func (t *Trigger) Notify(ctx context.Context, agentID string) bool {
	if !t.limiter.Allow() {
		return false
	}

	stats, err := t.episodic.EpisodeStats(ctx)
	if err != nil {
		log.Printf("WARNING: engine: trigger stats query failed: %v", err)
		return false
	}
	if stats.Unconsolidated < t.cfg.TriggerCount &&
		stats.HighImportanceUnconsolidated < t.cfg.TriggerHighImportance {
		return false
	}

	t.mu.Lock()
	if t.closed || t.inflight[agentID] {
		t.mu.Unlock()
		return false
	}
	t.inflight[agentID] = true
	t.mu.Unlock()

	select {
	case t.sem <- struct{}{}:
	default:
		t.release(agentID)
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.sem }()
		defer t.release(agentID)

		// Detached from the recording path's context: an episode write
		// finishing must not cancel the consolidation it triggered.
		runStats, err := t.engine.run(context.Background(), "triggered")
		select {
		case t.Results <- RunResult{AgentID: agentID, Stats: runStats, Err: err}:
		default:
			if err != nil {
				log.Printf("ERROR: engine: triggered consolidation failed: %v", err)
			}
		}
	}()
	return true
}

func (t *Trigger) release(agentID string) {
	t.mu.Lock()
	delete(t.inflight, agentID)
	t.mu.Unlock()
}

// Close waits for in-flight runs and closes the Results channel. No
// Notify may be called after Close.
func (t *Trigger) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.wg.Wait()
	close(t.Results)
}
