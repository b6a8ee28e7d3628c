// Package engine implements memory consolidation: it distills batches of
// unconsolidated episodes into durable semantic knowledge, reconciles new
// patterns against what is already known, strengthens significant recent
// memories and prunes redundant old ones.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/continuum/internal/config"
	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// Stats reports what one consolidation run did. Step-level failures are
// collected in Errors; only a failed batch fetch aborts a run.
type Stats struct {
	StartedAt  time.Time
	FinishedAt time.Time

	EpisodesProcessed    int
	PatternsExtracted    int
	KnowledgeCreated     int
	KnowledgeUpdated     int
	KnowledgeReplaced    int
	MemoriesStrengthened int
	EpisodesPruned       int

	Errors []string
}

// Duration returns the wall-clock run time.
func (s *Stats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Status is "completed" when no step failed, "partial" otherwise.
func (s *Stats) Status() string {
	if len(s.Errors) > 0 {
		return "partial"
	}
	return "completed"
}

func (s *Stats) addError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Engine runs consolidation against the episodic and semantic stores.
// Run is safe to call concurrently, though the trigger serializes runs
// per agent to keep batches disjoint.
type Engine struct {
	episodic storage.EpisodicStore
	semantic storage.SemanticStore
	states   storage.StateStore
	cfg      config.ConsolidationConfig
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns a consolidation engine. states may be nil; run logging is
// then skipped.
func New(episodic storage.EpisodicStore, semantic storage.SemanticStore, states storage.StateStore, cfg config.ConsolidationConfig, opts ...Option) *Engine {
	e := &Engine{
		episodic: episodic,
		semantic: semantic,
		states:   states,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one consolidation pass:
//
//  1. fetch a batch of unconsolidated episodes,
//  2. extract behavioral patterns and memory crystals,
//  3. filter by confidence,
//  4. reconcile each survivor against existing knowledge and write,
//  5. mark the batch consolidated,
//  6. strengthen important recent episodes,
//  7. prune redundant old episodes when due,
//  8. record a run-log row.
//
// An empty batch returns zeroed stats and nil. Only a failed fetch is
// fatal; later step failures are absorbed into Stats.Errors so one broken
// store cannot wedge the pipeline.
func (e *Engine) Run(ctx context.Context) (*Stats, error) {
	return e.run(ctx, "manual")
}

func (e *Engine) run(ctx context.Context, runType string) (*Stats, error) {
	stats := &Stats{StartedAt: e.now()}

	episodes, err := e.episodic.GetUnconsolidated(ctx, e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to fetch unconsolidated episodes: %w", err)
	}
	stats.EpisodesProcessed = len(episodes)

	if len(episodes) == 0 {
		stats.FinishedAt = e.now()
		return stats, nil
	}

	patterns := e.extractAll(episodes)
	patterns = filterByConfidence(patterns, e.cfg.ConfidenceThreshold)
	stats.PatternsExtracted = len(patterns)

	e.applyPatterns(ctx, patterns, stats)

	// Mark after the knowledge writes: a crash between the writes and
	// this update re-consolidates the batch (at-least-once), which
	// reconciliation absorbs as NOOPs.
	ids := make([]string, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.ID
	}
	if _, err := e.episodic.MarkConsolidated(ctx, ids); err != nil {
		stats.addError("mark consolidated: %v", err)
	}

	e.strengthenImportant(ctx, stats)

	if len(episodes) >= e.cfg.BatchSize || e.now().Hour() == e.cfg.OffPeakHour {
		e.pruneRedundant(ctx, stats)
	}

	stats.FinishedAt = e.now()
	e.logRun(ctx, runType, stats)
	return stats, nil
}

// extractAll runs every extractor over the batch. Extractors are
// independent and order-insensitive.
func (e *Engine) extractAll(episodes []*types.Episode) []types.Pattern {
	minEp := e.cfg.MinEpisodesForPattern

	var patterns []types.Pattern
	patterns = append(patterns, extractActivityPatterns(episodes)...)
	patterns = append(patterns, extractSuccessPatterns(episodes, minEp)...)
	patterns = append(patterns, extractContextPatterns(episodes, minEp)...)
	patterns = append(patterns, extractOutcomePredictions(episodes, minEp)...)
	patterns = append(patterns, extractEmotionalPatterns(episodes, minEp)...)
	patterns = append(patterns, extractCollaborationPatterns(episodes, e.cfg.Collaborators)...)
	patterns = append(patterns, extractTemporalPatterns(episodes, minEp)...)
	patterns = append(patterns, crystallize(episodes, e.cfg.EmotionalThreshold, e.now())...)
	return patterns
}

func filterByConfidence(patterns []types.Pattern, threshold float64) []types.Pattern {
	out := patterns[:0]
	for _, p := range patterns {
		if p.Confidence >= threshold {
			out = append(out, p)
		}
	}
	return out
}

// applyPatterns reconciles each pattern against existing knowledge and
// performs the resulting writes.
func (e *Engine) applyPatterns(ctx context.Context, patterns []types.Pattern, stats *Stats) {
	now := e.now()

	for _, p := range patterns {
		op, related, err := e.reconcile(ctx, p)
		if err != nil {
			stats.addError("reconcile %q: %v", p.Description, err)
			continue
		}

		switch op {
		case opAdd:
			item := p.Knowledge(now)
			if _, err := e.semantic.StoreKnowledge(ctx, item); err != nil {
				stats.addError("store knowledge %q: %v", p.Description, err)
				continue
			}
			stats.KnowledgeCreated++

		case opUpdate:
			item := p.Knowledge(now)
			item.ID = related.ID
			if _, err := e.semantic.StoreKnowledge(ctx, item); err != nil {
				stats.addError("update knowledge %s: %v", related.ID, err)
				continue
			}
			stats.KnowledgeUpdated++

		case opDelete:
			if err := e.semantic.DeleteKnowledge(ctx, related.ID); err != nil {
				stats.addError("delete contradicted knowledge %s: %v", related.ID, err)
				continue
			}
			item := p.Knowledge(now)
			if _, err := e.semantic.StoreKnowledge(ctx, item); err != nil {
				stats.addError("store replacement %q: %v", p.Description, err)
				continue
			}
			stats.KnowledgeReplaced++

		case opNoop:
			// Existing knowledge is reinforced, not rewritten.
			if err := e.semantic.TouchKnowledge(ctx, related.ID); err != nil {
				log.Printf("WARNING: engine: failed to touch knowledge %s: %v", related.ID, err)
			}
		}
	}
}

// strengthenImportant bumps last-24h high-importance episodes by 0.05,
// capped at 1.0. Importance above 0.8 marks an episode significant.
func (e *Engine) strengthenImportant(ctx context.Context, stats *Stats) {
	recent, err := e.episodic.GetRecent(ctx, storage.RecentQuery{Limit: e.cfg.BatchSize, HoursBack: 24})
	if err != nil {
		stats.addError("fetch recent for strengthening: %v", err)
		return
	}

	for _, ep := range recent {
		if ep.Importance <= 0.8 {
			continue
		}
		boosted := types.Clamp01(ep.Importance + 0.05)
		if boosted == ep.Importance {
			continue
		}
		if err := e.episodic.UpdateEpisode(ctx, ep.ID, storage.EpisodeUpdate{Importance: &boosted}); err != nil {
			stats.addError("strengthen episode %s: %v", ep.ID, err)
			continue
		}
		stats.MemoriesStrengthened++
	}
}

// pruneRedundant deletes consolidated, aged-out, low-importance episodes.
// Candidate selection uses LowImportanceThreshold; only episodes below
// HardDeleteThreshold are actually removed, the rest are left to decay
// further.
func (e *Engine) pruneRedundant(ctx context.Context, stats *Stats) {
	cutoff := e.now().AddDate(0, 0, -e.cfg.RetentionDays)

	candidates, err := e.episodic.PruneCandidates(ctx, cutoff, e.cfg.LowImportanceThreshold, e.cfg.BatchSize)
	if err != nil {
		stats.addError("fetch prune candidates: %v", err)
		return
	}

	for _, ep := range candidates {
		if ep.Importance >= e.cfg.HardDeleteThreshold {
			continue
		}
		if err := e.episodic.DeleteEpisode(ctx, ep.ID); err != nil {
			stats.addError("prune episode %s: %v", ep.ID, err)
			continue
		}
		stats.EpisodesPruned++
	}
}

// logRun records the run in the consolidation log. Never fatal.
func (e *Engine) logRun(ctx context.Context, runType string, stats *Stats) {
	if e.states == nil {
		return
	}

	rec := storage.RunRecord{
		RunType:           runType,
		EpisodesProcessed: stats.EpisodesProcessed,
		PatternsExtracted: stats.PatternsExtracted,
		KnowledgeCreated:  stats.KnowledgeCreated + stats.KnowledgeUpdated + stats.KnowledgeReplaced,
		Duration:          stats.Duration(),
		Status:            stats.Status(),
	}
	if err := e.states.RecordRun(ctx, rec); err != nil {
		log.Printf("WARNING: engine: failed to record consolidation run: %v", err)
	}
}

// RecordEpisode normalizes and stores one episode, estimating importance
// when the caller did not supply one. It is the write path that the
// auto-consolidation trigger observes.
func (e *Engine) RecordEpisode(ctx context.Context, ep *types.Episode) (string, error) {
	if ep == nil {
		return "", storage.ErrInvalidInput
	}

	ep.Normalize(e.now())
	if ep.Importance == 0 {
		ep.Importance = EstimateImportance(ep)
	}

	id, err := e.episodic.StoreEpisode(ctx, ep)
	if err != nil {
		return "", fmt.Errorf("engine: failed to record episode: %w", err)
	}
	return id, nil
}
