// Package continuity implements consciousness-state capture and
// restoration: it snapshots the agent's working context before shutdown
// and rebuilds experiential continuity after a downtime gap of any
// length, bridging the gap with timeline events, similar historical
// contexts and a modeled emotional transition.
package continuity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/continuum/internal/config"
	"github.com/scrypster/continuum/internal/health"
	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// Caps on what one snapshot carries. A state is a summary, not a dump.
const (
	maxSummaryItems    = 20
	maxKeyEntities     = 10
	maxActiveTopics    = 8
	maxFocusTags       = 5
	maxRecentActions   = 10
	maxPendingTasks    = 8
	maxLearnedPatterns = 5
)

// patternRelevanceFloor is the minimum re-queried relevance for a saved
// pattern to be integrated during restoration.
const patternRelevanceFloor = 0.6

// Manager captures and restores consciousness states. Every restoration
// sub-step degrades gracefully: a broken store costs detail, never the
// restoration itself.
type Manager struct {
	episodic storage.EpisodicStore
	semantic storage.SemanticStore
	working  storage.WorkingContext
	states   storage.StateStore
	health   *health.Monitor

	cfg       config.ContinuityConfig
	agentID   string
	sessionID string
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the manager's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a continuity manager. monitor may be nil; memory integrity
// then reports full health.
func New(episodic storage.EpisodicStore, semantic storage.SemanticStore, working storage.WorkingContext, states storage.StateStore, monitor *health.Monitor, cfg config.ContinuityConfig, agentID, sessionID string, opts ...Option) *Manager {
	m := &Manager{
		episodic:  episodic,
		semantic:  semantic,
		working:   working,
		states:    states,
		health:    monitor,
		cfg:       cfg,
		agentID:   agentID,
		sessionID: sessionID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SaveState captures the current consciousness state and persists it.
// Capture sub-steps degrade to empty sections when their store is
// unavailable; only the final persist can fail.
func (m *Manager) SaveState(ctx context.Context) (string, error) {
	now := m.now()
	state := &types.ConsciousnessState{
		StateID:   uuid.NewString(),
		Timestamp: now,
		SessionID: m.sessionID,
	}

	items := m.currentItems(ctx)
	state.ActiveContext = summarizeActiveContext(items)
	state.WorkingMemory = m.workingMemorySummary(ctx)
	state.CurrentFocus = topTags(items, maxFocusTags)
	state.Emotional = m.emotionalAggregate(ctx)
	state.RecentActions = m.recentActions(ctx)
	state.PendingTasks = detectPendingTasks(items, maxPendingTasks)
	state.LearnedPatterns = m.learnedPatterns(ctx, state.CurrentFocus)

	state.ConfidenceScore = m.confidenceScore(ctx, state)
	state.MemoryIntegrity = m.memoryIntegrity(ctx)
	state.ContextCompleteness = contextCompleteness(state.ActiveContext)
	state.EmotionalCoherence = state.ConfidenceScore * 0.9
	state.ExperientialContinuity = state.MemoryIntegrity * state.ContextCompleteness

	if err := m.states.SaveState(ctx, state); err != nil {
		return "", fmt.Errorf("continuity: failed to save consciousness state: %w", err)
	}
	return state.StateID, nil
}

// RestorationSummary reports what a restoration accomplished. It is
// returned even when restoration degrades or fails outright.
type RestorationSummary struct {
	RestoredAt time.Time `json:"restored_at"`

	PreviousStateID   string        `json:"previous_state_id,omitempty"`
	PreviousTimestamp time.Time     `json:"previous_timestamp,omitempty"`
	GapType           types.GapType `json:"gap_type,omitempty"`
	GapDuration       time.Duration `json:"gap_duration"`

	// FreshStart means no prior state existed; nothing to restore is a
	// normal first boot, not a failure.
	FreshStart bool `json:"fresh_start,omitempty"`

	// RestorationFailed means the prior state could not even be read.
	RestorationFailed bool `json:"restoration_failed,omitempty"`

	ContextItemsRestored int `json:"context_items_restored"`
	TasksReactivated     int `json:"tasks_reactivated"`
	PatternsIntegrated   int `json:"patterns_integrated"`
	TimelineEvents       int `json:"timeline_events"`
	HistoricalContexts   int `json:"historical_contexts"`

	EmotionalTransition types.EmotionalTransition    `json:"emotional_transition"`
	Predictions         []types.ContextualPrediction `json:"predictions,omitempty"`

	BridgeQuality  float64 `json:"bridge_quality"`
	IntegrityScore float64 `json:"integrity_score"`
}

// RestoreState restores continuity from the latest saved state across
// the given downtime gap. It never returns an error: a missing state is
// a fresh start and an unreadable one a failed summary. A non-positive
// gap is measured from the saved state's timestamp.
func (m *Manager) RestoreState(ctx context.Context, gap time.Duration) *RestorationSummary {
	summary := &RestorationSummary{RestoredAt: m.now()}

	state, err := m.states.LatestState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		summary.FreshStart = true
		summary.IntegrityScore = 1.0
		return summary
	}
	if err != nil {
		log.Printf("ERROR: continuity: failed to load latest state: %v", err)
		summary.RestorationFailed = true
		return summary
	}

	if gap <= 0 {
		gap = m.now().Sub(state.Timestamp)
	}
	if gap < 0 {
		gap = 0
	}

	summary.PreviousStateID = state.StateID
	summary.PreviousTimestamp = state.Timestamp
	summary.GapDuration = gap
	summary.GapType = ClassifyGap(gap, m.cfg)

	bridge := m.buildBridge(ctx, state, gap)
	summary.TimelineEvents = len(bridge.TimelineEvents)
	summary.HistoricalContexts = len(bridge.ContextItems)
	summary.EmotionalTransition = bridge.EmotionalTransition
	summary.Predictions = bridge.Predictions
	summary.BridgeQuality = bridge.QualityScore

	m.restoreWorkingContext(ctx, state, bridge, summary)
	m.reactivatePendingTasks(ctx, state, summary)
	m.integratePatterns(ctx, state, summary)
	m.recordEmotionalContinuity(ctx, bridge, summary)

	summary.IntegrityScore = m.integrityScore(ctx, gap, bridge, summary)

	m.logRestoration(ctx, state, bridge, summary)
	return summary
}

// RestoreAfterDowntime measures the gap from the latest saved state and
// restores across it. This is the agent-startup entry point.
func (m *Manager) RestoreAfterDowntime(ctx context.Context) *RestorationSummary {
	return m.RestoreState(ctx, 0)
}

// --- capture sub-steps ---

func (m *Manager) currentItems(ctx context.Context) []storage.ContextItem {
	items, err := m.working.CurrentContext(ctx, maxSummaryItems*2)
	if err != nil {
		log.Printf("WARNING: continuity: failed to read working context: %v", err)
		return nil
	}
	return items
}

func summarizeActiveContext(items []storage.ContextItem) types.ActiveContextSummary {
	summary := types.ActiveContextSummary{TotalItems: len(items)}

	entities := map[string]bool{}
	topics := map[string]bool{}

	for _, item := range items {
		if e, ok := item.Data["entity"].(string); ok && e != "" {
			entities[e] = true
		}
		for _, tag := range item.Tags {
			topics[tag] = true
		}

		if len(summary.Items) < maxSummaryItems {
			summary.Items = append(summary.Items, types.ContextSummaryItem{
				ActionType: stringField(item.Data, "action_type"),
				Timestamp:  item.Timestamp,
				Importance: item.Importance,
				Summary:    stringField(item.Data, "summary"),
			})
		}
	}

	summary.KeyEntities = sortedBounded(entities, maxKeyEntities)
	summary.ActiveTopics = sortedBounded(topics, maxActiveTopics)
	return summary
}

func (m *Manager) workingMemorySummary(ctx context.Context) types.WorkingMemorySummary {
	stats, err := m.working.Stats(ctx)
	if err != nil {
		log.Printf("WARNING: continuity: failed to read working-context stats: %v", err)
		return types.WorkingMemorySummary{}
	}
	return types.WorkingMemorySummary{
		TotalItems: stats.TotalItems,
		Oldest:     stats.Oldest,
		Newest:     stats.Newest,
		TopTags:    stats.TopTags,
	}
}

// emotionalAggregate folds the last two hours of episodes into a single
// dominant emotional state with the trajectory that produced it.
func (m *Manager) emotionalAggregate(ctx context.Context) types.EmotionalAggregate {
	episodes, err := m.episodic.GetRecent(ctx, storage.RecentQuery{Limit: 50, HoursBack: 2})
	if err != nil {
		log.Printf("WARNING: continuity: failed to read recent episodes: %v", err)
		return types.EmotionalAggregate{}
	}

	emotions := map[string]int{}
	valences := map[string]int{}
	var recent []types.EmotionalState
	var intensitySum float64
	n := 0

	for _, ep := range episodes {
		if ep.Emotional == nil {
			continue
		}
		n++
		intensitySum += ep.Emotional.Intensity
		if ep.Emotional.Emotion != "" {
			emotions[ep.Emotional.Emotion]++
		}
		if ep.Emotional.Valence != "" {
			valences[ep.Emotional.Valence]++
		}
		if len(recent) < maxFocusTags {
			recent = append(recent, *ep.Emotional)
		}
	}
	if n == 0 {
		return types.EmotionalAggregate{}
	}

	dominant, count := maxEntry(emotions)
	valence, _ := maxEntry(valences)

	return types.EmotionalAggregate{
		DominantEmotion: dominant,
		Valence:         valence,
		Intensity:       intensitySum / float64(n),
		Confidence:      float64(count) / float64(n),
		Recent:          recent,
	}
}

// recentActions keeps the ten most important episodes of the last day.
func (m *Manager) recentActions(ctx context.Context) []types.RecentAction {
	episodes, err := m.episodic.GetRecent(ctx, storage.RecentQuery{Limit: 50, HoursBack: 24})
	if err != nil {
		log.Printf("WARNING: continuity: failed to read recent actions: %v", err)
		return nil
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].Importance > episodes[j].Importance
	})
	if len(episodes) > maxRecentActions {
		episodes = episodes[:maxRecentActions]
	}

	actions := make([]types.RecentAction, len(episodes))
	for i, ep := range episodes {
		actions[i] = types.RecentAction{
			EpisodeID:  ep.ID,
			ActionType: ep.ActionType,
			Timestamp:  ep.Timestamp,
			Importance: ep.Importance,
			Success:    ep.Succeeded(),
			Summary:    stringField(ep.ActionDetails, "summary"),
		}
	}
	return actions
}

func (m *Manager) learnedPatterns(ctx context.Context, focus []string) []types.LearnedPattern {
	query := "recently learned behavioral patterns"
	if len(focus) > 0 {
		query = strings.Join(focus, " ")
	}

	hits, err := m.semantic.Search(ctx, query, maxLearnedPatterns)
	if err != nil {
		log.Printf("WARNING: continuity: failed to query learned patterns: %v", err)
		return nil
	}

	patterns := make([]types.LearnedPattern, len(hits))
	for i, h := range hits {
		patterns[i] = types.LearnedPattern{
			PatternID:   h.ID,
			Description: h.Content,
			Confidence:  h.Confidence,
			Metadata:    h.Metadata,
		}
	}
	return patterns
}

// --- derived scores ---

// confidenceScore averages working-memory fullness, recent episodic
// activity and accumulated knowledge volume.
func (m *Manager) confidenceScore(ctx context.Context, state *types.ConsciousnessState) float64 {
	wmScore := 0.3
	switch {
	case state.WorkingMemory.TotalItems > 10:
		wmScore = 0.8
	case state.WorkingMemory.TotalItems > 5:
		wmScore = 0.6
	}

	episodeScore := clampRatio(len(state.RecentActions), 5)

	knowledgeScore := 0.0
	if stats, err := m.semantic.KnowledgeStats(ctx); err == nil {
		knowledgeScore = clampRatio(stats.TotalItems, 100)
	} else {
		log.Printf("WARNING: continuity: failed to read knowledge stats: %v", err)
	}

	return (wmScore + episodeScore + knowledgeScore) / 3
}

func (m *Manager) memoryIntegrity(ctx context.Context) float64 {
	if m.health == nil {
		return health.Healthy
	}
	return m.health.Overall(ctx)
}

func contextCompleteness(ac types.ActiveContextSummary) float64 {
	items := clampRatio(ac.TotalItems, maxSummaryItems)
	entities := clampRatio(len(ac.KeyEntities), maxKeyEntities)
	topics := clampRatio(len(ac.ActiveTopics), maxActiveTopics)
	return (items + entities + topics) / 3
}

// --- restoration sub-steps ---

func (m *Manager) restoreWorkingContext(ctx context.Context, state *types.ConsciousnessState, bridge *types.GapBridge, summary *RestorationSummary) {
	data := map[string]any{
		"action_type":     "consciousness_restoration",
		"summary":         fmt.Sprintf("restored consciousness after %s gap (%.1fh)", bridge.GapType, bridge.GapDuration.Hours()),
		"previous_state":  state.StateID,
		"gap_type":        string(bridge.GapType),
		"bridge_quality":  bridge.QualityScore,
		"current_focus":   state.CurrentFocus,
		"timeline_events": len(bridge.TimelineEvents),
	}

	if _, err := m.working.AddContext(ctx, data, []string{"consciousness_restoration", "continuity", "bridge"}, m.sessionID); err != nil {
		log.Printf("WARNING: continuity: failed to restore context item: %v", err)
		return
	}
	summary.ContextItemsRestored++
}

func (m *Manager) reactivatePendingTasks(ctx context.Context, state *types.ConsciousnessState, summary *RestorationSummary) {
	for _, task := range state.PendingTasks {
		data := map[string]any{
			"action_type": "pending_task",
			"task_id":     task.TaskID,
			"summary":     task.Description,
			"priority":    task.Priority,
			"origin":      task.IdentifiedFrom,
		}
		if _, err := m.working.AddContext(ctx, data, []string{"pending_task", "reactivated", "continuity"}, m.sessionID); err != nil {
			log.Printf("WARNING: continuity: failed to reactivate task %s: %v", task.TaskID, err)
			continue
		}
		summary.TasksReactivated++
	}
}

// integratePatterns re-queries each saved pattern and carries over only
// those still relevant. Stale patterns are dropped silently.
func (m *Manager) integratePatterns(ctx context.Context, state *types.ConsciousnessState, summary *RestorationSummary) {
	for _, p := range state.LearnedPatterns {
		hits, err := m.semantic.Search(ctx, p.Description, 1)
		if err != nil {
			log.Printf("WARNING: continuity: pattern relevance query failed: %v", err)
			continue
		}
		if len(hits) == 0 {
			continue
		}
		relevance := hits[0].Similarity * 0.8
		if relevance <= patternRelevanceFloor {
			continue
		}

		data := map[string]any{
			"action_type": "learned_pattern",
			"pattern_id":  hits[0].ID,
			"summary":     p.Description,
			"relevance":   relevance,
		}
		if _, err := m.working.AddContext(ctx, data, []string{"learned_pattern", "continuity"}, m.sessionID); err != nil {
			log.Printf("WARNING: continuity: failed to integrate pattern %s: %v", p.PatternID, err)
			continue
		}
		summary.PatternsIntegrated++
	}
}

func (m *Manager) recordEmotionalContinuity(ctx context.Context, bridge *types.GapBridge, summary *RestorationSummary) {
	tr := bridge.EmotionalTransition
	data := map[string]any{
		"action_type":  "emotional_continuity",
		"summary":      fmt.Sprintf("emotional state carried across gap: %s -> %s", tr.FromEmotion, tr.ToEmotion),
		"emotion":      tr.ToEmotion,
		"valence":      tr.ToValence,
		"intensity":    tr.ToIntensity,
		"confidence":   tr.Confidence,
		"from_emotion": tr.FromEmotion,
	}
	if _, err := m.working.AddContext(ctx, data, []string{"emotional_continuity", "continuity"}, m.sessionID); err != nil {
		log.Printf("WARNING: continuity: failed to record emotional continuity: %v", err)
		return
	}
	summary.ContextItemsRestored++
}

// integrityScore averages context preservation, temporal coherence,
// bridge quality and overall store health.
func (m *Manager) integrityScore(ctx context.Context, gap time.Duration, bridge *types.GapBridge, summary *RestorationSummary) float64 {
	preservation := 0.0
	if summary.ContextItemsRestored > 0 {
		preservation = 1.0
	}

	coherence := types.Clamp01(1 - gap.Hours()/24)

	systemHealth := health.Healthy
	if m.health != nil {
		systemHealth = m.health.Overall(ctx)
	}

	return (preservation + coherence + bridge.QualityScore + systemHealth) / 4
}

// logRestoration writes the restoration episode: the one durable trace
// that a continuity event happened.
func (m *Manager) logRestoration(ctx context.Context, state *types.ConsciousnessState, bridge *types.GapBridge, summary *RestorationSummary) {
	ep := &types.Episode{
		SessionID:  m.sessionID,
		ActionType: "consciousness_restoration",
		ActionDetails: map[string]any{
			"previous_state": state.StateID,
			"gap_type":       string(bridge.GapType),
			"gap_hours":      bridge.GapDuration.Hours(),
			"bridge_quality": bridge.QualityScore,
		},
		Outcome: map[string]any{
			"success":             true,
			"items_restored":      summary.ContextItemsRestored,
			"tasks_reactivated":   summary.TasksReactivated,
			"patterns_integrated": summary.PatternsIntegrated,
		},
		Importance: 0.8,
		Tags:       []string{"consciousness", "restoration", "continuity", "critical"},
	}

	if _, err := m.episodic.StoreEpisode(ctx, ep); err != nil {
		log.Printf("WARNING: continuity: failed to log restoration episode: %v", err)
	}
}

// --- helpers ---

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func clampRatio(n, denom int) float64 {
	return types.Clamp01(float64(n) / float64(denom))
}

// topTags returns the most frequent tags across items, ties broken
// alphabetically.
func topTags(items []storage.ContextItem, limit int) []string {
	counts := map[string]int{}
	for _, item := range items {
		for _, tag := range item.Tags {
			counts[tag]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}

func sortedBounded(set map[string]bool, limit int) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func maxEntry(counts map[string]int) (string, int) {
	best, bestCount := "", 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && best != "" && k < best) {
			best, bestCount = k, n
		}
	}
	return best, bestCount
}
