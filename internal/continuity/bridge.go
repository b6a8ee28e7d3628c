package continuity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scrypster/continuum/pkg/types"
)

// Bridge caps.
const (
	maxHistoricalContexts = 8
	maxRelevantPatterns   = 5
	maxFocusQueryTags     = 3
)

// buildBridge assembles the transient structure spanning a downtime gap:
// what happened inside it, which historical contexts resemble the saved
// one, applicable patterns, the emotional transition and, for medium or
// longer gaps, contextual predictions. Every lookup degrades to an empty
// section on store failure.
func (m *Manager) buildBridge(ctx context.Context, state *types.ConsciousnessState, gap time.Duration) *types.GapBridge {
	bridge := &types.GapBridge{
		GapType:     ClassifyGap(gap, m.cfg),
		GapDuration: gap,
	}

	bridge.TimelineEvents = m.gapTimeline(ctx, state.Timestamp)
	bridge.ContextItems = m.similarContexts(ctx, state.CurrentFocus)
	bridge.RelevantPatterns = m.gapPatterns(ctx, bridge.GapType)
	bridge.EmotionalTransition = modelEmotionalTransition(state.Emotional, gap)
	if bridge.GapType != types.GapShort {
		bridge.Predictions = buildPredictions(state)
	}
	bridge.QualityScore = bridgeQuality(bridge)

	return bridge
}

// gapTimeline collects episodes recorded inside the gap window. An agent
// can have episodes inside its own downtime when another process shares
// the store.
func (m *Manager) gapTimeline(ctx context.Context, since time.Time) []types.TimelineEvent {
	episodes, err := m.episodic.GetRange(ctx, since, m.now())
	if err != nil {
		log.Printf("WARNING: continuity: failed to read gap timeline: %v", err)
		return nil
	}

	events := make([]types.TimelineEvent, len(episodes))
	for i, ep := range episodes {
		events[i] = types.TimelineEvent{
			EpisodeID:  ep.ID,
			ActionType: ep.ActionType,
			Timestamp:  ep.Timestamp,
			Importance: ep.Importance,
		}
	}
	return events
}

// similarContexts searches semantic memory for contexts resembling the
// saved focus. Relevance discounts raw similarity: an old match is a
// hint, not the live context.
func (m *Manager) similarContexts(ctx context.Context, focus []string) []types.HistoricalContext {
	if len(focus) == 0 {
		return nil
	}
	if len(focus) > maxFocusQueryTags {
		focus = focus[:maxFocusQueryTags]
	}

	hits, err := m.semantic.Search(ctx, strings.Join(focus, " "), maxHistoricalContexts)
	if err != nil {
		log.Printf("WARNING: continuity: similar-context search failed: %v", err)
		return nil
	}

	contexts := make([]types.HistoricalContext, len(hits))
	for i, h := range hits {
		contexts[i] = types.HistoricalContext{
			KnowledgeID: h.ID,
			Content:     h.Content,
			Similarity:  h.Similarity,
			Relevance:   h.Similarity * 0.8,
		}
	}
	return contexts
}

func (m *Manager) gapPatterns(ctx context.Context, gapType types.GapType) []types.AppliedPattern {
	query := fmt.Sprintf("behavioral patterns resuming after %s downtime", gapType)
	hits, err := m.semantic.Search(ctx, query, maxRelevantPatterns)
	if err != nil {
		log.Printf("WARNING: continuity: gap-pattern search failed: %v", err)
		return nil
	}

	patterns := make([]types.AppliedPattern, len(hits))
	for i, h := range hits {
		patterns[i] = types.AppliedPattern{
			PatternID:          h.ID,
			Description:        h.Content,
			Confidence:         h.Confidence,
			ApplicationContext: string(gapType),
		}
	}
	return patterns
}

// buildPredictions derives what the agent will likely need after a
// medium or longer gap.
func buildPredictions(state *types.ConsciousnessState) []types.ContextualPrediction {
	var preds []types.ContextualPrediction

	if len(state.PendingTasks) > 0 {
		actions := make([]string, 0, len(state.PendingTasks))
		for _, task := range state.PendingTasks {
			actions = append(actions, task.Description)
		}
		preds = append(preds, types.ContextualPrediction{
			Type:            "task_continuation",
			Description:     fmt.Sprintf("%d pending tasks likely to be resumed", len(state.PendingTasks)),
			Confidence:      0.8,
			ExpectedActions: actions,
		})
	}

	if len(state.CurrentFocus) > 0 {
		preds = append(preds, types.ContextualPrediction{
			Type:            "focus_resumption",
			Description:     fmt.Sprintf("attention likely to return to: %s", strings.Join(state.CurrentFocus, ", ")),
			Confidence:      0.7,
			ExpectedActions: state.CurrentFocus,
		})
	}

	preds = append(preds, types.ContextualPrediction{
		Type:        "state_review",
		Description: "review of the restored state before new work",
		Confidence:  0.9,
	})

	return preds
}

// bridgeQuality averages how much of each bridge section could be
// filled. A non-empty timeline is strong evidence the gap is well
// understood, so it contributes a fixed high score.
func bridgeQuality(bridge *types.GapBridge) float64 {
	timelineScore := 0.6
	if len(bridge.TimelineEvents) > 0 {
		timelineScore = 0.8
	}

	return (clampRatio(len(bridge.ContextItems), 5) +
		clampRatio(len(bridge.RelevantPatterns), 3) +
		bridge.EmotionalTransition.Confidence +
		timelineScore) / 4
}
