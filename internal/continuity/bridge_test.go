package continuity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

func TestBridgeQualityArithmetic(t *testing.T) {
	bridge := &types.GapBridge{
		ContextItems: []types.HistoricalContext{{}, {}},
		RelevantPatterns: []types.AppliedPattern{
			{}, {}, {},
		},
		EmotionalTransition: types.EmotionalTransition{Confidence: 0.6},
	}

	// Empty timeline contributes 0.6; two contexts of five, full pattern
	// quota.
	assert.InDelta(t, (0.4+1.0+0.6+0.6)/4, bridgeQuality(bridge), 1e-9)

	bridge.TimelineEvents = []types.TimelineEvent{{}}
	assert.InDelta(t, (0.4+1.0+0.6+0.8)/4, bridgeQuality(bridge), 1e-9)
}

func TestBridgeQualitySectionsAreCapped(t *testing.T) {
	bridge := &types.GapBridge{
		EmotionalTransition: types.EmotionalTransition{Confidence: 1.0},
	}
	for i := 0; i < 20; i++ {
		bridge.ContextItems = append(bridge.ContextItems, types.HistoricalContext{})
		bridge.RelevantPatterns = append(bridge.RelevantPatterns, types.AppliedPattern{})
	}
	bridge.TimelineEvents = []types.TimelineEvent{{}}

	// Every section saturates at 1.0 except the timeline bonus.
	assert.InDelta(t, (1.0+1.0+1.0+0.8)/4, bridgeQuality(bridge), 1e-9)
}

func TestBuildBridgeSections(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	saved := savedState(now.Add(-6 * time.Hour))

	episodic := &fakeEpisodic{
		inRange: []*types.Episode{
			{ID: "gap-1", ActionType: "deploy", Timestamp: now.Add(-3 * time.Hour), Importance: 0.6},
			{ID: "gap-2", ActionType: "review", Timestamp: now.Add(-2 * time.Hour), Importance: 0.4},
		},
	}
	semantic := &fakeSemantic{
		hits: []storage.SemanticHit{
			{ID: "k-1", Content: "analysis usually succeeds", Similarity: 0.9, Confidence: 0.85},
		},
	}

	m := newTestManager(episodic, semantic, &fakeWorking{}, &fakeStates{}, now)
	bridge := m.buildBridge(context.Background(), saved, 6*time.Hour)

	require.Equal(t, types.GapLong, bridge.GapType)
	require.Len(t, bridge.TimelineEvents, 2)
	assert.Equal(t, "gap-1", bridge.TimelineEvents[0].EpisodeID)

	require.Len(t, bridge.ContextItems, 1)
	assert.InDelta(t, 0.9*0.8, bridge.ContextItems[0].Relevance, 1e-9)

	require.Len(t, bridge.RelevantPatterns, 1)
	assert.Equal(t, string(types.GapLong), bridge.RelevantPatterns[0].ApplicationContext)

	// Six hours is inside the medium emotional window but a long gap for
	// classification; the transition settles toward neutral.
	assert.Equal(t, types.ValenceNeutral, bridge.EmotionalTransition.ToValence)
	assert.NotEmpty(t, bridge.Predictions)
	assert.Greater(t, bridge.QualityScore, 0.0)
}

func TestBuildBridgeDegradesOnStoreFailures(t *testing.T) {
	now := time.Now()
	saved := savedState(now.Add(-time.Hour))

	episodic := &fakeEpisodic{rangeErr: assert.AnError}
	semantic := &fakeSemantic{searchErr: assert.AnError}

	m := newTestManager(episodic, semantic, &fakeWorking{}, &fakeStates{}, now)
	bridge := m.buildBridge(context.Background(), saved, time.Hour)

	assert.Empty(t, bridge.TimelineEvents)
	assert.Empty(t, bridge.ContextItems)
	assert.Empty(t, bridge.RelevantPatterns)
	// The transition and quality are computed regardless.
	assert.Equal(t, types.ValenceNeutral, bridge.EmotionalTransition.ToValence)
	assert.Greater(t, bridge.QualityScore, 0.0)
}
