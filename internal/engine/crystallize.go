package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/continuum/pkg/types"
)

// Crystallization layer names, ordered from most to least recent.
const (
	LayerImmediate = "immediate"
	LayerDaily     = "daily"
	LayerWeekly    = "weekly"
	LayerMonthly   = "monthly"
	LayerPermanent = "permanent"
)

// crystalLayers maps layer names to their lookback windows. The
// permanent layer has no bound: anything older than the monthly window
// still crystallizes there.
var crystalLayers = []struct {
	name   string
	window time.Duration
}{
	{LayerImmediate, time.Hour},
	{LayerDaily, 24 * time.Hour},
	{LayerWeekly, 168 * time.Hour},
	{LayerMonthly, 720 * time.Hour},
}

// breakthroughKeywords signal a qualitative leap worth anchoring.
var breakthroughKeywords = []string{
	"breakthrough", "discovery", "revelation", "insight", "epiphany", "realization",
}

// crystallize turns emotionally weighty episodes into memory crystals:
// knowledge items anchored to a temporal layer that preserve the felt
// significance of the moment across consolidation cycles. emotionalThreshold
// is the minimum importance for an episode to crystallize.
func crystallize(episodes []*types.Episode, emotionalThreshold float64, now time.Time) []types.Pattern {
	var patterns []types.Pattern

	for _, ep := range episodes {
		if ep.Importance < emotionalThreshold {
			continue
		}

		layer := layerFor(now.Sub(ep.Timestamp))
		level := breakthroughLevel(ep)

		resonance := ep.Importance
		if ep.Emotional != nil && ep.Emotional.Intensity > 0 {
			resonance = (ep.Importance + ep.Emotional.Intensity) / 2
		}

		desc := fmt.Sprintf("significant moment: %s", ep.ActionType)
		if level > 0 {
			desc = fmt.Sprintf("breakthrough moment: %s", ep.ActionType)
		}

		anchors := append([]string{ep.ActionType}, ep.Tags...)

		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternMemoryCrystal,
			Description:   desc,
			Confidence:    ep.Importance,
			EvidenceCount: 1,
			EpisodeIDs:    []string{ep.ID},
			Tags:          append([]string{"crystal", layer}, ep.Tags...),
			Metadata: map[string]any{
				"layer":               layer,
				"emotional_resonance": resonance,
				"breakthrough_level":  level,
				"continuity_anchors":  anchors,
				"crystallized_from":   ep.Timestamp,
			},
		})
	}
	return patterns
}

// layerFor places an episode age into its crystallization layer.
func layerFor(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	for _, l := range crystalLayers {
		if age <= l.window {
			return l.name
		}
	}
	return LayerPermanent
}

// breakthroughLevel counts breakthrough indicators across the episode's
// textual fields.
func breakthroughLevel(ep *types.Episode) int {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(ep.ActionType))
	for _, t := range ep.Tags {
		sb.WriteByte(' ')
		sb.WriteString(strings.ToLower(t))
	}
	for _, m := range []map[string]any{ep.ActionDetails, ep.Outcome} {
		for _, v := range m {
			if s, ok := v.(string); ok {
				sb.WriteByte(' ')
				sb.WriteString(strings.ToLower(s))
			}
		}
	}

	text := sb.String()
	level := 0
	for _, kw := range breakthroughKeywords {
		if strings.Contains(text, kw) {
			level++
		}
	}
	return level
}
