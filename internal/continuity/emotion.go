package continuity

import (
	"time"

	"github.com/scrypster/continuum/pkg/types"
)

// neutralEmotion is what emotional states decay toward across long gaps.
const neutralEmotion = "neutral"

// residualEmotions fade during a medium gap instead of carrying over;
// waking up still stressed hours later would misrepresent the downtime.
var residualEmotions = map[string]bool{
	"stress":     true,
	"stressed":   true,
	"frustrated": true,
}

// modelEmotionalTransition projects the saved emotional state across a
// downtime gap. Short gaps preserve the state with mild decay, medium
// gaps settle toward neutral while keeping the flavor of most emotions,
// and anything from eight hours on wakes up neutral. Confidence decays
// linearly with gap length in days.
func modelEmotionalTransition(from types.EmotionalAggregate, gap time.Duration) types.EmotionalTransition {
	tr := types.EmotionalTransition{
		FromEmotion:   from.DominantEmotion,
		FromValence:   from.Valence,
		FromIntensity: from.Intensity,
		Confidence:    types.Clamp01(0.7 - gap.Hours()/24),
	}

	switch {
	case gap < time.Hour:
		tr.ToEmotion = from.DominantEmotion
		tr.ToValence = from.Valence
		tr.ToIntensity = from.Intensity * 0.9
		if tr.ToIntensity < 0.1 {
			tr.ToIntensity = 0.1
		}

	case gap < 8*time.Hour:
		tr.ToEmotion = from.DominantEmotion
		if residualEmotions[from.DominantEmotion] {
			tr.ToEmotion = neutralEmotion
		}
		tr.ToValence = types.ValenceNeutral
		tr.ToIntensity = 0.5

	default:
		tr.ToEmotion = neutralEmotion
		tr.ToValence = types.ValenceNeutral
		tr.ToIntensity = 0.4
	}

	if tr.ToEmotion == "" {
		tr.ToEmotion = neutralEmotion
	}
	if tr.ToValence == "" {
		tr.ToValence = types.ValenceNeutral
	}
	return tr
}
