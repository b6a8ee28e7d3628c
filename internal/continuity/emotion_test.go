package continuity

import (
	"math"
	"testing"
	"time"

	"github.com/scrypster/continuum/pkg/types"
)

func TestEmotionalTransitionShortGap(t *testing.T) {
	from := types.EmotionalAggregate{DominantEmotion: "curious", Valence: "positive", Intensity: 0.8}

	tr := modelEmotionalTransition(from, 20*time.Minute)

	if tr.ToEmotion != "curious" || tr.ToValence != "positive" {
		t.Errorf("short gap must preserve the state: %+v", tr)
	}
	if want := 0.8 * 0.9; math.Abs(tr.ToIntensity-want) > 1e-9 {
		t.Errorf("intensity = %f, want %f", tr.ToIntensity, want)
	}
}

func TestEmotionalTransitionIntensityFloor(t *testing.T) {
	from := types.EmotionalAggregate{DominantEmotion: "calm", Valence: "neutral", Intensity: 0.05}

	tr := modelEmotionalTransition(from, 10*time.Minute)
	if tr.ToIntensity != 0.1 {
		t.Errorf("intensity = %f, want floor 0.1", tr.ToIntensity)
	}
}

func TestEmotionalTransitionMediumGap(t *testing.T) {
	from := types.EmotionalAggregate{DominantEmotion: "curious", Valence: "positive", Intensity: 0.9}

	tr := modelEmotionalTransition(from, 3*time.Hour)

	if tr.ToEmotion != "curious" {
		t.Errorf("most emotions survive a medium gap: %+v", tr)
	}
	if tr.ToValence != types.ValenceNeutral || tr.ToIntensity != 0.5 {
		t.Errorf("medium gap settles toward neutral: %+v", tr)
	}
}

func TestEmotionalTransitionResidualEmotionsFade(t *testing.T) {
	for _, emotion := range []string{"stressed", "frustrated"} {
		from := types.EmotionalAggregate{DominantEmotion: emotion, Valence: "negative", Intensity: 0.9}
		tr := modelEmotionalTransition(from, 3*time.Hour)
		if tr.ToEmotion != "neutral" {
			t.Errorf("%s should fade across a medium gap, got %s", emotion, tr.ToEmotion)
		}
	}
}

func TestEmotionalTransitionLongGap(t *testing.T) {
	from := types.EmotionalAggregate{DominantEmotion: "excited", Valence: "positive", Intensity: 1.0}

	tr := modelEmotionalTransition(from, 48*time.Hour)

	if tr.ToEmotion != "neutral" || tr.ToValence != types.ValenceNeutral || tr.ToIntensity != 0.4 {
		t.Errorf("long gap wakes up neutral: %+v", tr)
	}
	if tr.Confidence != 0 {
		t.Errorf("confidence = %f, want 0 after two days", tr.Confidence)
	}
}

func TestEmotionalTransitionConfidenceDecay(t *testing.T) {
	tr := modelEmotionalTransition(types.EmotionalAggregate{}, 12*time.Hour)
	if want := 0.7 - 0.5; math.Abs(tr.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f", tr.Confidence, want)
	}
}

func TestEmotionalTransitionEmptyAggregate(t *testing.T) {
	tr := modelEmotionalTransition(types.EmotionalAggregate{}, 10*time.Minute)
	if tr.ToEmotion != "neutral" || tr.ToValence != types.ValenceNeutral {
		t.Errorf("empty aggregate must default to neutral: %+v", tr)
	}
}
