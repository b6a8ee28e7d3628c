package engine

import (
	"github.com/scrypster/continuum/pkg/types"
)

// highIntensity is the intensity floor for an emotion to influence the
// importance estimate.
const highIntensity = 0.8

// actionTypeBonus adjusts the importance baseline per action category.
var actionTypeBonus = map[string]float64{
	"first_contact":    0.3,
	"breakthrough":     0.3,
	"error_resolution": 0.2,
	"learning":         0.2,
	"discovery":        0.2,
	"collaboration":    0.15,
	"creation":         0.15,
	"problem_solving":  0.1,
	"routine":          -0.1,
	"maintenance":      -0.1,
}

// EstimateImportance scores an episode when the recording path did not
// supply an importance. Baseline 0.5, adjusted by action category,
// outcome and emotional intensity, clamped to [0, 1].
func EstimateImportance(ep *types.Episode) float64 {
	score := 0.5

	score += actionTypeBonus[ep.ActionType]

	if ep.Succeeded() {
		score += 0.1
	}

	if ep.Emotional != nil && ep.Emotional.Intensity >= highIntensity {
		switch ep.Emotional.Valence {
		case types.ValencePositive:
			score += 0.15
		case types.ValenceNegative:
			score += 0.1
		}
	}

	return types.Clamp01(score)
}
