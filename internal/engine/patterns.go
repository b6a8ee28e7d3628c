package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scrypster/continuum/pkg/types"
)

// The extractors below are pure functions over an episode batch. Each
// detects one kind of regularity and emits zero or more patterns; the
// engine filters the union by confidence afterwards.

// byActionType groups episodes by action type, skipping groups smaller
// than minEpisodes.
func byActionType(episodes []*types.Episode, minEpisodes int) map[string][]*types.Episode {
	groups := map[string][]*types.Episode{}
	for _, ep := range episodes {
		groups[ep.ActionType] = append(groups[ep.ActionType], ep)
	}
	for at, group := range groups {
		if len(group) < minEpisodes {
			delete(groups, at)
		}
	}
	return groups
}

func episodeIDs(episodes []*types.Episode) []string {
	ids := make([]string, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.ID
	}
	return ids
}

// extractActivityPatterns emits one pattern per distinct action type.
// Unlike the other extractors, a single occurrence is enough: the
// evidence floor applies to correlational patterns, not to the activity
// inventory. Confidence grows with repetition and saturates at 0.9:
// five occurrences in one batch is treated as maximal evidence of a
// habit.
func extractActivityPatterns(episodes []*types.Episode) []types.Pattern {
	groups := byActionType(episodes, 1)

	patterns := make([]types.Pattern, 0, len(groups))
	for _, at := range sortedKeys(groups) {
		group := groups[at]
		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternActivity,
			Description:   fmt.Sprintf("frequently engages in %s (%d times recently)", at, len(group)),
			Confidence:    math.Min(0.9, float64(len(group))/5.0),
			EvidenceCount: len(group),
			EpisodeIDs:    episodeIDs(group),
			Tags:          []string{at, "behavior"},
			Metadata:      map[string]any{"action_type": at, "occurrences": len(group)},
		})
	}
	return patterns
}

// extractSuccessPatterns detects per-action success rates. At least one
// success is required: an all-failure group is not a success pattern.
func extractSuccessPatterns(episodes []*types.Episode, minEpisodes int) []types.Pattern {
	groups := byActionType(episodes, minEpisodes)

	var patterns []types.Pattern
	for _, at := range sortedKeys(groups) {
		group := groups[at]
		successes := 0
		for _, ep := range group {
			if ep.Succeeded() {
				successes++
			}
		}
		if successes == 0 {
			continue
		}

		rate := float64(successes) / float64(len(group))
		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternActionSuccess,
			Description:   fmt.Sprintf("%s succeeds %.0f%% of the time (%d of %d)", at, rate*100, successes, len(group)),
			Confidence:    rate,
			EvidenceCount: len(group),
			EpisodeIDs:    episodeIDs(group),
			Tags:          []string{at, "success_rate"},
			Metadata:      map[string]any{"action_type": at, "success_rate": rate, "successes": successes},
		})
	}
	return patterns
}

// extractContextPatterns finds context keys shared by every episode of an
// action type. A stable shared context is a strong signal, hence the
// fixed 0.8 confidence.
func extractContextPatterns(episodes []*types.Episode, minEpisodes int) []types.Pattern {
	groups := byActionType(episodes, minEpisodes)

	var patterns []types.Pattern
	for _, at := range sortedKeys(groups) {
		group := groups[at]

		common := map[string]bool{}
		for k := range group[0].ContextState {
			common[k] = true
		}
		for _, ep := range group[1:] {
			for k := range common {
				if _, ok := ep.ContextState[k]; !ok {
					delete(common, k)
				}
			}
		}
		if len(common) == 0 {
			continue
		}

		keys := make([]string, 0, len(common))
		for k := range common {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternContext,
			Description:   fmt.Sprintf("%s consistently happens with context: %s", at, strings.Join(keys, ", ")),
			Confidence:    0.8,
			EvidenceCount: len(group),
			EpisodeIDs:    episodeIDs(group),
			Tags:          []string{at, "context"},
			Metadata:      map[string]any{"action_type": at, "shared_keys": keys},
		})
	}
	return patterns
}

// outcomeSignatureKeys is the number of context keys used to group
// episodes for outcome prediction.
const outcomeSignatureKeys = 3

// extractOutcomePredictions groups episodes by a context signature (the
// values of the first three context keys, lexicographically) and emits a
// prediction when outcomes are consistent: mostly-success (rate >= 0.8)
// or mostly-failure (rate <= 0.2). Confidence scales with distance from
// a coin flip.
func extractOutcomePredictions(episodes []*types.Episode, minEpisodes int) []types.Pattern {
	groups := map[string][]*types.Episode{}
	for _, ep := range episodes {
		sig := contextSignature(ep.ContextState)
		if sig == "" {
			continue
		}
		groups[sig] = append(groups[sig], ep)
	}

	var patterns []types.Pattern
	for _, sig := range sortedKeys(groups) {
		group := groups[sig]
		if len(group) < minEpisodes {
			continue
		}

		successes := 0
		for _, ep := range group {
			if ep.Succeeded() {
				successes++
			}
		}
		rate := float64(successes) / float64(len(group))
		if rate < 0.8 && rate > 0.2 {
			continue
		}

		predicted := rate >= 0.8
		outcome := "success"
		if !predicted {
			outcome = "failure"
		}

		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternOutcomePrediction,
			Description:   fmt.Sprintf("context [%s] predicts %s (%.0f%% over %d episodes)", sig, outcome, rate*100, len(group)),
			Confidence:    math.Abs(rate-0.5) * 2,
			EvidenceCount: len(group),
			EpisodeIDs:    episodeIDs(group),
			Tags:          []string{"prediction", outcome},
			Metadata:      map[string]any{"context_signature": sig, "predicted_success": predicted, "observed_rate": rate},
		})
	}
	return patterns
}

// contextSignature builds a deterministic signature from the values of
// the lexicographically first context keys.
func contextSignature(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > outcomeSignatureKeys {
		keys = keys[:outcomeSignatureKeys]
	}

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, ctx[k])
	}
	return strings.Join(parts, " ")
}

// extractEmotionalPatterns emits the dominant emotion and, when the
// valence distribution is lopsided (>70% one way), a valence trend
// pattern tagged with the dominant valence so later contradictions can
// be detected.
func extractEmotionalPatterns(episodes []*types.Episode, minEpisodes int) []types.Pattern {
	var withEmotion []*types.Episode
	emotions := map[string]int{}
	valences := map[string]int{}

	for _, ep := range episodes {
		if ep.Emotional == nil {
			continue
		}
		withEmotion = append(withEmotion, ep)
		if ep.Emotional.Emotion != "" {
			emotions[ep.Emotional.Emotion]++
		}
		if ep.Emotional.Valence != "" {
			valences[ep.Emotional.Valence]++
		}
	}
	if len(withEmotion) < minEpisodes {
		return nil
	}

	var patterns []types.Pattern

	if dominant, count := maxEntry(emotions); dominant != "" {
		ratio := float64(count) / float64(len(withEmotion))
		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternEmotional,
			Description:   fmt.Sprintf("dominant emotional state is %s (%.0f%% of emotional episodes)", dominant, ratio*100),
			Confidence:    ratio,
			EvidenceCount: len(withEmotion),
			EpisodeIDs:    episodeIDs(withEmotion),
			Tags:          []string{"emotional", dominant},
			Metadata:      map[string]any{"emotion": dominant, "ratio": ratio},
		})
	}

	for _, valence := range []string{types.ValencePositive, types.ValenceNegative} {
		ratio := float64(valences[valence]) / float64(len(withEmotion))
		if ratio <= 0.7 {
			continue
		}
		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternEmotionalValence,
			Description:   fmt.Sprintf("experiences trend %s (%.0f%% of emotional episodes)", valence, ratio*100),
			Confidence:    ratio,
			EvidenceCount: len(withEmotion),
			EpisodeIDs:    episodeIDs(withEmotion),
			Tags:          []string{"emotional", valence},
			Metadata:      map[string]any{"valence": valence, "ratio": ratio},
		})
	}

	return patterns
}

// extractCollaborationPatterns detects successful work with known
// collaborators. Two successes are the floor; confidence is the success
// rate across co-mentioned episodes.
func extractCollaborationPatterns(episodes []*types.Episode, collaborators []string) []types.Pattern {
	var patterns []types.Pattern

	for _, name := range collaborators {
		var mentioned []*types.Episode
		successes := 0
		for _, ep := range episodes {
			if !mentionsCollaborator(ep, name) {
				continue
			}
			mentioned = append(mentioned, ep)
			if ep.Succeeded() {
				successes++
			}
		}
		if successes < 2 {
			continue
		}

		rate := float64(successes) / float64(len(mentioned))
		patterns = append(patterns, types.Pattern{
			Kind:          types.PatternCollaboration,
			Description:   fmt.Sprintf("collaboration with %s succeeds %.0f%% of the time (%d episodes)", name, rate*100, len(mentioned)),
			Confidence:    rate,
			EvidenceCount: len(mentioned),
			EpisodeIDs:    episodeIDs(mentioned),
			Tags:          []string{"collaboration", name},
			Metadata:      map[string]any{"collaborator": name, "success_rate": rate},
		})
	}
	return patterns
}

// mentionsCollaborator looks for the collaborator's name in tags and in
// string values of the action details and context state.
func mentionsCollaborator(ep *types.Episode, name string) bool {
	lname := strings.ToLower(name)
	for _, t := range ep.Tags {
		if strings.ToLower(t) == lname {
			return true
		}
	}
	for _, m := range []map[string]any{ep.ActionDetails, ep.ContextState} {
		for _, v := range m {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lname) {
				return true
			}
		}
	}
	return false
}

// extractTemporalPatterns finds the peak activity hour. A pattern is
// emitted only when the peak hour itself holds enough episodes and more
// than 30% of the batch concentrates in it.
func extractTemporalPatterns(episodes []*types.Episode, minEpisodes int) []types.Pattern {
	if len(episodes) == 0 {
		return nil
	}

	hours := map[int][]*types.Episode{}
	for _, ep := range episodes {
		h := ep.Timestamp.Hour()
		hours[h] = append(hours[h], ep)
	}

	peakHour, peak := -1, 0
	for h, group := range hours {
		if len(group) > peak || (len(group) == peak && h < peakHour) {
			peakHour, peak = h, len(group)
		}
	}
	if peak < minEpisodes {
		return nil
	}

	concentration := float64(peak) / float64(len(episodes))
	if concentration <= 0.3 {
		return nil
	}

	return []types.Pattern{{
		Kind:          types.PatternTemporal,
		Description:   fmt.Sprintf("most active around %02d:00 (%.0f%% of recent activity)", peakHour, concentration*100),
		Confidence:    concentration,
		EvidenceCount: peak,
		EpisodeIDs:    episodeIDs(hours[peakHour]),
		Tags:          []string{"temporal", "rhythm"},
		Metadata:      map[string]any{"peak_hour": peakHour, "concentration": concentration},
	}}
}

func maxEntry(counts map[string]int) (string, int) {
	best, bestCount := "", 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best, bestCount
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
