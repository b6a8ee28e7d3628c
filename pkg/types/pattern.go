package types

import "time"

// PatternKind identifies which extractor produced a pattern.
type PatternKind string

// Pattern kinds produced by the consolidation extractors.
const (
	PatternActivity          PatternKind = "activity"
	PatternActionSuccess     PatternKind = "action_success"
	PatternContext           PatternKind = "context"
	PatternOutcomePrediction PatternKind = "outcome_prediction"
	PatternEmotional         PatternKind = "emotional"
	PatternEmotionalValence  PatternKind = "emotional_valence"
	PatternCollaboration     PatternKind = "collaboration"
	PatternTemporal          PatternKind = "temporal"
	PatternMemoryCrystal     PatternKind = "memory_crystal"
)

// Pattern is an intermediate result of consolidation: a regularity
// observed across a batch of episodes, before reconciliation against
// existing semantic knowledge. Kind discriminates the variant; Metadata
// carries the kind-specific fields.
type Pattern struct {
	// Kind identifies the extractor that produced this pattern.
	Kind PatternKind `json:"kind"`

	// Description is the human-readable statement of the regularity.
	Description string `json:"description"`

	// Confidence is the extractor's belief in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// EvidenceCount is the number of episodes supporting the pattern.
	EvidenceCount int `json:"evidence_count"`

	// EpisodeIDs are the supporting episodes.
	EpisodeIDs []string `json:"episode_ids,omitempty"`

	// Tags carry retrieval labels; valence patterns include the dominant
	// valence so contradictions can be detected later.
	Tags []string `json:"tags,omitempty"`

	// Metadata carries kind-specific fields (action type, peak hour,
	// predicted outcome, crystallization layer, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasTag reports whether tag appears in the pattern's tag list.
func (p Pattern) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Knowledge converts the pattern into a storable knowledge item. The
// pattern kind is recorded both as a tag and in metadata so reconciliation
// can scope similarity searches to items of the same kind.
func (p Pattern) Knowledge(now time.Time) *KnowledgeItem {
	md := map[string]any{"pattern_kind": string(p.Kind)}
	for k, v := range p.Metadata {
		md[k] = v
	}
	md["evidence_count"] = p.EvidenceCount

	tags := make([]string, 0, len(p.Tags)+1)
	tags = append(tags, string(p.Kind))
	tags = append(tags, p.Tags...)

	return &KnowledgeItem{
		Type:             KnowledgePattern,
		Content:          p.Description,
		Confidence:       Clamp01(p.Confidence),
		SourceEpisodeIDs: p.EpisodeIDs,
		Tags:             tags,
		Metadata:         md,
		CreatedAt:        now,
	}
}
