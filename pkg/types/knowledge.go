package types

import (
	"fmt"
	"strings"
	"time"
)

// KnowledgeType categorizes semantic knowledge items.
type KnowledgeType string

// Valid knowledge types.
const (
	KnowledgePattern      KnowledgeType = "pattern"
	KnowledgeConcept      KnowledgeType = "concept"
	KnowledgeRelationship KnowledgeType = "relationship"
	KnowledgeFact         KnowledgeType = "fact"
	KnowledgeSkill        KnowledgeType = "skill"
)

// ValidKnowledgeTypes lists all accepted knowledge types.
var ValidKnowledgeTypes = []KnowledgeType{
	KnowledgePattern,
	KnowledgeConcept,
	KnowledgeRelationship,
	KnowledgeFact,
	KnowledgeSkill,
}

// IsValidKnowledgeType reports whether t is one of the accepted types.
func IsValidKnowledgeType(t KnowledgeType) bool {
	for _, v := range ValidKnowledgeTypes {
		if t == v {
			return true
		}
	}
	return false
}

// KnowledgeItem is a durable piece of semantic knowledge distilled from
// one or more episodes by the consolidation engine.
type KnowledgeItem struct {
	// ID is a UUID assigned by the store on first write. Reconciliation
	// UPDATE operations reuse the ID of the item they supersede.
	ID string `json:"id"`

	// Type is the knowledge category.
	Type KnowledgeType `json:"knowledge_type"`

	// Content is the human-readable statement of the knowledge.
	Content string `json:"content"`

	// Confidence is the belief strength in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// SourceEpisodeIDs links back to the episodes this knowledge was
	// distilled from.
	SourceEpisodeIDs []string `json:"source_episode_ids,omitempty"`

	// Tags carry retrieval labels, including the pattern kind and, for
	// valence patterns, the dominant valence.
	Tags []string `json:"tags,omitempty"`

	// AccessCount is incremented each time the item is retrieved.
	AccessCount int `json:"access_count"`

	// Metadata carries extractor-specific fields (pattern kind, evidence
	// counts, crystallization layer, ...).
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Normalize fills defaults and clamps out-of-range values in place.
func (k *KnowledgeItem) Normalize() {
	if k.Type == "" {
		k.Type = KnowledgePattern
	}
	if k.Metadata == nil {
		k.Metadata = map[string]any{}
	}
	k.Confidence = Clamp01(k.Confidence)
}

// Validate reports whether the item satisfies the minimal invariants
// required for storage.
func (k *KnowledgeItem) Validate() error {
	if !IsValidKnowledgeType(k.Type) {
		return fmt.Errorf("invalid knowledge type %q", k.Type)
	}
	if strings.TrimSpace(k.Content) == "" {
		return fmt.Errorf("knowledge content is required")
	}
	if k.Confidence < 0 || k.Confidence > 1 {
		return fmt.Errorf("knowledge confidence %.3f out of range [0,1]", k.Confidence)
	}
	return nil
}
