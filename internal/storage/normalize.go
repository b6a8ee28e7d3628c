package storage

import (
	"encoding/json"

	"github.com/scrypster/continuum/pkg/types"
)

// DecodeJSONMap parses a JSONB column value into a map. Historical rows
// sometimes hold a double-encoded payload (a JSON string containing
// JSON); one level of re-decoding is attempted before giving up. Parse
// failures yield an empty map, never an error: a malformed optional
// field must not drop the record it belongs to.
func DecodeJSONMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		if m == nil {
			return map[string]any{}
		}
		return m
	}

	// Double-encoded: the column holds a JSON string whose content is
	// the real object.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &m); err == nil && m != nil {
			return m
		}
	}

	return map[string]any{}
}

// DecodeStringSlice parses a JSON array column into a string slice,
// tolerating the same double-encoding as DecodeJSONMap. Failures yield
// an empty slice.
func DecodeStringSlice(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}

	return nil
}

// DecodeEmotionalState parses an emotional-state column. Unknown keys
// are dropped; parse failures yield nil (no emotional data).
func DecodeEmotionalState(raw []byte) *types.EmotionalState {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var es types.EmotionalState
	if err := json.Unmarshal(raw, &es); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(s), &es); err != nil {
			return nil
		}
	}

	es.Normalize()
	if es.IsZero() {
		return nil
	}
	return &es
}

// EncodeJSON marshals v for a JSONB column. Marshal failures (cyclic or
// non-serializable values) degrade to the empty object rather than
// failing the write.
func EncodeJSON(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
