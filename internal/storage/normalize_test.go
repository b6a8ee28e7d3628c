package storage

import (
	"testing"
)

func TestDecodeJSONMap(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantVal any
		wantLen int
	}{
		{"plain object", `{"task":"deploy"}`, "task", "deploy", 1},
		{"double encoded", `"{\"task\":\"deploy\"}"`, "task", "deploy", 1},
		{"empty", ``, "", nil, 0},
		{"null", `null`, "", nil, 0},
		{"garbage", `{{{`, "", nil, 0},
		{"array not object", `[1,2]`, "", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DecodeJSONMap([]byte(tt.raw))
			if m == nil {
				t.Fatal("DecodeJSONMap must never return nil")
			}
			if len(m) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(m), tt.wantLen)
			}
			if tt.wantKey != "" && m[tt.wantKey] != tt.wantVal {
				t.Errorf("m[%q] = %v, want %v", tt.wantKey, m[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestDecodeStringSlice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain", `["a","b"]`, []string{"a", "b"}},
		{"double encoded", `"[\"a\",\"b\"]"`, []string{"a", "b"}},
		{"garbage", `not json`, nil},
		{"empty", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeStringSlice([]byte(tt.raw))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDecodeEmotionalState(t *testing.T) {
	es := DecodeEmotionalState([]byte(`{"emotion":"Curious","valence":"positive","intensity":0.8}`))
	if es == nil {
		t.Fatal("expected emotional state, got nil")
	}
	if es.Emotion != "curious" {
		t.Errorf("expected emotion normalized to lowercase, got %q", es.Emotion)
	}
	if es.Intensity != 0.8 {
		t.Errorf("intensity = %f, want 0.8", es.Intensity)
	}

	if got := DecodeEmotionalState([]byte(`null`)); got != nil {
		t.Error("null should decode to nil")
	}
	if got := DecodeEmotionalState([]byte(`{}`)); got != nil {
		t.Error("empty state should decode to nil")
	}
	if got := DecodeEmotionalState([]byte(`broken`)); got != nil {
		t.Error("garbage should decode to nil")
	}

	// Double-encoded payloads occur in rows migrated from older schemas.
	es = DecodeEmotionalState([]byte(`"{\"emotion\":\"satisfied\",\"intensity\":0.5}"`))
	if es == nil || es.Emotion != "satisfied" {
		t.Errorf("double-encoded state not recovered: %+v", es)
	}
}

func TestEncodeJSON(t *testing.T) {
	if got := string(EncodeJSON(nil)); got != "{}" {
		t.Errorf("nil should encode to {}, got %s", got)
	}
	if got := string(EncodeJSON(map[string]any{"a": 1})); got != `{"a":1}` {
		t.Errorf("got %s", got)
	}
	// Non-serializable values degrade to the empty object.
	if got := string(EncodeJSON(map[string]any{"ch": make(chan int)})); got != "{}" {
		t.Errorf("non-serializable value should encode to {}, got %s", got)
	}
}
