package continuity

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

func newTestManager(episodic *fakeEpisodic, semantic *fakeSemantic, working *fakeWorking, states *fakeStates, now time.Time) *Manager {
	return New(episodic, semantic, working, states, nil, defaultContinuityConfig(),
		"agent-1", "session-1", WithClock(func() time.Time { return now }))
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %f, want %f", name, got, want)
	}
}

func TestSaveStateCapturesSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	working := &fakeWorking{
		items: []storage.ContextItem{
			{
				Key:        "a",
				Timestamp:  now.Add(-time.Minute),
				Data:       map[string]any{"action_type": "analysis", "summary": "TODO: finish the report", "entity": "report"},
				Tags:       []string{"analysis", "report"},
				Importance: 0.9,
			},
			{
				Key:       "b",
				Timestamp: now.Add(-2 * time.Minute),
				Data:      map[string]any{"action_type": "chat", "summary": "talked things over"},
				Tags:      []string{"chat"},
			},
		},
		stats: &storage.ContextStats{TotalItems: 12, TopTags: []string{"analysis"}},
	}

	episodic := &fakeEpisodic{}
	for i := 0; i < 3; i++ {
		episodic.recent = append(episodic.recent, &types.Episode{
			ID:         "ep",
			ActionType: "analysis",
			Timestamp:  now.Add(-time.Duration(i) * time.Minute),
			Importance: 0.6,
			Emotional:  &types.EmotionalState{Emotion: "curious", Valence: "positive", Intensity: 0.6},
		})
	}

	semantic := &fakeSemantic{
		total: 50,
		hits: []storage.SemanticHit{
			{ID: "k-1", Content: "analysis usually succeeds", Similarity: 0.9, Confidence: 0.85},
			{ID: "k-2", Content: "reports take two passes", Similarity: 0.8, Confidence: 0.7},
		},
	}
	states := &fakeStates{}

	m := newTestManager(episodic, semantic, working, states, now)

	id, err := m.SaveState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id == "" || len(states.states) != 1 {
		t.Fatalf("id = %q, saved = %d", id, len(states.states))
	}

	st := states.states[0]
	if st.SessionID != "session-1" || !st.Timestamp.Equal(now) {
		t.Errorf("header = %+v", st)
	}

	if st.ActiveContext.TotalItems != 2 || len(st.ActiveContext.Items) != 2 {
		t.Errorf("active context = %+v", st.ActiveContext)
	}
	if len(st.ActiveContext.KeyEntities) != 1 || st.ActiveContext.KeyEntities[0] != "report" {
		t.Errorf("entities = %v", st.ActiveContext.KeyEntities)
	}
	if len(st.ActiveContext.ActiveTopics) != 3 {
		t.Errorf("topics = %v", st.ActiveContext.ActiveTopics)
	}

	if st.WorkingMemory.TotalItems != 12 {
		t.Errorf("working memory = %+v", st.WorkingMemory)
	}
	if len(st.CurrentFocus) != 3 {
		t.Errorf("focus = %v", st.CurrentFocus)
	}

	if st.Emotional.DominantEmotion != "curious" || st.Emotional.Confidence != 1.0 {
		t.Errorf("emotional = %+v", st.Emotional)
	}
	approx(t, "emotional intensity", st.Emotional.Intensity, 0.6)

	if len(st.RecentActions) != 3 {
		t.Errorf("recent actions = %d", len(st.RecentActions))
	}
	if len(st.PendingTasks) != 1 || st.PendingTasks[0].IdentifiedFrom != "todo" {
		t.Errorf("pending tasks = %+v", st.PendingTasks)
	}
	if len(st.LearnedPatterns) != 2 || st.LearnedPatterns[0].PatternID != "k-1" {
		t.Errorf("learned patterns = %+v", st.LearnedPatterns)
	}

	// 12 working items -> 0.8; 3 recent actions -> 0.6; 50 knowledge
	// items -> 0.5.
	approx(t, "confidence", st.ConfidenceScore, (0.8+0.6+0.5)/3)
	approx(t, "integrity", st.MemoryIntegrity, 1.0)
	approx(t, "completeness", st.ContextCompleteness, (2.0/20+1.0/10+3.0/8)/3)
	approx(t, "coherence", st.EmotionalCoherence, st.ConfidenceScore*0.9)
	approx(t, "experiential continuity", st.ExperientialContinuity, st.MemoryIntegrity*st.ContextCompleteness)
}

func TestSaveStateDegradesWhenStoresFail(t *testing.T) {
	now := time.Now()
	working := &fakeWorking{currentErr: errors.New("redis down"), statsErr: errors.New("redis down")}
	episodic := &fakeEpisodic{recentErr: errors.New("db down")}
	semantic := &fakeSemantic{searchErr: errors.New("db down"), statsErr: errors.New("db down")}
	states := &fakeStates{}

	m := newTestManager(episodic, semantic, working, states, now)

	if _, err := m.SaveState(context.Background()); err != nil {
		t.Fatalf("capture failures must not fail the save: %v", err)
	}

	st := states.states[0]
	if st.ActiveContext.TotalItems != 0 || len(st.RecentActions) != 0 || len(st.LearnedPatterns) != 0 {
		t.Errorf("expected empty sections: %+v", st)
	}
	// Empty working memory 0.3, no episodes, no knowledge.
	approx(t, "confidence", st.ConfidenceScore, 0.3/3)
	approx(t, "completeness", st.ContextCompleteness, 0)
}

func TestSaveStatePersistFailure(t *testing.T) {
	now := time.Now()
	states := &fakeStates{saveErr: errors.New("disk full")}
	m := newTestManager(&fakeEpisodic{}, &fakeSemantic{}, &fakeWorking{}, states, now)

	if _, err := m.SaveState(context.Background()); err == nil {
		t.Fatal("expected error when the snapshot cannot be persisted")
	}
}

func TestRestoreFreshStart(t *testing.T) {
	now := time.Now()
	m := newTestManager(&fakeEpisodic{}, &fakeSemantic{}, &fakeWorking{}, &fakeStates{}, now)

	summary := m.RestoreState(context.Background(), 0)
	if !summary.FreshStart || summary.RestorationFailed {
		t.Errorf("summary = %+v", summary)
	}
	approx(t, "integrity", summary.IntegrityScore, 1.0)
}

func TestRestoreFailedStateRead(t *testing.T) {
	now := time.Now()
	states := &fakeStates{latestErr: errors.New("corrupt row")}
	m := newTestManager(&fakeEpisodic{}, &fakeSemantic{}, &fakeWorking{}, states, now)

	summary := m.RestoreState(context.Background(), 0)
	if !summary.RestorationFailed || summary.FreshStart {
		t.Errorf("summary = %+v", summary)
	}
}

func savedState(ts time.Time) *types.ConsciousnessState {
	return &types.ConsciousnessState{
		StateID:      "state-1",
		Timestamp:    ts,
		SessionID:    "session-0",
		CurrentFocus: []string{"parser", "analysis"},
		Emotional:    types.EmotionalAggregate{DominantEmotion: "curious", Valence: "positive", Intensity: 0.8},
		PendingTasks: []types.PendingTask{
			{TaskID: "t-1", Description: "todo: finish parser"},
			{TaskID: "t-2", Description: "pending: write docs"},
		},
		LearnedPatterns: []types.LearnedPattern{
			{PatternID: "k-1", Description: "analysis usually succeeds", Confidence: 0.85},
			{PatternID: "k-2", Description: "reports take two passes", Confidence: 0.7},
		},
	}
}

func TestRestoreAcrossMediumGap(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	saved := savedState(now.Add(-2 * time.Hour))

	states := &fakeStates{states: []*types.ConsciousnessState{saved}}
	episodic := &fakeEpisodic{
		inRange: []*types.Episode{{ID: "gap-1", ActionType: "deploy", Timestamp: now.Add(-time.Hour), Importance: 0.6}},
	}
	semantic := &fakeSemantic{
		hits: []storage.SemanticHit{{ID: "k-1", Content: "analysis usually succeeds", Similarity: 0.9, Confidence: 0.85}},
	}
	working := &fakeWorking{}

	m := newTestManager(episodic, semantic, working, states, now)
	summary := m.RestoreState(context.Background(), 0)

	if summary.FreshStart || summary.RestorationFailed {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.GapType != types.GapMedium || summary.GapDuration != 2*time.Hour {
		t.Errorf("gap = %s %v", summary.GapType, summary.GapDuration)
	}
	if summary.PreviousStateID != "state-1" {
		t.Errorf("previous state = %s", summary.PreviousStateID)
	}

	if summary.TimelineEvents != 1 || summary.HistoricalContexts != 1 {
		t.Errorf("bridge sections = %+v", summary)
	}

	// Both saved patterns re-query at relevance 0.9*0.8 = 0.72 > 0.6.
	if summary.PatternsIntegrated != 2 {
		t.Errorf("patterns integrated = %d", summary.PatternsIntegrated)
	}
	if summary.TasksReactivated != 2 {
		t.Errorf("tasks reactivated = %d", summary.TasksReactivated)
	}
	// Restoration item plus emotional-continuity item.
	if summary.ContextItemsRestored != 2 {
		t.Errorf("context items restored = %d", summary.ContextItemsRestored)
	}

	tr := summary.EmotionalTransition
	if tr.ToEmotion != "curious" || tr.ToValence != types.ValenceNeutral || tr.ToIntensity != 0.5 {
		t.Errorf("transition = %+v", tr)
	}
	approx(t, "transition confidence", tr.Confidence, 0.7-2.0/24)

	if len(summary.Predictions) != 3 {
		t.Fatalf("predictions = %+v", summary.Predictions)
	}
	byType := map[string]float64{}
	for _, p := range summary.Predictions {
		byType[p.Type] = p.Confidence
	}
	if byType["task_continuation"] != 0.8 || byType["focus_resumption"] != 0.7 || byType["state_review"] != 0.9 {
		t.Errorf("prediction confidences = %v", byType)
	}

	wantQuality := (1.0/5 + 1.0/3 + (0.7 - 2.0/24) + 0.8) / 4
	approx(t, "bridge quality", summary.BridgeQuality, wantQuality)

	wantIntegrity := (1.0 + (1 - 2.0/24) + wantQuality + 1.0) / 4
	approx(t, "integrity", summary.IntegrityScore, wantIntegrity)

	// First working-context write is the restoration marker.
	if len(working.added) == 0 {
		t.Fatal("no working-context writes")
	}
	first := working.added[0]
	if first.tags[0] != "consciousness_restoration" || first.sessionID != "session-1" {
		t.Errorf("restoration item = %+v", first)
	}

	// The one durable trace: a restoration episode.
	if len(episodic.stored) != 1 {
		t.Fatalf("stored episodes = %d", len(episodic.stored))
	}
	ep := episodic.stored[0]
	if ep.ActionType != "consciousness_restoration" || !ep.HasTag("critical") {
		t.Errorf("restoration episode = %+v", ep)
	}
}

func TestRestoreShortGapSkipsPredictions(t *testing.T) {
	now := time.Now()
	saved := savedState(now.Add(-10 * time.Minute))
	states := &fakeStates{states: []*types.ConsciousnessState{saved}}

	m := newTestManager(&fakeEpisodic{}, &fakeSemantic{}, &fakeWorking{}, states, now)
	summary := m.RestoreState(context.Background(), 0)

	if summary.GapType != types.GapShort {
		t.Fatalf("gap = %s", summary.GapType)
	}
	if len(summary.Predictions) != 0 {
		t.Errorf("short gaps produce no predictions: %+v", summary.Predictions)
	}
}

func TestRestorePatternIntegrationSurvivesQueryFailure(t *testing.T) {
	now := time.Now()
	saved := savedState(now.Add(-2 * time.Hour))
	states := &fakeStates{states: []*types.ConsciousnessState{saved}}

	// Fail the bridge's two lookups and the first pattern re-query.
	// The second saved pattern must still be integrated.
	semantic := &fakeSemantic{
		failSearches: 3,
		hits:         []storage.SemanticHit{{ID: "k-2", Content: "reports take two passes", Similarity: 0.9, Confidence: 0.7}},
	}
	working := &fakeWorking{}

	m := newTestManager(&fakeEpisodic{}, semantic, working, states, now)
	summary := m.RestoreState(context.Background(), 0)

	if summary.RestorationFailed {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.PatternsIntegrated != 1 {
		t.Errorf("patterns integrated = %d, want 1", summary.PatternsIntegrated)
	}
	// Two bridge lookups plus one re-query per saved pattern.
	if len(semantic.queries) != 4 {
		t.Errorf("queries = %v", semantic.queries)
	}
}

func TestRestoreDegradesWhenWorkingContextDown(t *testing.T) {
	now := time.Now()
	saved := savedState(now.Add(-time.Hour))
	states := &fakeStates{states: []*types.ConsciousnessState{saved}}
	working := &fakeWorking{addErr: errors.New("redis down")}

	m := newTestManager(&fakeEpisodic{}, &fakeSemantic{}, working, states, now)
	summary := m.RestoreState(context.Background(), 0)

	if summary.RestorationFailed {
		t.Error("a broken working context degrades, it does not fail restoration")
	}
	if summary.ContextItemsRestored != 0 || summary.TasksReactivated != 0 {
		t.Errorf("summary = %+v", summary)
	}
}
