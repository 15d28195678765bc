package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sentient.health/symptom-ai/internal/llm"
	"sentient.health/symptom-ai/internal/store"
)

// fakeProvider answers completions and streams from canned functions.
type fakeProvider struct {
	mu       sync.Mutex
	complete func(messages []llm.Message) (string, error)
	stream   func(ctx context.Context, messages []llm.Message, onDelta llm.DeltaFunc) error
	calls    [][]llm.Message
}

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, jsonOutput bool) (string, error) {
	f.record(messages)
	return f.complete(messages)
}

func (f *fakeProvider) Stream(ctx context.Context, messages []llm.Message, onDelta llm.DeltaFunc) error {
	f.record(messages)
	return f.stream(ctx, messages, onDelta)
}

func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) record(messages []llm.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
}

func (f *fakeProvider) lastCall() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func analysisJSON(t *testing.T, diagnoses ...store.Diagnosis) string {
	t.Helper()
	b, err := json.Marshal(store.AnalysisResult{
		Disclaimer:            "I am not a doctor.",
		SeverityAssessment:    store.SeverityAssessment{TriageLevel: store.TriageDoctorVisit, Reasoning: "persistent"},
		DifferentialDiagnosis: diagnoses,
		CausalPathways:        []store.CausalPathway{{Symptom: "fever", Condition: "Flu", Explanation: "typical"}},
		Reasoning:             store.Reasoning{PatientFriendly: "See [Flu](https://example.org/flu)", Professional: "Influenza"},
	})
	require.NoError(t, err)
	return string(b)
}

func staticAnalysis(t *testing.T) *fakeProvider {
	content := analysisJSON(t,
		store.Diagnosis{Condition: "Cold", UncertaintyScore: 0.4},
		store.Diagnosis{Condition: "Flu", UncertaintyScore: 0.8},
	)
	return &fakeProvider{complete: func([]llm.Message) (string, error) { return content, nil }}
}

func streamDeltas(deltas ...string) func(context.Context, []llm.Message, llm.DeltaFunc) error {
	return func(_ context.Context, _ []llm.Message, onDelta llm.DeltaFunc) error {
		for _, d := range deltas {
			onDelta(d)
		}
		return nil
	}
}

type fixture struct {
	store    *store.SQLiteStore
	provider *fakeProvider
	manager  *WorkspaceManager
}

func newFixture(t *testing.T, provider *fakeProvider) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	manager := NewWorkspaceManager(NewDiagnosisService(provider), NewChatService(provider), NewHistoryService(s))
	return &fixture{store: s, provider: provider, manager: manager}
}

func (f *fixture) user(t *testing.T, sub string) *store.User {
	t.Helper()
	u, err := f.store.UpsertUser(&store.User{ExternalID: sub, Name: sub})
	require.NoError(t, err)
	return u
}

func conditions(r *store.AnalysisResult) []string {
	var out []string
	for _, d := range r.DifferentialDiagnosis {
		out = append(out, d.Condition)
	}
	return out
}

func TestDiagnoseSortsStablyByDescendingScore(t *testing.T) {
	content := analysisJSON(t,
		store.Diagnosis{Condition: "A", UncertaintyScore: 0.3},
		store.Diagnosis{Condition: "B", UncertaintyScore: 0.9},
		store.Diagnosis{Condition: "C", UncertaintyScore: 0.3},
		store.Diagnosis{Condition: "D", UncertaintyScore: 0.5},
		store.Diagnosis{Condition: "E", UncertaintyScore: 0.3},
	)
	provider := &fakeProvider{complete: func([]llm.Message) (string, error) { return content, nil }}

	result, err := NewDiagnosisService(provider).Diagnose(context.Background(), "fever and cough", store.PatientContext{}, "English")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D", "A", "C", "E"}, conditions(result))
	assert.Equal(t, store.TriageDoctorVisit, result.SeverityAssessment.TriageLevel)
}

func TestDiagnosePrompts(t *testing.T) {
	provider := staticAnalysis(t)
	_, err := NewDiagnosisService(provider).Diagnose(context.Background(), "rash on arm",
		store.PatientContext{Medications: "ibuprofen"}, "Français")
	require.NoError(t, err)

	msgs := provider.lastCall()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "must be in **Français**")
	assert.Contains(t, msgs[0].Content, "interface AnalysisResult")
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "\"rash on arm\"")
	assert.Contains(t, msgs[1].Content, "ibuprofen")
	assert.Equal(t, 2, strings.Count(msgs[1].Content, notProvided))
}

func TestDiagnoseFailures(t *testing.T) {
	cases := map[string]struct {
		content string
		err     error
		want    string
	}{
		"empty content": {content: "  ", want: "empty response"},
		"malformed":     {content: "{not json", want: "failed to parse"},
		"transport":     {err: errors.New("connection refused"), want: "connection refused"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			provider := &fakeProvider{complete: func([]llm.Message) (string, error) { return tc.content, tc.err }}
			result, err := NewDiagnosisService(provider).Diagnose(context.Background(), "x", store.PatientContext{}, "English")
			assert.Nil(t, result)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to get diagnosis from AI")
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := NewDiagnosisService(staticAnalysis(t)).Diagnose(context.Background(), "   ", store.PatientContext{}, "English")
	assert.ErrorIs(t, err, ErrEmptySymptoms)
}

func TestAnalyzeUpstream500LeavesNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := llm.NewFireworksClient(server.URL, "k", "m")
	f := newFixture(t, &fakeProvider{})
	f.manager = NewWorkspaceManager(NewDiagnosisService(client), NewChatService(client), NewHistoryService(f.store))
	ws := f.manager.Get(f.user(t, "u1").ID)

	snap, err := ws.Analyze(context.Background(), "chest pain", store.PatientContext{}, "en")
	require.Error(t, err)
	assert.Nil(t, snap.Result)
	assert.NotEmpty(t, snap.Error)
	assert.Contains(t, snap.Error, "status 500")
	assert.False(t, snap.Loading)
	assert.Nil(t, ws.Snapshot().Result)
}

func TestAnalyzeRejectsUnsupportedLanguage(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	ws := f.manager.Get(f.user(t, "u1").ID)

	_, err := ws.Analyze(context.Background(), "x", store.PatientContext{}, "xx")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestSaveTwiceDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	u := f.user(t, "u1")
	ws := f.manager.Get(u.ID)

	_, _, err := ws.Save()
	assert.ErrorIs(t, err, ErrNothingToSave)

	_, err = ws.Analyze(context.Background(), "fever", store.PatientContext{}, "en")
	require.NoError(t, err)

	first, created, err := ws.Save()
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := ws.Save()
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	list, err := f.manager.History().List(u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.True(t, ws.Snapshot().Saved)
}

func TestDeleteRemovesExactlyOneEntry(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	u := f.user(t, "u1")
	ws := f.manager.Get(u.ID)

	var ids []int64
	for _, s := range []string{"one", "two", "three"} {
		_, err := ws.Analyze(context.Background(), s, store.PatientContext{}, "en")
		require.NoError(t, err)
		saved, _, err := ws.Save()
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}

	history := f.manager.History()
	require.NoError(t, history.Delete(u.ID, ids[1]))
	assert.ErrorIs(t, history.Delete(u.ID, ids[1]), ErrNotFound)

	list, err := history.List(u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Symptoms)
	assert.Equal(t, "one", list[1].Symptoms)
}

func TestSwitchingIdentityIsolatesHistory(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	aliceWS := f.manager.Get(alice.ID)
	_, err := aliceWS.Analyze(context.Background(), "alice symptoms", store.PatientContext{}, "en")
	require.NoError(t, err)
	saved, _, err := aliceWS.Save()
	require.NoError(t, err)

	bobWS := f.manager.Get(bob.ID)
	assert.Nil(t, bobWS.Snapshot().Result)

	bobList, err := f.manager.History().List(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobList)

	_, err = bobWS.Load(saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	aliceList, err := f.manager.History().List(alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceList, 1)
	assert.Equal(t, "alice symptoms", aliceList[0].Symptoms)
}

func TestLoadAndClear(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	u := f.user(t, "u1")
	ws := f.manager.Get(u.ID)

	_, err := ws.Analyze(context.Background(), "sore throat", store.PatientContext{Timeline: "2 days"}, "en")
	require.NoError(t, err)
	saved, _, err := ws.Save()
	require.NoError(t, err)

	cleared := ws.Clear()
	assert.Nil(t, cleared.Result)
	assert.Empty(t, cleared.Symptoms)
	assert.Equal(t, store.PatientContext{}, cleared.Context)
	assert.False(t, cleared.Saved)

	snap, err := ws.Load(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "sore throat", snap.Symptoms)
	require.NotNil(t, snap.Result)
	assert.Equal(t, []string{"Flu", "Cold"}, conditions(snap.Result))
	assert.True(t, snap.Saved)
	assert.Equal(t, saved.ID, snap.SavedID)
	assert.Empty(t, ws.Transcript())

	_, created, err := ws.Save()
	require.NoError(t, err)
	assert.False(t, created)
}

func TestChatAssemblesStreamedReply(t *testing.T) {
	provider := staticAnalysis(t)
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{"content":" there"}}]}`,
		`data: [DONE]`,
	}, "\n\n")
	provider.stream = func(_ context.Context, _ []llm.Message, onDelta llm.DeltaFunc) error {
		return llm.ReadStream(strings.NewReader(body), onDelta)
	}

	f := newFixture(t, provider)
	ws := f.manager.Get(f.user(t, "u1").ID)
	_, err := ws.Analyze(context.Background(), "headache", store.PatientContext{}, "en")
	require.NoError(t, err)

	var updates []string
	reply, err := ws.SendChat(context.Background(), "Should I worry?", func(m ChatMessage) {
		assert.Equal(t, RoleAssistant, m.Role)
		updates = append(updates, m.Text)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply.Text)
	assert.Equal(t, []string{"Hel", "Hello", "Hello there"}, updates)

	assert.Equal(t, []ChatMessage{
		{Role: RoleUser, Text: "Should I worry?"},
		{Role: RoleAssistant, Text: "Hello there"},
	}, ws.Transcript())

	sent := provider.lastCall()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0].Content, `Symptoms: "headache"`)
	assert.Equal(t, llm.RoleAssistant, sent[1].Role)
	assert.Contains(t, sent[1].Content, "The top potential diagnoses were: Flu, Cold.")
	assert.Equal(t, "Should I worry?", sent[2].Content)
}

func TestChatRequiresActiveAnalysis(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	ws := f.manager.Get(f.user(t, "u1").ID)

	_, err := ws.SendChat(context.Background(), "hi", func(ChatMessage) {})
	assert.ErrorIs(t, err, ErrNoActiveAnalysis)

	_, err = ws.SendChat(context.Background(), "  ", func(ChatMessage) {})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatRejectsOverlappingTurns(t *testing.T) {
	provider := staticAnalysis(t)
	started := make(chan struct{})
	release := make(chan struct{})
	provider.stream = func(_ context.Context, _ []llm.Message, onDelta llm.DeltaFunc) error {
		close(started)
		<-release
		onDelta("done")
		return nil
	}

	f := newFixture(t, provider)
	ws := f.manager.Get(f.user(t, "u1").ID)
	_, err := ws.Analyze(context.Background(), "x", store.PatientContext{}, "en")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := ws.SendChat(context.Background(), "first", func(ChatMessage) {})
		errc <- err
	}()
	<-started

	_, err = ws.SendChat(context.Background(), "second", func(ChatMessage) {})
	assert.ErrorIs(t, err, ErrChatBusy)

	close(release)
	require.NoError(t, <-errc)

	provider.stream = streamDeltas("again")
	reply, err := ws.SendChat(context.Background(), "third", func(ChatMessage) {})
	require.NoError(t, err)
	assert.Equal(t, "again", reply.Text)
	assert.Len(t, ws.Transcript(), 4)
}

func TestChatFailureKeepsPartialAndApologizes(t *testing.T) {
	provider := staticAnalysis(t)
	provider.stream = func(_ context.Context, _ []llm.Message, onDelta llm.DeltaFunc) error {
		onDelta("Partial ans")
		return errors.New("connection reset")
	}

	f := newFixture(t, provider)
	ws := f.manager.Get(f.user(t, "u1").ID)
	_, err := ws.Analyze(context.Background(), "x", store.PatientContext{}, "en")
	require.NoError(t, err)

	reply, err := ws.SendChat(context.Background(), "q", func(ChatMessage) {})
	require.Error(t, err)
	assert.Equal(t, chatApology, reply.Text)
	assert.Equal(t, []ChatMessage{
		{Role: RoleUser, Text: "q"},
		{Role: RoleAssistant, Text: "Partial ans"},
		{Role: RoleAssistant, Text: chatApology},
	}, ws.Transcript())

	provider.stream = streamDeltas("fine")
	_, err = ws.SendChat(context.Background(), "retry", func(ChatMessage) {})
	assert.NoError(t, err)
}

func TestNewAnalysisRebuildsTranscript(t *testing.T) {
	provider := staticAnalysis(t)
	provider.stream = streamDeltas("answer")

	f := newFixture(t, provider)
	ws := f.manager.Get(f.user(t, "u1").ID)
	_, err := ws.Analyze(context.Background(), "first", store.PatientContext{}, "en")
	require.NoError(t, err)
	_, err = ws.SendChat(context.Background(), "q", func(ChatMessage) {})
	require.NoError(t, err)
	require.Len(t, ws.Transcript(), 2)

	_, err = ws.Analyze(context.Background(), "second", store.PatientContext{}, "en")
	require.NoError(t, err)
	assert.Empty(t, ws.Transcript())
}

func TestWorkspaceManagerDrop(t *testing.T) {
	f := newFixture(t, staticAnalysis(t))
	u := f.user(t, "u1")

	ws := f.manager.Get(u.ID)
	assert.Same(t, ws, f.manager.Get(u.ID))
	_, err := ws.Analyze(context.Background(), "x", store.PatientContext{}, "en")
	require.NoError(t, err)

	f.manager.Drop(u.ID)
	fresh := f.manager.Get(u.ID)
	assert.NotSame(t, ws, fresh)
	assert.Nil(t, fresh.Snapshot().Result)
}

func TestLanguageName(t *testing.T) {
	name, err := LanguageName("ja")
	require.NoError(t, err)
	assert.Equal(t, "日本語", name)

	_, err = LanguageName("klingon")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}
