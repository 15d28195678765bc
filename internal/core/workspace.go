package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/metrics"
	"sentient.health/symptom-ai/internal/store"
)

var (
	ErrNothingToSave      = errors.New("no analysis to save")
	ErrNoActiveAnalysis   = errors.New("no active analysis to discuss")
	ErrAnalysisInProgress = errors.New("an analysis is already in progress")
	ErrSuperseded         = errors.New("analysis was superseded before it completed")
	ErrChatBusy           = errors.New("a chat reply is already in progress")
	ErrEmptyMessage       = errors.New("message cannot be empty")
)

// seedMessages is the number of synthetic context messages at the head of a transcript.
const seedMessages = 2

// Snapshot is the client-visible state of a workspace.
type Snapshot struct {
	Symptoms string                `json:"symptoms"`
	Context  store.PatientContext  `json:"context"`
	Language string                `json:"language"`
	Result   *store.AnalysisResult `json:"result"`
	Saved    bool                  `json:"saved"`
	SavedID  int64                 `json:"saved_id,omitempty"`
	Loading  bool                  `json:"loading"`
	Error    string                `json:"error,omitempty"`
}

// Workspace holds one user's active analysis, its saved state and the
// follow-up chat transcript. It lives in memory only.
type Workspace struct {
	userID    int64
	diagnosis *DiagnosisService
	chat      *ChatService
	history   *HistoryService

	mu         sync.Mutex
	symptoms   string
	patient    store.PatientContext
	language   string
	result     *store.AnalysisResult
	saved      *store.SavedAnalysis
	errMsg     string
	analyzing  bool
	generation uint64 // bumped whenever the active result is replaced or cleared
	transcript []ChatMessage
	chatBusy   bool
}

// Analyze replaces the active result with a fresh diagnosis. On failure the
// workspace keeps the error message and no result.
func (w *Workspace) Analyze(ctx context.Context, symptoms string, pc store.PatientContext, languageCode string) (Snapshot, error) {
	if strings.TrimSpace(symptoms) == "" {
		return w.Snapshot(), ErrEmptySymptoms
	}
	languageName, err := LanguageName(languageCode)
	if err != nil {
		return w.Snapshot(), err
	}

	w.mu.Lock()
	if w.analyzing {
		w.mu.Unlock()
		return w.Snapshot(), ErrAnalysisInProgress
	}
	w.generation++
	gen := w.generation
	w.analyzing = true
	w.symptoms = symptoms
	w.patient = pc
	w.language = languageCode
	w.result = nil
	w.saved = nil
	w.errMsg = ""
	w.transcript = nil
	w.chatBusy = false
	w.mu.Unlock()

	result, err := w.diagnosis.Diagnose(ctx, symptoms, pc, languageName)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		logger.Debug("Discarding superseded analysis for user %d", w.userID)
		return w.snapshotLocked(), ErrSuperseded
	}
	w.analyzing = false
	if err != nil {
		w.errMsg = err.Error()
		return w.snapshotLocked(), err
	}
	w.result = result
	w.transcript = chatSeed(symptoms, result)
	return w.snapshotLocked(), nil
}

// Save stores the active result in the user's history. Saving an already
// saved result returns the existing record with created set to false.
func (w *Workspace) Save() (saved *store.SavedAnalysis, created bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.result == nil || w.symptoms == "" {
		return nil, false, ErrNothingToSave
	}
	if w.saved != nil {
		return w.saved, false, nil
	}

	saved, err = w.history.Save(w.userID, w.symptoms, w.result)
	if err != nil {
		return nil, false, err
	}
	w.saved = saved
	return saved, true, nil
}

// Load makes a saved analysis the active one.
func (w *Workspace) Load(id int64) (Snapshot, error) {
	a, err := w.history.Get(w.userID, id)
	if err != nil {
		return w.Snapshot(), err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	result := a.Result
	w.generation++
	w.analyzing = false
	w.symptoms = a.Symptoms
	w.result = &result
	w.saved = a
	w.errMsg = ""
	w.transcript = chatSeed(a.Symptoms, &result)
	w.chatBusy = false
	return w.snapshotLocked(), nil
}

// Clear resets the workspace to its empty state.
func (w *Workspace) Clear() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.analyzing = false
	w.symptoms = ""
	w.patient = store.PatientContext{}
	w.result = nil
	w.saved = nil
	w.errMsg = ""
	w.transcript = nil
	w.chatBusy = false
	return w.snapshotLocked()
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workspace) snapshotLocked() Snapshot {
	snap := Snapshot{
		Symptoms: w.symptoms,
		Context:  w.patient,
		Language: w.language,
		Result:   w.result,
		Saved:    w.saved != nil,
		Loading:  w.analyzing,
		Error:    w.errMsg,
	}
	if w.saved != nil {
		snap.SavedID = w.saved.ID
	}
	return snap
}

// Transcript returns the visible chat messages, without the seeded context.
func (w *Workspace) Transcript() []ChatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.transcript) <= seedMessages {
		return []ChatMessage{}
	}
	out := make([]ChatMessage, len(w.transcript)-seedMessages)
	copy(out, w.transcript[seedMessages:])
	return out
}

// SendChat runs one follow-up turn. onUpdate receives the in-progress
// assistant message after every delta, in arrival order. Only one turn may be
// in flight; on failure the partial reply is kept and an apology appended.
func (w *Workspace) SendChat(ctx context.Context, text string, onUpdate func(ChatMessage)) (ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	w.mu.Lock()
	if w.result == nil {
		w.mu.Unlock()
		return ChatMessage{}, ErrNoActiveAnalysis
	}
	if w.chatBusy {
		w.mu.Unlock()
		metrics.ChatTurns.WithLabelValues(metrics.OutcomeBusy).Inc()
		return ChatMessage{}, ErrChatBusy
	}
	w.transcript = append(w.transcript, ChatMessage{Role: RoleUser, Text: text})
	outgoing := make([]ChatMessage, len(w.transcript))
	copy(outgoing, w.transcript)
	w.chatBusy = true
	gen := w.generation
	w.mu.Unlock()

	replyIdx := -1
	reply, err := w.chat.StreamReply(ctx, outgoing, func(accumulated string) {
		msg := ChatMessage{Role: RoleAssistant, Text: accumulated}
		w.mu.Lock()
		if gen == w.generation {
			if replyIdx < 0 {
				w.transcript = append(w.transcript, msg)
				replyIdx = len(w.transcript) - 1
			} else {
				w.transcript[replyIdx] = msg
			}
		}
		w.mu.Unlock()
		onUpdate(msg)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	current := gen == w.generation
	if current {
		w.chatBusy = false
	}

	if err != nil {
		metrics.ChatTurns.WithLabelValues(metrics.OutcomeError).Inc()
		logger.Error("Error streaming chat reply for user %d: %v", w.userID, err)
		apology := ChatMessage{Role: RoleAssistant, Text: chatApology}
		if current {
			w.transcript = append(w.transcript, apology)
		}
		return apology, err
	}

	metrics.ChatTurns.WithLabelValues(metrics.OutcomeSuccess).Inc()
	msg := ChatMessage{Role: RoleAssistant, Text: reply}
	if current && replyIdx < 0 {
		w.transcript = append(w.transcript, msg)
	}
	return msg, nil
}

// WorkspaceManager keeps one workspace per signed-in user.
type WorkspaceManager struct {
	diagnosis *DiagnosisService
	chat      *ChatService
	history   *HistoryService

	mu         sync.Mutex
	workspaces map[int64]*Workspace
}

func NewWorkspaceManager(diagnosis *DiagnosisService, chat *ChatService, history *HistoryService) *WorkspaceManager {
	return &WorkspaceManager{
		diagnosis:  diagnosis,
		chat:       chat,
		history:    history,
		workspaces: make(map[int64]*Workspace),
	}
}

// Get returns the user's workspace, creating an empty one on first use.
func (m *WorkspaceManager) Get(userID int64) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[userID]
	if !ok {
		w = &Workspace{
			userID:    userID,
			diagnosis: m.diagnosis,
			chat:      m.chat,
			history:   m.history,
			language:  store.DefaultLanguage,
		}
		m.workspaces[userID] = w
	}
	return w
}

// Drop discards the user's workspace, e.g. on logout.
func (m *WorkspaceManager) Drop(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workspaces, userID)
}

func (m *WorkspaceManager) History() *HistoryService {
	return m.history
}
