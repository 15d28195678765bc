package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"sentient.health/symptom-ai/internal/auth"
	"sentient.health/symptom-ai/internal/core"
	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/store"
)

type contextKey string

const (
	userKey   contextKey = "user"
	claimsKey contextKey = "claims"
)

type APIHandler struct {
	accounts   *core.AccountService
	workspaces *core.WorkspaceManager
}

func NewAPIHandler(accounts *core.AccountService, workspaces *core.WorkspaceManager) *APIHandler {
	return &APIHandler{accounts: accounts, workspaces: workspaces}
}

func userFrom(r *http.Request) *store.User {
	return r.Context().Value(userKey).(*store.User)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.accounts.GetUserByExternalID(claims.Subject)
		if err != nil {
			logger.Error("Error in JWTAuthMiddleware for user %s: %v", claims.Subject, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type LoginRequest struct {
	Credential string `json:"credential"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Credential == "" {
		http.Error(w, "Credential is required", http.StatusBadRequest)
		return
	}

	token, user, err := h.accounts.Login(req.Credential)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			http.Error(w, "Invalid credential", http.StatusUnauthorized)
			return
		}
		logger.Error("Error signing in: %v", err)
		http.Error(w, "Failed to sign in", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(claimsKey).(*auth.SessionClaims)
	h.accounts.Logout(claims, userFrom(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r))
}

func (h *APIHandler) LanguagesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.SupportedLanguages)
}

func (h *APIHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	prefs, err := h.accounts.Preferences(user.ID)
	if err != nil {
		logger.Error("Error getting preferences for user %d: %v", user.ID, err)
		http.Error(w, "Failed to get preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *APIHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	var prefs store.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.accounts.UpdatePreferences(user.ID, &prefs); err != nil {
		if errors.Is(err, core.ErrUnsupportedLanguage) || errors.Is(err, core.ErrInvalidTheme) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("Error saving preferences for user %d: %v", user.ID, err)
		http.Error(w, "Failed to save preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *APIHandler) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workspaces.Get(userFrom(r).ID).Snapshot())
}

type AnalyzeRequest struct {
	Symptoms string               `json:"symptoms"`
	Context  store.PatientContext `json:"context"`
	Language string               `json:"language,omitempty"` // Falls back to the saved preference
}

func (h *APIHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Language == "" {
		prefs, err := h.accounts.Preferences(user.ID)
		if err != nil {
			logger.Error("Error getting preferences for user %d: %v", user.ID, err)
			http.Error(w, "Failed to get preferences", http.StatusInternalServerError)
			return
		}
		req.Language = prefs.Language
	}

	snap, err := h.workspaces.Get(user.ID).Analyze(r.Context(), req.Symptoms, req.Context, req.Language)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, core.ErrEmptySymptoms), errors.Is(err, core.ErrUnsupportedLanguage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrAnalysisInProgress), errors.Is(err, core.ErrSuperseded):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error("Error analyzing symptoms for user %d: %v", user.ID, err)
		writeJSON(w, http.StatusBadGateway, snap)
	}
}

func (h *APIHandler) ClearAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workspaces.Get(userFrom(r).ID).Clear())
}

func (h *APIHandler) SaveAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	saved, created, err := h.workspaces.Get(user.ID).Save()
	if err != nil {
		if errors.Is(err, core.ErrNothingToSave) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Error("Error saving analysis for user %d: %v", user.ID, err)
		http.Error(w, "Failed to save analysis", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	analyses, err := h.workspaces.History().List(user.ID)
	if err != nil {
		logger.Error("Error listing history for user %d: %v", user.ID, err)
		http.Error(w, "Failed to list history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

func analysisID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "analysisID"), 10, 64)
	return id, err == nil
}

func (h *APIHandler) LoadHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	id, ok := analysisID(r)
	if !ok {
		http.Error(w, "Invalid analysis id", http.StatusBadRequest)
		return
	}

	snap, err := h.workspaces.Get(user.ID).Load(id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		logger.Error("Error loading analysis %d for user %d: %v", id, user.ID, err)
		http.Error(w, "Failed to load analysis", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	id, ok := analysisID(r)
	if !ok {
		http.Error(w, "Invalid analysis id", http.StatusBadRequest)
		return
	}

	if err := h.workspaces.History().Delete(user.ID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		logger.Error("Error deleting analysis %d for user %d: %v", id, user.ID, err)
		http.Error(w, "Failed to delete analysis", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workspaces.Get(userFrom(r).ID).Transcript())
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

// PostMessageHandler streams the assistant reply as server-sent events. Each
// event carries the whole reply so far; the stream ends with "data: [DONE]".
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	stream := &eventStream{w: w, flusher: flusher}
	reply, err := h.workspaces.Get(user.ID).SendChat(r.Context(), req.Text, stream.send)
	if err != nil && !stream.started {
		switch {
		case errors.Is(err, core.ErrEmptyMessage):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, core.ErrNoActiveAnalysis), errors.Is(err, core.ErrChatBusy):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	if err != nil || !stream.started {
		stream.send(reply)
	}
	stream.done()
}
