package core

import (
	"errors"
	"fmt"

	"sentient.health/symptom-ai/internal/auth"
	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/store"
)

var ErrInvalidTheme = errors.New("theme must be \"light\" or \"dark\"")

// AccountStore persists user profiles and preferences.
type AccountStore interface {
	UpsertUser(u *store.User) (*store.User, error)
	GetUserByExternalID(externalUserID string) (*store.User, error)
	GetPreferences(userID int64) (*store.Preferences, error)
	SavePreferences(userID int64, prefs *store.Preferences) error
}

type AccountService struct {
	store      AccountStore
	workspaces *WorkspaceManager
}

func NewAccountService(s AccountStore, workspaces *WorkspaceManager) *AccountService {
	return &AccountService{store: s, workspaces: workspaces}
}

// Login decodes the identity token, records the profile and issues a session token.
func (s *AccountService) Login(credential string) (string, *store.User, error) {
	identity, err := auth.DecodeIDToken(credential)
	if err != nil {
		return "", nil, err
	}

	user, err := s.store.UpsertUser(&store.User{
		ExternalID: identity.ID,
		Name:       identity.Name,
		Email:      identity.Email,
		Picture:    identity.Picture,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to record user: %w", err)
	}

	token, err := auth.GenerateJWT(identity)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	logger.Info("User %s signed in", user.ExternalID)
	return token, user, nil
}

// Logout revokes the session token and drops the user's in-memory state.
func (s *AccountService) Logout(claims *auth.SessionClaims, userID int64) {
	auth.RevokeJWT(claims)
	s.workspaces.Drop(userID)
	logger.Info("User %s signed out", claims.Subject)
}

func (s *AccountService) GetUserByExternalID(externalUserID string) (*store.User, error) {
	return s.store.GetUserByExternalID(externalUserID)
}

func (s *AccountService) Preferences(userID int64) (*store.Preferences, error) {
	return s.store.GetPreferences(userID)
}

func (s *AccountService) UpdatePreferences(userID int64, prefs *store.Preferences) error {
	if _, err := LanguageName(prefs.Language); err != nil {
		return err
	}
	if prefs.Theme != "light" && prefs.Theme != "dark" {
		return ErrInvalidTheme
	}
	return s.store.SavePreferences(userID, prefs)
}
