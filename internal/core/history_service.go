package core

import (
	"errors"
	"fmt"

	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/store"
)

var ErrNotFound = store.ErrNotFound

// HistoryStore persists saved analyses per user.
type HistoryStore interface {
	SaveAnalysis(userID int64, symptoms string, result *store.AnalysisResult) (*store.SavedAnalysis, error)
	ListAnalyses(userID int64) ([]store.SavedAnalysis, error)
	GetAnalysis(userID, id int64) (*store.SavedAnalysis, error)
	DeleteAnalysis(userID, id int64) error
}

type HistoryService struct {
	store HistoryStore
}

func NewHistoryService(s HistoryStore) *HistoryService {
	return &HistoryService{store: s}
}

func (s *HistoryService) Save(userID int64, symptoms string, result *store.AnalysisResult) (*store.SavedAnalysis, error) {
	saved, err := s.store.SaveAnalysis(userID, symptoms, result)
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	logger.Debug("Saved analysis %d for user %d", saved.ID, userID)
	return saved, nil
}

func (s *HistoryService) List(userID int64) ([]store.SavedAnalysis, error) {
	analyses, err := s.store.ListAnalyses(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}

func (s *HistoryService) Get(userID, id int64) (*store.SavedAnalysis, error) {
	a, err := s.store.GetAnalysis(userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

func (s *HistoryService) Delete(userID, id int64) error {
	if err := s.store.DeleteAnalysis(userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	logger.Debug("Deleted analysis %d for user %d", id, userID)
	return nil
}
