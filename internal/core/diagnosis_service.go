package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentient.health/symptom-ai/internal/llm"
	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/metrics"
	"sentient.health/symptom-ai/internal/store"
)

var ErrEmptySymptoms = errors.New("symptoms cannot be empty")

type DiagnosisService struct {
	provider llm.Provider
}

func NewDiagnosisService(provider llm.Provider) *DiagnosisService {
	return &DiagnosisService{provider: provider}
}

// Diagnose asks the model for a structured analysis of the symptoms. The
// returned differential diagnosis is sorted by descending uncertainty score,
// ties keeping the model's order. Nothing is retried.
func (s *DiagnosisService) Diagnose(ctx context.Context, symptoms string, pc store.PatientContext, language string) (*store.AnalysisResult, error) {
	if strings.TrimSpace(symptoms) == "" {
		return nil, ErrEmptySymptoms
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: diagnosisSystemInstruction(language)},
		{Role: llm.RoleUser, Content: diagnosisUserPrompt(symptoms, pc, language)},
	}

	start := time.Now()
	result, err := s.request(ctx, messages)
	metrics.DiagnosisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DiagnosisRequests.WithLabelValues(metrics.OutcomeError).Inc()
		logger.Error("Error calling diagnosis model: %v", err)
		return nil, fmt.Errorf("failed to get diagnosis from AI: %w", err)
	}

	metrics.DiagnosisRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logger.Debug("Diagnosis returned %d candidate conditions", len(result.DifferentialDiagnosis))
	return result, nil
}

func (s *DiagnosisService) request(ctx context.Context, messages []llm.Message) (*store.AnalysisResult, error) {
	content, err := s.provider.Complete(ctx, messages, true)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, llm.ErrEmptyResponse
	}

	var result store.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}

	SortDiagnoses(result.DifferentialDiagnosis)
	return &result, nil
}

// SortDiagnoses orders diagnoses by descending uncertainty score, stable on ties.
func SortDiagnoses(diagnoses []store.Diagnosis) {
	sort.SliceStable(diagnoses, func(i, j int) bool {
		return diagnoses[i].UncertaintyScore > diagnoses[j].UncertaintyScore
	})
}
