package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"sentient.health/symptom-ai/internal/logger"
)

// GeminiClient serves the Provider contract through the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, modelName: modelName}, nil
}

func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("error closing GenAI client: %w", err)
	}
	logger.Info("GenAI client closed.")
	return nil
}

func (g *GeminiClient) Complete(ctx context.Context, messages []Message, jsonOutput bool) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	if jsonOutput {
		model.ResponseMIMEType = "application/json"
	}

	session, last, err := startSession(model, messages)
	if err != nil {
		return "", err
	}

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini SendMessage failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *GeminiClient) Stream(ctx context.Context, messages []Message, onDelta DeltaFunc) error {
	model := g.client.GenerativeModel(g.modelName)

	session, last, err := startSession(model, messages)
	if err != nil {
		return err
	}

	iter := session.SendMessageStream(ctx, last.Parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		if delta := responseText(resp); delta != "" {
			onDelta(delta)
		}
	}
}

// startSession maps system messages onto the model's system instruction and
// the rest onto chat history, returning the final user turn separately.
func startSession(model *genai.GenerativeModel, messages []Message) (*genai.ChatSession, *genai.Content, error) {
	var system []string
	var history []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}

	if len(history) == 0 {
		return nil, nil, fmt.Errorf("prompt history is empty for chat completion")
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return nil, nil, fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}

	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	session := model.StartChat()
	session.History = history[:len(history)-1]
	return session, last, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			logger.Debug("Gemini response part was not text: %T", part)
		}
	}
	return text.String()
}
