package core

import (
	"context"
	"fmt"
	"strings"

	"sentient.health/symptom-ai/internal/llm"
)

const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant

	chatApology = "Sorry, I encountered an error. Please try again."
)

type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type ChatService struct {
	provider llm.Provider
}

func NewChatService(provider llm.Provider) *ChatService {
	return &ChatService{provider: provider}
}

// StreamReply sends the transcript with streaming enabled and calls onText
// with the accumulated reply after every delta. The accumulated text is
// returned even when the stream fails part way.
func (s *ChatService) StreamReply(ctx context.Context, transcript []ChatMessage, onText func(accumulated string)) (string, error) {
	if len(transcript) == 0 || transcript[len(transcript)-1].Role != RoleUser {
		return "", fmt.Errorf("transcript must end with a user message")
	}

	messages := make([]llm.Message, 0, len(transcript))
	for _, msg := range transcript {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Text})
	}

	var reply strings.Builder
	err := s.provider.Stream(ctx, messages, func(delta string) {
		reply.WriteString(delta)
		onText(reply.String())
	})
	if err != nil {
		return reply.String(), fmt.Errorf("failed to stream chat reply: %w", err)
	}
	return reply.String(), nil
}
