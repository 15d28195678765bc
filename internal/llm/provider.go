package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyResponse = errors.New("received an empty response from the AI")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeltaFunc receives each incremental text fragment of a streamed response, in arrival order.
type DeltaFunc func(delta string)

// Provider is a hosted large-language-model endpoint.
type Provider interface {
	// Complete issues one blocking request. With jsonOutput the model is asked
	// for a single JSON object.
	Complete(ctx context.Context, messages []Message, jsonOutput bool) (string, error)
	// Stream issues a streaming request and calls onDelta for every text delta.
	Stream(ctx context.Context, messages []Message, onDelta DeltaFunc) error
	Close() error
}

// StatusError is returned when the endpoint answers with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.StatusCode)
}
