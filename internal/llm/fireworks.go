package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"sentient.health/symptom-ai/internal/logger"
)

// FireworksClient talks to an OpenAI-compatible chat completions endpoint.
type FireworksClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewFireworksClient builds a client with no client-side timeout. Requests are
// bounded by their context only.
func NewFireworksClient(endpoint, apiKey, model string) *FireworksClient {
	return &FireworksClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *FireworksClient) Complete(ctx context.Context, messages []Message, jsonOutput bool) (string, error) {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
	}
	if jsonOutput {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	resp, err := c.post(ctx, reqBody, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read llm response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse llm response: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (c *FireworksClient) Stream(ctx context.Context, messages []Message, onDelta DeltaFunc) error {
	resp, err := c.post(ctx, chatRequest{Model: c.model, Messages: messages, Stream: true}, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return ReadStream(resp.Body, onDelta)
}

func (c *FireworksClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// post sends the request and returns the response only for a 2xx status.
func (c *FireworksClient) post(ctx context.Context, reqBody chatRequest, accept string) (*http.Response, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		logger.Error("LLM API error (status %d): %s", resp.StatusCode, string(body))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
