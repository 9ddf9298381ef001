// Package completion forwards prompts to an OpenAI compatible chat
// completions endpoint (OpenAI, Azure OpenAI, OpenRouter, vLLM, Ollama...).
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/makkenzo/device-license-api/internal/config"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"go.uber.org/zap"
)

const maxErrorBody = 4 * 1024

type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	logger       *zap.Logger
}

func NewClient(cfg *config.CompletionConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger.Named("CompletionClient"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends prompt as the user message and returns the first choice.
// Every failure is reported as ierr.ErrUpstream and is never retried.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: completion api key is not configured", ierr.ErrUpstream)
	}

	wireRequest := chatRequest{Model: c.model}
	if c.systemPrompt != "" {
		wireRequest.Messages = append(wireRequest.Messages, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	wireRequest.Messages = append(wireRequest.Messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(wireRequest)
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ierr.ErrUpstream, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ierr.ErrUpstream, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		c.logger.Warn("Completion request failed", zap.Error(err))
		return "", fmt.Errorf("%w: sending request: %v", ierr.ErrUpstream, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(httpResponse.Body, maxErrorBody))
		c.logger.Warn("Completion endpoint returned an error",
			zap.Int("status", httpResponse.StatusCode),
			zap.ByteString("body", errorBody),
		)
		return "", fmt.Errorf("%w: status %d: %s", ierr.ErrUpstream, httpResponse.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ierr.ErrUpstream, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ierr.ErrUpstream, decoded.Error.Type, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ierr.ErrUpstream)
	}

	return decoded.Choices[0].Message.Content, nil
}
