package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

const defaultCompletionBaseURL = "https://api.openai.com/v1"

// OpenAIService calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIService creates a completion service for cfg. The API key is read
// from the environment variable named by cfg.APIKeyEnv; a missing key is a
// configuration error.
func NewOpenAIService(cfg *config.CompletionConfig) (*OpenAIService, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not found in environment variable %s", models.ErrConfiguration, cfg.APIKeyEnv)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultCompletionBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIService{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   cfg.Model,
	}, nil
}

// Complete produces a text completion for prompt. Content-policy refusals
// map to models.ErrCompletionRejected; everything else that fails maps to
// models.ErrCompletionUnavailable.
func (s *OpenAIService) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := chatCompletionRequest{
		Model:    s.model,
		Messages: []chatCompletionMsg{{Role: "user", Content: prompt}},
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = opts.Temperature
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrCompletionUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", models.ErrCompletionUnavailable, err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrCompletionUnavailable, err)
	}

	if chatResp.Error != nil {
		if chatResp.Error.Code == "content_policy_violation" || chatResp.Error.Code == "content_filter" {
			return "", fmt.Errorf("%w: %s", models.ErrCompletionRejected, chatResp.Error.Message)
		}
		return "", fmt.Errorf("%w: %s", models.ErrCompletionUnavailable, chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", models.ErrCompletionUnavailable, resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices returned", models.ErrCompletionUnavailable)
	}
	choice := chatResp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: completion stopped by content filter", models.ErrCompletionRejected)
	}
	return choice.Message.Content, nil
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (s *OpenAIService) Close() error {
	return nil
}
