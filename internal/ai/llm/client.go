package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kis-trading-bot/config"
)

// Provider identifies which LLM backend serves completions
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
	ProviderLocal    Provider = "local" // any OpenAI-compatible local server
)

// Client sends chat completions to the configured provider
type Client struct {
	provider    Provider
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewClient builds an LLM client from config
func NewClient(cfg config.AIConfig) (*Client, error) {
	provider := Provider(strings.ToLower(cfg.Provider))
	switch provider {
	case ProviderClaude, ProviderOpenAI, ProviderDeepSeek, ProviderLocal:
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	if provider != ProviderLocal && cfg.APIKey == "" {
		return nil, fmt.Errorf("AI provider %s requires an API key", provider)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch provider {
		case ProviderClaude:
			baseURL = "https://api.anthropic.com"
		case ProviderOpenAI:
			baseURL = "https://api.openai.com"
		case ProviderDeepSeek:
			baseURL = "https://api.deepseek.com"
		case ProviderLocal:
			baseURL = "http://localhost:11434"
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		provider:    provider,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Complete sends a prompt and returns the raw text response
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	switch c.provider {
	case ProviderClaude:
		return c.completeClaude(ctx, prompt)
	default:
		// OpenAI, DeepSeek, and local servers share the chat format
		return c.completeOpenAI(ctx, prompt)
	}
}

func (c *Client) completeClaude(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if c.temperature > 0 {
		reqBody["temperature"] = c.temperature
	}

	body, err := c.post(ctx, "/v1/messages", reqBody, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing claude response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("claude api error: %s", resp.Error.Message)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("claude returned empty content")
	}
	return resp.Content[0].Text, nil
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	body, err := c.post(ctx, "/v1/chat/completions", reqBody, headers)
	if err != nil {
		return "", err
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing completion response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("completion api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody interface{}, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm http %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
