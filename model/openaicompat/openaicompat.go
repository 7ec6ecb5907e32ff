// Package openaicompat adapts any OpenAI-compatible chat completion API.
// Works with OpenAI, Grok/xAI, Together, Ollama, and others.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lernio/mentor"
)

// Model calls a chat completion endpoint over plain HTTP.
type Model struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ mentor.Model = (*Model)(nil)

// Option configures the adapter.
type Option func(*Model)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Model) { m.httpClient = c }
}

// New creates an adapter for the given endpoint. The API key may be
// empty for local backends.
func New(model, baseURL, apiKey string, opts ...Option) *Model {
	m := &Model{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewOpenAI creates an adapter for OpenAI.
func NewOpenAI(model, apiKey string, opts ...Option) *Model {
	return New(model, "https://api.openai.com/v1", apiKey, opts...)
}

// NewGrok creates an adapter for Grok/xAI.
func NewGrok(model, apiKey string, opts ...Option) *Model {
	return New(model, "https://api.x.ai/v1", apiKey, opts...)
}

// NewOllama creates an adapter for a local Ollama server.
func NewOllama(model string, opts ...Option) *Model {
	return New(model, "http://localhost:11434/v1", "", opts...)
}

func (m *Model) Name() string { return m.model }

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (m *Model) Call(ctx context.Context, req mentor.ModelRequest) (mentor.ModelResponse, error) {
	body := m.buildRequest(req)

	httpResp, err := m.doRequest(ctx, body)
	if err != nil {
		return mentor.ModelResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return mentor.ModelResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return mentor.ModelResponse{}, fmt.Errorf("mentor: decode response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return mentor.ModelResponse{}, fmt.Errorf("mentor: empty choices in response")
	}

	return mentor.ModelResponse{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: mentor.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (m *Model) buildRequest(req mentor.ModelRequest) apiRequest {
	msgs := make([]apiMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, apiMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, apiMessage{Role: "user", Content: req.Prompt})

	return apiRequest{
		Model:       m.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func (m *Model) doRequest(ctx context.Context, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mentor: marshal request: %w", err)
	}

	url := m.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("mentor: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mentor.ErrModelUnavailable
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		// OpenAI reports an exhausted prepaid balance as a 429 with a
		// distinct error code.
		if bytes.Contains(body, []byte("insufficient_quota")) {
			return mentor.ErrModelQuotaExhausted
		}
		return mentor.ErrModelThrottled
	case http.StatusUnauthorized, http.StatusForbidden:
		return mentor.ErrModelAuthFailed
	case http.StatusPaymentRequired:
		return mentor.ErrModelQuotaExhausted
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", mentor.ErrModelInvalidRequest, string(body))
	default:
		return mentor.ErrModelUnavailable
	}
}
