// Package openai adapts the official OpenAI SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lernio/mentor"
)

// Model calls OpenAI chat completions through the official client.
type Model struct {
	client sdk.Client
	model  string
}

var _ mentor.Model = (*Model)(nil)

// New creates an adapter for the given model. Extra request options are
// passed to the client, e.g. option.WithBaseURL for compatible hosts.
func New(model, apiKey string, opts ...option.RequestOption) *Model {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Model{
		client: sdk.NewClient(clientOpts...),
		model:  model,
	}
}

func (m *Model) Name() string { return m.model }

func (m *Model) Call(ctx context.Context, req mentor.ModelRequest) (mentor.ModelResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(m.model),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, sdk.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, sdk.UserMessage(req.Prompt))

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = sdk.Int(int64(*req.MaxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return mentor.ModelResponse{}, mapError(err)
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

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", mentor.ErrModelUnavailable, err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		// An exhausted prepaid balance also surfaces as a 429.
		if strings.Contains(apiErr.Error(), "insufficient_quota") {
			return mentor.ErrModelQuotaExhausted
		}
		return mentor.ErrModelThrottled
	case http.StatusUnauthorized, http.StatusForbidden:
		return mentor.ErrModelAuthFailed
	case http.StatusBadRequest, http.StatusNotFound:
		return fmt.Errorf("%w: %v", mentor.ErrModelInvalidRequest, apiErr)
	default:
		return fmt.Errorf("%w: %v", mentor.ErrModelUnavailable, apiErr)
	}
}
