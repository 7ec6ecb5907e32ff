// Package anthropic adapts the official Anthropic SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lernio/mentor"
)

// The Messages API requires an explicit completion cap.
const defaultMaxTokens = 1024

// Model calls the Anthropic Messages API through the official client.
type Model struct {
	client sdk.Client
	model  string
}

var _ mentor.Model = (*Model)(nil)

// New creates an adapter for the given model. Extra request options are
// passed to the client.
func New(model, apiKey string, opts ...option.RequestOption) *Model {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Model{
		client: sdk.NewClient(clientOpts...),
		model:  model,
	}
}

func (m *Model) Name() string { return m.model }

func (m *Model) Call(ctx context.Context, req mentor.ModelRequest) (mentor.ModelResponse, error) {
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return mentor.ModelResponse{}, mapError(err)
	}

	var text string
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(sdk.TextBlock); ok {
			text += b.Text
		}
	}

	in := msg.Usage.InputTokens
	out := msg.Usage.OutputTokens
	return mentor.ModelResponse{
		Text:  text,
		Model: string(msg.Model),
		Usage: mentor.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
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
		return mentor.ErrModelThrottled
	case http.StatusUnauthorized, http.StatusForbidden:
		return mentor.ErrModelAuthFailed
	case http.StatusBadRequest, http.StatusNotFound:
		return fmt.Errorf("%w: %v", mentor.ErrModelInvalidRequest, apiErr)
	default:
		return fmt.Errorf("%w: %v", mentor.ErrModelUnavailable, apiErr)
	}
}
