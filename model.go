package mentor

import "context"

// Model is the interface that language model adapters must implement.
type Model interface {
	// Name returns the adapter identifier (e.g. "openai", "anthropic", "mock").
	Name() string

	// Call performs a single bounded completion request.
	Call(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// ModelRequest is the request sent to a model adapter.
type ModelRequest struct {
	Prompt string
	System string

	Temperature *float64
	MaxTokens   *int
}

// ModelResponse is the response from a model adapter. Cost is the dollar cost
// the adapter attributes to the call; zero means the adapter does not price
// its own usage and the caller should derive cost from Usage.
type ModelResponse struct {
	Text  string
	Model string
	Usage Usage
	Cost  float64
}
