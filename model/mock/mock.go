// Package mock provides a scriptable Model for tests.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lernio/mentor"
)

// Model is a mock LLM backend.
type Model struct {
	name         string
	text         string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	usage        mentor.Usage
	cost         float64
	responseFunc func(mentor.ModelRequest) (mentor.ModelResponse, error)
}

var _ mentor.Model = (*Model)(nil)

// Option configures a mock Model.
type Option func(*Model)

// New creates a mock model with the given options.
func New(opts ...Option) *Model {
	m := &Model{
		name: "mock",
		text: "Hello from mock model",
		usage: mentor.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithName sets the model name.
func WithName(name string) Option {
	return func(m *Model) { m.name = name }
}

// WithText sets the response text.
func WithText(text string) Option {
	return func(m *Model) { m.text = text }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(m *Model) { m.latency = d }
}

// WithFailAfter makes the model fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(m *Model) { m.failAfter = n }
}

// WithError makes the model always return this error.
func WithError(err error) Option {
	return func(m *Model) { m.staticErr = err }
}

// WithUsage sets the usage returned by the mock.
func WithUsage(u mentor.Usage) Option {
	return func(m *Model) { m.usage = u }
}

// WithCost sets a fixed cost on each response, bypassing price-table
// derivation.
func WithCost(cost float64) Option {
	return func(m *Model) { m.cost = cost }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(mentor.ModelRequest) (mentor.ModelResponse, error)) Option {
	return func(m *Model) { m.responseFunc = fn }
}

func (m *Model) Name() string { return m.name }

func (m *Model) Call(ctx context.Context, req mentor.ModelRequest) (mentor.ModelResponse, error) {
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return mentor.ModelResponse{}, ctx.Err()
		}
	}

	count := m.callCount.Add(1)

	if m.staticErr != nil {
		return mentor.ModelResponse{}, m.staticErr
	}

	if m.failAfter > 0 && int(count) > m.failAfter {
		return mentor.ModelResponse{}, mentor.ErrModelUnavailable
	}

	if m.responseFunc != nil {
		return m.responseFunc(req)
	}

	return mentor.ModelResponse{
		Text:  m.text,
		Model: m.name,
		Usage: m.usage,
		Cost:  m.cost,
	}, nil
}

// CallCount returns the number of calls made to the model.
func (m *Model) CallCount() int64 { return m.callCount.Load() }
