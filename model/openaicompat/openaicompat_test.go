package openaicompat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernio/mentor"
	"github.com/lernio/mentor/model/openaicompat"
)

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Test 1: a completion round trip carries messages, auth, and usage
func TestCall_Success(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens *int `json:"max_tokens"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		respond(w, http.StatusOK, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "A goroutine is a lightweight thread."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 21, "completion_tokens": 9, "total_tokens": 30}
		}`)
	}))
	defer srv.Close()

	m := openaicompat.New("gpt-4o-mini", srv.URL+"/v1", "sk-test")
	resp, err := m.Call(context.Background(), mentor.ModelRequest{
		Prompt:    "What is a goroutine?",
		System:    "You are a quiz tutor.",
		MaxTokens: mentor.IntPtr(128),
	})
	require.NoError(t, err)

	assert.Equal(t, "A goroutine is a lightweight thread.", resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, int64(21), resp.Usage.PromptTokens)
	assert.Equal(t, int64(30), resp.Usage.TotalTokens)
	assert.Zero(t, resp.Cost)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "What is a goroutine?", captured.Messages[1].Content)
	require.NotNil(t, captured.MaxTokens)
	assert.Equal(t, 128, *captured.MaxTokens)
}

// Test 2: no system message and no auth header when unset
func TestCall_MinimalRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var req struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		respond(w, http.StatusOK, `{"model": "local", "choices": [{"message": {"content": "ok"}}]}`)
	}))
	defer srv.Close()

	m := openaicompat.New("local", srv.URL, "")
	resp, err := m.Call(context.Background(), mentor.ModelRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

// Test 3: HTTP statuses map onto the model error taxonomy
func TestCall_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "throttled",
			status:  http.StatusTooManyRequests,
			body:    `{"error": {"code": "rate_limit_exceeded"}}`,
			wantErr: mentor.ErrModelThrottled,
		},
		{
			name:    "quota exhausted",
			status:  http.StatusTooManyRequests,
			body:    `{"error": {"code": "insufficient_quota"}}`,
			wantErr: mentor.ErrModelQuotaExhausted,
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error": {"code": "invalid_api_key"}}`,
			wantErr: mentor.ErrModelAuthFailed,
		},
		{
			name:    "forbidden",
			status:  http.StatusForbidden,
			body:    `{}`,
			wantErr: mentor.ErrModelAuthFailed,
		},
		{
			name:    "payment required",
			status:  http.StatusPaymentRequired,
			body:    `{}`,
			wantErr: mentor.ErrModelQuotaExhausted,
		},
		{
			name:    "bad request",
			status:  http.StatusBadRequest,
			body:    `{"error": {"message": "max_tokens too large"}}`,
			wantErr: mentor.ErrModelInvalidRequest,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantErr: mentor.ErrModelUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				respond(w, tt.status, tt.body)
			}))
			defer srv.Close()

			m := openaicompat.New("gpt-4o-mini", srv.URL, "sk-test")
			_, err := m.Call(context.Background(), mentor.ModelRequest{Prompt: "hi"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// Test 4: the invalid-request error carries the response body
func TestCall_BadRequestDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusBadRequest, `{"error": {"message": "unknown model"}}`)
	}))
	defer srv.Close()

	m := openaicompat.New("nope", srv.URL, "sk-test")
	_, err := m.Call(context.Background(), mentor.ModelRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, mentor.ErrModelInvalidRequest)
	assert.Contains(t, err.Error(), "unknown model")
}

// Test 5: an empty choices array is an error, not a blank answer
func TestCall_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, `{"model": "gpt-4o-mini", "choices": []}`)
	}))
	defer srv.Close()

	m := openaicompat.New("gpt-4o-mini", srv.URL, "sk-test")
	_, err := m.Call(context.Background(), mentor.ModelRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}

// Test 6: cancellation surfaces as a context error, not ErrModelUnavailable
func TestCall_ContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
		respond(w, http.StatusOK, `{}`)
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := openaicompat.New("gpt-4o-mini", srv.URL, "sk-test")
	_, err := m.Call(ctx, mentor.ModelRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)

	// A dead endpoint without cancellation is unavailability.
	dead := openaicompat.New("gpt-4o-mini", "http://127.0.0.1:1", "sk-test")
	_, err = dead.Call(context.Background(), mentor.ModelRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, mentor.ErrModelUnavailable)
}
