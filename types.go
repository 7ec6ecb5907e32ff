package mentor

// Answer is the result of an admitted, successfully answered question.
type Answer struct {
	Text      string  `json:"text"`
	Model     string  `json:"model"`
	Usage     Usage   `json:"usage"`
	Cost      float64 `json:"cost"`
	SessionID string  `json:"session_id"`
	Attempts  int     `json:"attempts"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }

// Float64Ptr returns a pointer to the given float64.
func Float64Ptr(v float64) *float64 { return &v }
