package mentor

// defaultCompletionAllowance is the completion length assumed when a request
// does not bound MaxTokens.
const defaultCompletionAllowance = 512

// EstimateTokens provides a rough prompt token count estimate for a request.
// Uses the approximation: ~4 chars per token + overhead per message.
func EstimateTokens(req ModelRequest) int64 {
	var total int64
	total += int64(len(req.Prompt)) / 4
	total += 4
	if req.System != "" {
		total += int64(len(req.System)) / 4
		total += 4
	}
	// base overhead for the request
	total += 3
	return total
}

// EstimateCost predicts the dollar cost of a request before it is made. The
// completion side uses the requested max tokens when set, otherwise a flat
// allowance. Estimates feed budget reservations and are reconciled against
// actual cost after the call.
func EstimateCost(req ModelRequest, model string, prices PriceTable) float64 {
	out := int64(defaultCompletionAllowance)
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		out = int64(*req.MaxTokens)
	}
	return prices.CostOf(model, Usage{
		PromptTokens:     EstimateTokens(req),
		CompletionTokens: out,
	})
}
