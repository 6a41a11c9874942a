package gateway

// Result is the normalized outcome of one model call. Exactly one of Output
// and Error is non-nil.
type Result struct {
	Model     string  `json:"model"`
	Provider  string  `json:"provider"`
	Output    *string `json:"output"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	LatencyMs int64   `json:"latency_ms"`
	CostUSD   float64 `json:"cost_usd"`
	Error     *string `json:"error"`
}

// Failed reports whether the call ended in an error.
func (r Result) Failed() bool {
	return r.Error != nil
}

// Normalized enforces the output/error exclusivity on results produced by
// arbitrary invokers. An error wins over output; a result with neither is
// reported as an error. Failed results carry no usage or cost.
func (r Result) Normalized() Result {
	switch {
	case r.Error != nil:
		r.Output = nil
	case r.Output == nil:
		msg := "model returned no result"
		r.Error = &msg
	default:
		return r
	}
	r.TokensIn, r.TokensOut, r.CostUSD = 0, 0, 0
	return r
}
