package cost

import (
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
)

// FallbackRatePer1k is charged for both directions when a model has no
// catalog entry.
const FallbackRatePer1k = 0.01

// Estimator prices token usage against the model catalog.
type Estimator struct {
	registry *registry.Registry
}

// NewEstimator creates an estimator backed by reg. A nil registry prices
// every model at the fallback rate.
func NewEstimator(reg *registry.Registry) *Estimator {
	return &Estimator{registry: reg}
}

// Estimate returns the approximate USD cost of a call. Negative token counts
// are treated as zero so the result is never negative.
func (e *Estimator) Estimate(model string, inputTokens, outputTokens int) float64 {
	inRate, outRate := FallbackRatePer1k, FallbackRatePer1k
	if e != nil && e.registry != nil {
		if m, ok := e.registry.Get(model); ok {
			inRate, outRate = m.CostPer1kInput, m.CostPer1kOutput
		}
	}

	return Calculate(inputTokens, outputTokens, inRate, outRate)
}

// Calculate applies per-1000-token rates to token counts.
func Calculate(inputTokens, outputTokens int, inRate, outRate float64) float64 {
	inputTokens = max(inputTokens, 0)
	outputTokens = max(outputTokens, 0)
	inRate = max(inRate, 0)
	outRate = max(outRate, 0)

	return float64(inputTokens)/1000*inRate + float64(outputTokens)/1000*outRate
}
