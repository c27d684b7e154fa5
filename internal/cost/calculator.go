// Package cost estimates the dollar spend of completion requests so runs
// over large benchmark splits surface their price as they go.
package cost

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model identifiers to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for completion API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Models without
// a rate cost zero.
func NewCalculator(rates Rates) *Calculator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Completion computes the cost of one request from its token usage.
func (c *Calculator) Completion(model string, promptTokens, completionTokens int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(promptTokens)/1e6)*rate.Input + (float64(completionTokens)/1e6)*rate.Output
}

// DefaultRates returns pricing for the completion models the benchmarks
// were run against.
func DefaultRates() Rates {
	return Rates{
		"text-davinci-003": {Input: 20.0, Output: 20.0},
		"text-davinci-002": {Input: 20.0, Output: 20.0},
		"text-curie-001":   {Input: 2.0, Output: 2.0},
		"text-babbage-001": {Input: 0.5, Output: 0.5},
		"text-ada-001":     {Input: 0.4, Output: 0.4},
	}
}
