package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletion(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Rates{
		"text-davinci-003": {Input: 20.0, Output: 20.0},
	})

	// 1M prompt tokens + 500k completion tokens at $20/MTok each.
	got := calc.Completion("text-davinci-003", 1_000_000, 500_000)
	assert.InDelta(t, 30.0, got, 1e-9)
}

func TestCompletion_UnknownModelIsFree(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(DefaultRates())
	assert.Zero(t, calc.Completion("some-unknown-model", 1000, 1000))
}

func TestNewCalculator_NilRatesUseDefaults(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(nil)
	assert.Greater(t, calc.Completion("text-davinci-003", 1_000_000, 0), 0.0)
}
