package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolFor(t *testing.T) {
	tests := []struct {
		change float64
		want   Symbol
	}{
		{35, SymbolStrongUp},
		{20.1, SymbolStrongUp},
		{20, SymbolUp},
		{5.1, SymbolUp},
		{5, SymbolFlat},
		{0, SymbolFlat},
		{-5, SymbolFlat},
		{-5.1, SymbolDown},
		{-20, SymbolDown},
		{-20.1, SymbolStrongDown},
		{-80, SymbolStrongDown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SymbolFor(tt.change), "change=%v", tt.change)
	}
}

func TestIndicatorsFrom(t *testing.T) {
	ind := IndicatorsFrom(map[string]float64{
		"cvr": 25,
		"cpa": -8,
		"mrr": 2,
	})
	assert.Equal(t, SymbolStrongUp, ind["cvr"])
	assert.Equal(t, SymbolDown, ind["cpa"])
	assert.Equal(t, SymbolFlat, ind["mrr"])
}

func TestEvalCondition(t *testing.T) {
	ind := Indicators{
		"cvr": SymbolUp,
		"mrr": SymbolStrongDown,
		"dau": SymbolFlat,
	}

	assert.True(t, EvalCondition("always", ind))
	assert.True(t, EvalCondition("", ind))
	assert.True(t, EvalCondition("cvr:up", ind))
	assert.False(t, EvalCondition("cvr:down", ind))

	assert.True(t, EvalCondition("cvr:up AND dau:flat", ind))
	assert.False(t, EvalCondition("cvr:up AND mrr:up", ind))

	assert.True(t, EvalCondition("mrr:up OR cvr:up", ind))
	assert.False(t, EvalCondition("mrr:up OR dau:down", ind))

	// OR binds loosest: (a AND b) OR (c AND d).
	assert.True(t, EvalCondition("mrr:up AND dau:flat OR cvr:up AND dau:flat", ind))

	// Unknown metrics are false, not errors.
	assert.False(t, EvalCondition("nps:up", ind))
	assert.True(t, EvalCondition("nps:up OR cvr:up", ind))

	// Case and whitespace are forgiven.
	assert.True(t, EvalCondition("CVR:UP and DAU:FLAT", ind))
}
