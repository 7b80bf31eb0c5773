package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUSDValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals int
		rate     float64
		want     float64
		ok       bool
	}{
		{"stablecoin six decimals", "1250000000", 6, 1.0, 1250, true},
		{"eighteen decimals with rate", "2500000000000000000000", 18, 2.0, 5000, true},
		{"zero amount", "0", 18, 3000, 0, true},
		{"zero decimals", "42", 0, 10, 420, true},
		{"zero rate", "1000000", 6, 0, 0, true},
		{"fractional result", "1500000000000000000", 18, 2000, 3000, true},
		{"not an integer", "12.5", 6, 1, 0, false},
		{"empty string", "", 6, 1, 0, false},
		{"negative amount", "-5", 6, 1, 0, false},
		{"hex string", "0x1f", 6, 1, 0, false},
		{"negative decimals", "100", -1, 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := USDValue(tt.raw, tt.decimals, tt.rate)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestUSDValueBeyond64Bits(t *testing.T) {
	// 123456789012345678901234567890 wei does not fit an int64 but must not
	// lose magnitude
	got, ok := USDValue("123456789012345678901234567890", 18, 1.0)
	require.True(t, ok)
	assert.InDelta(t, 1.23456789012345678901e11, got, 1e3)
}

func TestWholeTokens(t *testing.T) {
	got, ok := WholeTokens("1500000000000000000", 18)
	require.True(t, ok)
	assert.InDelta(t, 1.5, got, 1e-12)

	_, ok = WholeTokens("nope", 18)
	assert.False(t, ok)
}
