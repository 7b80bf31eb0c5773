package datasource

import (
	"strconv"

	"github.com/whale-scanner/internal/types"
)

// parseRate parses an explorer exchange rate string ("1.001"), nil when the
// explorer reports no price
func parseRate(s string) *float64 {
	if s == "" {
		return nil
	}
	rate, err := strconv.ParseFloat(s, 64)
	if err != nil || rate < 0 {
		return nil
	}
	return &rate
}

// deriveValueUSD computes the USD value of a raw amount, nil when the rate
// is unknown or the amount malformed. An unknown value is never reported
// as 0.
func deriveValueUSD(raw string, decimals int, rate *float64) *float64 {
	if rate == nil {
		return nil
	}
	value, ok := types.USDValue(raw, decimals, *rate)
	if !ok {
		return nil
	}
	return &value
}

// finishTransfer applies the normalizations both backends share: checksummed
// addresses and the derived USD value
func finishTransfer(t types.TokenTransfer) types.TokenTransfer {
	t.From = types.NormalizeAddress(t.From)
	t.To = types.NormalizeAddress(t.To)
	t.Token.Address = types.NormalizeAddress(t.Token.Address)
	if t.ValueUSD == nil {
		t.ValueUSD = deriveValueUSD(t.RawValue, t.Token.Decimals, t.Token.ExchangeRate)
	}
	return t
}
