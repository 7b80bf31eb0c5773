package types

import "math/big"

// USDValue derives the USD value of a raw token amount. raw is the
// smallest-unit amount as a base-10 string, decimals the token's decimal
// places, rate the USD price per whole token. Big-number math keeps raw
// amounts above 64 bits exact until the final conversion. The bool result is
// false when raw is not a valid non-negative integer string or decimals is
// negative.
func USDValue(raw string, decimals int, rate float64) (float64, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 || decimals < 0 {
		return 0, false
	}
	value := new(big.Float).SetInt(amount)
	if decimals > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		value.Quo(value, new(big.Float).SetInt(scale))
	}
	value.Mul(value, big.NewFloat(rate))
	f, _ := value.Float64()
	return f, true
}

// WholeTokens converts a raw smallest-unit amount to a whole-token float for
// display. Same validity rules as USDValue.
func WholeTokens(raw string, decimals int) (float64, bool) {
	return USDValue(raw, decimals, 1)
}
