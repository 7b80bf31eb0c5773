package types

import (
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidAddress reports whether s is a well-formed 20-byte hex address
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress converts a well-formed hex address into its EIP-55
// checksummed form so plain string comparison works across data sources.
// Malformed input is returned unchanged.
func NormalizeAddress(s string) string {
	if !IsValidAddress(s) {
		return s
	}
	return common.HexToAddress(s).Hex()
}

// SameAddress reports whether two hex addresses refer to the same account,
// ignoring checksum casing
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
