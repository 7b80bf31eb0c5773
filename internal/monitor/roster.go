package monitor

import (
	"fmt"
	"strings"

	"github.com/whale-scanner/internal/types"
)

// Roster is the ordered, immutable list of addresses a chain scan visits.
// Order is deterministic so repeated scans walk addresses the same way; it
// carries no other meaning.
type Roster struct {
	entries []types.MonitoredAddress
}

// NewRoster builds a roster from the given entries, validating and
// checksumming every address. Duplicates keep their first position and
// label.
func NewRoster(entries ...types.MonitoredAddress) (*Roster, error) {
	r := &Roster{entries: make([]types.MonitoredAddress, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		if !types.IsValidAddress(e.Address) {
			return nil, fmt.Errorf("invalid monitored address %q", e.Address)
		}
		addr := types.NormalizeAddress(e.Address)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		r.entries = append(r.entries, types.MonitoredAddress{Address: addr, Label: e.Label})
	}

	if len(r.entries) == 0 {
		return nil, fmt.Errorf("roster must contain at least one address")
	}
	return r, nil
}

// ParseRoster builds a roster from "address" or "address=Label" entries, the
// form the MONITORED_ADDRESSES environment variable carries
func ParseRoster(specs []string) (*Roster, error) {
	entries := make([]types.MonitoredAddress, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		address, label, _ := strings.Cut(spec, "=")
		entries = append(entries, types.MonitoredAddress{
			Address: strings.TrimSpace(address),
			Label:   strings.TrimSpace(label),
		})
	}
	return NewRoster(entries...)
}

// Entries returns the roster in order. The returned slice is a copy.
func (r *Roster) Entries() []types.MonitoredAddress {
	out := make([]types.MonitoredAddress, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of monitored addresses
func (r *Roster) Len() int {
	return len(r.entries)
}

// DefaultRoster returns the built-in watchlist: exchange hot wallets, bridge
// escrows, and notable holders whose transfers move whale-scale value.
func DefaultRoster() *Roster {
	r, err := NewRoster(
		types.MonitoredAddress{Address: "0xF977814e90dA44bFA03b6295A0616a897441aceC", Label: "Binance 8"},
		types.MonitoredAddress{Address: "0x28C6c06298d514Db089934071355E5743bf21d60", Label: "Binance 14"},
		types.MonitoredAddress{Address: "0xBE0eB53F46cd790Cd13851d5EFf43D12404d33E8", Label: "Binance 7"},
		types.MonitoredAddress{Address: "0x71660c4005BA85c37ccec55d0C4493E66Fe775d3", Label: "Coinbase 1"},
		types.MonitoredAddress{Address: "0x503828976D22510aad0201ac7EC88293211D23Da", Label: "Coinbase 2"},
		types.MonitoredAddress{Address: "0x2910543Af39abA0Cd09dBb2D50200b3E800A63D2", Label: "Kraken"},
		types.MonitoredAddress{Address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", Label: "Bitfinex"},
		types.MonitoredAddress{Address: "0x6Cc5F688a315f3dC28A7781717a9A798a59fDA7b", Label: "OKX"},
		types.MonitoredAddress{Address: "0x6262998Ced04146fA42253a5C0AF90CA02dfd2A3", Label: "Crypto.com"},
		types.MonitoredAddress{Address: "0x40B38765696e3d5d8d9d834D8AaD4bB6e418E489", Label: "Robinhood"},
		types.MonitoredAddress{Address: "0x8315177aB297bA92A06054cE80a67Ed4DBd7ed3a", Label: "Arbitrum Bridge"},
		types.MonitoredAddress{Address: "0x40ec5B33f54e0E8A33A975908C5BA1c14e5BbbDf", Label: "Polygon Bridge"},
		types.MonitoredAddress{Address: "0x99C9fc46f92E8a1c0deC1b1747d010903E884bE1", Label: "Optimism Gateway"},
		types.MonitoredAddress{Address: "0x3154Cf16ccdb4C6d922629664174b904d80F2C35", Label: "Base Bridge"},
		types.MonitoredAddress{Address: "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", Label: "vitalik.eth"},
	)
	if err != nil {
		panic(fmt.Sprintf("built-in roster invalid: %v", err))
	}
	return r
}
