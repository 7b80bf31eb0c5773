// Package chains provides the static registry of supported blockchain networks.
package chains

import (
	"fmt"

	"github.com/whale-scanner/internal/types"
)

// Chain represents one supported network
type Chain struct {
	ID              types.ChainID `json:"id"`
	NumericID       string        `json:"numericId"` // EVM chain id as decimal string (e.g. "1")
	Name            string        `json:"name"`
	ExplorerBaseURL string        `json:"explorerBaseUrl"`
	NativeSymbol    string        `json:"nativeSymbol"`
}

// Registry is an immutable lookup table of supported chains.
// Build it once at startup; it is safe for concurrent reads.
type Registry struct {
	order  []types.ChainID
	chains map[types.ChainID]Chain
}

// NewRegistry creates a registry from the given chains, preserving order.
// A duplicate id replaces the earlier definition but keeps its position.
func NewRegistry(chains ...Chain) *Registry {
	r := &Registry{
		chains: make(map[types.ChainID]Chain, len(chains)),
	}
	for _, c := range chains {
		if _, exists := r.chains[c.ID]; !exists {
			r.order = append(r.order, c.ID)
		}
		r.chains[c.ID] = c
	}
	return r
}

// DefaultRegistry returns the built-in chain set with public explorer URLs
func DefaultRegistry() *Registry {
	return NewRegistry(
		Chain{ID: types.ChainEthereum, NumericID: "1", Name: "Ethereum", ExplorerBaseURL: "https://eth.blockscout.com", NativeSymbol: "ETH"},
		Chain{ID: types.ChainPolygon, NumericID: "137", Name: "Polygon", ExplorerBaseURL: "https://polygon.blockscout.com", NativeSymbol: "POL"},
		Chain{ID: types.ChainArbitrum, NumericID: "42161", Name: "Arbitrum", ExplorerBaseURL: "https://arbitrum.blockscout.com", NativeSymbol: "ETH"},
		Chain{ID: types.ChainOptimism, NumericID: "10", Name: "Optimism", ExplorerBaseURL: "https://optimism.blockscout.com", NativeSymbol: "ETH"},
		Chain{ID: types.ChainBase, NumericID: "8453", Name: "Base", ExplorerBaseURL: "https://base.blockscout.com", NativeSymbol: "ETH"},
		Chain{ID: types.ChainBNB, NumericID: "56", Name: "BNB Chain", ExplorerBaseURL: "https://bnb.blockscout.com", NativeSymbol: "BNB"},
	)
}

// Get looks up a chain by id
func (r *Registry) Get(id types.ChainID) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// MustGet looks up a chain by id and panics when missing. Intended for
// startup wiring and tests.
func (r *Registry) MustGet(id types.ChainID) Chain {
	c, ok := r.chains[id]
	if !ok {
		panic(fmt.Sprintf("chain %q not in registry", id))
	}
	return c
}

// Has reports whether the registry contains the chain id
func (r *Registry) Has(id types.ChainID) bool {
	_, ok := r.chains[id]
	return ok
}

// List returns all chains in registration order
func (r *Registry) List() []Chain {
	out := make([]Chain, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chains[id])
	}
	return out
}

// IDs returns all chain ids in registration order
func (r *Registry) IDs() []types.ChainID {
	out := make([]types.ChainID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered chains
func (r *Registry) Len() int {
	return len(r.order)
}

// Filter returns a registry restricted to the given chain ids, in the given
// order. An unknown id is a configuration error.
func (r *Registry) Filter(enabled []string) (*Registry, error) {
	out := make([]Chain, 0, len(enabled))
	for _, raw := range enabled {
		id := types.ChainID(raw)
		c, ok := r.chains[id]
		if !ok {
			return nil, fmt.Errorf("unknown chain in ENABLED_CHAINS: %q", raw)
		}
		out = append(out, c)
	}
	return NewRegistry(out...), nil
}

// WithExplorerURLs returns a registry with per-chain explorer base URL
// overrides applied. Unknown keys are ignored.
func (r *Registry) WithExplorerURLs(overrides map[string]string) *Registry {
	out := make([]Chain, 0, len(r.order))
	for _, id := range r.order {
		c := r.chains[id]
		if url, ok := overrides[string(id)]; ok && url != "" {
			c.ExplorerBaseURL = url
		}
		out = append(out, c)
	}
	return NewRegistry(out...)
}
