package datasource

import (
	"context"
	"errors"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/circuitbreaker"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/types"
)

// HybridClient prefers the protocol bridge and falls back to the REST
// explorer when the bridge cannot serve a call. A circuit breaker around
// the bridge skips it entirely once it keeps failing, so scans do not pay
// the bridge timeout on every address.
type HybridClient struct {
	protocol Client
	rest     Client
	breaker  *circuitbreaker.CircuitBreaker
}

// NewHybridClient wires a protocol client, a REST client, and a breaker
// guarding the protocol side. The breaker is usually shared across clients
// so bridge failures are remembered from one scan to the next; a nil
// breaker builds a private one with defaults.
func NewHybridClient(protocol, rest Client, breaker *circuitbreaker.CircuitBreaker) *HybridClient {
	if breaker == nil {
		breaker = NewProtocolBreaker(nil)
	}

	return &HybridClient{
		protocol: protocol,
		rest:     rest,
		breaker:  breaker,
	}
}

// NewProtocolBreaker builds a breaker for the protocol bridge. The failure
// classifier is always the retryable check so caller mistakes and
// authoritative answers never trip the circuit.
func NewProtocolBreaker(cfg *circuitbreaker.Config) *circuitbreaker.CircuitBreaker {
	if cfg == nil {
		cfg = circuitbreaker.DefaultConfig("protocol-bridge")
	}
	cfg.IsFailure = IsRetryable
	return circuitbreaker.NewCircuitBreaker(cfg)
}

// Connect brings up both backends. A failing bridge is tolerated; the REST
// side carries the load until the bridge recovers.
func (c *HybridClient) Connect(ctx context.Context) error {
	if err := c.rest.Connect(ctx); err != nil {
		return err
	}

	err := c.breaker.Execute(ctx, func() error {
		return c.protocol.Connect(ctx)
	})
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Protocol bridge unavailable, continuing with REST only")
	}
	return nil
}

// Disconnect releases both backends
func (c *HybridClient) Disconnect() error {
	return errors.Join(c.protocol.Disconnect(), c.rest.Disconnect())
}

// Source returns the backend identity
func (c *HybridClient) Source() types.DataSource {
	return types.SourceHybrid
}

// BreakerStats exposes the protocol breaker state for health reporting
func (c *HybridClient) BreakerStats() *circuitbreaker.Stats {
	return c.breaker.GetStats()
}

// shouldFallBack reports whether a failed protocol call is worth repeating
// against the REST backend. Authoritative answers and caller mistakes are
// final; backend health problems and a disconnected or short-circuited
// bridge are not.
func shouldFallBack(err error) bool {
	return IsRetryable(err) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, circuitbreaker.ErrOpen) ||
		errors.Is(err, circuitbreaker.ErrProbeLimit)
}

// GetTokenTransfers retrieves one page of transfers, protocol first
func (c *HybridClient) GetTokenTransfers(ctx context.Context, query TransferQuery) (*TransferPage, error) {
	var page *TransferPage
	err := c.breaker.Execute(ctx, func() error {
		var callErr error
		page, callErr = c.protocol.GetTokenTransfers(ctx, query)
		return callErr
	})
	if err == nil {
		return page, nil
	}
	if !shouldFallBack(err) {
		return nil, err
	}

	logging.FromContext(ctx).WithError(err).WithField("op", "GetTokenTransfers").
		Warn("Protocol backend failed, falling back to REST")
	return c.rest.GetTokenTransfers(ctx, query)
}

// GetAddressInfo retrieves address metadata, protocol first
func (c *HybridClient) GetAddressInfo(ctx context.Context, chain types.ChainID, address string) (*types.AddressInfo, error) {
	var info *types.AddressInfo
	err := c.breaker.Execute(ctx, func() error {
		var callErr error
		info, callErr = c.protocol.GetAddressInfo(ctx, chain, address)
		return callErr
	})
	if err == nil {
		return info, nil
	}
	if !shouldFallBack(err) {
		return nil, err
	}

	logging.FromContext(ctx).WithError(err).WithField("op", "GetAddressInfo").
		Warn("Protocol backend failed, falling back to REST")
	return c.rest.GetAddressInfo(ctx, chain, address)
}

// GetTokensByAddress retrieves token balances, protocol first
func (c *HybridClient) GetTokensByAddress(ctx context.Context, chain types.ChainID, address string) ([]types.TokenBalance, error) {
	var balances []types.TokenBalance
	err := c.breaker.Execute(ctx, func() error {
		var callErr error
		balances, callErr = c.protocol.GetTokensByAddress(ctx, chain, address)
		return callErr
	})
	if err == nil {
		return balances, nil
	}
	if !shouldFallBack(err) {
		return nil, err
	}

	logging.FromContext(ctx).WithError(err).WithField("op", "GetTokensByAddress").
		Warn("Protocol backend failed, falling back to REST")
	return c.rest.GetTokensByAddress(ctx, chain, address)
}

// GetChainsList retrieves the serving chains, protocol first
func (c *HybridClient) GetChainsList(ctx context.Context) ([]chains.Chain, error) {
	var list []chains.Chain
	err := c.breaker.Execute(ctx, func() error {
		var callErr error
		list, callErr = c.protocol.GetChainsList(ctx)
		return callErr
	})
	if err == nil {
		return list, nil
	}
	if !shouldFallBack(err) {
		return nil, err
	}

	return c.rest.GetChainsList(ctx)
}
