package datasource

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/circuitbreaker"
	"github.com/whale-scanner/internal/types"
)

// stubClient is a scriptable Client for composing hybrid scenarios
type stubClient struct {
	source      types.DataSource
	connectErr  error
	connects    atomic.Int64
	disconnects atomic.Int64
	calls       atomic.Int64

	transfersFn func(query TransferQuery) (*TransferPage, error)
	addressFn   func(chain types.ChainID, address string) (*types.AddressInfo, error)
	tokensFn    func(chain types.ChainID, address string) ([]types.TokenBalance, error)
	chainsFn    func() ([]chains.Chain, error)
}

func (s *stubClient) Connect(ctx context.Context) error {
	s.connects.Add(1)
	return s.connectErr
}

func (s *stubClient) Disconnect() error {
	s.disconnects.Add(1)
	return nil
}

func (s *stubClient) Source() types.DataSource { return s.source }

func (s *stubClient) GetTokenTransfers(ctx context.Context, query TransferQuery) (*TransferPage, error) {
	s.calls.Add(1)
	if s.transfersFn != nil {
		return s.transfersFn(query)
	}
	return &TransferPage{Source: s.source}, nil
}

func (s *stubClient) GetAddressInfo(ctx context.Context, chain types.ChainID, address string) (*types.AddressInfo, error) {
	s.calls.Add(1)
	if s.addressFn != nil {
		return s.addressFn(chain, address)
	}
	return &types.AddressInfo{Address: address}, nil
}

func (s *stubClient) GetTokensByAddress(ctx context.Context, chain types.ChainID, address string) ([]types.TokenBalance, error) {
	s.calls.Add(1)
	if s.tokensFn != nil {
		return s.tokensFn(chain, address)
	}
	return nil, nil
}

func (s *stubClient) GetChainsList(ctx context.Context) ([]chains.Chain, error) {
	s.calls.Add(1)
	if s.chainsFn != nil {
		return s.chainsFn()
	}
	return nil, nil
}

func protocolFailure(err error) *stubClient {
	return &stubClient{
		source: types.SourceProtocol,
		transfersFn: func(TransferQuery) (*TransferPage, error) {
			return nil, NewClientError(types.SourceProtocol, "GetTokenTransfers", err, nil)
		},
		addressFn: func(types.ChainID, string) (*types.AddressInfo, error) {
			return nil, NewClientError(types.SourceProtocol, "GetAddressInfo", err, nil)
		},
		tokensFn: func(types.ChainID, string) ([]types.TokenBalance, error) {
			return nil, NewClientError(types.SourceProtocol, "GetTokensByAddress", err, nil)
		},
		chainsFn: func() ([]chains.Chain, error) {
			return nil, NewClientError(types.SourceProtocol, "GetChainsList", err, nil)
		},
	}
}

func testBreakerConfig() *circuitbreaker.Config {
	return &circuitbreaker.Config{
		Name:             "protocol-bridge",
		MaxConsecutive:   3,
		FailureThreshold: 0.5,
		MinCalls:         100,
		Cooldown:         time.Hour,
		HalfOpenMaxCalls: 1,
	}
}

func testQuery() TransferQuery {
	return TransferQuery{Chain: types.ChainEthereum, Address: testWhaleAddr, AgeFrom: "24h"}
}

func TestHybridClient_PrefersProtocol(t *testing.T) {
	protocol := &stubClient{source: types.SourceProtocol}
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	page, err := hybrid.GetTokenTransfers(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, types.SourceProtocol, page.Source, "the page carries the answering backend")
	assert.Equal(t, int64(1), protocol.calls.Load())
	assert.Equal(t, int64(0), rest.calls.Load())
	assert.Equal(t, types.SourceHybrid, hybrid.Source())
}

func TestHybridClient_FallsBackOnRetryable(t *testing.T) {
	protocol := protocolFailure(ErrProviderTimeout)
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	page, err := hybrid.GetTokenTransfers(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, types.SourceREST, page.Source)
	assert.Equal(t, int64(1), protocol.calls.Load())
	assert.Equal(t, int64(1), rest.calls.Load())
}

func TestHybridClient_FallsBackWhenNotConnected(t *testing.T) {
	protocol := protocolFailure(ErrNotConnected)
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	page, err := hybrid.GetTokenTransfers(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, types.SourceREST, page.Source)
}

func TestHybridClient_NoFallbackOnAuthoritativeAnswer(t *testing.T) {
	protocol := protocolFailure(ErrAddressNotFound)
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	_, err := hybrid.GetTokenTransfers(context.Background(), testQuery())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.Equal(t, int64(0), rest.calls.Load(), "not-found is final, REST must not be asked")
}

func TestHybridClient_NoFallbackOnCallerError(t *testing.T) {
	protocol := protocolFailure(ErrInvalidAddress)
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	_, err := hybrid.GetTokenTransfers(context.Background(), testQuery())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, int64(0), rest.calls.Load())
}

func TestHybridClient_BreakerSkipsFailingProtocol(t *testing.T) {
	protocol := protocolFailure(ErrProviderUnavailable)
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))
	ctx := context.Background()

	// Three consecutive backend failures open the breaker; every call is
	// still served by REST
	for i := 0; i < 3; i++ {
		page, err := hybrid.GetTokenTransfers(ctx, testQuery())
		require.NoError(t, err)
		assert.Equal(t, types.SourceREST, page.Source)
	}
	require.Equal(t, circuitbreaker.StateOpen, hybrid.BreakerStats().State)
	require.Equal(t, int64(3), protocol.calls.Load())

	// With the circuit open the bridge is not even asked
	page, err := hybrid.GetTokenTransfers(ctx, testQuery())
	require.NoError(t, err)
	assert.Equal(t, types.SourceREST, page.Source)
	assert.Equal(t, int64(3), protocol.calls.Load(), "open breaker must skip the bridge")
}

func TestHybridClient_BreakerIgnoresDomainErrors(t *testing.T) {
	protocol := protocolFailure(ErrAddressNotFound)
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := hybrid.GetTokenTransfers(ctx, testQuery())
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateClosed, hybrid.BreakerStats().State,
		"authoritative answers prove the bridge is alive")
}

func TestHybridClient_ConnectToleratesBridgeFailure(t *testing.T) {
	protocol := &stubClient{
		source:     types.SourceProtocol,
		connectErr: NewClientError(types.SourceProtocol, "Connect", ErrProviderUnavailable, nil),
	}
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	require.NoError(t, hybrid.Connect(context.Background()))
	assert.Equal(t, int64(1), protocol.connects.Load())
	assert.Equal(t, int64(1), rest.connects.Load())
}

func TestHybridClient_DisconnectReleasesBoth(t *testing.T) {
	protocol := &stubClient{source: types.SourceProtocol}
	rest := &stubClient{source: types.SourceREST}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	require.NoError(t, hybrid.Disconnect())
	assert.Equal(t, int64(1), protocol.disconnects.Load())
	assert.Equal(t, int64(1), rest.disconnects.Load())
}

func TestHybridClient_AddressInfoFallback(t *testing.T) {
	name := "Binance 8"
	protocol := protocolFailure(ErrProviderUnavailable)
	rest := &stubClient{
		source: types.SourceREST,
		addressFn: func(chain types.ChainID, address string) (*types.AddressInfo, error) {
			return &types.AddressInfo{Address: address, Name: &name}, nil
		},
	}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	info, err := hybrid.GetAddressInfo(context.Background(), types.ChainEthereum, testWhaleAddr)
	require.NoError(t, err)
	require.NotNil(t, info.Name)
	assert.Equal(t, "Binance 8", *info.Name)
}

func TestHybridClient_ChainsListFallback(t *testing.T) {
	protocol := protocolFailure(ErrProviderUnavailable)
	rest := &stubClient{
		source: types.SourceREST,
		chainsFn: func() ([]chains.Chain, error) {
			return []chains.Chain{{ID: types.ChainEthereum}}, nil
		},
	}
	hybrid := NewHybridClient(protocol, rest, NewProtocolBreaker(testBreakerConfig()))

	list, err := hybrid.GetChainsList(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.ChainEthereum, list[0].ID)
}
