// Package datasource provides the data backends the whale monitor reads
// from: a stateful protocol client speaking a tool-call protocol to a local
// bridge process, a stateless REST client against public explorer APIs, and
// a hybrid wrapper that falls back from protocol to REST.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/types"
)

// TransferQuery describes one page request for token transfers.
// AgeFrom and AgeTo accept both relative durations ("24h", "7d") and
// absolute RFC 3339 instants; implementations normalize them. An empty
// AgeTo means now.
type TransferQuery struct {
	Chain   types.ChainID
	Address string // empty means unscoped; only the protocol backend supports that
	AgeFrom string
	AgeTo   string
	Token   string // optional token contract address or symbol filter
	Cursor  string // opaque continuation token from a previous page
}

// TransferPage is one page of normalized transfers
type TransferPage struct {
	Items      []types.TokenTransfer
	NextCursor string           // empty when no more pages
	Source     types.DataSource // backend that actually served this page
}

// Client defines the interface for whale data backends
type Client interface {
	// Connect prepares the backend for use. It is idempotent; calling it on
	// an already connected client is a no-op.
	Connect(ctx context.Context) error

	// Disconnect releases backend resources. Safe to call at any time,
	// including before Connect and more than once.
	Disconnect() error

	// Source returns the backend identity for provenance tagging
	Source() types.DataSource

	// GetTokenTransfers retrieves one page of normalized ERC-20 transfers
	// matching the query. Returns error if the backend request fails.
	GetTokenTransfers(ctx context.Context, query TransferQuery) (*TransferPage, error)

	// GetAddressInfo retrieves explorer metadata about an address
	GetAddressInfo(ctx context.Context, chain types.ChainID, address string) (*types.AddressInfo, error)

	// GetTokensByAddress retrieves ERC-20 balances held by an address
	GetTokensByAddress(ctx context.Context, chain types.ChainID, address string) ([]types.TokenBalance, error)

	// GetChainsList retrieves the chains this backend can serve
	GetChainsList(ctx context.Context) ([]chains.Chain, error)
}

// Common error types for data source clients

var (
	// ErrNotConnected indicates a data call before Connect
	ErrNotConnected = fmt.Errorf("client not connected")

	// ErrAddressRequired indicates an unscoped query against a backend that
	// requires an address
	ErrAddressRequired = fmt.Errorf("address required for this backend")

	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrInvalidTimeRange indicates an unparseable or inverted time window
	ErrInvalidTimeRange = fmt.Errorf("invalid time range")

	// ErrUnsupportedChain indicates the chain is not served by this backend
	ErrUnsupportedChain = fmt.Errorf("unsupported chain")

	// ErrAddressNotFound indicates the explorer does not know the address
	ErrAddressNotFound = fmt.Errorf("address not found")

	// ErrProviderUnavailable indicates the data backend is unavailable
	ErrProviderUnavailable = fmt.Errorf("data backend unavailable")

	// ErrProviderRateLimit indicates the backend rate limit was exceeded
	ErrProviderRateLimit = fmt.Errorf("backend rate limit exceeded")

	// ErrProviderTimeout indicates the backend request timed out
	ErrProviderTimeout = fmt.Errorf("backend request timeout")
)

// ClientError wraps backend errors with call context
type ClientError struct {
	Source  types.DataSource
	Op      string // Operation that failed (e.g., "GetTokenTransfers")
	Err     error
	Details map[string]interface{}
}

func (e *ClientError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("data source error [%s:%s]: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("data source error [%s:%s]: %v", e.Source, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new ClientError
func NewClientError(source types.DataSource, op string, err error, details map[string]interface{}) *ClientError {
	return &ClientError{
		Source:  source,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// IsRetryable reports whether a failed call may succeed against another
// backend. Authoritative answers (not found) and caller mistakes are not
// retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderRateLimit) ||
		errors.Is(err, ErrProviderTimeout)
}

// IsFatal reports whether the call failed because of caller input or client
// misuse, so no backend can serve it
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrAddressRequired) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrUnsupportedChain)
}
