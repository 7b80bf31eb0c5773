// Package types provides common type definitions for the whale scanner system.
package types

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// DataSource identifies which backend produced a piece of data
type DataSource string

const (
	// SourceProtocol represents the stateful tool-call backend
	SourceProtocol DataSource = "protocol"
	// SourceREST represents the stateless explorer API backend
	SourceREST DataSource = "rest"
	// SourceHybrid represents the protocol-with-REST-fallback wrapper
	SourceHybrid DataSource = "hybrid"
)

// TokenInfo represents token metadata attached to a transfer
type TokenInfo struct {
	Address      string   `json:"address"`                // Token contract address
	Symbol       string   `json:"symbol"`                 // Token symbol (e.g., "USDC")
	Name         *string  `json:"name,omitempty"`         // Token name if known
	Decimals     int      `json:"decimals"`               // Token decimals
	ExchangeRate *float64 `json:"exchangeRate,omitempty"` // USD per whole token, nil when unknown
}

// TokenTransfer represents a single ERC-20 transfer in normalized form
type TokenTransfer struct {
	Hash      string    `json:"hash"`               // Transaction hash
	From      string    `json:"from"`               // Sender address (checksummed)
	To        string    `json:"to"`                 // Recipient address (checksummed)
	RawValue  string    `json:"rawValue"`           // Smallest-unit amount as base-10 string (may exceed 64 bits)
	Timestamp int64     `json:"timestamp"`          // Unix timestamp (UTC seconds)
	Token     TokenInfo `json:"token"`              // Token metadata
	ValueUSD  *float64  `json:"valueUsd,omitempty"` // Derived USD value, nil when no exchange rate is known
}

// WhaleTransfer represents a whale-scale transfer annotated with its chain and provenance
type WhaleTransfer struct {
	TokenTransfer
	ChainID    ChainID    `json:"chainId"`
	ChainName  string     `json:"chainName"`
	DataSource DataSource `json:"dataSource"` // Backend that actually served this transfer
}

// ChainScanResult represents the outcome of scanning one chain.
// A non-empty Err means the whole chain failed and Transfers is empty.
type ChainScanResult struct {
	ChainID   ChainID         `json:"chainId"`
	Transfers []WhaleTransfer `json:"transfers"`
	Err       string          `json:"error,omitempty"`
}

// Failed reports whether the chain scan failed as a whole
func (r ChainScanResult) Failed() bool {
	return r.Err != ""
}

// WhaleStats represents summary statistics over a merged transfer set
type WhaleStats struct {
	TotalTransfers       int     `json:"totalTransfers"`
	TotalVolumeUSD       float64 `json:"totalVolumeUsd"`
	LargestTransferUSD   float64 `json:"largestTransferUsd"`
	UniqueWhaleAddresses int     `json:"uniqueWhaleAddresses"` // Exact size of the union of from and to addresses
}

// WhaleRank represents one leaderboard entry
type WhaleRank struct {
	Address       string  `json:"address"`
	VolumeUSD     float64 `json:"volumeUsd"`
	TransferCount int     `json:"transferCount"`
}

// AddressInfo represents explorer metadata about a single address
type AddressInfo struct {
	Address      string   `json:"address"`
	Name         *string  `json:"name,omitempty"` // Known label (e.g., "Binance 14")
	IsContract   bool     `json:"isContract"`
	IsVerified   bool     `json:"isVerified"`
	CoinBalance  string   `json:"coinBalance"` // Native coin balance in wei as base-10 string
	ExchangeRate *float64 `json:"exchangeRate,omitempty"`
}

// TokenBalance represents one token position held by an address
type TokenBalance struct {
	Token    TokenInfo `json:"token"`
	RawValue string    `json:"rawValue"` // Smallest-unit balance as base-10 string
	ValueUSD *float64  `json:"valueUsd,omitempty"`
}

// MonitoredAddress represents one roster entry the monitor scans
type MonitoredAddress struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"` // Known label (e.g., "Binance Hot Wallet")
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
