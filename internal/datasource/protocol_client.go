package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/types"
)

// toolGetTokenTransfers must be exposed by the bridge; the other tools are
// optional and fall through to the REST backend in hybrid mode.
const (
	toolDescribe           = "describe"
	toolGetTokenTransfers  = "get_token_transfers"
	toolGetAddressInfo     = "get_address_info"
	toolGetTokensByAddress = "get_tokens_by_address"
	toolGetChainsList      = "get_chains_list"
)

// ProtocolClient speaks the tool-call protocol to a local bridge process
// over a websocket. One request/response pair per call, correlated by id,
// multiplexed over a single connection.
type ProtocolClient struct {
	registry       *chains.Registry
	url            string
	connectTimeout time.Duration
	callTimeout    time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan protocolFrame
	nextID  int64
	done    chan struct{}
	tools   map[string]bool

	// Serializes frame writes; gorilla allows one concurrent writer only
	writeMu sync.Mutex
}

// ProtocolClientConfig configures a ProtocolClient
type ProtocolClientConfig struct {
	Registry       *chains.Registry
	URL            string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

// NewProtocolClient creates a protocol bridge client. Connect must be called
// before any data call.
func NewProtocolClient(cfg ProtocolClientConfig) *ProtocolClient {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}

	return &ProtocolClient{
		registry:       cfg.Registry,
		url:            cfg.URL,
		connectTimeout: connectTimeout,
		callTimeout:    callTimeout,
	}
}

// Wire frames

type protocolFrame struct {
	Type      string          `json:"type"`
	ID        int64           `json:"id,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *protocolError  `json:"error,omitempty"`
}

type protocolError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type protocolTransferArgs struct {
	ChainID string `json:"chain_id"`
	Address string `json:"address,omitempty"`
	AgeFrom string `json:"age_from"`
	AgeTo   string `json:"age_to"`
	Token   string `json:"token,omitempty"`
	Cursor  string `json:"cursor,omitempty"`
}

type protocolAddressArgs struct {
	ChainID string `json:"chain_id"`
	Address string `json:"address"`
}

type protocolTokenInfo struct {
	Address      string   `json:"address"`
	Symbol       string   `json:"symbol"`
	Name         *string  `json:"name"`
	Decimals     int      `json:"decimals"`
	ExchangeRate *float64 `json:"exchange_rate"`
}

type protocolTransferItem struct {
	Hash      string            `json:"hash"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Value     string            `json:"value"`
	Timestamp int64             `json:"timestamp"`
	Token     protocolTokenInfo `json:"token"`
	ValueUSD  *float64          `json:"value_usd"`
}

type protocolTransfersResult struct {
	Items      []protocolTransferItem `json:"items"`
	NextCursor string                 `json:"next_cursor"`
}

type protocolAddressResult struct {
	Address      string   `json:"address"`
	Name         *string  `json:"name"`
	IsContract   bool     `json:"is_contract"`
	IsVerified   bool     `json:"is_verified"`
	CoinBalance  string   `json:"coin_balance"`
	ExchangeRate *float64 `json:"exchange_rate"`
}

type protocolTokenBalanceItem struct {
	Token    protocolTokenInfo `json:"token"`
	Value    string            `json:"value"`
	ValueUSD *float64          `json:"value_usd"`
}

type protocolTokenBalancesResult struct {
	Items []protocolTokenBalanceItem `json:"items"`
}

type protocolChainsResult struct {
	Chains []struct {
		ID           string `json:"id"`
		NumericID    string `json:"numeric_id"`
		Name         string `json:"name"`
		ExplorerURL  string `json:"explorer_url"`
		NativeSymbol string `json:"native_symbol"`
	} `json:"chains"`
}

// Connect dials the bridge and verifies it exposes the transfer tool.
// Calling Connect on an already connected client is a no-op.
func (c *ProtocolClient) Connect(ctx context.Context) error {
	const op = "Connect"

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: dial %s: %v", ErrProviderUnavailable, c.url, err), nil)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.pending = make(map[int64]chan protocolFrame)
	c.done = done
	c.tools = nil
	c.mu.Unlock()

	go c.readLoop(conn, done)

	raw, err := c.call(ctx, toolDescribe, struct{}{})
	if err != nil {
		c.Disconnect()
		return NewClientError(types.SourceProtocol, op, err, nil)
	}

	var caps struct {
		Tools []string `json:"tools"`
	}
	if err := json.Unmarshal(raw, &caps); err != nil {
		c.Disconnect()
		return NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: malformed describe response: %v", ErrProviderUnavailable, err), nil)
	}

	tools := make(map[string]bool, len(caps.Tools))
	for _, tool := range caps.Tools {
		tools[tool] = true
	}
	if !tools[toolGetTokenTransfers] {
		c.Disconnect()
		return NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: bridge does not expose %s", ErrProviderUnavailable, toolGetTokenTransfers), nil)
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"url":   c.url,
		"tools": len(tools),
	}).Debug("Connected to protocol bridge")
	return nil
}

// Disconnect closes the bridge connection. Safe to call at any time and
// more than once.
func (c *ProtocolClient) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.tools = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

// Source returns the backend identity
func (c *ProtocolClient) Source() types.DataSource {
	return types.SourceProtocol
}

// readLoop dispatches response frames to waiting calls. It exits when the
// connection errors out, waking every in-flight call via done.
func (c *ProtocolClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		var frame protocolFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.GetGlobalLogger().WithError(err).Debug("Protocol bridge read ended")
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.ID]
		if ok {
			delete(c.pending, frame.ID)
		}
		c.mu.Unlock()

		// Responses arriving after their call timed out are dropped
		if ok {
			ch <- frame
		}
	}
}

// hasTool reports whether the bridge advertised a tool during the handshake
func (c *ProtocolClient) hasTool(tool string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools[tool]
}

func (c *ProtocolClient) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// call sends one tool call and waits for its correlated response
func (c *ProtocolClient) call(ctx context.Context, tool string, args interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan protocolFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer c.removePending(id)

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", tool, err)
	}

	frameType := "tool_call"
	if tool == toolDescribe {
		frameType = "describe"
	}
	frame := protocolFrame{Type: frameType, ID: id, Tool: tool, Arguments: payload}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err = conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrProviderUnavailable, tool, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, mapProtocolError(resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s took longer than %s", ErrProviderTimeout, tool, c.callTimeout)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderTimeout, tool, ctx.Err())
		}
		return nil, ctx.Err()
	case <-done:
		return nil, fmt.Errorf("%w: connection closed during %s", ErrProviderUnavailable, tool)
	}
}

// mapProtocolError translates bridge error codes into client sentinels
func mapProtocolError(pe *protocolError) error {
	switch pe.Code {
	case "not_found":
		return fmt.Errorf("%w: %s", ErrAddressNotFound, pe.Message)
	case "invalid_address":
		return fmt.Errorf("%w: %s", ErrInvalidAddress, pe.Message)
	case "unsupported_chain":
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, pe.Message)
	case "invalid_time_range":
		return fmt.Errorf("%w: %s", ErrInvalidTimeRange, pe.Message)
	case "rate_limited":
		return fmt.Errorf("%w: %s", ErrProviderRateLimit, pe.Message)
	case "timeout":
		return fmt.Errorf("%w: %s", ErrProviderTimeout, pe.Message)
	default:
		return fmt.Errorf("%w: tool error: %s", ErrProviderUnavailable, pe.Message)
	}
}

// GetTokenTransfers retrieves one page of transfers through the bridge.
// Unlike the REST backend, an empty address is allowed; the bridge can
// stream chain-wide transfers.
func (c *ProtocolClient) GetTokenTransfers(ctx context.Context, query TransferQuery) (*TransferPage, error) {
	const op = "GetTokenTransfers"

	chain, ok := c.registry.Get(query.Chain)
	if !ok {
		return nil, NewClientError(types.SourceProtocol, op, ErrUnsupportedChain, map[string]interface{}{"chain": string(query.Chain)})
	}
	address := query.Address
	if address != "" {
		if !types.IsValidAddress(address) {
			return nil, NewClientError(types.SourceProtocol, op, ErrInvalidAddress, map[string]interface{}{"address": address})
		}
		address = types.NormalizeAddress(address)
	}
	window, err := types.ResolveWindow(query.AgeFrom, query.AgeTo, time.Now())
	if err != nil {
		return nil, NewClientError(types.SourceProtocol, op, fmt.Errorf("%w: %v", ErrInvalidTimeRange, err), nil)
	}

	args := protocolTransferArgs{
		ChainID: chain.NumericID,
		Address: address,
		AgeFrom: window.From.Format(time.RFC3339),
		AgeTo:   window.To.Format(time.RFC3339),
		Token:   query.Token,
		Cursor:  query.Cursor,
	}

	raw, err := c.call(ctx, toolGetTokenTransfers, args)
	if err != nil {
		return nil, NewClientError(types.SourceProtocol, op, err, map[string]interface{}{"chain": string(query.Chain)})
	}

	var result protocolTransfersResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: malformed result: %v", ErrProviderUnavailable, err), nil)
	}

	items := make([]types.TokenTransfer, 0, len(result.Items))
	for _, item := range result.Items {
		t, ok := convertProtocolTransfer(item)
		if !ok {
			continue
		}
		if !window.Contains(t.Timestamp) {
			continue
		}
		items = append(items, t)
	}

	return &TransferPage{Items: items, NextCursor: result.NextCursor, Source: types.SourceProtocol}, nil
}

// GetAddressInfo retrieves address metadata through the bridge
func (c *ProtocolClient) GetAddressInfo(ctx context.Context, chainID types.ChainID, address string) (*types.AddressInfo, error) {
	const op = "GetAddressInfo"

	chain, ok := c.registry.Get(chainID)
	if !ok {
		return nil, NewClientError(types.SourceProtocol, op, ErrUnsupportedChain, map[string]interface{}{"chain": string(chainID)})
	}
	if !types.IsValidAddress(address) {
		return nil, NewClientError(types.SourceProtocol, op, ErrInvalidAddress, map[string]interface{}{"address": address})
	}
	if !c.hasTool(toolGetAddressInfo) {
		return nil, NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: bridge does not expose %s", ErrProviderUnavailable, toolGetAddressInfo), nil)
	}

	args := protocolAddressArgs{ChainID: chain.NumericID, Address: types.NormalizeAddress(address)}
	raw, err := c.call(ctx, toolGetAddressInfo, args)
	if err != nil {
		return nil, NewClientError(types.SourceProtocol, op, err, map[string]interface{}{"chain": string(chainID)})
	}

	var result protocolAddressResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: malformed result: %v", ErrProviderUnavailable, err), nil)
	}

	addr := result.Address
	if addr == "" {
		addr = address
	}
	return &types.AddressInfo{
		Address:      types.NormalizeAddress(addr),
		Name:         result.Name,
		IsContract:   result.IsContract,
		IsVerified:   result.IsVerified,
		CoinBalance:  result.CoinBalance,
		ExchangeRate: result.ExchangeRate,
	}, nil
}

// GetTokensByAddress retrieves token balances through the bridge
func (c *ProtocolClient) GetTokensByAddress(ctx context.Context, chainID types.ChainID, address string) ([]types.TokenBalance, error) {
	const op = "GetTokensByAddress"

	chain, ok := c.registry.Get(chainID)
	if !ok {
		return nil, NewClientError(types.SourceProtocol, op, ErrUnsupportedChain, map[string]interface{}{"chain": string(chainID)})
	}
	if !types.IsValidAddress(address) {
		return nil, NewClientError(types.SourceProtocol, op, ErrInvalidAddress, map[string]interface{}{"address": address})
	}
	if !c.hasTool(toolGetTokensByAddress) {
		return nil, NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: bridge does not expose %s", ErrProviderUnavailable, toolGetTokensByAddress), nil)
	}

	args := protocolAddressArgs{ChainID: chain.NumericID, Address: types.NormalizeAddress(address)}
	raw, err := c.call(ctx, toolGetTokensByAddress, args)
	if err != nil {
		return nil, NewClientError(types.SourceProtocol, op, err, map[string]interface{}{"chain": string(chainID)})
	}

	var result protocolTokenBalancesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: malformed result: %v", ErrProviderUnavailable, err), nil)
	}

	balances := make([]types.TokenBalance, 0, len(result.Items))
	for _, item := range result.Items {
		token := types.TokenInfo{
			Address:      types.NormalizeAddress(item.Token.Address),
			Symbol:       item.Token.Symbol,
			Name:         item.Token.Name,
			Decimals:     item.Token.Decimals,
			ExchangeRate: item.Token.ExchangeRate,
		}
		balance := types.TokenBalance{Token: token, RawValue: item.Value, ValueUSD: item.ValueUSD}
		if balance.ValueUSD == nil {
			balance.ValueUSD = deriveValueUSD(item.Value, token.Decimals, token.ExchangeRate)
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// GetChainsList retrieves the chains the bridge can serve. Falls back to the
// local registry when the bridge does not expose the tool.
func (c *ProtocolClient) GetChainsList(ctx context.Context) ([]chains.Chain, error) {
	const op = "GetChainsList"

	if !c.hasTool(toolGetChainsList) {
		return c.registry.List(), nil
	}

	raw, err := c.call(ctx, toolGetChainsList, struct{}{})
	if err != nil {
		return nil, NewClientError(types.SourceProtocol, op, err, nil)
	}

	var result protocolChainsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewClientError(types.SourceProtocol, op,
			fmt.Errorf("%w: malformed result: %v", ErrProviderUnavailable, err), nil)
	}

	list := make([]chains.Chain, 0, len(result.Chains))
	for _, ch := range result.Chains {
		list = append(list, chains.Chain{
			ID:              types.ChainID(ch.ID),
			NumericID:       ch.NumericID,
			Name:            ch.Name,
			ExplorerBaseURL: ch.ExplorerURL,
			NativeSymbol:    ch.NativeSymbol,
		})
	}
	return list, nil
}

// convertProtocolTransfer normalizes one bridge item. Returns false for
// items missing the fields a whale scan needs.
func convertProtocolTransfer(item protocolTransferItem) (types.TokenTransfer, bool) {
	if item.Hash == "" || item.Value == "" || item.Timestamp <= 0 {
		return types.TokenTransfer{}, false
	}

	transfer := types.TokenTransfer{
		Hash:      item.Hash,
		From:      item.From,
		To:        item.To,
		RawValue:  item.Value,
		Timestamp: item.Timestamp,
		Token: types.TokenInfo{
			Address:      item.Token.Address,
			Symbol:       item.Token.Symbol,
			Name:         item.Token.Name,
			Decimals:     item.Token.Decimals,
			ExchangeRate: item.Token.ExchangeRate,
		},
		ValueUSD: item.ValueUSD,
	}
	return finishTransfer(transfer), true
}
