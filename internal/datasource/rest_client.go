package datasource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/ratelimit"
	"github.com/whale-scanner/internal/types"
)

const maxResponseBytes = 10 << 20

// RESTClient fetches whale data from public Blockscout-style explorer APIs.
// It is stateless; Connect and Disconnect are no-ops kept for contract
// symmetry with the protocol backend.
type RESTClient struct {
	registry   *chains.Registry
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	budget     *ratelimit.RequestBudget // optional shared quota, nil disables
	maxRetries int
	baseDelay  time.Duration
}

// RESTClientConfig configures a RESTClient
type RESTClientConfig struct {
	Registry          *chains.Registry
	APIKey            string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	Budget            *ratelimit.RequestBudget
}

// NewRESTClient creates a REST explorer client
func NewRESTClient(cfg RESTClientConfig) *RESTClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 5
	}

	return &RESTClient{
		registry:   cfg.Registry,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		budget:     cfg.Budget,
		maxRetries: retries,
		baseDelay:  1 * time.Second,
	}
}

// Connect is a no-op for the stateless REST backend
func (c *RESTClient) Connect(ctx context.Context) error {
	return nil
}

// Disconnect is a no-op for the stateless REST backend
func (c *RESTClient) Disconnect() error {
	return nil
}

// Source returns the backend identity
func (c *RESTClient) Source() types.DataSource {
	return types.SourceREST
}

// Explorer wire structures (Blockscout v2 shapes)

type explorerAddressParty struct {
	Hash string `json:"hash"`
}

type explorerTotal struct {
	Value    string `json:"value"`
	Decimals string `json:"decimals"`
}

type explorerToken struct {
	Address      string `json:"address"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Decimals     string `json:"decimals"`
	ExchangeRate string `json:"exchange_rate"`
}

type explorerTransferItem struct {
	TransactionHash string               `json:"transaction_hash"`
	Timestamp       string               `json:"timestamp"`
	From            explorerAddressParty `json:"from"`
	To              explorerAddressParty `json:"to"`
	Total           explorerTotal        `json:"total"`
	Token           explorerToken        `json:"token"`
}

type explorerTransfersResponse struct {
	Items          []explorerTransferItem `json:"items"`
	NextPageParams map[string]interface{} `json:"next_page_params"`
}

type explorerAddressResponse struct {
	Hash         string  `json:"hash"`
	Name         *string `json:"name"`
	IsContract   bool    `json:"is_contract"`
	IsVerified   bool    `json:"is_verified"`
	CoinBalance  string  `json:"coin_balance"`
	ExchangeRate string  `json:"exchange_rate"`
}

type explorerTokenBalanceItem struct {
	Token explorerToken `json:"token"`
	Value string        `json:"value"`
}

type explorerTokenBalancesResponse struct {
	Items []explorerTokenBalanceItem `json:"items"`
}

// GetTokenTransfers retrieves one page of ERC-20 transfers for an address
func (c *RESTClient) GetTokenTransfers(ctx context.Context, query TransferQuery) (*TransferPage, error) {
	const op = "GetTokenTransfers"

	chain, ok := c.registry.Get(query.Chain)
	if !ok {
		return nil, NewClientError(types.SourceREST, op, ErrUnsupportedChain, map[string]interface{}{"chain": string(query.Chain)})
	}
	// The explorer API cannot scan a whole chain; refuse rather than return
	// an unrelated firehose
	if strings.TrimSpace(query.Address) == "" {
		return nil, NewClientError(types.SourceREST, op, ErrAddressRequired, nil)
	}
	if !types.IsValidAddress(query.Address) {
		return nil, NewClientError(types.SourceREST, op, ErrInvalidAddress, map[string]interface{}{"address": query.Address})
	}
	window, err := types.ResolveWindow(query.AgeFrom, query.AgeTo, time.Now())
	if err != nil {
		return nil, NewClientError(types.SourceREST, op, fmt.Errorf("%w: %v", ErrInvalidTimeRange, err), nil)
	}

	params := url.Values{}
	params.Set("type", "ERC-20")
	params.Set("age_from", window.From.Format(time.RFC3339))
	params.Set("age_to", window.To.Format(time.RFC3339))
	if query.Token != "" && types.IsValidAddress(query.Token) {
		params.Set("token", types.NormalizeAddress(query.Token))
	}
	if query.Cursor != "" {
		cursorParams, err := decodeCursor(query.Cursor)
		if err != nil {
			return nil, NewClientError(types.SourceREST, op, err, nil)
		}
		for k, v := range cursorParams {
			params.Set(k, paramString(v))
		}
	}

	endpoint := fmt.Sprintf("%s/api/v2/addresses/%s/token-transfers",
		strings.TrimSuffix(chain.ExplorerBaseURL, "/"), types.NormalizeAddress(query.Address))

	body, status, err := c.doRequest(ctx, endpoint, params, ratelimit.PriorityInteractive)
	if err != nil {
		return nil, NewClientError(types.SourceREST, op, err, map[string]interface{}{"chain": string(query.Chain)})
	}
	switch {
	case status == http.StatusNotFound:
		return nil, NewClientError(types.SourceREST, op, ErrAddressNotFound, map[string]interface{}{"address": query.Address})
	case status != http.StatusOK:
		return nil, NewClientError(types.SourceREST, op,
			fmt.Errorf("%w: HTTP %d: %s", ErrProviderUnavailable, status, truncateBody(body)), nil)
	}

	var payload explorerTransfersResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewClientError(types.SourceREST, op, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err), nil)
	}

	transfers := make([]types.TokenTransfer, 0, len(payload.Items))
	skipped := 0
	for _, item := range payload.Items {
		t, ok := convertExplorerTransfer(item)
		if !ok {
			skipped++
			continue
		}
		// Some explorers ignore the age params; enforce the window here
		if !window.Contains(t.Timestamp) {
			continue
		}
		transfers = append(transfers, t)
	}
	if skipped > 0 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"chain":   string(query.Chain),
			"skipped": skipped,
		}).Debug("Dropped malformed explorer transfer items")
	}

	nextCursor, err := encodeCursor(payload.NextPageParams)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Could not encode explorer cursor, stopping pagination")
		nextCursor = ""
	}

	return &TransferPage{Items: transfers, NextCursor: nextCursor, Source: types.SourceREST}, nil
}

// GetAddressInfo retrieves explorer metadata about an address
func (c *RESTClient) GetAddressInfo(ctx context.Context, chainID types.ChainID, address string) (*types.AddressInfo, error) {
	const op = "GetAddressInfo"

	chain, ok := c.registry.Get(chainID)
	if !ok {
		return nil, NewClientError(types.SourceREST, op, ErrUnsupportedChain, map[string]interface{}{"chain": string(chainID)})
	}
	if !types.IsValidAddress(address) {
		return nil, NewClientError(types.SourceREST, op, ErrInvalidAddress, map[string]interface{}{"address": address})
	}

	endpoint := fmt.Sprintf("%s/api/v2/addresses/%s",
		strings.TrimSuffix(chain.ExplorerBaseURL, "/"), types.NormalizeAddress(address))

	body, status, err := c.doRequest(ctx, endpoint, url.Values{}, ratelimit.PriorityBackground)
	if err != nil {
		return nil, NewClientError(types.SourceREST, op, err, map[string]interface{}{"chain": string(chainID)})
	}
	switch {
	case status == http.StatusNotFound:
		return nil, NewClientError(types.SourceREST, op, ErrAddressNotFound, map[string]interface{}{"address": address})
	case status != http.StatusOK:
		return nil, NewClientError(types.SourceREST, op,
			fmt.Errorf("%w: HTTP %d: %s", ErrProviderUnavailable, status, truncateBody(body)), nil)
	}

	var payload explorerAddressResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewClientError(types.SourceREST, op, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err), nil)
	}

	info := &types.AddressInfo{
		Address:      types.NormalizeAddress(address),
		Name:         payload.Name,
		IsContract:   payload.IsContract,
		IsVerified:   payload.IsVerified,
		CoinBalance:  payload.CoinBalance,
		ExchangeRate: parseRate(payload.ExchangeRate),
	}
	return info, nil
}

// GetTokensByAddress retrieves ERC-20 balances held by an address
func (c *RESTClient) GetTokensByAddress(ctx context.Context, chainID types.ChainID, address string) ([]types.TokenBalance, error) {
	const op = "GetTokensByAddress"

	chain, ok := c.registry.Get(chainID)
	if !ok {
		return nil, NewClientError(types.SourceREST, op, ErrUnsupportedChain, map[string]interface{}{"chain": string(chainID)})
	}
	if !types.IsValidAddress(address) {
		return nil, NewClientError(types.SourceREST, op, ErrInvalidAddress, map[string]interface{}{"address": address})
	}

	endpoint := fmt.Sprintf("%s/api/v2/addresses/%s/tokens",
		strings.TrimSuffix(chain.ExplorerBaseURL, "/"), types.NormalizeAddress(address))
	params := url.Values{}
	params.Set("type", "ERC-20")

	body, status, err := c.doRequest(ctx, endpoint, params, ratelimit.PriorityBackground)
	if err != nil {
		return nil, NewClientError(types.SourceREST, op, err, map[string]interface{}{"chain": string(chainID)})
	}
	switch {
	case status == http.StatusNotFound:
		return nil, NewClientError(types.SourceREST, op, ErrAddressNotFound, map[string]interface{}{"address": address})
	case status != http.StatusOK:
		return nil, NewClientError(types.SourceREST, op,
			fmt.Errorf("%w: HTTP %d: %s", ErrProviderUnavailable, status, truncateBody(body)), nil)
	}

	var payload explorerTokenBalancesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewClientError(types.SourceREST, op, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err), nil)
	}

	balances := make([]types.TokenBalance, 0, len(payload.Items))
	for _, item := range payload.Items {
		decimals, decOK := parseDecimals(item.Token.Decimals, "")
		token := types.TokenInfo{
			Address:      types.NormalizeAddress(item.Token.Address),
			Symbol:       item.Token.Symbol,
			Decimals:     decimals,
			ExchangeRate: parseRate(item.Token.ExchangeRate),
		}
		if item.Token.Name != "" {
			name := item.Token.Name
			token.Name = &name
		}
		balance := types.TokenBalance{Token: token, RawValue: item.Value}
		if decOK {
			balance.ValueUSD = deriveValueUSD(item.Value, decimals, token.ExchangeRate)
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// GetChainsList serves the supported chains from the local registry; public
// explorers have no cross-chain listing endpoint
func (c *RESTClient) GetChainsList(ctx context.Context) ([]chains.Chain, error) {
	return c.registry.List(), nil
}

// convertExplorerTransfer normalizes one explorer item. Returns false for
// items missing the fields a whale scan needs.
func convertExplorerTransfer(item explorerTransferItem) (types.TokenTransfer, bool) {
	if item.TransactionHash == "" || item.Total.Value == "" || item.From.Hash == "" || item.To.Hash == "" {
		return types.TokenTransfer{}, false
	}
	ts, err := time.Parse(time.RFC3339, item.Timestamp)
	if err != nil {
		return types.TokenTransfer{}, false
	}

	decimals, decOK := parseDecimals(item.Token.Decimals, item.Total.Decimals)
	token := types.TokenInfo{
		Address:      item.Token.Address,
		Symbol:       item.Token.Symbol,
		Decimals:     decimals,
		ExchangeRate: parseRate(item.Token.ExchangeRate),
	}
	if item.Token.Name != "" {
		name := item.Token.Name
		token.Name = &name
	}
	// A rate without known decimals cannot price the raw amount
	if !decOK {
		token.ExchangeRate = nil
	}

	transfer := types.TokenTransfer{
		Hash:      item.TransactionHash,
		From:      item.From.Hash,
		To:        item.To.Hash,
		RawValue:  item.Total.Value,
		Timestamp: ts.Unix(),
		Token:     token,
	}
	return finishTransfer(transfer), true
}

// parseDecimals parses the first usable decimals string
func parseDecimals(primary, fallback string) (int, bool) {
	for _, s := range []string{primary, fallback} {
		if s == "" {
			continue
		}
		if d, err := strconv.Atoi(s); err == nil && d >= 0 && d <= 78 {
			return d, true
		}
	}
	return 0, false
}

// encodeCursor packs explorer continuation params into an opaque token
func encodeCursor(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor unpacks an opaque cursor back into query params
func decodeCursor(cursor string) (map[string]interface{}, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return params, nil
}

func paramString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truncateBody(body []byte) string {
	const limit = 200
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// doRequest performs an HTTP GET with retry logic for network errors and
// rate limiting (429). Non-retryable statuses are returned to the caller.
func (c *RESTClient) doRequest(ctx context.Context, endpoint string, params url.Values, priority ratelimit.Priority) ([]byte, int, error) {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	fullURL := endpoint
	if encoded := params.Encode(); encoded != "" {
		fullURL = endpoint + "?" + encoded
	}

	baseDelay := c.baseDelay
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		if c.budget != nil {
			allowed, err := c.budget.TryConsume(ctx, 1, priority)
			if err != nil {
				// Budget state unavailable; fail open rather than block scans
				logger.WithError(err).Warn("Explorer request budget unavailable, failing open")
			} else if !allowed {
				lastErr = ErrProviderRateLimit
				if attempt < c.maxRetries {
					delay := backoffDelay(baseDelay, attempt, 60*time.Second)
					logger.WithFields(map[string]interface{}{
						"attempt": attempt + 1,
						"delay":   delay.String(),
					}).Warn("Explorer request budget exhausted, backing off")
					select {
					case <-time.After(delay):
						continue
					case <-ctx.Done():
						return nil, 0, ctx.Err()
					}
				}
				continue
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, 0, ErrProviderTimeout
				}
				return nil, 0, ctx.Err()
			}
			var ue *url.Error
			if errors.As(err, &ue) && ue.Timeout() {
				lastErr = fmt.Errorf("%w: %v", ErrProviderTimeout, err)
			} else {
				lastErr = fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			if attempt < c.maxRetries {
				delay := backoffDelay(baseDelay, attempt, 30*time.Second)
				logger.WithFields(map[string]interface{}{
					"attempt": attempt + 1,
					"delay":   delay.String(),
					"error":   err.Error(),
				}).Warn("Explorer request failed, retrying")
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				}
			}
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read response: %w", err)
		}

		// Handle rate limiting (429)
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrProviderRateLimit
			if attempt < c.maxRetries {
				// Use Retry-After header if present, otherwise exponential backoff
				delay := backoffDelay(baseDelay, attempt, 60*time.Second)
				if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
					if seconds, err := strconv.Atoi(retryAfter); err == nil {
						delay = time.Duration(seconds) * time.Second
					}
				}
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				logger.WithFields(map[string]interface{}{
					"attempt": attempt + 1,
					"delay":   delay.String(),
				}).Warn("Explorer rate limited, retrying")
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				}
			}
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > max {
		return max
	}
	return delay
}
