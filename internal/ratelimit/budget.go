// Package ratelimit coordinates the shared explorer API request budget
// across scanner instances using Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 300             // Total requests per window
	DefaultReservedBudget = 100             // Reserved for interactive queries
	DefaultSharedBudget   = 200             // Available for background scans
	DefaultWindowSize     = time.Minute     // 1 minute sliding window
	DefaultKeyTTL         = 2 * time.Minute // TTL for Redis keys (window + buffer)
)

// Redis key prefixes for request tracking.
const (
	KeyPrefixTotal       = "explorer:total:"
	KeyPrefixInteractive = "explorer:interactive:"
	KeyPrefixBackground  = "explorer:background:"
)

// Priority levels for budget allocation.
type Priority int

const (
	// PriorityInteractive is for user-facing dashboard queries (uses reserved budget).
	PriorityInteractive Priority = iota
	// PriorityBackground is for scheduled scans and prefetching (uses shared budget).
	PriorityBackground
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// RequestBudget coordinates explorer API request consumption across scanner
// instances using Redis. It implements a sliding window rate limiter with
// separate pools for interactive (reserved) and background (shared) calls.
type RequestBudget struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
}

// RequestBudgetConfig holds configuration for the request budget.
type RequestBudgetConfig struct {
	// Redis is the Redis client for cross-instance coordination.
	// Required - the budget cannot function without Redis.
	Redis redis.Cmdable

	// TotalBudget is the total requests per window. Default: 300.
	TotalBudget int

	// ReservedBudget is the requests per window reserved for interactive
	// queries. Default: 100.
	ReservedBudget int

	// WindowSize is the sliding window duration. Default: 1m.
	WindowSize time.Duration

	// KeyTTL is the TTL for Redis keys. Default: 2m (window + buffer).
	// Should be at least WindowSize to ensure proper expiration.
	KeyTTL time.Duration
}

// BudgetUsage contains current consumption metrics.
type BudgetUsage struct {
	// TotalUsed is the total requests consumed in the current window.
	TotalUsed int

	// InteractiveUsed is the requests consumed from the reserved pool.
	InteractiveUsed int

	// BackgroundUsed is the requests consumed from the shared pool.
	BackgroundUsed int

	// TotalBudget is the configured total per-window budget.
	TotalBudget int

	// ReservedBudget is the configured reserved per-window budget.
	ReservedBudget int

	// SharedBudget is the configured shared per-window budget.
	SharedBudget int

	// WindowStart is the start time of the current window.
	WindowStart time.Time
}

// Validate checks if the configuration is valid.
func (c *RequestBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}

	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	totalBudget := c.TotalBudget
	if totalBudget == 0 {
		totalBudget = DefaultTotalBudget
	}
	reservedBudget := c.ReservedBudget
	if reservedBudget == 0 {
		reservedBudget = DefaultReservedBudget
	}

	if reservedBudget > totalBudget {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reservedBudget, totalBudget)
	}

	return nil
}

// NewRequestBudget creates a new budget with the given configuration.
// Returns an error if the configuration is invalid.
func NewRequestBudget(cfg *RequestBudgetConfig) (*RequestBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	totalBudget := cfg.TotalBudget
	if totalBudget == 0 {
		totalBudget = DefaultTotalBudget
	}

	reservedBudget := cfg.ReservedBudget
	if reservedBudget == 0 {
		reservedBudget = DefaultReservedBudget
	}

	sharedBudget := totalBudget - reservedBudget

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}

	return &RequestBudget{
		redis:          cfg.Redis,
		totalBudget:    totalBudget,
		reservedBudget: reservedBudget,
		sharedBudget:   sharedBudget,
		windowSize:     windowSize,
		keyTTL:         keyTTL,
	}, nil
}

// getWindowTimestamp returns the timestamp for the current sliding window.
// The window is aligned to the window size boundary.
func (b *RequestBudget) getWindowTimestamp() int64 {
	windowStart := time.Now().Truncate(b.windowSize)
	return windowStart.UnixMilli()
}

// getKeys returns the Redis keys for the current window.
func (b *RequestBudget) getKeys(windowTS int64) (totalKey, interactiveKey, backgroundKey string) {
	tsStr := strconv.FormatInt(windowTS, 10)
	totalKey = KeyPrefixTotal + tsStr
	interactiveKey = KeyPrefixInteractive + tsStr
	backgroundKey = KeyPrefixBackground + tsStr
	return
}

// TryConsume attempts to consume n requests from the appropriate budget pool.
// For PriorityInteractive, it uses the reserved pool; for PriorityBackground,
// the shared pool.
//
// A non-nil error means Redis could not answer; the caller decides whether
// to fail open or closed in that case.
func (b *RequestBudget) TryConsume(ctx context.Context, n int, priority Priority) (bool, error) {
	if n <= 0 {
		return true, nil
	}

	windowTS := b.getWindowTimestamp()
	totalKey, interactiveKey, backgroundKey := b.getKeys(windowTS)

	var poolKey string
	var poolBudget int
	if priority == PriorityInteractive {
		poolKey = interactiveKey
		poolBudget = b.reservedBudget
	} else {
		poolKey = backgroundKey
		poolBudget = b.sharedBudget
	}

	// Use a Lua script for atomic check-and-increment
	// This ensures we don't exceed the budget even under concurrent access
	script := redis.NewScript(`
		local totalKey = KEYS[1]
		local poolKey = KEYS[2]
		local n = tonumber(ARGV[1])
		local totalBudget = tonumber(ARGV[2])
		local poolBudget = tonumber(ARGV[3])
		local ttl = tonumber(ARGV[4])

		-- Get current values
		local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
		local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

		-- Check if we have budget in both total and pool
		if totalUsed + n > totalBudget then
			return {0, totalUsed, poolUsed}
		end
		if poolUsed + n > poolBudget then
			return {0, totalUsed, poolUsed}
		end

		-- Atomically increment both counters
		redis.call('INCRBY', totalKey, n)
		redis.call('EXPIRE', totalKey, ttl)
		redis.call('INCRBY', poolKey, n)
		redis.call('EXPIRE', poolKey, ttl)

		return {1, totalUsed + n, poolUsed + n}
	`)

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := script.Run(ctx, b.redis, []string{totalKey, poolKey},
		n, b.totalBudget, poolBudget, ttlSeconds).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("budget check failed: %w", err)
	}

	return result[0] == 1, nil
}

// GetUsage returns current request usage statistics.
func (b *RequestBudget) GetUsage(ctx context.Context) (*BudgetUsage, error) {
	windowTS := b.getWindowTimestamp()
	totalKey, interactiveKey, backgroundKey := b.getKeys(windowTS)

	// Use pipeline to get all values in one round trip
	pipe := b.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	interactiveCmd := pipe.Get(ctx, interactiveKey)
	backgroundCmd := pipe.Get(ctx, backgroundKey)

	// Ignore redis.Nil errors - they just mean the key doesn't exist yet
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read budget usage: %w", err)
	}

	return &BudgetUsage{
		TotalUsed:       parseIntOrZero(totalCmd),
		InteractiveUsed: parseIntOrZero(interactiveCmd),
		BackgroundUsed:  parseIntOrZero(backgroundCmd),
		TotalBudget:     b.totalBudget,
		ReservedBudget:  b.reservedBudget,
		SharedBudget:    b.sharedBudget,
		WindowStart:     time.UnixMilli(windowTS),
	}, nil
}

// parseIntOrZero parses a Redis string command result as int, returning 0 on error.
func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}

// GetTotalBudget returns the configured total per-window budget.
func (b *RequestBudget) GetTotalBudget() int {
	return b.totalBudget
}

// GetReservedBudget returns the configured reserved per-window budget.
func (b *RequestBudget) GetReservedBudget() int {
	return b.reservedBudget
}

// GetSharedBudget returns the configured shared per-window budget.
func (b *RequestBudget) GetSharedBudget() int {
	return b.sharedBudget
}

// GetWindowSize returns the configured window size.
func (b *RequestBudget) GetWindowSize() time.Duration {
	return b.windowSize
}

// Remaining returns the available budget for a given priority level.
func (b *RequestBudget) Remaining(ctx context.Context, priority Priority) (int, error) {
	usage, err := b.GetUsage(ctx)
	if err != nil {
		return 0, err
	}

	if priority == PriorityInteractive {
		available := b.reservedBudget - usage.InteractiveUsed
		if available < 0 {
			available = 0
		}
		return available, nil
	}

	available := b.sharedBudget - usage.BackgroundUsed
	if available < 0 {
		available = 0
	}
	return available, nil
}

// Utilization returns the current total budget utilization as a percentage (0-100).
func (b *RequestBudget) Utilization(ctx context.Context) (float64, error) {
	usage, err := b.GetUsage(ctx)
	if err != nil {
		return 0, err
	}

	if b.totalBudget == 0 {
		return 100, nil
	}

	return float64(usage.TotalUsed) * 100 / float64(b.totalBudget), nil
}
