package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/errors"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/types"
)

// AggregateRequest describes one multi-chain whale aggregation
type AggregateRequest struct {
	Chains      []types.ChainID
	Window      types.TimeWindow
	MinValueUSD float64
	// Token optionally restricts results to one token, matched
	// case-insensitively against symbol or contract address
	Token string
}

// AggregateResult carries the merged transfers plus the per-chain outcomes
// they were built from. Warnings holds one entry per failed chain.
type AggregateResult struct {
	Transfers    []types.WhaleTransfer
	ChainResults []types.ChainScanResult
	Warnings     []string
}

// AggregatorConfig bounds one aggregation run
type AggregatorConfig struct {
	// MaxConcurrentChains caps how many chains are scanned at once
	MaxConcurrentChains int
}

// Aggregator fans a whale scan out across chains and merges the results.
// Individual chain failures degrade the result instead of failing it; the
// aggregation errors only when no chain could be scanned at all.
type Aggregator struct {
	monitor             *Monitor
	registry            *chains.Registry
	maxConcurrentChains int
}

// NewAggregator creates an aggregator scanning via the given monitor. The
// registry decides which chain ids are known; requests naming any other id
// are rejected before anything is scanned.
func NewAggregator(monitor *Monitor, registry *chains.Registry, cfg AggregatorConfig) *Aggregator {
	maxConcurrent := cfg.MaxConcurrentChains
	if maxConcurrent < 1 {
		maxConcurrent = 5
	}

	return &Aggregator{
		monitor:             monitor,
		registry:            registry,
		maxConcurrentChains: maxConcurrent,
	}
}

// Aggregate scans the requested chains concurrently and merges their whale
// transfers into one deterministically ordered list. Chains that fail are
// reported in Warnings and ChainResults rather than failing the call; the
// returned error is non-nil only for invalid requests or when every
// requested chain failed.
func (a *Aggregator) Aggregate(ctx context.Context, req AggregateRequest) (*AggregateResult, error) {
	resolved, err := a.resolveChains(req.Chains)
	if err != nil {
		return nil, err
	}
	if req.MinValueUSD < 0 {
		return nil, errors.NewInvalidParameterError("min_value", "must not be negative")
	}

	start := time.Now()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"chains":      len(resolved),
		"minValueUsd": req.MinValueUSD,
	})

	// Fixed result slots keep collection order deterministic no matter
	// which scan finishes first
	results := make([]types.ChainScanResult, len(resolved))

	var g errgroup.Group
	g.SetLimit(a.maxConcurrentChains)
	for i, chain := range resolved {
		i, chain := i, chain
		g.Go(func() error {
			results[i] = a.monitor.ScanChain(ctx, chain, req.Window, req.MinValueUSD)
			return nil
		})
	}
	// Scans report failure through ChainScanResult.Err, never an error
	_ = g.Wait()

	var (
		merged   []types.WhaleTransfer
		warnings []string
	)
	for i, result := range results {
		if result.Failed() {
			warnings = append(warnings, fmt.Sprintf("%s: %s", resolved[i].Name, result.Err))
			continue
		}
		merged = append(merged, result.Transfers...)
	}

	if len(warnings) == len(resolved) {
		logger.WithField("warnings", warnings).Error("Aggregation failed on every chain")
		return nil, errors.NewAggregateFailureError(warnings)
	}

	if req.Token != "" {
		merged = filterByToken(merged, req.Token)
	}

	sortMerged(merged)

	logger.WithFields(map[string]interface{}{
		"transfers":    len(merged),
		"failedChains": len(warnings),
		"duration":     time.Since(start).String(),
	}).Info("Aggregation complete")

	return &AggregateResult{
		Transfers:    merged,
		ChainResults: results,
		Warnings:     warnings,
	}, nil
}

// resolveChains validates the requested ids against the registry and
// de-duplicates them preserving first-seen order.
func (a *Aggregator) resolveChains(ids []types.ChainID) ([]chains.Chain, error) {
	seen := make(map[types.ChainID]bool, len(ids))
	resolved := make([]chains.Chain, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		chain, ok := a.registry.Get(id)
		if !ok {
			return nil, errors.NewUnknownChainError(id)
		}
		resolved = append(resolved, chain)
	}
	if len(resolved) == 0 {
		return nil, errors.NewInvalidParameterError("chains", "at least one chain is required")
	}
	return resolved, nil
}

func filterByToken(transfers []types.WhaleTransfer, token string) []types.WhaleTransfer {
	filtered := make([]types.WhaleTransfer, 0, len(transfers))
	for _, t := range transfers {
		if strings.EqualFold(t.Token.Symbol, token) || strings.EqualFold(t.Token.Address, token) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// sortMerged orders the merged set newest first, with USD value and then
// transaction hash as tie-breakers so equal inputs always produce equal
// output order.
func sortMerged(transfers []types.WhaleTransfer) {
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].Timestamp != transfers[j].Timestamp {
			return transfers[i].Timestamp > transfers[j].Timestamp
		}
		vi, vj := *transfers[i].ValueUSD, *transfers[j].ValueUSD
		if vi != vj {
			return vi > vj
		}
		return transfers[i].Hash < transfers[j].Hash
	})
}
