// Package monitor implements the whale detection core: the per-chain scan
// over the monitored address roster and the multi-chain aggregation that
// merges scan results with partial-failure tolerance.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/datasource"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/types"
)

// ClientFactory builds one data source client per scan. Each scan owns the
// Connect/Disconnect lifecycle of the client it receives.
type ClientFactory interface {
	NewClient() datasource.Client
}

// MonitorConfig bounds one chain scan
type MonitorConfig struct {
	// MaxPagesPerAddress caps cursor-following per roster address
	MaxPagesPerAddress int
	// MaxTransfersPerChain caps the transfers one chain contributes,
	// keeping the highest-value ones
	MaxTransfersPerChain int
}

// Monitor scans a single chain's monitored addresses for whale transfers
type Monitor struct {
	factory              ClientFactory
	roster               *Roster
	maxPagesPerAddress   int
	maxTransfersPerChain int
}

// NewMonitor creates a whale monitor over the given roster. The roster is
// injected rather than read from a global so tests can scan a fixture list.
func NewMonitor(factory ClientFactory, roster *Roster, cfg MonitorConfig) *Monitor {
	maxPages := cfg.MaxPagesPerAddress
	if maxPages < 1 {
		maxPages = 3
	}
	maxTransfers := cfg.MaxTransfersPerChain
	if maxTransfers < 1 {
		maxTransfers = 200
	}

	return &Monitor{
		factory:              factory,
		roster:               roster,
		maxPagesPerAddress:   maxPages,
		maxTransfersPerChain: maxTransfers,
	}
}

// ScanChain scans every monitored address on one chain for transfers at or
// above minValueUSD inside the window. Failure is reported through the
// result's Err field, never a Go error: a failed address is skipped, and the
// chain as a whole fails only when every address failed. A result with a
// non-empty Err carries no transfers, so "chain had no whale activity" and
// "chain was unreachable" stay distinguishable.
func (m *Monitor) ScanChain(ctx context.Context, chain chains.Chain, window types.TimeWindow, minValueUSD float64) types.ChainScanResult {
	start := time.Now()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"chain":     string(chain.ID),
		"addresses": m.roster.Len(),
	})

	client := m.factory.NewClient()
	if err := client.Connect(ctx); err != nil {
		logger.WithError(err).Warn("Chain scan could not connect data source")
		return failedScan(chain.ID, fmt.Sprintf("connect: %v", err))
	}
	defer func() {
		if err := client.Disconnect(); err != nil {
			logger.WithError(err).Warn("Data source disconnect failed")
		}
	}()

	var (
		transfers []types.WhaleTransfer
		unpriced  int
		failed    int
	)

	for _, entry := range m.roster.Entries() {
		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Chain scan canceled")
			return failedScan(chain.ID, fmt.Sprintf("scan canceled: %v", ctx.Err()))
		}

		kept, dropped, err := m.scanAddress(ctx, client, chain, entry, window, minValueUSD)
		if err != nil {
			// One unreachable address must not sink the rest of the chain
			failed++
			logger.WithError(err).WithFields(map[string]interface{}{
				"address": entry.Address,
				"label":   entry.Label,
			}).Warn("Address scan failed, skipping")
			continue
		}
		transfers = append(transfers, kept...)
		unpriced += dropped
	}

	if failed == m.roster.Len() {
		logger.WithField("failedAddresses", failed).Error("Chain scan failed for every address")
		return failedScan(chain.ID, fmt.Sprintf("all %d monitored addresses failed", failed))
	}

	// Highest value first, so truncation keeps the transfers worth showing
	sort.Slice(transfers, func(i, j int) bool {
		vi, vj := *transfers[i].ValueUSD, *transfers[j].ValueUSD
		if vi != vj {
			return vi > vj
		}
		return transfers[i].Timestamp > transfers[j].Timestamp
	})
	if len(transfers) > m.maxTransfersPerChain {
		transfers = transfers[:m.maxTransfersPerChain]
	}

	logger.WithFields(map[string]interface{}{
		"transfers":       len(transfers),
		"unpriced":        unpriced,
		"failedAddresses": failed,
		"source":          string(client.Source()),
		"duration":        time.Since(start).String(),
	}).Info("Chain scan complete")

	return types.ChainScanResult{ChainID: chain.ID, Transfers: transfers}
}

// scanAddress pages through one address's transfers, keeping those with a
// known USD value at or above the threshold. The second result counts
// transfers dropped for having no resolvable USD value; they are never
// treated as zero-value.
func (m *Monitor) scanAddress(ctx context.Context, client datasource.Client, chain chains.Chain, entry types.MonitoredAddress, window types.TimeWindow, minValueUSD float64) ([]types.WhaleTransfer, int, error) {
	// Absolute bounds so follow-up pages query the same window the first
	// page did
	query := datasource.TransferQuery{
		Chain:   chain.ID,
		Address: entry.Address,
		AgeFrom: window.From.Format(time.RFC3339),
		AgeTo:   window.To.Format(time.RFC3339),
	}

	var kept []types.WhaleTransfer
	unpriced := 0

	for page := 0; page < m.maxPagesPerAddress; page++ {
		result, err := client.GetTokenTransfers(ctx, query)
		if err != nil {
			return nil, 0, err
		}

		for _, t := range result.Items {
			if t.ValueUSD == nil {
				unpriced++
				continue
			}
			if *t.ValueUSD < minValueUSD {
				continue
			}
			kept = append(kept, types.WhaleTransfer{
				TokenTransfer: t,
				ChainID:       chain.ID,
				ChainName:     chain.Name,
				DataSource:    result.Source,
			})
		}

		if result.NextCursor == "" {
			break
		}
		query.Cursor = result.NextCursor
	}

	return kept, unpriced, nil
}

func failedScan(chainID types.ChainID, reason string) types.ChainScanResult {
	return types.ChainScanResult{ChainID: chainID, Err: reason}
}
