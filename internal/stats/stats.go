// Package stats derives summary statistics and the whale leaderboard from a
// merged transfer list. Everything here is pure: no I/O, no clock, inputs are
// never mutated.
package stats

import (
	"sort"

	"github.com/whale-scanner/internal/types"
)

// Compute summarizes a merged transfer list. An empty input yields zero
// stats, not an error.
func Compute(transfers []types.WhaleTransfer) types.WhaleStats {
	stats := types.WhaleStats{TotalTransfers: len(transfers)}

	seen := make(map[string]struct{}, len(transfers)*2)
	for _, t := range transfers {
		value := usd(t)
		stats.TotalVolumeUSD += value
		if value > stats.LargestTransferUSD {
			stats.LargestTransferUSD = value
		}
		seen[t.From] = struct{}{}
		seen[t.To] = struct{}{}
	}
	stats.UniqueWhaleAddresses = len(seen)
	return stats
}

// Leaderboard ranks addresses by the whale-scale volume they moved in either
// direction. Every transfer credits both its sender and its receiver with the
// full USD value and one transfer count; a self-transfer credits its address
// once, not twice. Results are ordered by volume descending, ties by transfer
// count descending, then address ascending, truncated to topN.
func Leaderboard(transfers []types.WhaleTransfer, topN int) []types.WhaleRank {
	if topN <= 0 || len(transfers) == 0 {
		return []types.WhaleRank{}
	}

	totals := make(map[string]*types.WhaleRank, len(transfers)*2)
	credit := func(address string, value float64) {
		rank, ok := totals[address]
		if !ok {
			rank = &types.WhaleRank{Address: address}
			totals[address] = rank
		}
		rank.VolumeUSD += value
		rank.TransferCount++
	}

	for _, t := range transfers {
		value := usd(t)
		credit(t.From, value)
		if t.To != t.From {
			credit(t.To, value)
		}
	}

	ranks := make([]types.WhaleRank, 0, len(totals))
	for _, rank := range totals {
		ranks = append(ranks, *rank)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].VolumeUSD != ranks[j].VolumeUSD {
			return ranks[i].VolumeUSD > ranks[j].VolumeUSD
		}
		if ranks[i].TransferCount != ranks[j].TransferCount {
			return ranks[i].TransferCount > ranks[j].TransferCount
		}
		return ranks[i].Address < ranks[j].Address
	})

	if len(ranks) > topN {
		ranks = ranks[:topN]
	}
	return ranks
}

// SourceCounts tallies transfers by the backend that served them
func SourceCounts(transfers []types.WhaleTransfer) map[types.DataSource]int {
	counts := make(map[types.DataSource]int)
	for _, t := range transfers {
		counts[t.DataSource]++
	}
	return counts
}

// usd reads a transfer's derived USD value. The monitor only surfaces
// transfers with a known value, so a nil here counts as zero rather than
// poisoning the totals.
func usd(t types.WhaleTransfer) float64 {
	if t.ValueUSD == nil {
		return 0
	}
	return *t.ValueUSD
}
