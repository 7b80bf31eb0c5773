package stats

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/whale-scanner/internal/types"
)

// genTransfers builds transfer lists over a small address pool so collisions
// (shared addresses, self-transfers) actually occur. Values are whole dollars
// so float sums stay exact and properties can compare equality.
func genTransfers() gopter.Gen {
	pool := []string{addrA, addrB, addrC, addrD}

	genOne := gopter.CombineGens(
		gen.IntRange(0, len(pool)-1),
		gen.IntRange(0, len(pool)-1),
		gen.Int64Range(1, 1_000_000_000),
		gen.Int64Range(1, 2_000_000_000),
	).Map(func(vals []interface{}) types.WhaleTransfer {
		value := float64(vals[2].(int64))
		return types.WhaleTransfer{
			TokenTransfer: types.TokenTransfer{
				Hash:      fmt.Sprintf("0x%x", vals[3].(int64)),
				From:      pool[vals[0].(int)],
				To:        pool[vals[1].(int)],
				RawValue:  "1",
				Timestamp: vals[3].(int64),
				ValueUSD:  &value,
			},
			ChainID:    types.ChainEthereum,
			ChainName:  "Ethereum",
			DataSource: types.SourceREST,
		}
	})

	return gen.SliceOf(genOne)
}

func TestComputeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("stats agree with direct recomputation", prop.ForAll(
		func(transfers []types.WhaleTransfer) bool {
			got := Compute(transfers)

			var volume, largest float64
			union := make(map[string]struct{})
			for _, tr := range transfers {
				volume += *tr.ValueUSD
				if *tr.ValueUSD > largest {
					largest = *tr.ValueUSD
				}
				union[tr.From] = struct{}{}
				union[tr.To] = struct{}{}
			}

			return got.TotalTransfers == len(transfers) &&
				got.TotalVolumeUSD == volume &&
				got.LargestTransferUSD == largest &&
				got.UniqueWhaleAddresses == len(union)
		},
		genTransfers(),
	))

	properties.Property("input order does not change the stats", prop.ForAll(
		func(transfers []types.WhaleTransfer) bool {
			reversed := make([]types.WhaleTransfer, len(transfers))
			for i, tr := range transfers {
				reversed[len(transfers)-1-i] = tr
			}
			return Compute(transfers) == Compute(reversed)
		},
		genTransfers(),
	))

	properties.TestingRun(t)
}

func TestLeaderboardProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("credited volume and counts are conserved", prop.ForAll(
		func(transfers []types.WhaleTransfer) bool {
			ranks := Leaderboard(transfers, len(transfers)*2+1)

			var wantVolume, gotVolume float64
			var wantCount, gotCount int
			for _, tr := range transfers {
				credits := 2
				if tr.From == tr.To {
					credits = 1
				}
				wantVolume += float64(credits) * *tr.ValueUSD
				wantCount += credits
			}
			for _, rank := range ranks {
				gotVolume += rank.VolumeUSD
				gotCount += rank.TransferCount
			}

			return gotVolume == wantVolume && gotCount == wantCount
		},
		genTransfers(),
	))

	properties.Property("leaderboard is ordered and bounded", prop.ForAll(
		func(transfers []types.WhaleTransfer, topN int) bool {
			ranks := Leaderboard(transfers, topN)
			if len(ranks) > topN {
				return false
			}
			return sort.SliceIsSorted(ranks, func(i, j int) bool {
				if ranks[i].VolumeUSD != ranks[j].VolumeUSD {
					return ranks[i].VolumeUSD > ranks[j].VolumeUSD
				}
				if ranks[i].TransferCount != ranks[j].TransferCount {
					return ranks[i].TransferCount > ranks[j].TransferCount
				}
				return ranks[i].Address < ranks[j].Address
			})
		},
		genTransfers(),
		gen.IntRange(1, 10),
	))

	properties.Property("input order does not change the ranking", prop.ForAll(
		func(transfers []types.WhaleTransfer) bool {
			reversed := make([]types.WhaleTransfer, len(transfers))
			for i, tr := range transfers {
				reversed[len(transfers)-1-i] = tr
			}

			a := Leaderboard(transfers, 10)
			b := Leaderboard(reversed, 10)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		genTransfers(),
	))

	properties.TestingRun(t)
}
