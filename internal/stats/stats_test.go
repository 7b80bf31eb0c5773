package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-scanner/internal/types"
)

const (
	addrA = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	addrB = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	addrC = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	addrD = "0xDbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

func whale(from, to string, valueUSD float64, ts int64) types.WhaleTransfer {
	return types.WhaleTransfer{
		TokenTransfer: types.TokenTransfer{
			Hash:      "0xhash",
			From:      from,
			To:        to,
			RawValue:  "1",
			Timestamp: ts,
			ValueUSD:  &valueUSD,
		},
		ChainID:    types.ChainEthereum,
		ChainName:  "Ethereum",
		DataSource: types.SourceREST,
	}
}

func TestCompute(t *testing.T) {
	transfers := []types.WhaleTransfer{
		whale(addrA, addrB, 5_000_000, 100),
		whale(addrB, addrC, 2_000_000, 200),
		whale(addrA, addrC, 1_500_000, 300),
	}

	got := Compute(transfers)

	assert.Equal(t, 3, got.TotalTransfers)
	assert.InDelta(t, 8_500_000, got.TotalVolumeUSD, 1e-9)
	assert.InDelta(t, 5_000_000, got.LargestTransferUSD, 1e-9)
	// {A, B, C}: B appears as both sender and receiver but counts once
	assert.Equal(t, 3, got.UniqueWhaleAddresses)
}

func TestCompute_Empty(t *testing.T) {
	got := Compute(nil)

	assert.Equal(t, types.WhaleStats{}, got)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	transfers := []types.WhaleTransfer{whale(addrA, addrB, 1_000_000, 100)}
	before := transfers[0]

	Compute(transfers)
	Leaderboard(transfers, 10)

	assert.Equal(t, before, transfers[0])
}

func TestLeaderboard_DoubleCredit(t *testing.T) {
	transfers := []types.WhaleTransfer{
		whale(addrA, addrB, 3_000_000, 100),
	}

	ranks := Leaderboard(transfers, 10)
	require.Len(t, ranks, 2)

	// Both sides of the transfer gain the full value and one count
	for _, rank := range ranks {
		assert.InDelta(t, 3_000_000, rank.VolumeUSD, 1e-9)
		assert.Equal(t, 1, rank.TransferCount)
	}
}

func TestLeaderboard_SelfTransferCreditedOnce(t *testing.T) {
	transfers := []types.WhaleTransfer{
		whale(addrA, addrA, 4_000_000, 100),
	}

	ranks := Leaderboard(transfers, 10)
	require.Len(t, ranks, 1)

	assert.Equal(t, addrA, ranks[0].Address)
	assert.InDelta(t, 4_000_000, ranks[0].VolumeUSD, 1e-9)
	assert.Equal(t, 1, ranks[0].TransferCount, "a wallet churning to itself must not inflate its own rank")
}

func TestLeaderboard_Ordering(t *testing.T) {
	transfers := []types.WhaleTransfer{
		whale(addrA, addrB, 2_000_000, 100), // A: 2M/1, B: 2M/1
		whale(addrC, addrD, 2_000_000, 200), // C: 2M/1, D: 2M/1
		whale(addrA, addrC, 1_000_000, 300), // A: 3M/2, C: 3M/2
	}

	ranks := Leaderboard(transfers, 10)
	require.Len(t, ranks, 4)

	// A and C tie on volume and count; address ascending breaks the tie.
	// addrA (0xAb...) sorts before addrC (0xfB...).
	assert.Equal(t, addrA, ranks[0].Address)
	assert.Equal(t, addrC, ranks[1].Address)
	// B and D tie at 2M/1
	assert.Equal(t, addrB, ranks[2].Address)
	assert.Equal(t, addrD, ranks[3].Address)
}

func TestLeaderboard_Truncation(t *testing.T) {
	transfers := []types.WhaleTransfer{
		whale(addrA, addrB, 5_000_000, 100),
		whale(addrC, addrD, 1_000_000, 200),
	}

	ranks := Leaderboard(transfers, 2)
	require.Len(t, ranks, 2)

	// Truncation keeps the top-volume addresses
	assert.ElementsMatch(t, []string{addrA, addrB},
		[]string{ranks[0].Address, ranks[1].Address})
}

func TestLeaderboard_Empty(t *testing.T) {
	assert.Empty(t, Leaderboard(nil, 10))
	assert.Empty(t, Leaderboard([]types.WhaleTransfer{whale(addrA, addrB, 1, 1)}, 0))
	assert.Empty(t, Leaderboard([]types.WhaleTransfer{whale(addrA, addrB, 1, 1)}, -1))
}

func TestSourceCounts(t *testing.T) {
	transfers := []types.WhaleTransfer{
		whale(addrA, addrB, 1_000_000, 100),
		whale(addrB, addrC, 2_000_000, 200),
		whale(addrC, addrD, 3_000_000, 300),
	}
	transfers[2].DataSource = types.SourceProtocol

	counts := SourceCounts(transfers)

	assert.Equal(t, 2, counts[types.SourceREST])
	assert.Equal(t, 1, counts[types.SourceProtocol])
	assert.Equal(t, 0, counts[types.SourceHybrid])
}
