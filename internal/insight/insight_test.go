package insight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-scanner/internal/config"
	"github.com/whale-scanner/internal/types"
)

const (
	testFrom = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testTo   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func testInput(transfers int) Input {
	input := Input{
		Stats: types.WhaleStats{
			TotalTransfers:       transfers,
			TotalVolumeUSD:       12_500_000,
			LargestTransferUSD:   4_200_000,
			UniqueWhaleAddresses: 2,
		},
		TopWhales: []types.WhaleRank{
			{Address: testFrom, VolumeUSD: 9_000_000, TransferCount: 3},
			{Address: testTo, VolumeUSD: 3_500_000, TransferCount: 1},
		},
		Window: types.TimeWindow{
			From: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		},
		Chains: []string{"Ethereum", "Base"},
	}

	for i := 0; i < transfers; i++ {
		v := 2_000_000.0
		input.Transfers = append(input.Transfers, types.WhaleTransfer{
			TokenTransfer: types.TokenTransfer{
				Hash:      "0xabc",
				From:      testFrom,
				To:        testTo,
				Timestamp: 1770000000 + int64(i),
				Token:     types.TokenInfo{Symbol: "USDT", Decimals: 6},
				ValueUSD:  &v,
			},
			ChainID:    types.ChainEthereum,
			ChainName:  "Ethereum",
			DataSource: types.SourceREST,
		})
	}
	return input
}

func TestNew_PicksSummarizerByConfig(t *testing.T) {
	s := New(config.InsightConfig{})
	assert.IsType(t, &TemplateSummarizer{}, s, "no API key falls back to the template")

	s = New(config.InsightConfig{OpenAIAPIKey: "sk-test", Model: "gpt-4o-mini"})
	assert.IsType(t, &OpenAISummarizer{}, s)
}

func TestTemplateSummarizer_Deterministic(t *testing.T) {
	s := NewTemplateSummarizer()
	input := testInput(5)

	first, err := s.Summarize(context.Background(), input)
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first, second, "equal input must yield equal output")
}

func TestTemplateSummarizer_Content(t *testing.T) {
	s := NewTemplateSummarizer()

	summary, err := s.Summarize(context.Background(), testInput(5))
	require.NoError(t, err)

	assert.Contains(t, summary, "5 transfers")
	assert.Contains(t, summary, "$12.5M")
	assert.Contains(t, summary, "$4.2M")
	assert.Contains(t, summary, "2 unique addresses")
	assert.Contains(t, summary, "Ethereum, Base")
	assert.Contains(t, summary, "2026-02-10T00:00:00Z")
	assert.Contains(t, summary, "0x5aAe...eAed", "leaderboard addresses are abbreviated")
}

func TestTemplateSummarizer_Empty(t *testing.T) {
	s := NewTemplateSummarizer()

	summary, err := s.Summarize(context.Background(), Input{
		Window: types.TimeWindow{
			From: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		},
		Chains: []string{"Ethereum"},
	})
	require.NoError(t, err)
	assert.Contains(t, summary, "No whale transfers")
	assert.Contains(t, summary, "Ethereum")
}

func TestBuildDigest_BoundsSample(t *testing.T) {
	d := buildDigest(testInput(30), 5)
	assert.Len(t, d.Sample, 5, "the prompt sample is capped")
	assert.Equal(t, "Ethereum", d.Sample[0].Chain)
	assert.Equal(t, "USDT", d.Sample[0].Token)
	assert.Equal(t, 2_000_000.0, d.Sample[0].ValueUSD)
	assert.Equal(t, "2026-02-10T00:00:00Z to 2026-02-11T00:00:00Z", d.Window)
}

func TestBuildDigest_UnpricedSampleIsZero(t *testing.T) {
	input := testInput(1)
	input.Transfers[0].ValueUSD = nil

	d := buildDigest(input, 5)
	require.Len(t, d.Sample, 1)
	assert.Zero(t, d.Sample[0].ValueUSD)
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{value: 950, want: "$950"},
		{value: 1_500, want: "$1.5K"},
		{value: 2_400_000, want: "$2.4M"},
		{value: 1_230_000_000, want: "$1.23B"},
		{value: 0, want: "$0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUSD(tt.value), "value %f", tt.value)
	}
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x5aAe...eAed", shortAddress(testFrom))
	assert.Equal(t, "0xshort", shortAddress("0xshort"))
}
