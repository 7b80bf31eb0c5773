package insight

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TemplateSummarizer produces a deterministic plain-text digest. It backs
// the summary endpoint when no OpenAI key is configured and costs nothing.
type TemplateSummarizer struct{}

// NewTemplateSummarizer creates the fallback summarizer
func NewTemplateSummarizer() *TemplateSummarizer {
	return &TemplateSummarizer{}
}

// Summarize renders the stats and leaderboard into fixed prose. Equal input
// always yields equal output.
func (s *TemplateSummarizer) Summarize(ctx context.Context, input Input) (string, error) {
	window := fmt.Sprintf("from %s to %s",
		input.Window.From.UTC().Format(time.RFC3339),
		input.Window.To.UTC().Format(time.RFC3339))

	scope := "the monitored chains"
	if len(input.Chains) > 0 {
		scope = strings.Join(input.Chains, ", ")
	}

	if input.Stats.TotalTransfers == 0 {
		return fmt.Sprintf("No whale transfers were observed %s across %s.", window, scope), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Whale activity %s across %s: %d transfers totaling %s, largest single transfer %s, %d unique addresses involved.",
		window, scope,
		input.Stats.TotalTransfers,
		formatUSD(input.Stats.TotalVolumeUSD),
		formatUSD(input.Stats.LargestTransferUSD),
		input.Stats.UniqueWhaleAddresses)

	if len(input.TopWhales) > 0 {
		b.WriteString(" Top movers: ")
		limit := len(input.TopWhales)
		if limit > 3 {
			limit = 3
		}
		movers := make([]string, 0, limit)
		for _, rank := range input.TopWhales[:limit] {
			movers = append(movers, fmt.Sprintf("%s with %s over %d transfers",
				shortAddress(rank.Address), formatUSD(rank.VolumeUSD), rank.TransferCount))
		}
		b.WriteString(strings.Join(movers, "; "))
		b.WriteString(".")
	}

	return b.String(), nil
}

// shortAddress abbreviates a hex address for prose: 0xF977...aceC
func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func formatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
