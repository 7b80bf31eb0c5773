// Package insight turns aggregated whale activity into a short natural
// language briefing for the summary endpoint.
package insight

import (
	"context"

	"github.com/whale-scanner/internal/config"
	"github.com/whale-scanner/internal/types"
)

// Input carries everything a summarizer may draw on. Transfers is the full
// merged set; implementations sample it rather than forwarding all of it.
type Input struct {
	Stats     types.WhaleStats
	TopWhales []types.WhaleRank
	Transfers []types.WhaleTransfer
	Window    types.TimeWindow
	Chains    []string
}

// Summarizer produces a human-readable digest of one aggregation result
type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}

// New picks a summarizer from the configuration: the OpenAI summarizer when
// an API key is set, otherwise the deterministic template fallback so the
// summary endpoint serves either way.
func New(cfg config.InsightConfig) Summarizer {
	if cfg.OpenAIAPIKey == "" {
		return NewTemplateSummarizer()
	}
	return NewOpenAISummarizer(cfg)
}
