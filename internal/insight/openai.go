package insight

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/whale-scanner/internal/config"
	"github.com/whale-scanner/internal/errors"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/retry"
	"github.com/whale-scanner/internal/types"
)

const systemPrompt = `You are an on-chain analyst. You receive a JSON digest of large ERC-20 transfers involving monitored exchange, bridge, and whale wallets. Write a concise briefing (3-5 sentences) of the notable activity: overall volume, the dominant direction of flow, and any address or token that stands out. Use round numbers. Do not invent data that is not in the digest.`

// digest is the compact JSON document sent as the user prompt
type digest struct {
	Window    string            `json:"window"`
	Chains    []string          `json:"chains"`
	Stats     types.WhaleStats  `json:"stats"`
	TopWhales []types.WhaleRank `json:"topWhales,omitempty"`
	Sample    []sampleTransfer  `json:"sampleTransfers,omitempty"`
}

type sampleTransfer struct {
	Chain    string  `json:"chain"`
	Token    string  `json:"token"`
	ValueUSD float64 `json:"valueUsd"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Time     string  `json:"time"`
}

// OpenAISummarizer asks a chat completion model for the briefing
type OpenAISummarizer struct {
	client             *openai.Client
	model              string
	maxPromptTransfers int
	timeout            time.Duration
	retryConfig        *retry.Config
}

// NewOpenAISummarizer creates a summarizer backed by the OpenAI API
func NewOpenAISummarizer(cfg config.InsightConfig) *OpenAISummarizer {
	retryConfig := retry.DefaultConfig()
	retryConfig.ShouldRetry = isRetryableAPIError

	return &OpenAISummarizer{
		client:             openai.NewClient(cfg.OpenAIAPIKey),
		model:              cfg.Model,
		maxPromptTransfers: cfg.MaxPromptTransfers,
		timeout:            cfg.RequestTimeout,
		retryConfig:        retryConfig,
	}
}

// Summarize builds the JSON digest and asks the model for a briefing.
// Failures come back as transient errors so the API layer maps them to 502
// rather than blaming the caller.
func (s *OpenAISummarizer) Summarize(ctx context.Context, input Input) (string, error) {
	payload, err := json.Marshal(buildDigest(input, s.maxPromptTransfers))
	if err != nil {
		return "", errors.NewInternalError("failed to encode insight digest", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var summary string
	err = retry.Do(ctx, s.retryConfig, func(ctx context.Context, attempt int) error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: string(payload)},
			},
			Temperature: 0.3,
			MaxTokens:   400,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}
		summary = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", errors.NewTransientError("openai", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"model":    s.model,
		"duration": time.Since(start).String(),
	}).Info("Insight summary generated")

	return summary, nil
}

// buildDigest bounds the transfer sample so the prompt stays small no matter
// how large the aggregation was. Transfers arrive newest first, so the
// sample is the most recent activity.
func buildDigest(input Input, maxTransfers int) digest {
	if maxTransfers < 1 {
		maxTransfers = 20
	}

	sample := make([]sampleTransfer, 0, maxTransfers)
	for _, t := range input.Transfers {
		if len(sample) == maxTransfers {
			break
		}
		entry := sampleTransfer{
			Chain: t.ChainName,
			Token: t.Token.Symbol,
			From:  t.From,
			To:    t.To,
			Time:  time.Unix(t.Timestamp, 0).UTC().Format(time.RFC3339),
		}
		if t.ValueUSD != nil {
			entry.ValueUSD = *t.ValueUSD
		}
		sample = append(sample, entry)
	}

	return digest{
		Window:    fmt.Sprintf("%s to %s", input.Window.From.UTC().Format(time.RFC3339), input.Window.To.UTC().Format(time.RFC3339)),
		Chains:    input.Chains,
		Stats:     input.Stats,
		TopWhales: input.TopWhales,
		Sample:    sample,
	}
}

// isRetryableAPIError treats rate limits and server-side failures as worth
// another attempt; caller mistakes and canceled contexts are not.
func isRetryableAPIError(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}

	// Anything else is a transport failure
	return true
}
