package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/whale-scanner/internal/errors"
	"github.com/whale-scanner/internal/insight"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/monitor"
	"github.com/whale-scanner/internal/stats"
	"github.com/whale-scanner/internal/types"
)

// WhalesResponse is the payload of GET /api/v1/whales
type WhalesResponse struct {
	Transfers     []types.WhaleTransfer    `json:"transfers"`
	Stats         types.WhaleStats         `json:"stats"`
	TopWhales     []types.WhaleRank        `json:"topWhales"`
	Sources       map[types.DataSource]int `json:"sources"`
	ScannedChains []ChainOutcome           `json:"scannedChains"`
	Warnings      []string                 `json:"warnings,omitempty"`
	RequestID     string                   `json:"requestId,omitempty"`
}

// ChainOutcome summarizes one chain's part of a scan
type ChainOutcome struct {
	ChainID   types.ChainID `json:"chainId"`
	Transfers int           `json:"transfers"`
	Error     string        `json:"error,omitempty"`
}

// SummaryResponse is the payload of GET /api/v1/whales/summary
type SummaryResponse struct {
	Summary   string            `json:"summary"`
	Stats     types.WhaleStats  `json:"stats"`
	TopWhales []types.WhaleRank `json:"topWhales"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// handleGetWhales handles GET /api/v1/whales - Scan chains for whale transfers
func (s *Server) handleGetWhales(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseWhaleQuery(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	result, err := s.aggregator.Aggregate(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Whale aggregation failed")
		respondCategorized(w, err)
		return
	}

	// Stats, leaderboard, and the per-backend tally cover the full merged
	// set, not just the page the response carries
	whaleStats := stats.Compute(result.Transfers)
	topWhales := stats.Leaderboard(result.Transfers, s.config.TopWhales)
	sources := stats.SourceCounts(result.Transfers)

	transfers := result.Transfers
	if s.config.ResponsePageSize > 0 && len(transfers) > s.config.ResponsePageSize {
		transfers = transfers[:s.config.ResponsePageSize]
	}
	if transfers == nil {
		transfers = []types.WhaleTransfer{}
	}
	if topWhales == nil {
		topWhales = []types.WhaleRank{}
	}

	respondJSON(w, http.StatusOK, WhalesResponse{
		Transfers:     transfers,
		Stats:         whaleStats,
		TopWhales:     topWhales,
		Sources:       sources,
		ScannedChains: chainOutcomes(result.ChainResults),
		Warnings:      result.Warnings,
		RequestID:     RequestIDFromContext(r.Context()),
	})
}

// handleGetWhalesSummary handles GET /api/v1/whales/summary - Aggregate and
// run the insight summarizer over the result
func (s *Server) handleGetWhalesSummary(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseWhaleQuery(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	result, err := s.aggregator.Aggregate(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Whale aggregation failed")
		respondCategorized(w, err)
		return
	}

	whaleStats := stats.Compute(result.Transfers)
	topWhales := stats.Leaderboard(result.Transfers, s.config.TopWhales)

	summary, err := s.summarizer.Summarize(r.Context(), insight.Input{
		Stats:     whaleStats,
		TopWhales: topWhales,
		Transfers: result.Transfers,
		Window:    req.Window,
		Chains:    s.scannedChainNames(result.ChainResults),
	})
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Insight summarization failed")
		respondCategorized(w, err)
		return
	}

	if topWhales == nil {
		topWhales = []types.WhaleRank{}
	}

	respondJSON(w, http.StatusOK, SummaryResponse{
		Summary:   summary,
		Stats:     whaleStats,
		TopWhales: topWhales,
		Warnings:  result.Warnings,
	})
}

// parseWhaleQuery builds an aggregation request from the shared query
// parameters of the whale endpoints: chains, range (or a from/to pair),
// min_value, and token. Missing parameters fall back to configured defaults.
func (s *Server) parseWhaleQuery(r *http.Request) (monitor.AggregateRequest, error) {
	query := r.URL.Query()

	var chainIDs []types.ChainID
	if chainsStr := query.Get("chains"); chainsStr != "" {
		for _, part := range strings.Split(chainsStr, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chainIDs = append(chainIDs, types.ChainID(strings.ToLower(part)))
		}
	}
	if len(chainIDs) == 0 {
		chainIDs = s.registry.IDs()
	}

	now := time.Now().UTC()
	var window types.TimeWindow
	var err error
	if from := query.Get("from"); from != "" {
		window, err = types.ResolveWindow(from, query.Get("to"), now)
		if err != nil {
			return monitor.AggregateRequest{}, errors.NewInvalidParameterError("from", err.Error())
		}
	} else {
		timeRange := query.Get("range")
		if timeRange == "" {
			timeRange = s.config.DefaultTimeRange
		}
		window, err = types.ResolveWindow(timeRange, "", now)
		if err != nil {
			return monitor.AggregateRequest{}, errors.NewInvalidParameterError("range", err.Error())
		}
	}

	minValue := s.config.DefaultMinValueUSD
	if minStr := query.Get("min_value"); minStr != "" {
		minValue, err = strconv.ParseFloat(minStr, 64)
		if err != nil {
			return monitor.AggregateRequest{}, errors.NewInvalidParameterError("min_value", "must be a number")
		}
	}

	return monitor.AggregateRequest{
		Chains:      chainIDs,
		Window:      window,
		MinValueUSD: minValue,
		Token:       strings.TrimSpace(query.Get("token")),
	}, nil
}

func chainOutcomes(results []types.ChainScanResult) []ChainOutcome {
	outcomes := make([]ChainOutcome, 0, len(results))
	for _, result := range results {
		outcomes = append(outcomes, ChainOutcome{
			ChainID:   result.ChainID,
			Transfers: len(result.Transfers),
			Error:     result.Err,
		})
	}
	return outcomes
}

// scannedChainNames returns the display names of the chains that answered
func (s *Server) scannedChainNames(results []types.ChainScanResult) []string {
	names := make([]string, 0, len(results))
	for _, result := range results {
		if result.Failed() {
			continue
		}
		if chain, ok := s.registry.Get(result.ChainID); ok {
			names = append(names, chain.Name)
		}
	}
	return names
}
