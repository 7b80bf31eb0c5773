// Package main provides a one-shot whale scan from the command line.
// It runs the same aggregation pipeline as the API server and prints the
// result, which makes it handy for cron jobs and quick checks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/config"
	"github.com/whale-scanner/internal/datasource"
	"github.com/whale-scanner/internal/insight"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/monitor"
	"github.com/whale-scanner/internal/stats"
	"github.com/whale-scanner/internal/types"
)

func main() {
	chainsFlag := flag.String("chains", "", "Comma-separated chain ids (default: all enabled chains)")
	rangeFlag := flag.String("range", "", "Time range, e.g. 24h or 7d (default: configured range)")
	minFlag := flag.Float64("min", -1, "Minimum transfer value in USD (default: configured threshold)")
	tokenFlag := flag.String("token", "", "Filter by token symbol or contract address")
	limitFlag := flag.Int("limit", 20, "Max transfers to print")
	jsonFlag := flag.Bool("json", false, "Emit the full result as JSON")
	summaryFlag := flag.Bool("summary", false, "Print an activity summary after the results")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep scan noise out of the terminal unless the operator asked for it
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	registry, err := chains.DefaultRegistry().Filter(cfg.Chains.Enabled)
	if err != nil {
		fmt.Printf("Error in chain configuration: %v\n", err)
		os.Exit(1)
	}
	registry = registry.WithExplorerURLs(cfg.Chains.ExplorerURLs)

	factory, err := datasource.NewFactory(datasource.FactoryConfig{
		Mode:              cfg.DataSource.Mode,
		DeployEnv:         cfg.DataSource.DeployEnv,
		EnableFallback:    cfg.DataSource.EnableFallback,
		Registry:          registry,
		ProtocolURL:       cfg.DataSource.ProtocolURL,
		ConnectTimeout:    cfg.DataSource.ConnectTimeout,
		CallTimeout:       cfg.DataSource.CallTimeout,
		ExplorerAPIKey:    cfg.Explorer.APIKey,
		RequestTimeout:    cfg.Explorer.RequestTimeout,
		RequestsPerSecond: cfg.Explorer.RequestsPerSecond,
		Burst:             cfg.Explorer.Burst,
		MaxRetries:        cfg.Explorer.MaxRetries,
	})
	if err != nil {
		fmt.Printf("Error creating data source factory: %v\n", err)
		os.Exit(1)
	}

	roster := monitor.DefaultRoster()
	if len(cfg.Scan.MonitoredAddresses) > 0 {
		roster, err = monitor.ParseRoster(cfg.Scan.MonitoredAddresses)
		if err != nil {
			fmt.Printf("Error in MONITORED_ADDRESSES: %v\n", err)
			os.Exit(1)
		}
	}

	whaleMonitor := monitor.NewMonitor(factory, roster, monitor.MonitorConfig{
		MaxPagesPerAddress:   cfg.Scan.MaxPagesPerAddress,
		MaxTransfersPerChain: cfg.Scan.MaxTransfersPerChain,
	})
	aggregator := monitor.NewAggregator(whaleMonitor, registry, monitor.AggregatorConfig{
		MaxConcurrentChains: cfg.Scan.MaxConcurrentChains,
	})

	// Build the aggregation request from flags, falling back to config
	chainIDs := registry.IDs()
	if *chainsFlag != "" {
		chainIDs = nil
		for _, part := range strings.Split(*chainsFlag, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part != "" {
				chainIDs = append(chainIDs, types.ChainID(part))
			}
		}
	}

	timeRange := cfg.Scan.DefaultTimeRange
	if *rangeFlag != "" {
		timeRange = *rangeFlag
	}
	window, err := types.ResolveWindow(timeRange, "", time.Now().UTC())
	if err != nil {
		fmt.Printf("Error in time range: %v\n", err)
		os.Exit(1)
	}

	minValue := cfg.Scan.MinValueUSD
	if *minFlag >= 0 {
		minValue = *minFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanning %d chain(s), window %s to %s, min $%.0f...\n\n",
		len(chainIDs), window.From.Format(time.RFC3339), window.To.Format(time.RFC3339), minValue)

	result, err := aggregator.Aggregate(ctx, monitor.AggregateRequest{
		Chains:      chainIDs,
		Window:      window,
		MinValueUSD: minValue,
		Token:       *tokenFlag,
	})
	if err != nil {
		fmt.Printf("Scan failed: %v\n", err)
		os.Exit(1)
	}

	whaleStats := stats.Compute(result.Transfers)
	topWhales := stats.Leaderboard(result.Transfers, cfg.Scan.TopWhales)

	if *jsonFlag {
		out := map[string]interface{}{
			"transfers": result.Transfers,
			"stats":     whaleStats,
			"topWhales": topWhales,
			"warnings":  result.Warnings,
		}
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(encoded))
		return
	}

	printResult(result, whaleStats, topWhales, *limitFlag)

	if *summaryFlag {
		summarizer := insight.New(cfg.Insight)
		summary, err := summarizer.Summarize(ctx, insight.Input{
			Stats:     whaleStats,
			TopWhales: topWhales,
			Transfers: result.Transfers,
			Window:    window,
			Chains:    chainNames(registry, result.ChainResults),
		})
		if err != nil {
			fmt.Printf("\nSummary unavailable: %v\n", err)
			return
		}
		fmt.Printf("\n%s\n", summary)
	}
}

func printResult(result *monitor.AggregateResult, whaleStats types.WhaleStats, topWhales []types.WhaleRank, limit int) {
	for _, warning := range result.Warnings {
		fmt.Printf("WARNING: %s\n", warning)
	}
	if len(result.Warnings) > 0 {
		fmt.Println()
	}

	fmt.Printf("=== Whale Transfers (%d total) ===\n", whaleStats.TotalTransfers)
	for i, transfer := range result.Transfers {
		if limit > 0 && i >= limit {
			fmt.Printf("... and %d more\n", len(result.Transfers)-limit)
			break
		}
		value := 0.0
		if transfer.ValueUSD != nil {
			value = *transfer.ValueUSD
		}
		fmt.Printf("%-10s %-6s %14s  %s -> %s  %s\n",
			transfer.ChainID,
			transfer.Token.Symbol,
			fmt.Sprintf("$%.0f", value),
			shorten(transfer.From),
			shorten(transfer.To),
			time.Unix(transfer.Timestamp, 0).UTC().Format(time.RFC3339),
		)
	}

	fmt.Printf("\n=== Stats ===\n")
	fmt.Printf("Total volume:     $%.0f\n", whaleStats.TotalVolumeUSD)
	fmt.Printf("Largest transfer: $%.0f\n", whaleStats.LargestTransferUSD)
	fmt.Printf("Unique addresses: %d\n", whaleStats.UniqueWhaleAddresses)

	if len(topWhales) > 0 {
		fmt.Printf("\n=== Top Whales ===\n")
		for i, whale := range topWhales {
			fmt.Printf("%2d. %s  $%.0f over %d transfer(s)\n", i+1, whale.Address, whale.VolumeUSD, whale.TransferCount)
		}
	}
}

func chainNames(registry *chains.Registry, results []types.ChainScanResult) []string {
	var names []string
	for _, r := range results {
		if r.Failed() {
			continue
		}
		if c, ok := registry.Get(r.ChainID); ok {
			names = append(names, c.Name)
		}
	}
	return names
}

func shorten(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}
