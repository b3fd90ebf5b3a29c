// Command replay runs recorded candidate events and a price path through the
// full engine in PAPER mode with in-memory stores, then prints a summary.
// The same inputs and config always produce the same trades.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"graduation-engine/internal/config"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/logging"
)

func main() {
	eventsPath := flag.String("events", "", "JSONL file of raw candidate events (required)")
	pricesPath := flag.String("prices", "", "JSONL file of price ticks")
	cfgPath := flag.String("config", "", "path to the YAML config file")
	logLevel := flag.String("log-level", "warn", "log level")
	outputJSON := flag.Bool("json", false, "print the summary as JSON")
	flag.Parse()

	if *eventsPath == "" {
		fmt.Fprintln(os.Stderr, "--events is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Level = *logLevel
	cfg.Log.Encoding = "console"
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := readEvents(*eventsPath)
	if err != nil {
		logger.Fatal("read events failed", zap.Error(err))
	}
	var ticks []ingestion.PriceTick
	if *pricesPath != "" {
		if ticks, err = readTicks(*pricesPath); err != nil {
			logger.Fatal("read prices failed", zap.Error(err))
		}
	}

	r, err := newReplayer(cfg.Trading, logger)
	if err != nil {
		logger.Fatal("init replay failed", zap.Error(err))
	}
	sum, err := r.run(ctx, events, ticks)
	if err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			logger.Fatal("encode summary failed", zap.Error(err))
		}
		return
	}
	printSummary(os.Stdout, cfg.Trading.Name, cfg.Trading.Version, sum)
}

func readEvents(path string) ([]*ingestion.RawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, err := ingestion.NewReplaySource(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src.Events(), nil
}

func readTicks(path string) ([]ingestion.PriceTick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ticks, err := ingestion.ReadPriceTicks(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

func printSummary(w io.Writer, name string, version int, s *Summary) {
	fmt.Fprintf(w, "=== Replay (%s v%d) ===\n", name, version)
	fmt.Fprintf(w, "Events: %d  Ticks: %d  Days: %d\n", s.Events, s.Ticks, s.Days)
	fmt.Fprintf(w, "Received: %d  Invalid: %d  Duplicates: %d\n",
		s.Stats.Received, s.Stats.Invalid, s.Stats.Duplicates)
	fmt.Fprintf(w, "Rejected: gate %d  score %d  budget %d  execution %d\n",
		s.Stats.GateRejected, s.Stats.ScoreRejected, s.Stats.BudgetRejected, s.Stats.ExecutionFailed)
	fmt.Fprintf(w, "Opened: %d  Closed: %d  Wins: %d  Losses: %d\n",
		s.Stats.Opened, s.Closed, s.Wins, s.Losses)
	fmt.Fprintf(w, "Realized P&L: $%s\n", s.RealizedPnLUSD)

	if len(s.ExitReasons) > 0 {
		reasons := make([]string, 0, len(s.ExitReasons))
		for r := range s.ExitReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		fmt.Fprintln(w, "Exit reasons:")
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-14s %d\n", r, s.ExitReasons[r])
		}
	}
	if len(s.Open) > 0 {
		fmt.Fprintln(w, "Still open:")
		for _, p := range s.Open {
			fmt.Fprintf(w, "  %s entry=%g last=%g cost=$%s unrealized=$%s\n",
				p.Mint, p.EntryPrice, p.LastPrice, p.EntryCostUSD, p.UnrealizedUSD)
		}
	}
}
