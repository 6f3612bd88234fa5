package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/usecase"
	"TrendEngine/pkg/config"
	"TrendEngine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to replay")
	fromStr := flag.String("from", "", "range start (2006-01-02 or RFC3339)")
	toStr := flag.String("to", "", "range end (2006-01-02 or RFC3339)")
	tf := flag.String("tf", "5m", "bar timeframe")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	from, err := parseTime(*fromStr)
	if err != nil {
		log.Fatalf("invalid -from: %v", err)
	}
	to, err := parseTime(*toStr)
	if err != nil {
		log.Fatalf("invalid -to: %v", err)
	}
	if !from.Before(to) {
		log.Fatalf("-from must be before -to")
	}

	lg, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	runner := usecase.NewReplayRunner(cfg, nil, lg)
	report, err := runner.Run(context.Background(), *symbol, from, to, drepo.NormalizeTimeframe(*tf))
	if err != nil {
		log.Printf("backtest failed: %v", err)
		os.Exit(1)
	}

	fmt.Println(report.Summary())
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
