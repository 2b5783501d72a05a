package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketsim/internal/backtest"
	"marketsim/internal/config"
	"marketsim/internal/report"
	"marketsim/internal/store"
	"marketsim/internal/strategy"
	"marketsim/internal/strategy/builtins"
	"marketsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to YAML config")
	top := flag.Int("top", 10, "number of top results to print")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *top); err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("MARKETSIM_CONFIG"); p != "" {
		return p
	}
	return "config/marketsim.yaml"
}

func run(ctx context.Context, cfg *config.Config, top int) error {
	src, err := barSource(cfg)
	if err != nil {
		return err
	}

	symbols := cfg.Data.Symbols
	if len(symbols) == 0 {
		symbols, err = src.ListSymbols(ctx)
		if err != nil {
			return fmt.Errorf("listing symbols: %w", err)
		}
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols configured and none found in the bar source")
	}

	start, err := parseDate(cfg.Data.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate(cfg.Data.EndDate)
	if err != nil {
		return err
	}

	data, err := store.LoadAll(ctx, src, symbols, start, end, cfg.Data.Workers)
	if err != nil {
		return err
	}

	grid := backtest.Grid(cfg.Sweep.ShortWindows, cfg.Sweep.LongWindows)
	if len(grid) == 0 {
		return fmt.Errorf("empty grid: check sweep.short_windows and sweep.long_windows")
	}

	slog.Info("starting sweep",
		"gridPoints", len(grid),
		"symbols", len(symbols),
		"workers", cfg.Sweep.MaxWorkers,
	)

	newStrategy := func(short, long int) (strategy.Strategy, error) {
		return builtins.NewMovingAverageCrossover(short, long)
	}

	rep, err := backtest.Sweep(
		ctx, data, grid, newStrategy,
		cfg.Backtest.InitialCapital,
		backtest.Costs{CommissionRate: cfg.Costs.CommissionRate, SlippageRate: cfg.Costs.SlippageRate},
		cfg.Costs.AllowShorts,
		cfg.Backtest.RiskFreeRate,
		cfg.Backtest.TradingDays,
		cfg.Sweep.MaxWorkers,
	)
	if err != nil {
		return err
	}

	slog.Info("sweep complete", "elapsed", rep.Elapsed.Round(time.Millisecond), "workers", rep.Workers)

	outPath := filepath.Join(cfg.Storage.ResultsDir, "sweep.csv")
	if err := report.WriteSweepCSV(outPath, rep); err != nil {
		return err
	}
	slog.Info("sweep results written", "path", outPath)

	if top > len(rep.Results) {
		top = len(rep.Results)
	}
	fmt.Printf("%-6s %-6s %12s %10s %12s %8s\n", "short", "long", "return", "sharpe", "maxDD", "trades")
	for _, r := range rep.Results[:top] {
		fmt.Printf("%-6d %-6d %11.2f%% %10.3f %11.2f%% %8d\n",
			r.Params.Short, r.Params.Long,
			r.Summary.TotalReturn*100, r.Summary.Sharpe,
			r.Summary.MaxDrawdown*100, r.Summary.NumTrades)
	}
	return nil
}

func barSource(cfg *config.Config) (store.BarSource, error) {
	switch cfg.Data.Source {
	case "csv":
		return store.NewCSVStore(cfg.Storage.CSVDir), nil
	case "parquet":
		return store.NewParquetStore(cfg.Storage.DataDir), nil
	default:
		return nil, fmt.Errorf("unknown data source %q (want csv or parquet)", cfg.Data.Source)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
