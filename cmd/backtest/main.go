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
	"marketsim/internal/domain"
	"marketsim/internal/report"
	"marketsim/internal/store"
	"marketsim/internal/strategy/builtins"
	"marketsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to YAML config")
	noSave := flag.Bool("no-save", false, "skip persisting the run to SQLite")
	listRuns := flag.Int("list", 0, "list the N most recent stored runs and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *listRuns > 0 {
		if err := printRuns(ctx, cfg, *listRuns); err != nil {
			log.Fatalf("listing runs: %v", err)
		}
		return
	}

	if err := run(ctx, cfg, !*noSave); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("MARKETSIM_CONFIG"); p != "" {
		return p
	}
	return "config/marketsim.yaml"
}

func run(ctx context.Context, cfg *config.Config, save bool) error {
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

	slog.Info("loading bars", "source", cfg.Data.Source, "symbols", len(symbols))
	data, err := store.LoadAll(ctx, src, symbols, start, end, cfg.Data.Workers)
	if err != nil {
		return err
	}

	strat, err := builtins.FromConfig(cfg.Strategy)
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(
		data, strat,
		cfg.Backtest.InitialCapital,
		backtest.Costs{CommissionRate: cfg.Costs.CommissionRate, SlippageRate: cfg.Costs.SlippageRate},
		cfg.Costs.AllowShorts,
	)
	if err != nil {
		return err
	}

	slog.Info("running backtest", "strategy", strat.Name(), "capital", cfg.Backtest.InitialCapital)
	res, err := engine.Run()
	if err != nil {
		return err
	}

	trades := backtest.RoundTripTrades(res.Fills)
	summary := backtest.Summarize(res.Equity, trades, cfg.Backtest.RiskFreeRate, cfg.Backtest.TradingDays)

	slog.Info("backtest complete",
		"totalReturn", fmt.Sprintf("%.2f%%", summary.TotalReturn*100),
		"cagr", fmt.Sprintf("%.2f%%", summary.CAGR*100),
		"sharpe", fmt.Sprintf("%.3f", summary.Sharpe),
		"maxDrawdown", fmt.Sprintf("%.2f%%", summary.MaxDrawdown*100),
		"trades", summary.NumTrades,
		"fills", len(res.Fills),
	)

	if err := writeReports(cfg, strat.Name(), symbols, res, trades, summary); err != nil {
		return err
	}
	slog.Info("reports written", "dir", cfg.Storage.ResultsDir)

	if save && cfg.Storage.SQLitePath != "" {
		runID, err := saveRun(ctx, cfg, strat.Name(), res, trades, summary)
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		slog.Info("run saved", "id", runID, "db", cfg.Storage.SQLitePath)
	}

	return nil
}

// barSource picks the configured bar source implementation.
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

func writeReports(cfg *config.Config, stratName string, symbols []string, res *backtest.Result, trades []domain.Trade, summary backtest.Summary) error {
	dir := cfg.Storage.ResultsDir
	if err := report.WriteEquityCSV(filepath.Join(dir, "equity.csv"), res.Equity); err != nil {
		return err
	}
	if err := report.WriteDrawdownCSV(filepath.Join(dir, "drawdown.csv"), res.Equity); err != nil {
		return err
	}
	if err := report.WriteFillsCSV(filepath.Join(dir, "fills.csv"), res.Fills); err != nil {
		return err
	}
	if err := report.WriteTradesCSV(filepath.Join(dir, "trades.csv"), trades); err != nil {
		return err
	}
	if err := report.WriteMetricsCSV(filepath.Join(dir, "metrics.csv"), summary); err != nil {
		return err
	}

	info := report.RunInfo{
		Strategy:       stratName,
		Params:         paramsString(cfg.Strategy),
		Symbols:        symbols,
		InitialCapital: cfg.Backtest.InitialCapital,
		CommissionRate: cfg.Costs.CommissionRate,
		SlippageRate:   cfg.Costs.SlippageRate,
		AllowShorts:    cfg.Costs.AllowShorts,
	}
	return report.WriteMarkdown(filepath.Join(dir, "summary.md"), info, res, trades, summary)
}

func saveRun(ctx context.Context, cfg *config.Config, stratName string, res *backtest.Result, trades []domain.Trade, summary backtest.Summary) (int64, error) {
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	rec := &store.RunRecord{
		Strategy:       stratName,
		Params:         paramsString(cfg.Strategy),
		StartDate:      res.Calendar[0],
		EndDate:        res.Calendar[len(res.Calendar)-1],
		InitialCapital: cfg.Backtest.InitialCapital,
		CommissionRate: cfg.Costs.CommissionRate,
		SlippageRate:   cfg.Costs.SlippageRate,
		AllowShorts:    cfg.Costs.AllowShorts,
		TotalReturn:    summary.TotalReturn,
		CAGR:           summary.CAGR,
		Sharpe:         summary.Sharpe,
		MaxDrawdown:    summary.MaxDrawdown,
		NumTrades:      summary.NumTrades,
		WinRate:        summary.WinRate,
		ProfitFactor:   summary.ProfitFactor,
		Equity:         res.Equity,
		Fills:          res.Fills,
		Trades:         trades,
	}
	return db.SaveRun(ctx, rec)
}

func printRuns(ctx context.Context, cfg *config.Config, limit int) error {
	if cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("no sqlite_path configured")
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%4d  %-14s %-12s return %8.2f%%  sharpe %7.3f  trades %4d  %s\n",
			r.ID, r.Strategy, r.Params, r.TotalReturn*100, r.Sharpe, r.NumTrades,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func paramsString(s config.StrategyConfig) string {
	switch s.Kind {
	case "rsi-cross":
		return fmt.Sprintf("period=%d lower=%g upper=%g", s.Period, s.Lower, s.Upper)
	default:
		return fmt.Sprintf("short=%d long=%d", s.ShortWindow, s.LongWindow)
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
