package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketsim/internal/config"
	"marketsim/internal/gather"
	"marketsim/internal/store"
	"marketsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/alpaca-data-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	slog.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format))

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("missing Alpaca credentials: set alpaca.api_key/api_secret or APCA_API_KEY_ID/APCA_API_SECRET_KEY")
	}
	if len(cfg.Data.Symbols) == 0 {
		log.Fatal("no symbols configured under data.symbols")
	}

	span, err := gatherRange(cfg)
	if err != nil {
		log.Fatalf("invalid gather range: %v", err)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	gatherer := gather.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		pstore,
		cfg.Data.Symbols,
		span,
		cfg.Gather.BatchSize,
		cfg.Gather.MaxWorkers,
		cfg.Gather.RateLimitPerMin,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting alpaca-data", "logFile", logFileName, "dataDir", cfg.Storage.DataDir)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("MARKETSIM_CONFIG"); p != "" {
		return p
	}
	return "config/marketsim.yaml"
}

// gatherRange resolves the fetch window. An empty start backfills five years;
// an empty end stops at yesterday so partially formed sessions are never
// stored.
func gatherRange(cfg *config.Config) (gather.DateRange, error) {
	now := time.Now().UTC()
	span := gather.DateRange{
		Start: now.AddDate(-5, 0, 0),
		End:   now.AddDate(0, 0, -1),
	}

	if cfg.Gather.StartDate != "" {
		t, err := time.Parse("2006-01-02", cfg.Gather.StartDate)
		if err != nil {
			return gather.DateRange{}, fmt.Errorf("start_date: %w", err)
		}
		span.Start = t
	}
	if cfg.Gather.EndDate != "" {
		t, err := time.Parse("2006-01-02", cfg.Gather.EndDate)
		if err != nil {
			return gather.DateRange{}, fmt.Errorf("end_date: %w", err)
		}
		span.End = t
	}
	if span.End.Before(span.Start) {
		return gather.DateRange{}, fmt.Errorf("end %s precedes start %s",
			span.End.Format("2006-01-02"), span.Start.Format("2006-01-02"))
	}
	return span, nil
}
