// Package config loads the marketsim YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a simulation run.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Data     Data           `yaml:"data"`
	Costs    Costs          `yaml:"costs"`
	Backtest Backtest       `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
	Sweep    Sweep          `yaml:"sweep"`
	Gather   Gather         `yaml:"gather"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
}

// Storage holds paths for data and result persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`    // Parquet bar store root
	CSVDir     string `yaml:"csv_dir"`     // per-symbol CSV files
	SQLitePath string `yaml:"sqlite_path"` // run results database
	ResultsDir string `yaml:"results_dir"` // CSV/Markdown report output
}

// Data selects the bar source and the symbol universe for a run.
type Data struct {
	Source    string   `yaml:"source"` // "csv" or "parquet"
	Symbols   []string `yaml:"symbols"`
	StartDate string   `yaml:"start_date"` // YYYY-MM-DD, empty = unbounded
	EndDate   string   `yaml:"end_date"`
	Workers   int      `yaml:"workers"` // concurrent symbol loads
}

// Costs is the execution cost model: both rates are fractions of notional.
type Costs struct {
	CommissionRate float64 `yaml:"commission_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`
	AllowShorts    bool    `yaml:"allow_shorts"`
}

// Backtest holds capital and metric parameters.
type Backtest struct {
	InitialCapital float64 `yaml:"initial_capital"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	TradingDays    int     `yaml:"trading_days"` // periods per year for annualization
}

// StrategyConfig selects and parameterizes the signal generator.
type StrategyConfig struct {
	Kind string `yaml:"kind"` // "ma-crossover" or "rsi-cross"

	// ma-crossover
	ShortWindow int `yaml:"short_window"`
	LongWindow  int `yaml:"long_window"`

	// rsi-cross
	Period int     `yaml:"period"`
	Lower  float64 `yaml:"lower"`
	Upper  float64 `yaml:"upper"`
}

// Sweep defines the parameter grid for moving-average optimization runs.
type Sweep struct {
	ShortWindows []int `yaml:"short_windows"`
	LongWindows  []int `yaml:"long_windows"`
	MaxWorkers   int   `yaml:"max_workers"`
}

// Gather controls the daily-bar gathering job.
type Gather struct {
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides, and fills in defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CSV_DIR"); v != "" {
		cfg.Storage.CSVDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("RESULTS_DIR"); v != "" {
		cfg.Storage.ResultsDir = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills in conventional values for anything the file left at
// zero so that a minimal config still runs.
func applyDefaults(cfg *Config) {
	if cfg.Data.Source == "" {
		cfg.Data.Source = "csv"
	}
	if cfg.Data.Workers <= 0 {
		cfg.Data.Workers = 4
	}
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = 100_000
	}
	if cfg.Backtest.TradingDays <= 0 {
		cfg.Backtest.TradingDays = 252
	}
	if cfg.Strategy.Kind == "" {
		cfg.Strategy.Kind = "ma-crossover"
	}
	if cfg.Strategy.ShortWindow == 0 {
		cfg.Strategy.ShortWindow = 50
	}
	if cfg.Strategy.LongWindow == 0 {
		cfg.Strategy.LongWindow = 200
	}
	if cfg.Strategy.Period == 0 {
		cfg.Strategy.Period = 14
	}
	// The thresholds default as a pair: lower == 0 with a set upper is a
	// deliberate band, not an unset field.
	if cfg.Strategy.Lower == 0 && cfg.Strategy.Upper == 0 {
		cfg.Strategy.Lower = 30
		cfg.Strategy.Upper = 70
	}
	if cfg.Sweep.MaxWorkers <= 0 {
		cfg.Sweep.MaxWorkers = runtime.NumCPU()
	}
	if cfg.Gather.BatchSize <= 0 {
		cfg.Gather.BatchSize = 200
	}
	if cfg.Gather.MaxWorkers <= 0 {
		cfg.Gather.MaxWorkers = 4
	}
	if cfg.Gather.RateLimitPerMin <= 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.ResultsDir == "" {
		cfg.Storage.ResultsDir = "results"
	}
}
