// Package store provides bar-data sources (CSV files, Parquet datasets) and
// persistence for completed simulation runs (SQLite).
package store

import (
	"context"
	"time"

	"marketsim/internal/domain"
)

// BarSource retrieves daily bar data for backtests.
type BarSource interface {
	// ReadBars returns bars for the symbol within [start, end], sorted
	// ascending by date with no duplicates. Zero start/end times leave the
	// corresponding bound open.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the source.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BarStore is a BarSource that also accepts writes, used by the gathering
// job.
type BarStore interface {
	BarSource

	// WriteBars persists a batch of bars.
	WriteBars(ctx context.Context, bars []domain.Bar) error
}

// RunRecord is a completed simulation run prepared for persistence.
type RunRecord struct {
	Strategy       string
	Params         string // human-readable parameter summary
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	CommissionRate float64
	SlippageRate   float64
	AllowShorts    bool

	TotalReturn  float64
	CAGR         float64
	Sharpe       float64
	MaxDrawdown  float64
	NumTrades    int
	WinRate      float64
	ProfitFactor float64

	Equity []domain.EquityPoint
	Fills  []domain.Fill
	Trades []domain.Trade
}

// RunSummary is the lightweight listing view of a stored run.
type RunSummary struct {
	ID          int64
	Strategy    string
	Params      string
	TotalReturn float64
	Sharpe      float64
	NumTrades   int
	CreatedAt   time.Time
}

// RunStore persists completed runs and their artifacts.
type RunStore interface {
	// SaveRun stores the run with its equity curve, fills, and trades,
	// returning the new run ID.
	SaveRun(ctx context.Context, run *RunRecord) (int64, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
