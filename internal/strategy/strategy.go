// Package strategy defines the signal-generator interface consumed by the
// backtest engine.
package strategy

import (
	"time"

	"marketsim/internal/domain"
)

// SignalSeries maps a bar date to the discrete signal decided with
// information available through that date. Dates absent from the series are
// treated as neutral by the engine.
type SignalSeries map[time.Time]domain.Signal

// Strategy is a pure function from historical bars to per-symbol signal
// series. Implementations must align signals to each symbol's own date index
// and encode their own look-ahead avoidance (typically by shifting the
// decision one bar forward); the engine adds the next-open execution lag on
// top.
type Strategy interface {
	// Name returns the identifier for this strategy.
	Name() string

	// Signals computes a signal series per symbol from the full dataset.
	Signals(data map[string][]domain.Bar) map[string]SignalSeries
}
