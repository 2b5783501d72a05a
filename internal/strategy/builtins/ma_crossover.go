// Package builtins provides the built-in signal generators.
package builtins

import (
	"fmt"
	"math"

	"marketsim/internal/domain"
	"marketsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MovingAverageCrossover)(nil)

// MovingAverageCrossover signals long while the short simple moving average
// of adjusted close is above the long one, short while below, neutral during
// warmup or exact ties. Signals are shifted one bar so today's state trades
// on tomorrow's information set.
type MovingAverageCrossover struct {
	shortWindow int
	longWindow  int
}

// NewMovingAverageCrossover validates the windows and builds the strategy.
func NewMovingAverageCrossover(short, long int) (*MovingAverageCrossover, error) {
	if short <= 0 {
		return nil, fmt.Errorf("strategy: short window must be positive, got %d", short)
	}
	if short >= long {
		return nil, fmt.Errorf("strategy: short window %d must be < long window %d", short, long)
	}
	return &MovingAverageCrossover{shortWindow: short, longWindow: long}, nil
}

// Name returns "ma-crossover".
func (s *MovingAverageCrossover) Name() string { return "ma-crossover" }

// Signals computes the crossover series per symbol.
func (s *MovingAverageCrossover) Signals(data map[string][]domain.Bar) map[string]strategy.SignalSeries {
	out := make(map[string]strategy.SignalSeries, len(data))
	for sym, bars := range data {
		out[sym] = s.signalOne(bars)
	}
	return out
}

func (s *MovingAverageCrossover) signalOne(bars []domain.Bar) strategy.SignalSeries {
	n := len(bars)
	shortMA := rollingMean(bars, s.shortWindow)
	longMA := rollingMean(bars, s.longWindow)

	raw := make([]domain.Signal, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(shortMA[i]) || math.IsNaN(longMA[i]) {
			continue
		}
		switch {
		case shortMA[i] > longMA[i]:
			raw[i] = domain.SignalLong
		case shortMA[i] < longMA[i]:
			raw[i] = domain.SignalShort
		}
	}

	series := make(strategy.SignalSeries, n)
	for i := 0; i < n; i++ {
		// Shift one bar; the first bar has no prior decision.
		if i == 0 {
			series[bars[i].Date] = domain.SignalFlat
		} else {
			series[bars[i].Date] = raw[i-1]
		}
	}
	return series
}

// rollingMean computes a simple moving average of adjusted close, NaN until
// the window fills.
func rollingMean(bars []domain.Bar, window int) []float64 {
	out := make([]float64, len(bars))
	sum := 0.0
	for i := range bars {
		sum += bars[i].AdjClose
		if i >= window {
			sum -= bars[i-window].AdjClose
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
