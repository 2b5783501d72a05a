package builtins

import (
	"fmt"
	"math"

	"marketsim/internal/domain"
	"marketsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSICross)(nil)

// RSICross signals long on the bar where Wilder-smoothed RSI crosses up
// through the lower threshold and goes flat on the bar where it crosses down
// through the upper threshold; all other bars are neutral. Signals are
// shifted one bar like the crossover strategy.
type RSICross struct {
	period int
	lower  float64
	upper  float64
}

// NewRSICross validates the parameters and builds the strategy.
func NewRSICross(period int, lower, upper float64) (*RSICross, error) {
	if period <= 0 {
		return nil, fmt.Errorf("strategy: rsi period must be positive, got %d", period)
	}
	if lower >= upper {
		return nil, fmt.Errorf("strategy: rsi lower %v must be < upper %v", lower, upper)
	}
	return &RSICross{period: period, lower: lower, upper: upper}, nil
}

// Name returns "rsi-cross".
func (s *RSICross) Name() string { return "rsi-cross" }

// Signals computes the RSI cross series per symbol.
func (s *RSICross) Signals(data map[string][]domain.Bar) map[string]strategy.SignalSeries {
	out := make(map[string]strategy.SignalSeries, len(data))
	for sym, bars := range data {
		out[sym] = s.signalOne(bars)
	}
	return out
}

func (s *RSICross) signalOne(bars []domain.Bar) strategy.SignalSeries {
	n := len(bars)
	rsi := s.wilderRSI(bars)

	raw := make([]domain.Signal, n)
	for i := 1; i < n; i++ {
		if math.IsNaN(rsi[i-1]) || math.IsNaN(rsi[i]) {
			continue
		}
		if rsi[i-1] < s.lower && rsi[i] >= s.lower {
			raw[i] = domain.SignalLong
		}
		// The cross down through upper resolves to flat, which is already
		// the neutral default.
	}

	series := make(strategy.SignalSeries, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			series[bars[i].Date] = domain.SignalFlat
		} else {
			series[bars[i].Date] = raw[i-1]
		}
	}
	return series
}

// wilderRSI computes RSI over adjusted close with exponential smoothing of
// gains and losses (alpha = 1/period), seeded from the first price change.
// Index 0 has no change and stays NaN.
func (s *RSICross) wilderRSI(bars []domain.Bar) []float64 {
	n := len(bars)
	rsi := make([]float64, n)
	if n == 0 {
		return rsi
	}
	rsi[0] = math.NaN()

	alpha := 1.0 / float64(s.period)
	var avgUp, avgDown float64

	for i := 1; i < n; i++ {
		delta := bars[i].AdjClose - bars[i-1].AdjClose
		up, down := 0.0, 0.0
		if delta > 0 {
			up = delta
		} else {
			down = -delta
		}

		if i == 1 {
			avgUp, avgDown = up, down
		} else {
			avgUp = (1-alpha)*avgUp + alpha*up
			avgDown = (1-alpha)*avgDown + alpha*down
		}

		denom := avgDown
		if denom == 0 {
			denom = 1e-12
		}
		rs := avgUp / denom
		rsi[i] = 100 - 100/(1+rs)
	}
	return rsi
}
