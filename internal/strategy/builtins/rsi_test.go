package builtins

import (
	"math"
	"testing"

	"marketsim/internal/domain"
)

func TestNewRSICrossValidation(t *testing.T) {
	if _, err := NewRSICross(0, 30, 70); err == nil {
		t.Error("expected error for zero period")
	}
	if _, err := NewRSICross(14, 70, 30); err == nil {
		t.Error("expected error for lower >= upper")
	}
	if _, err := NewRSICross(14, 30, 70); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}

func TestWilderRSIExtremes(t *testing.T) {
	s, _ := NewRSICross(2, 30, 70)

	up := s.wilderRSI(mkBars("A", []float64{10, 11}))
	if !math.IsNaN(up[0]) {
		t.Errorf("rsi[0] = %v, want NaN", up[0])
	}
	if up[1] < 99.999 {
		t.Errorf("all-gain rsi = %v, want ~100", up[1])
	}

	down := s.wilderRSI(mkBars("A", []float64{10, 9}))
	if down[1] > 0.001 {
		t.Errorf("all-loss rsi = %v, want ~0", down[1])
	}
}

func TestWilderRSISmoothing(t *testing.T) {
	s, _ := NewRSICross(2, 30, 70)
	// Deltas: -1, +5. Seeded at the first delta, then alpha = 0.5:
	// avgUp = 2.5, avgDown = 0.5, rs = 5, rsi = 100 - 100/6.
	rsi := s.wilderRSI(mkBars("A", []float64{10, 9, 14}))
	want := 100 - 100.0/6.0
	if math.Abs(rsi[2]-want) > 1e-9 {
		t.Errorf("rsi[2] = %v, want %v", rsi[2], want)
	}
}

func TestRSICrossUpSignal(t *testing.T) {
	s, _ := NewRSICross(2, 30, 70)
	// rsi[1] ~ 0 (below 30), rsi[2] ~ 83 (above): cross-up at index 2, so
	// the shifted long lands on bar 3.
	bars := mkBars("A", []float64{10, 9, 14, 15})
	sig := s.Signals(map[string][]domain.Bar{"A": bars})["A"]

	want := []domain.Signal{0, 0, 0, 1}
	for i, w := range want {
		if got := sig[bars[i].Date]; got != w {
			t.Errorf("signal[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestRSINoCrossStaysFlat(t *testing.T) {
	s, _ := NewRSICross(2, 30, 70)
	// Monotonic rise keeps RSI pinned high; it never crosses up through the
	// lower threshold, so every bar stays neutral.
	bars := mkBars("A", []float64{10, 11, 12, 13, 14})
	sig := s.Signals(map[string][]domain.Bar{"A": bars})["A"]

	for i, b := range bars {
		if sig[b.Date] != domain.SignalFlat {
			t.Errorf("signal[%d] = %d, want flat", i, sig[b.Date])
		}
	}
}
