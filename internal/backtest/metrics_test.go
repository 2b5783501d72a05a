package backtest

import (
	"math"
	"testing"
	"time"

	"marketsim/internal/domain"
)

func eq(d int, v float64) domain.EquityPoint {
	return domain.EquityPoint{Date: day(d), Equity: v}
}

func TestTotalReturn(t *testing.T) {
	if got := TotalReturn(nil); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := TotalReturn([]domain.EquityPoint{eq(1, 100)}); got != 0 {
		t.Errorf("single point = %v", got)
	}
	got := TotalReturn([]domain.EquityPoint{eq(1, 100), eq(2, 110)})
	if math.Abs(got-0.1) > 1e-12 {
		t.Errorf("return = %v, want 0.1", got)
	}
}

func TestCAGROneYearDouble(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 365) // ~1 year
	curve := []domain.EquityPoint{
		{Date: start, Equity: 100},
		{Date: end, Equity: 200},
	}
	got := CAGR(curve)
	// Slightly above 100%/yr since 365 days is just under 365.25.
	if math.Abs(got-1.0) > 0.01 {
		t.Errorf("cagr = %v, want ~1.0", got)
	}
}

func TestSharpeDegenerate(t *testing.T) {
	if got := Sharpe(nil, 0, 252); got != 0 {
		t.Errorf("empty = %v", got)
	}
	two := []domain.EquityPoint{eq(1, 100), eq(2, 101)}
	if got := Sharpe(two, 0, 252); got != 0 {
		t.Errorf("single return = %v", got)
	}
	// Constant returns have zero variance.
	flat := []domain.EquityPoint{eq(1, 100), eq(2, 110), eq(3, 121)}
	if got := Sharpe(flat, 0, 252); got != 0 {
		t.Errorf("zero variance = %v", got)
	}
}

func TestSharpeHandComputed(t *testing.T) {
	// Returns: +10%, -5%.
	curve := []domain.EquityPoint{eq(1, 100), eq(2, 110), eq(3, 104.5)}
	got := Sharpe(curve, 0, 252)

	mean := (0.10 + -0.05) / 2
	variance := (math.Pow(0.10-mean, 2) + math.Pow(-0.05-mean, 2)) / 1
	want := mean / math.Sqrt(variance) * math.Sqrt(252)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("sharpe = %v, want %v", got, want)
	}
}

func TestMaxDrawdown(t *testing.T) {
	curve := []domain.EquityPoint{eq(1, 100), eq(2, 120), eq(3, 90), eq(4, 130), eq(5, 117)}
	got := MaxDrawdown(curve)
	// Worst: 90/120 - 1 = -0.25.
	if math.Abs(got-(-0.25)) > 1e-12 {
		t.Errorf("maxDD = %v, want -0.25", got)
	}

	rising := []domain.EquityPoint{eq(1, 100), eq(2, 110), eq(3, 120)}
	if got := MaxDrawdown(rising); got != 0 {
		t.Errorf("monotonic rise maxDD = %v, want 0", got)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	s := Statistics(nil)
	if s.NumTrades != 0 || s.WinRate != 0 || s.ProfitFactor != 0 {
		t.Errorf("empty stats = %+v", s)
	}
}

func TestStatisticsMixed(t *testing.T) {
	trades := []domain.Trade{
		{PnL: 100, DurationDays: 2},
		{PnL: -40, DurationDays: 4},
		{PnL: 60, DurationDays: 6},
		{PnL: 0, DurationDays: 4},
	}
	s := Statistics(trades)
	if s.NumTrades != 4 {
		t.Errorf("num = %d", s.NumTrades)
	}
	if math.Abs(s.WinRate-50) > 1e-12 {
		t.Errorf("win rate = %v, want 50", s.WinRate)
	}
	if math.Abs(s.ProfitFactor-4) > 1e-12 {
		t.Errorf("profit factor = %v, want 4", s.ProfitFactor)
	}
	if math.Abs(s.AvgDurationDays-4) > 1e-12 {
		t.Errorf("avg duration = %v, want 4", s.AvgDurationDays)
	}
}

func TestProfitFactorBoundaries(t *testing.T) {
	lossless := Statistics([]domain.Trade{{PnL: 10, DurationDays: 1}})
	if !math.IsInf(lossless.ProfitFactor, 1) {
		t.Errorf("lossless profit factor = %v, want +Inf", lossless.ProfitFactor)
	}

	allLoss := Statistics([]domain.Trade{{PnL: -10, DurationDays: 1}})
	if allLoss.ProfitFactor != 0 {
		t.Errorf("all-loss profit factor = %v, want 0", allLoss.ProfitFactor)
	}

	breakeven := Statistics([]domain.Trade{{PnL: 0, DurationDays: 1}})
	if breakeven.ProfitFactor != 0 {
		t.Errorf("breakeven profit factor = %v, want 0", breakeven.ProfitFactor)
	}
}

func TestSummarize(t *testing.T) {
	curve := []domain.EquityPoint{eq(1, 100), eq(2, 105), eq(3, 110)}
	trades := []domain.Trade{{PnL: 10, DurationDays: 2}}

	s := Summarize(curve, trades, 0, 252)
	if math.Abs(s.TotalReturn-0.1) > 1e-12 {
		t.Errorf("total return = %v", s.TotalReturn)
	}
	if s.NumTrades != 1 {
		t.Errorf("num trades = %d", s.NumTrades)
	}
}
