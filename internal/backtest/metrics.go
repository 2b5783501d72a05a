package backtest

import (
	"math"

	"marketsim/internal/domain"
)

// DefaultTradingDays is the conventional number of trading sessions per year
// used to annualize daily statistics. Metric functions take the value as a
// parameter so callers can override it.
const DefaultTradingDays = 252

// TotalReturn is last/first - 1, zero for series shorter than two points.
func TotalReturn(equity []domain.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	return equity[len(equity)-1].Equity/equity[0].Equity - 1.0
}

// CAGR is the compound annual growth rate over the elapsed calendar span.
func CAGR(equity []domain.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	first, last := equity[0], equity[len(equity)-1]
	years := last.Date.Sub(first.Date).Hours() / 24 / 365.25
	if years <= 0 {
		return 0
	}
	return math.Pow(last.Equity/first.Equity, 1.0/years) - 1.0
}

// Sharpe is the annualized ratio of mean to sample standard deviation of
// daily excess returns. It returns zero for degenerate inputs: fewer than two
// equity points or zero variance.
func Sharpe(equity []domain.EquityPoint, riskFree float64, tradingDays int) float64 {
	rets := dailyReturns(equity)
	if len(rets) < 2 {
		return 0
	}

	rf := riskFree / float64(tradingDays)
	mean := 0.0
	for _, r := range rets {
		mean += r - rf
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		d := (r - rf) - mean
		variance += d * d
	}
	variance /= float64(len(rets) - 1)

	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(float64(tradingDays))
}

// MaxDrawdown is the most negative fractional decline from the running peak.
func MaxDrawdown(equity []domain.EquityPoint) float64 {
	dd := DrawdownSeries(equity)
	minDD := 0.0
	for _, d := range dd {
		if d < minDD {
			minDD = d
		}
	}
	return minDD
}

// DrawdownSeries returns equity/running-peak - 1 per point.
func DrawdownSeries(equity []domain.EquityPoint) []float64 {
	out := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		out[i] = p.Equity/peak - 1.0
	}
	return out
}

func dailyReturns(equity []domain.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		rets = append(rets, equity[i].Equity/equity[i-1].Equity-1.0)
	}
	return rets
}

// TradeStats aggregates round-trip trade outcomes.
type TradeStats struct {
	NumTrades       int
	WinRate         float64 // percent of trades with positive P&L
	ProfitFactor    float64 // gross profit / gross loss; +Inf when lossless
	AvgDurationDays float64
	GrossProfit     float64
	GrossLoss       float64
}

// Statistics computes trade-level stats. An empty trade list yields the zero
// value rather than an error.
func Statistics(trades []domain.Trade) TradeStats {
	if len(trades) == 0 {
		return TradeStats{}
	}

	var s TradeStats
	s.NumTrades = len(trades)

	wins := 0
	totalDuration := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			s.GrossProfit += t.PnL
		} else if t.PnL < 0 {
			s.GrossLoss += -t.PnL
		}
		totalDuration += t.DurationDays
	}

	s.WinRate = 100.0 * float64(wins) / float64(s.NumTrades)
	s.AvgDurationDays = float64(totalDuration) / float64(s.NumTrades)

	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	default:
		s.ProfitFactor = 0
	}

	return s
}

// Summary bundles the equity-curve and trade-level metrics of one run.
type Summary struct {
	TotalReturn float64
	CAGR        float64
	Sharpe      float64
	MaxDrawdown float64
	TradeStats
}

// Summarize computes the full metric set for an equity curve and its
// reconstructed trades.
func Summarize(equity []domain.EquityPoint, trades []domain.Trade, riskFree float64, tradingDays int) Summary {
	return Summary{
		TotalReturn: TotalReturn(equity),
		CAGR:        CAGR(equity),
		Sharpe:      Sharpe(equity, riskFree, tradingDays),
		MaxDrawdown: MaxDrawdown(equity),
		TradeStats:  Statistics(trades),
	}
}
