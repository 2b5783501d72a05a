// Package backtest implements the daily-bar simulation engine: signal-driven
// next-open execution, the portfolio ledger, round-trip trade reconstruction,
// and performance metrics.
package backtest

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"marketsim/internal/domain"
	"marketsim/internal/strategy"
)

// Costs is the execution cost model. Both rates are fractions of notional.
type Costs struct {
	CommissionRate float64
	SlippageRate   float64
}

// Result holds everything a completed run produces.
type Result struct {
	Equity    []domain.EquityPoint
	Fills     []domain.Fill
	Cash      float64
	Positions map[string]domain.Position
	Calendar  []time.Time
}

// Engine replays historical bars through a strategy with next-open execution.
//
//   - Signals are integers in {-1, 0, 1} per symbol per day.
//   - Orders execute at the next session's open (the sole look-ahead defense).
//   - Equity is marked daily at the close.
//   - Trades happen only when the target signal changes; no daily rebalancing.
//   - Sizing uses a fixed per-symbol budget from initial capital, stable for
//     the whole run.
type Engine struct {
	data           map[string][]domain.Bar
	strat          strategy.Strategy
	initialCapital float64
	costs          Costs
	allowShorts    bool
	log            *slog.Logger
}

// NewEngine validates the bar data and builds an engine. Each symbol's series
// must be strictly ascending by date with no duplicates; violations are fatal
// here rather than producing a silently wrong run.
func NewEngine(data map[string][]domain.Bar, strat strategy.Strategy, initialCapital float64, costs Costs, allowShorts bool) (*Engine, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("backtest: no bar data supplied")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("backtest: initial capital must be positive, got %v", initialCapital)
	}
	for sym, bars := range data {
		for i := 1; i < len(bars); i++ {
			if !bars[i].Date.After(bars[i-1].Date) {
				return nil, fmt.Errorf("backtest: %s bars not strictly ascending at %s", sym, bars[i].Date.Format("2006-01-02"))
			}
		}
	}

	return &Engine{
		data:           data,
		strat:          strat,
		initialCapital: initialCapital,
		costs:          costs,
		allowShorts:    allowShorts,
		log:            slog.Default().With("component", "engine"),
	}, nil
}

// Calendar returns the sorted intersection of all symbols' bar dates.
func (e *Engine) Calendar() []time.Time {
	counts := make(map[time.Time]int)
	for _, bars := range e.data {
		for _, b := range bars {
			counts[b.Date]++
		}
	}

	n := len(e.data)
	var cal []time.Time
	for dt, c := range counts {
		if c == n {
			cal = append(cal, dt)
		}
	}
	sort.Slice(cal, func(i, j int) bool { return cal[i].Before(cal[j]) })
	return cal
}

// Run executes the simulation and returns the equity curve, fill history, and
// ending portfolio state.
func (e *Engine) Run() (*Result, error) {
	calendar := e.Calendar()
	if len(calendar) == 0 {
		return nil, fmt.Errorf("backtest: no common trading dates across %d symbols", len(e.data))
	}

	symbols := make([]string, 0, len(e.data))
	for sym := range e.data {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	// Index bars by date per symbol for O(1) lookup. The calendar is the
	// intersection of all date sets, so every calendar date resolves for
	// every symbol.
	barAt := make(map[string]map[time.Time]domain.Bar, len(symbols))
	for sym, bars := range e.data {
		m := make(map[time.Time]domain.Bar, len(bars))
		for _, b := range bars {
			m[b.Date] = b
		}
		barAt[sym] = m
	}

	targets := e.processedSignals(calendar, symbols)

	portfolio := NewPortfolio(e.initialCapital)
	budget := 0.95 * e.initialCapital / float64(len(symbols))

	prevTarget := make(map[string]domain.Signal, len(symbols))
	equity := make([]domain.EquityPoint, 0, len(calendar))

	// Trade at the next session's open, so the last date gets no orders,
	// only a final equity mark.
	for i := 0; i < len(calendar)-1; i++ {
		dt := calendar[i]
		nextDt := calendar[i+1]

		closes := make(map[string]float64, len(symbols))
		for _, sym := range symbols {
			closes[sym] = barAt[sym][dt].Close
		}

		for _, sym := range symbols {
			target := targets[sym][i]
			if target == prevTarget[sym] {
				continue
			}

			openPx := barAt[sym][nextDt].Open
			cur := portfolio.PositionQty(sym)

			// Exit first when the new target is flat or a flip.
			if cur != 0 && (target == 0 || (target > 0) == (cur < 0)) {
				side := domain.SideSell
				if cur < 0 {
					side = domain.SideBuy
				}
				price := e.execPrice(side, openPx)
				qty := cur
				if qty < 0 {
					qty = -qty
				}
				if side == domain.SideBuy {
					if afford := e.maxAffordable(portfolio.Cash, price); afford < qty {
						qty = afford
					}
				}
				if qty > 0 {
					comm := e.commission(float64(qty) * price)
					portfolio.ApplyFill(nextDt, sym, side, qty, price, comm, closes)
				}
				cur = portfolio.PositionQty(sym)
			}

			// Enter only when flat after the exit leg. A short-circuited
			// flip (exit capped to zero) leaves the old position and skips
			// the entry on purpose.
			if target != 0 && cur == 0 {
				side := domain.SideBuy
				if target < 0 {
					side = domain.SideSell
				}
				price := e.execPrice(side, openPx)
				shares := int64(math.Floor(budget / price))
				if side == domain.SideBuy {
					if afford := e.maxAffordable(portfolio.Cash, price); afford < shares {
						shares = afford
					}
				}
				if shares > 0 {
					comm := e.commission(float64(shares) * price)
					portfolio.ApplyFill(nextDt, sym, side, shares, price, comm, closes)
				}
			}

			// Advance the target memory even when sizing produced no fill,
			// so unchanged signals don't retry on later days.
			prevTarget[sym] = target
		}

		equity = append(equity, domain.EquityPoint{Date: dt, Equity: portfolio.Equity(closes)})
	}

	// Final date: equity mark only, no following session to execute on.
	last := calendar[len(calendar)-1]
	lastCloses := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		lastCloses[sym] = barAt[sym][last].Close
	}
	equity = append(equity, domain.EquityPoint{Date: last, Equity: portfolio.Equity(lastCloses)})

	e.log.Debug("run complete",
		"dates", len(calendar),
		"fills", len(portfolio.Fills),
		"finalEquity", equity[len(equity)-1].Equity,
	)

	return &Result{
		Equity:    equity,
		Fills:     portfolio.Fills,
		Cash:      portfolio.Cash,
		Positions: portfolio.Snapshot(),
		Calendar:  calendar,
	}, nil
}

// processedSignals asks the strategy for raw signals, reindexes them onto the
// calendar treating missing dates as neutral, clamps to {-1, 0, 1}, and maps
// -1 to flat when shorts are disabled.
func (e *Engine) processedSignals(calendar []time.Time, symbols []string) map[string][]domain.Signal {
	raw := e.strat.Signals(e.data)

	out := make(map[string][]domain.Signal, len(symbols))
	for _, sym := range symbols {
		series := raw[sym]
		vals := make([]domain.Signal, len(calendar))
		for i, dt := range calendar {
			s := series[dt] // missing date -> 0
			switch {
			case s > 0:
				s = domain.SignalLong
			case s < 0:
				s = domain.SignalShort
			}
			if s == domain.SignalShort && !e.allowShorts {
				s = domain.SignalFlat
			}
			vals[i] = s
		}
		out[sym] = vals
	}
	return out
}

// execPrice applies slippage against the trader.
func (e *Engine) execPrice(side domain.Side, open float64) float64 {
	if side == domain.SideBuy {
		return open * (1.0 + e.costs.SlippageRate)
	}
	return open * (1.0 - e.costs.SlippageRate)
}

func (e *Engine) commission(notional float64) float64 {
	return math.Abs(notional) * e.costs.CommissionRate
}

// maxAffordable is the largest share count current cash can buy at price
// including commission.
func (e *Engine) maxAffordable(cash, price float64) int64 {
	perShare := price * (1.0 + e.costs.CommissionRate)
	if perShare <= 0 || cash <= 0 {
		return 0
	}
	return int64(math.Floor(cash / perShare))
}
