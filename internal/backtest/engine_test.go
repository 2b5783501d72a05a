package backtest

import (
	"math"
	"testing"
	"time"

	"marketsim/internal/domain"
	"marketsim/internal/strategy"
)

// fixedSignals returns a canned signal series regardless of input data.
type fixedSignals struct {
	sig map[string]strategy.SignalSeries
}

func (f *fixedSignals) Name() string { return "fixed" }
func (f *fixedSignals) Signals(map[string][]domain.Bar) map[string]strategy.SignalSeries {
	return f.sig
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// flatBars builds a daily series with Open = Close = AdjClose = price[i],
// one bar per entry starting at day(startDay).
func flatBars(sym string, startDay int, prices []float64) []domain.Bar {
	bars := make([]domain.Bar, len(prices))
	for i, p := range prices {
		bars[i] = domain.Bar{
			Symbol: sym, Date: day(startDay + i),
			Open: p, High: p, Low: p, Close: p, AdjClose: p,
			Volume: 1000,
		}
	}
	return bars
}

func series(bars []domain.Bar, sigs []domain.Signal) strategy.SignalSeries {
	out := make(strategy.SignalSeries, len(bars))
	for i, b := range bars {
		out[b.Date] = sigs[i]
	}
	return out
}

func TestNewEngineValidation(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10})
	strat := &fixedSignals{}

	if _, err := NewEngine(nil, strat, 1000, Costs{}, false); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 0, Costs{}, false); err == nil {
		t.Error("expected error for zero capital")
	}

	dup := []domain.Bar{bars[0], bars[0]}
	if _, err := NewEngine(map[string][]domain.Bar{"A": dup}, strat, 1000, Costs{}, false); err == nil {
		t.Error("expected error for duplicate dates")
	}
}

func TestCalendarIntersection(t *testing.T) {
	a := flatBars("A", 1, []float64{1, 1, 1, 1, 1}) // days 1-5
	b := flatBars("B", 2, []float64{1, 1, 1, 1})    // days 2-5

	e, err := NewEngine(map[string][]domain.Bar{"A": a, "B": b}, &fixedSignals{}, 1000, Costs{}, false)
	if err != nil {
		t.Fatal(err)
	}
	cal := e.Calendar()
	if len(cal) != 4 {
		t.Fatalf("calendar length = %d, want 4", len(cal))
	}
	if !cal[0].Equal(day(2)) || !cal[3].Equal(day(5)) {
		t.Errorf("calendar = %v", cal)
	}
}

func TestRunNextOpenExecution(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10, 10, 10, 10})
	// Long from day 1, flat from day 3.
	sig := series(bars, []domain.Signal{1, 1, 0, 0, 0})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}

	e, err := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 10_000, Costs{}, false)
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(res.Fills))
	}

	// Budget 0.95*10000 = 9500 at price 10 -> 950 shares, executed the
	// session after the signal day.
	buy := res.Fills[0]
	if buy.Side != domain.SideBuy || buy.Qty != 950 || !buy.Date.Equal(day(2)) {
		t.Errorf("buy fill = %+v", buy)
	}
	sell := res.Fills[1]
	if sell.Side != domain.SideSell || sell.Qty != 950 || !sell.Date.Equal(day(4)) {
		t.Errorf("sell fill = %+v", sell)
	}

	// Prices never move and costs are zero, so equity stays at capital.
	for _, p := range res.Equity {
		if math.Abs(p.Equity-10_000) > 1e-9 {
			t.Errorf("equity at %s = %v, want 10000", p.Date.Format("2006-01-02"), p.Equity)
		}
	}
	if len(res.Equity) != len(res.Calendar) {
		t.Errorf("equity points = %d, calendar = %d", len(res.Equity), len(res.Calendar))
	}
}

func TestRunChurnSuppression(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10, 10, 10, 10, 10})
	// Signal stays long for the whole run: exactly one entry, no re-buys.
	sig := series(bars, []domain.Signal{1, 1, 1, 1, 1, 1})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}

	e, _ := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 10_000, Costs{}, false)
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(res.Fills))
	}
	if res.Fills[0].Side != domain.SideBuy {
		t.Errorf("fill side = %s", res.Fills[0].Side)
	}
}

func TestRunCostsApplied(t *testing.T) {
	bars := flatBars("A", 1, []float64{100, 100, 100, 100, 100})
	sig := series(bars, []domain.Signal{1, 1, 0, 0, 0})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}
	costs := Costs{CommissionRate: 0.001, SlippageRate: 0.0005}

	e, _ := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 100_000, costs, false)
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(res.Fills))
	}

	// Buy: budget 95000 at 100*1.0005 = 100.05 -> floor(95000/100.05) = 949.
	buy := res.Fills[0]
	if buy.Qty != 949 {
		t.Fatalf("buy qty = %d, want 949", buy.Qty)
	}
	if math.Abs(buy.Price-100.05) > 1e-9 {
		t.Errorf("buy price = %v, want 100.05", buy.Price)
	}
	wantComm := 949 * 100.05 * 0.001
	if math.Abs(buy.Commission-wantComm) > 1e-9 {
		t.Errorf("buy commission = %v, want %v", buy.Commission, wantComm)
	}

	// Sell at 100*0.9995 = 99.95.
	sell := res.Fills[1]
	if math.Abs(sell.Price-99.95) > 1e-9 {
		t.Errorf("sell price = %v, want 99.95", sell.Price)
	}

	// Final cash reconciles with a hand replay of both fills.
	cash := 100_000.0
	cash -= float64(buy.Qty)*buy.Price + buy.Commission
	cash += float64(sell.Qty)*sell.Price - sell.Commission
	if math.Abs(res.Cash-cash) > 1e-6 {
		t.Errorf("cash = %v, want %v", res.Cash, cash)
	}

	// The round trip lost exactly the slippage and commission drag.
	trades := RoundTripTrades(res.Fills)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].PnL >= 0 {
		t.Errorf("pnl = %v, want negative", trades[0].PnL)
	}
}

func TestRunShortsDisabledMapsToFlat(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10, 10, 10})
	sig := series(bars, []domain.Signal{-1, -1, -1, -1})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}

	e, _ := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 10_000, Costs{}, false)
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fills) != 0 {
		t.Fatalf("fills = %d, want 0 with shorts disabled", len(res.Fills))
	}
}

func TestRunShortFlip(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10, 10, 10, 10})
	// Short from day 1, flip long on day 3.
	sig := series(bars, []domain.Signal{-1, -1, 1, 1, 1})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}

	e, _ := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 10_000, Costs{}, true)
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}

	// SELL 950 (entry short), then on the flip BUY 950 (cover) and BUY 950
	// (new long) as separate fills on the same session.
	if len(res.Fills) != 3 {
		t.Fatalf("fills = %d, want 3: %+v", len(res.Fills), res.Fills)
	}
	if res.Fills[0].Side != domain.SideSell || res.Fills[0].Qty != 950 {
		t.Errorf("entry fill = %+v", res.Fills[0])
	}
	if res.Fills[1].Side != domain.SideBuy || res.Fills[1].Qty != 950 {
		t.Errorf("cover fill = %+v", res.Fills[1])
	}
	if res.Fills[2].Side != domain.SideBuy || res.Fills[2].Qty != 950 {
		t.Errorf("re-entry fill = %+v", res.Fills[2])
	}
	if !res.Fills[1].Date.Equal(day(4)) || !res.Fills[2].Date.Equal(day(4)) {
		t.Errorf("flip fills not on the same session: %+v", res.Fills[1:])
	}
	if got := res.Positions["A"].Qty; got != 950 {
		t.Errorf("final position = %d, want 950", got)
	}
}

func TestRunNoFillsOnFinalDate(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10, 10})
	// Signal change on the last calendar date has no following session.
	sig := series(bars, []domain.Signal{0, 0, 1})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}

	e, _ := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 10_000, Costs{}, false)
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fills) != 0 {
		t.Fatalf("fills = %d, want 0", len(res.Fills))
	}
	if len(res.Equity) != 3 {
		t.Errorf("equity points = %d, want 3", len(res.Equity))
	}
}

// TestRunReconciliation replays the fill history independently and checks the
// engine's ending cash and equity agree with it.
func TestRunReconciliation(t *testing.T) {
	a := flatBars("A", 1, []float64{50, 52, 55, 53, 51, 54, 58, 57, 60, 59, 61, 62})
	b := flatBars("B", 1, []float64{20, 19, 18, 19, 21, 22, 21, 20, 22, 23, 24, 23})

	// Alternate targets to force entries, exits, and re-entries.
	sigA := series(a, []domain.Signal{0, 1, 1, 0, 0, 1, 1, 1, 0, 1, 1, 0})
	sigB := series(b, []domain.Signal{0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0, 0})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sigA, "B": sigB}}

	costs := Costs{CommissionRate: 0.001, SlippageRate: 0.0005}
	e, err := NewEngine(map[string][]domain.Bar{"A": a, "B": b}, strat, 100_000, costs, false)
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fills) == 0 {
		t.Fatal("expected fills")
	}

	cash := 100_000.0
	pos := map[string]int64{}
	for _, f := range res.Fills {
		if f.Qty <= 0 {
			t.Fatalf("zero/negative quantity fill recorded: %+v", f)
		}
		if f.Side == domain.SideBuy {
			cash -= float64(f.Qty)*f.Price + f.Commission
			pos[f.Symbol] += f.Qty
		} else {
			cash += float64(f.Qty)*f.Price - f.Commission
			pos[f.Symbol] -= f.Qty
		}
		if math.Abs(f.CashAfter-cash) > 1e-6 {
			t.Fatalf("CashAfter = %v, replay = %v", f.CashAfter, cash)
		}
		if cash < 0 {
			t.Fatalf("cash went negative: %v after %+v", cash, f)
		}
	}

	if math.Abs(res.Cash-cash) > 1e-6 {
		t.Errorf("final cash = %v, replay = %v", res.Cash, cash)
	}
	for sym, q := range pos {
		if res.Positions[sym].Qty != q {
			t.Errorf("position %s = %d, replay = %d", sym, res.Positions[sym].Qty, q)
		}
	}

	// Final equity mark = cash + positions at final closes.
	finalEq := cash
	finalEq += float64(pos["A"]) * a[len(a)-1].Close
	finalEq += float64(pos["B"]) * b[len(b)-1].Close
	got := res.Equity[len(res.Equity)-1].Equity
	if math.Abs(got-finalEq) > 1e-6 {
		t.Errorf("final equity = %v, replay = %v", got, finalEq)
	}
}

func TestRunNoFillOnFirstSession(t *testing.T) {
	bars := flatBars("A", 1, []float64{10, 10, 10, 10})
	sig := series(bars, []domain.Signal{1, 1, 1, 1})
	strat := &fixedSignals{sig: map[string]strategy.SignalSeries{"A": sig}}

	e, _ := NewEngine(map[string][]domain.Bar{"A": bars}, strat, 10_000, Costs{}, false)
	res, err := e.Run()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range res.Fills {
		if !f.Date.After(res.Calendar[0]) {
			t.Errorf("fill on or before the first session: %+v", f)
		}
	}
}
