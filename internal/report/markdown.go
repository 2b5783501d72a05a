package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"marketsim/internal/backtest"
	"marketsim/internal/domain"
)

// RunInfo is the header block of a Markdown run summary.
type RunInfo struct {
	Strategy       string
	Params         string
	Symbols        []string
	InitialCapital float64
	CommissionRate float64
	SlippageRate   float64
	AllowShorts    bool
}

// WriteMarkdown renders a human-readable run summary with a short set of
// sanity checks on the result: the last fill's equity snapshot against the
// curve, any negative-cash excursion, and the session count.
func WriteMarkdown(path string, info RunInfo, res *backtest.Result, trades []domain.Trade, s backtest.Summary) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Backtest: %s\n\n", info.Strategy)
	fmt.Fprintf(&b, "- Params: %s\n", info.Params)
	fmt.Fprintf(&b, "- Symbols: %s\n", strings.Join(info.Symbols, ", "))
	fmt.Fprintf(&b, "- Initial capital: %.2f\n", info.InitialCapital)
	fmt.Fprintf(&b, "- Commission rate: %.4f, slippage rate: %.4f\n", info.CommissionRate, info.SlippageRate)
	fmt.Fprintf(&b, "- Shorts allowed: %v\n", info.AllowShorts)
	if len(res.Calendar) > 0 {
		fmt.Fprintf(&b, "- Period: %s to %s (%d sessions)\n",
			res.Calendar[0].Format(dateLayout),
			res.Calendar[len(res.Calendar)-1].Format(dateLayout),
			len(res.Calendar))
	}

	b.WriteString("\n## Performance\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total return | %.2f%% |\n", s.TotalReturn*100)
	fmt.Fprintf(&b, "| CAGR | %.2f%% |\n", s.CAGR*100)
	fmt.Fprintf(&b, "| Sharpe | %.3f |\n", s.Sharpe)
	fmt.Fprintf(&b, "| Max drawdown | %.2f%% |\n", s.MaxDrawdown*100)
	fmt.Fprintf(&b, "| Trades | %d |\n", s.NumTrades)
	fmt.Fprintf(&b, "| Win rate | %.1f%% |\n", s.WinRate)
	if math.IsInf(s.ProfitFactor, 1) {
		b.WriteString("| Profit factor | inf |\n")
	} else {
		fmt.Fprintf(&b, "| Profit factor | %.3f |\n", s.ProfitFactor)
	}
	fmt.Fprintf(&b, "| Avg trade duration | %.1f days |\n", s.AvgDurationDays)

	if best, worst, ok := extremes(trades); ok {
		b.WriteString("\n## Best / worst trades\n\n")
		fmt.Fprintf(&b, "- Best: %s %s %s → %s, P&L %.2f\n",
			best.Side, best.Symbol,
			best.EntryDate.Format(dateLayout), best.ExitDate.Format(dateLayout), best.PnL)
		fmt.Fprintf(&b, "- Worst: %s %s %s → %s, P&L %.2f\n",
			worst.Side, worst.Symbol,
			worst.EntryDate.Format(dateLayout), worst.ExitDate.Format(dateLayout), worst.PnL)
	}

	b.WriteString("\n## Ending state\n\n")
	fmt.Fprintf(&b, "- Cash: %.2f\n", res.Cash)
	openPositions := 0
	for sym, pos := range res.Positions {
		if pos.Qty != 0 {
			fmt.Fprintf(&b, "- Open position: %s qty %d\n", sym, pos.Qty)
			openPositions++
		}
	}
	if openPositions == 0 {
		b.WriteString("- No open positions\n")
	}
	fmt.Fprintf(&b, "- Fills: %d, closed round trips: %d\n", len(res.Fills), len(trades))

	b.WriteString("\n## Checks\n\n")
	for _, c := range sanityChecks(res) {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// extremes returns the highest- and lowest-P&L trades.
func extremes(trades []domain.Trade) (best, worst domain.Trade, ok bool) {
	if len(trades) == 0 {
		return best, worst, false
	}
	best, worst = trades[0], trades[0]
	for _, tr := range trades[1:] {
		if tr.PnL > best.PnL {
			best = tr
		}
		if tr.PnL < worst.PnL {
			worst = tr
		}
	}
	return best, worst, true
}

// sanityChecks flags result inconsistencies worth a human look. These are
// advisory only; a failing check does not fail the run.
func sanityChecks(res *backtest.Result) []string {
	var out []string

	if len(res.Equity) > 0 && len(res.Fills) > 0 {
		last := res.Fills[len(res.Fills)-1]
		finalEq := res.Equity[len(res.Equity)-1].Equity
		drift := math.Abs(last.EquityAfter-finalEq) / math.Max(math.Abs(finalEq), 1)
		if drift > 0.25 {
			out = append(out, fmt.Sprintf("WARN: last fill equity %.2f differs from final curve equity %.2f by %.0f%%",
				last.EquityAfter, finalEq, drift*100))
		} else {
			out = append(out, "OK: last fill equity consistent with the equity curve")
		}
	}

	negativeCash := false
	for _, f := range res.Fills {
		if f.CashAfter < 0 {
			negativeCash = true
			out = append(out, fmt.Sprintf("WARN: negative cash %.2f after %s %s on %s",
				f.CashAfter, f.Side, f.Symbol, f.Date.Format(dateLayout)))
			break
		}
	}
	if !negativeCash {
		out = append(out, "OK: cash never went negative")
	}

	flat := true
	for i := 1; i < len(res.Equity); i++ {
		if res.Equity[i].Equity != res.Equity[0].Equity {
			flat = false
			break
		}
	}
	if flat && len(res.Equity) > 1 {
		out = append(out, "WARN: equity curve is flat; the strategy never traded")
	}

	return out
}
