// Package report renders run artifacts — equity curves, drawdowns, fills,
// trades, metrics, and sweep rankings — as CSV files and a Markdown summary.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"marketsim/internal/backtest"
	"marketsim/internal/domain"
)

const dateLayout = "2006-01-02"

// WriteEquityCSV writes the end-of-day equity curve.
func WriteEquityCSV(path string, equity []domain.EquityPoint) error {
	return writeCSV(path, []string{"date", "equity"}, len(equity), func(i int) []string {
		return []string{
			equity[i].Date.Format(dateLayout),
			formatFloat(equity[i].Equity),
		}
	})
}

// WriteDrawdownCSV writes the fractional drawdown from the running equity peak
// alongside each equity mark.
func WriteDrawdownCSV(path string, equity []domain.EquityPoint) error {
	dd := backtest.DrawdownSeries(equity)
	return writeCSV(path, []string{"date", "equity", "drawdown"}, len(equity), func(i int) []string {
		return []string{
			equity[i].Date.Format(dateLayout),
			formatFloat(equity[i].Equity),
			formatFloat(dd[i]),
		}
	})
}

// WriteFillsCSV writes the ordered fill history of a run.
func WriteFillsCSV(path string, fills []domain.Fill) error {
	header := []string{"date", "symbol", "side", "qty", "price", "commission", "cash_after", "equity_after"}
	return writeCSV(path, header, len(fills), func(i int) []string {
		f := fills[i]
		return []string{
			f.Date.Format(dateLayout),
			f.Symbol,
			string(f.Side),
			strconv.FormatInt(f.Qty, 10),
			formatFloat(f.Price),
			formatFloat(f.Commission),
			formatFloat(f.CashAfter),
			formatFloat(f.EquityAfter),
		}
	})
}

// WriteTradesCSV writes reconstructed round-trip trades.
func WriteTradesCSV(path string, trades []domain.Trade) error {
	header := []string{"symbol", "side", "entry_date", "exit_date", "qty", "entry_amount", "exit_amount", "pnl", "duration_days"}
	return writeCSV(path, header, len(trades), func(i int) []string {
		t := trades[i]
		return []string{
			t.Symbol,
			string(t.Side),
			t.EntryDate.Format(dateLayout),
			t.ExitDate.Format(dateLayout),
			strconv.FormatInt(t.Qty, 10),
			formatFloat(t.EntryAmount),
			formatFloat(t.ExitAmount),
			formatFloat(t.PnL),
			strconv.Itoa(t.DurationDays),
		}
	})
}

// WriteMetricsCSV writes the run summary as metric,value pairs.
func WriteMetricsCSV(path string, s backtest.Summary) error {
	rows := [][]string{
		{"total_return", formatFloat(s.TotalReturn)},
		{"cagr", formatFloat(s.CAGR)},
		{"sharpe", formatFloat(s.Sharpe)},
		{"max_drawdown", formatFloat(s.MaxDrawdown)},
		{"num_trades", strconv.Itoa(s.NumTrades)},
		{"win_rate_pct", formatFloat(s.WinRate)},
		{"profit_factor", formatFloat(s.ProfitFactor)},
		{"avg_duration_days", formatFloat(s.AvgDurationDays)},
		{"gross_profit", formatFloat(s.GrossProfit)},
		{"gross_loss", formatFloat(s.GrossLoss)},
	}
	return writeCSV(path, []string{"metric", "value"}, len(rows), func(i int) []string {
		return rows[i]
	})
}

// WriteSweepCSV writes sweep results in ranked order.
func WriteSweepCSV(path string, report *backtest.SweepReport) error {
	header := []string{"short", "long", "total_return", "cagr", "sharpe", "max_drawdown", "num_trades", "win_rate_pct", "profit_factor"}
	return writeCSV(path, header, len(report.Results), func(i int) []string {
		r := report.Results[i]
		return []string{
			strconv.Itoa(r.Params.Short),
			strconv.Itoa(r.Params.Long),
			formatFloat(r.Summary.TotalReturn),
			formatFloat(r.Summary.CAGR),
			formatFloat(r.Summary.Sharpe),
			formatFloat(r.Summary.MaxDrawdown),
			strconv.Itoa(r.Summary.NumTrades),
			formatFloat(r.Summary.WinRate),
			formatFloat(r.Summary.ProfitFactor),
		}
	})
}

// writeCSV creates path (and parent dirs) and streams n rows through row.
func writeCSV(path string, header []string, n int, row func(i int) []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// formatFloat renders values compactly; infinities become "inf"/"-inf" so the
// CSV stays loadable by spreadsheet tools.
func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
