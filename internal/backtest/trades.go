package backtest

import (
	"sort"
	"time"

	"marketsim/internal/domain"
)

// tradeAccum is the per-symbol running state of the reconstruction pass.
// A trade is open while side is non-empty; pos tracks the signed share count
// implied by the fills seen so far.
type tradeAccum struct {
	pos       int64
	side      domain.TradeSide // "" when no trade is open
	entryDate time.Time
	entryAmt  float64 // LONG: buy cost + comm; SHORT: sell proceeds - comm
	exitAmt   float64 // accumulates against the open trade
	qtyTotal  int64
}

// RoundTripTrades reconstructs closed round trips from a fill history. It is
// a pure function of its input: deterministic, idempotent, and independent of
// which engine produced the fills. Partial entries/exits and direct flips
// within a single fill are supported. A position that never returns to
// exactly zero stays open and is not emitted.
func RoundTripTrades(fills []domain.Fill) []domain.Trade {
	if len(fills) == 0 {
		return nil
	}

	ordered := make([]domain.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Symbol != ordered[j].Symbol {
			return ordered[i].Symbol < ordered[j].Symbol
		}
		return ordered[i].Date.Before(ordered[j].Date)
	})

	var trades []domain.Trade
	state := make(map[string]*tradeAccum)

	for _, f := range ordered {
		if f.Qty <= 0 {
			continue
		}
		acc, ok := state[f.Symbol]
		if !ok {
			acc = &tradeAccum{}
			state[f.Symbol] = acc
		}

		perShareComm := f.Commission / float64(f.Qty)

		if f.Side == domain.SideBuy {
			if acc.pos >= 0 {
				acc.openLong(f.Date, f.Qty, f.Price, perShareComm)
				acc.pos += f.Qty
			} else {
				// Cover the short first, then any remainder flips long.
				cover := min64(f.Qty, -acc.pos)
				acc.exitAmt += float64(cover) * (f.Price + perShareComm)
				acc.pos += cover
				if acc.pos == 0 {
					trades = append(trades, acc.finalize(f.Symbol, f.Date))
				}
				if rem := f.Qty - cover; rem > 0 {
					acc.openLong(f.Date, rem, f.Price, perShareComm)
					acc.pos += rem
				}
			}
		} else {
			if acc.pos <= 0 {
				acc.openShort(f.Date, f.Qty, f.Price, perShareComm)
				acc.pos -= f.Qty
			} else {
				// Exit the long first, then any remainder flips short.
				exit := min64(f.Qty, acc.pos)
				acc.exitAmt += float64(exit) * (f.Price - perShareComm)
				acc.pos -= exit
				if acc.pos == 0 {
					trades = append(trades, acc.finalize(f.Symbol, f.Date))
				}
				if rem := f.Qty - exit; rem > 0 {
					acc.openShort(f.Date, rem, f.Price, perShareComm)
					acc.pos -= rem
				}
			}
		}
	}

	return trades
}

// openLong adds quantity to (or starts) a LONG entry at cost including
// commission.
func (a *tradeAccum) openLong(dt time.Time, qty int64, price, perShareComm float64) {
	if a.side == "" {
		a.side = domain.TradeLong
		a.entryDate = dt
	}
	a.entryAmt += float64(qty) * (price + perShareComm)
	a.qtyTotal += qty
}

// openShort adds quantity to (or starts) a SHORT entry at proceeds net of
// commission.
func (a *tradeAccum) openShort(dt time.Time, qty int64, price, perShareComm float64) {
	if a.side == "" {
		a.side = domain.TradeShort
		a.entryDate = dt
	}
	a.entryAmt += float64(qty) * (price - perShareComm)
	a.qtyTotal += qty
}

// finalize emits the closed trade and resets the accumulator. Duration is
// floored to one day so same-session round trips don't divide by zero in
// downstream statistics.
func (a *tradeAccum) finalize(symbol string, exitDate time.Time) domain.Trade {
	pnl := a.exitAmt - a.entryAmt
	if a.side == domain.TradeShort {
		pnl = a.entryAmt - a.exitAmt
	}
	days := int(exitDate.Sub(a.entryDate).Hours() / 24)
	if days < 1 {
		days = 1
	}

	tr := domain.Trade{
		Symbol:       symbol,
		EntryDate:    a.entryDate,
		ExitDate:     exitDate,
		Side:         a.side,
		Qty:          a.qtyTotal,
		EntryAmount:  a.entryAmt,
		ExitAmount:   a.exitAmt,
		PnL:          pnl,
		DurationDays: days,
	}

	*a = tradeAccum{}
	return tr
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
