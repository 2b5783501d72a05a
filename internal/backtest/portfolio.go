package backtest

import (
	"time"

	"marketsim/internal/domain"
)

// Portfolio is the cash and position ledger for a single run. It is mutated
// only by ApplyFill, in chronological order; it does not re-check
// affordability — that responsibility belongs to the engine's order sizing.
type Portfolio struct {
	Cash      float64
	Positions map[string]*domain.Position
	Fills     []domain.Fill
}

// NewPortfolio creates a flat portfolio holding only cash.
func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		Cash:      cash,
		Positions: make(map[string]*domain.Position),
	}
}

// PositionQty returns the signed share count for symbol, zero when flat.
func (p *Portfolio) PositionQty(symbol string) int64 {
	if pos, ok := p.Positions[symbol]; ok {
		return pos.Qty
	}
	return 0
}

// MarketValue sums position quantity times price over all known symbols.
// Symbols missing from the snapshot contribute zero.
func (p *Portfolio) MarketValue(prices map[string]float64) float64 {
	mv := 0.0
	for sym, pos := range p.Positions {
		mv += float64(pos.Qty) * prices[sym]
	}
	return mv
}

// Equity is cash plus market value under the given price snapshot.
func (p *Portfolio) Equity(prices map[string]float64) float64 {
	return p.Cash + p.MarketValue(prices)
}

// ApplyFill mutates cash and the symbol's position exactly once and appends
// the resulting fill record. The prices snapshot is used only to mark
// EquityAfter; by convention the engine passes the decision date's closes,
// the last fully realized mark at the time the order is recorded.
func (p *Portfolio) ApplyFill(date time.Time, symbol string, side domain.Side, qty int64, price, commission float64, prices map[string]float64) domain.Fill {
	pos, ok := p.Positions[symbol]
	if !ok {
		pos = &domain.Position{Symbol: symbol}
		p.Positions[symbol] = pos
	}

	notional := float64(qty) * price
	if side == domain.SideBuy {
		p.Cash -= notional + commission
		newQty := pos.Qty + qty
		if newQty != 0 {
			pos.AvgCost = (pos.AvgCost*float64(pos.Qty) + notional) / float64(newQty)
		} else {
			pos.AvgCost = 0
		}
		pos.Qty = newQty
	} else {
		p.Cash += notional - commission
		pos.Qty -= qty
		if pos.Qty == 0 {
			pos.AvgCost = 0
		}
	}

	fill := domain.Fill{
		Date:        date,
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		Price:       price,
		Commission:  commission,
		CashAfter:   p.Cash,
		EquityAfter: p.Equity(prices),
	}
	p.Fills = append(p.Fills, fill)
	return fill
}

// Snapshot copies the positions map for inclusion in a run result.
func (p *Portfolio) Snapshot() map[string]domain.Position {
	out := make(map[string]domain.Position, len(p.Positions))
	for sym, pos := range p.Positions {
		out[sym] = *pos
	}
	return out
}
