// Package domain defines the core types shared across the simulator: bars,
// signals, fills, positions, and reconstructed round-trip trades.
package domain

import "time"

// Bar is one symbol's daily OHLCV record. Bars are immutable once ingested;
// Date is normalized to midnight UTC and identifies the trading session.
type Bar struct {
	Symbol   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Signal is a discrete per-symbol, per-date trading intent.
type Signal int8

const (
	SignalShort Signal = -1
	SignalFlat  Signal = 0
	SignalLong  Signal = 1
)

// Side is the direction of an executed order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a signed per-symbol share count with a volume-weighted average
// cost basis. Qty > 0 is long, < 0 is short, 0 is flat. AvgCost is
// bookkeeping only and does not feed realized P&L.
type Position struct {
	Symbol  string
	Qty     int64
	AvgCost float64
}

// Fill is one executed order. Date is the execution date, one session after
// the decision date. Fills are append-only; the ordered fill sequence is the
// audit trail of a run.
type Fill struct {
	Date        time.Time
	Symbol      string
	Side        Side
	Qty         int64
	Price       float64 // execution price, post-slippage
	Commission  float64
	CashAfter   float64
	EquityAfter float64 // marked at the decision date's closes
}

// TradeSide labels a round trip as long or short.
type TradeSide string

const (
	TradeLong  TradeSide = "LONG"
	TradeShort TradeSide = "SHORT"
)

// Trade is a reconstructed closed round trip. EntryAmount and ExitAmount
// aggregate partial legs: for a LONG trade the entry is buy cost plus
// commission and the exit is sell proceeds net of commission; a SHORT trade
// is the mirror image.
type Trade struct {
	Symbol       string
	EntryDate    time.Time
	ExitDate     time.Time
	Side         TradeSide
	Qty          int64
	EntryAmount  float64
	ExitAmount   float64
	PnL          float64
	DurationDays int
}

// EquityPoint is one end-of-day equity mark.
type EquityPoint struct {
	Date   time.Time
	Equity float64
}
