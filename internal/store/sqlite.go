package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore persists completed runs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy        TEXT NOT NULL,
	params          TEXT NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	commission_rate REAL NOT NULL,
	slippage_rate   REAL NOT NULL,
	allow_shorts    INTEGER NOT NULL,
	total_return    REAL NOT NULL,
	cagr            REAL NOT NULL,
	sharpe          REAL NOT NULL,
	max_drawdown    REAL NOT NULL,
	num_trades      INTEGER NOT NULL,
	win_rate        REAL NOT NULL,
	profit_factor   REAL,
	created_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fills (
	run_id       INTEGER NOT NULL REFERENCES runs(id),
	date         TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	qty          INTEGER NOT NULL,
	price        REAL NOT NULL,
	commission   REAL NOT NULL,
	cash_after   REAL NOT NULL,
	equity_after REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id        INTEGER NOT NULL REFERENCES runs(id),
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	entry_date    TEXT NOT NULL,
	exit_date     TEXT NOT NULL,
	qty           INTEGER NOT NULL,
	entry_amount  REAL NOT NULL,
	exit_amount   REAL NOT NULL,
	pnl           REAL NOT NULL,
	duration_days INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS equity (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	date   TEXT NOT NULL,
	equity REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id);
`

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dateLayout = "2006-01-02"

// SaveRun stores the run and all of its artifacts in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// SQLite has no literal for +Inf; a lossless profit factor is stored as
	// NULL and surfaced as +Inf on read.
	profitFactor := sql.NullFloat64{Float64: run.ProfitFactor, Valid: !math.IsInf(run.ProfitFactor, 1)}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			strategy, params, start_date, end_date, initial_capital,
			commission_rate, slippage_rate, allow_shorts,
			total_return, cagr, sharpe, max_drawdown,
			num_trades, win_rate, profit_factor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy, run.Params,
		run.StartDate.Format(dateLayout), run.EndDate.Format(dateLayout),
		run.InitialCapital, run.CommissionRate, run.SlippageRate, run.AllowShorts,
		run.TotalReturn, run.CAGR, run.Sharpe, run.MaxDrawdown,
		run.NumTrades, run.WinRate, profitFactor,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	fillStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fills (run_id, date, symbol, side, qty, price, commission, cash_after, equity_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer fillStmt.Close()
	for _, f := range run.Fills {
		if _, err := fillStmt.ExecContext(ctx,
			runID, f.Date.Format(dateLayout), f.Symbol, string(f.Side),
			f.Qty, f.Price, f.Commission, f.CashAfter, f.EquityAfter,
		); err != nil {
			return 0, fmt.Errorf("inserting fill: %w", err)
		}
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, symbol, side, entry_date, exit_date, qty, entry_amount, exit_amount, pnl, duration_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer tradeStmt.Close()
	for _, t := range run.Trades {
		if _, err := tradeStmt.ExecContext(ctx,
			runID, t.Symbol, string(t.Side),
			t.EntryDate.Format(dateLayout), t.ExitDate.Format(dateLayout),
			t.Qty, t.EntryAmount, t.ExitAmount, t.PnL, t.DurationDays,
		); err != nil {
			return 0, fmt.Errorf("inserting trade: %w", err)
		}
	}

	eqStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity (run_id, date, equity) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer eqStmt.Close()
	for _, p := range run.Equity {
		if _, err := eqStmt.ExecContext(ctx, runID, p.Date.Format(dateLayout), p.Equity); err != nil {
			return 0, fmt.Errorf("inserting equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ListRuns returns stored run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, params, total_return, sharpe, num_trades, created_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var created string
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Params, &r.TotalReturn, &r.Sharpe, &r.NumTrades, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
