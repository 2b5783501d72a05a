package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"marketsim/internal/domain"
	"marketsim/internal/strategy"
)

// SweepParams identifies one point of a moving-average parameter grid.
type SweepParams struct {
	Short int
	Long  int
}

// SweepResult pairs grid parameters with the metrics of their run.
type SweepResult struct {
	Params  SweepParams
	Summary Summary
}

// SweepReport is the outcome of a full grid sweep, ranked by Sharpe.
type SweepReport struct {
	Results []SweepResult
	Elapsed time.Duration
	Workers int
}

// Grid builds all (short, long) pairs with short < long.
func Grid(shorts, longs []int) []SweepParams {
	var grid []SweepParams
	for _, s := range shorts {
		for _, l := range longs {
			if s < l {
				grid = append(grid, SweepParams{Short: s, Long: l})
			}
		}
	}
	return grid
}

// Sweep runs an independent backtest for every grid point across a bounded
// worker pool. Runs share the bar data read-only and nothing else, so results
// are collected by parameter key and are independent of completion order.
// The first failing run aborts the sweep.
func Sweep(
	ctx context.Context,
	data map[string][]domain.Bar,
	grid []SweepParams,
	newStrategy func(short, long int) (strategy.Strategy, error),
	initialCapital float64,
	costs Costs,
	allowShorts bool,
	riskFree float64,
	tradingDays int,
	workers int,
) (*SweepReport, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("backtest: empty sweep grid")
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(grid) {
		workers = len(grid)
	}

	log := slog.Default().With("component", "sweep")
	start := time.Now()

	paramCh := make(chan SweepParams, len(grid))
	for _, p := range grid {
		paramCh <- p
	}
	close(paramCh)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		byParams = make(map[SweepParams]Summary, len(grid))
		firstErr error
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range paramCh {
				if ctx.Err() != nil {
					return
				}

				strat, err := newStrategy(p.Short, p.Long)
				if err != nil {
					setErr(fmt.Errorf("building strategy for %d/%d: %w", p.Short, p.Long, err))
					return
				}
				engine, err := NewEngine(data, strat, initialCapital, costs, allowShorts)
				if err != nil {
					setErr(err)
					return
				}
				res, err := engine.Run()
				if err != nil {
					setErr(fmt.Errorf("run %d/%d: %w", p.Short, p.Long, err))
					return
				}

				summary := Summarize(res.Equity, RoundTripTrades(res.Fills), riskFree, tradingDays)

				mu.Lock()
				byParams[p] = summary
				mu.Unlock()

				log.Debug("grid point done", "short", p.Short, "long", p.Long, "sharpe", summary.Sharpe)
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	results := make([]SweepResult, 0, len(byParams))
	for p, s := range byParams {
		results = append(results, SweepResult{Params: p, Summary: s})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Summary.Sharpe != results[j].Summary.Sharpe {
			return results[i].Summary.Sharpe > results[j].Summary.Sharpe
		}
		if results[i].Params.Short != results[j].Params.Short {
			return results[i].Params.Short < results[j].Params.Short
		}
		return results[i].Params.Long < results[j].Params.Long
	})

	return &SweepReport{
		Results: results,
		Elapsed: time.Since(start),
		Workers: workers,
	}, nil
}
