package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketsim/internal/domain"
)

// LoadAll reads bar series for all symbols from the source across a bounded
// worker pool. Loading is I/O bound and each symbol is independent, so
// concurrency is safe; every series is fully materialized before LoadAll
// returns. A symbol with no bars in range is an error — the calendar
// intersection downstream would silently be empty otherwise.
func LoadAll(ctx context.Context, src BarSource, symbols []string, start, end time.Time, workers int) (map[string][]domain.Bar, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("store: no symbols to load")
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	symCh := make(chan string, len(symbols))
	for _, sym := range symbols {
		symCh <- sym
	}
	close(symCh)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		data     = make(map[string][]domain.Bar, len(symbols))
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}

				bars, err := src.ReadBars(ctx, sym, start, end)
				if err == nil && len(bars) == 0 {
					err = fmt.Errorf("store: no bars for %s in range", sym)
				}

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("loading %s: %w", sym, err)
					}
				} else {
					data[sym] = bars
				}
				mu.Unlock()
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
	return data, nil
}
