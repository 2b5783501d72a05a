package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketsim/internal/domain"
	"marketsim/internal/store"
	"marketsim/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer fetches daily OHLCV bars for a configured symbol list via
// the Alpaca market-data API and writes them to a bar store. Each batch is
// fetched twice — raw and split/dividend adjusted — so the stored bars carry
// both Close and AdjClose.
type DailyBarGatherer struct {
	client     *marketdata.Client
	store      store.BarStore
	symbols    []string
	span       DateRange
	batchSize  int
	maxWorkers int
	limiter    *util.RateLimiter
	log        *slog.Logger
}

// NewDailyBarGatherer creates a gatherer configured with the given Alpaca
// credentials, target store, and batch parameters.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL string, s store.BarStore, symbols []string, span DateRange, batchSize, maxWorkers, rateLimitPerMin int) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &DailyBarGatherer{
		client:     marketdata.NewClient(opts),
		store:      s,
		symbols:    symbols,
		span:       span,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		log:        slog.Default().With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "alpaca-daily" }

// Run fetches daily bars for all configured symbols in batches across a
// worker pool and writes them to the store. Re-running is idempotent: the
// store merges by (symbol, date).
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("gather: no symbols configured")
	}

	batchSize := g.batchSize
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]string
	for i := 0; i < len(g.symbols); i += batchSize {
		end := min(i+batchSize, len(g.symbols))
		batches = append(batches, g.symbols[i:end])
	}

	g.log.Info("starting daily bar gather",
		"symbols", len(g.symbols),
		"batches", len(batches),
		"start", g.span.Start.Format("2006-01-02"),
		"end", g.span.End.Format("2006-01-02"),
	)

	batchCh := make(chan []string, len(batches))
	for _, b := range batches {
		batchCh <- b
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				if ctx.Err() != nil {
					return
				}

				bars, err := g.fetchBatch(ctx, batch)
				if err != nil {
					g.log.Error("batch fetch failed", "symbols", batch, "err", err)
					failed.Add(1)
					continue
				}
				if len(bars) == 0 {
					continue
				}
				if err := g.store.WriteBars(ctx, bars); err != nil {
					g.log.Error("writing bars failed", "err", err)
					failed.Add(1)
					continue
				}
				totalBars.Add(int64(len(bars)))
				g.log.Info("batch done", "symbols", len(batch), "bars", len(bars))
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed.Load() > 0 {
		return fmt.Errorf("gather: %d batches failed", failed.Load())
	}

	g.log.Info("complete", "bars", totalBars.Load(), "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// fetchBatch fetches one symbol batch, raw and adjusted, and merges the
// adjusted closes into the raw bars.
func (g *DailyBarGatherer) fetchBatch(ctx context.Context, symbols []string) ([]domain.Bar, error) {
	raw, err := g.fetchMultiBars(ctx, symbols, marketdata.Raw)
	if err != nil {
		return nil, err
	}
	adjusted, err := g.fetchMultiBars(ctx, symbols, marketdata.All)
	if err != nil {
		return nil, err
	}

	type key struct {
		symbol string
		date   time.Time
	}
	adjClose := make(map[key]float64)
	for symbol, bars := range adjusted {
		for _, b := range bars {
			adjClose[key{strings.ToUpper(symbol), sessionDate(b.Timestamp)}] = b.Close
		}
	}

	var out []domain.Bar
	for symbol, bars := range raw {
		sym := strings.ToUpper(symbol)
		for _, b := range bars {
			dt := sessionDate(b.Timestamp)
			adj, ok := adjClose[key{sym, dt}]
			if !ok {
				adj = b.Close
			}
			out = append(out, domain.Bar{
				Symbol:   sym,
				Date:     dt,
				Open:     b.Open,
				High:     b.High,
				Low:      b.Low,
				Close:    b.Close,
				AdjClose: adj,
				Volume:   int64(b.Volume),
			})
		}
	}
	return out, nil
}

// fetchMultiBars performs one rate-limited, retried GetMultiBars call.
func (g *DailyBarGatherer) fetchMultiBars(ctx context.Context, symbols []string, adjustment marketdata.Adjustment) (map[string][]marketdata.Bar, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		multiBars, err = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      g.span.Start,
			End:        g.span.End,
			Adjustment: adjustment,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars(%s): %w", adjustment, err)
	}
	return multiBars, nil
}

// sessionDate normalizes a bar timestamp to its trading session date at
// midnight UTC.
func sessionDate(ts time.Time) time.Time {
	t := ts.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
