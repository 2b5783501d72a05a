package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketsim/internal/domain"
)

// Compile-time interface check.
var _ BarSource = (*CSVStore)(nil)

// requiredColumns are the columns every bar CSV must carry.
var requiredColumns = []string{"Date", "Open", "High", "Low", "Close", "Adj Close", "Volume", "Symbol"}

// CSVStore reads daily bars from per-symbol CSV files named <SYMBOL>.csv in
// a single directory. Files are cleaned on read: rows sorted ascending by
// date, duplicate dates dropped (first kept), unparsable numeric cells
// coerced to NaN, and rows without a usable adjusted close discarded.
type CSVStore struct {
	Dir string
}

// NewCSVStore creates a CSVStore reading from the given directory.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{Dir: dir}
}

// ListSymbols returns the symbols implied by the CSV files present.
func (s *CSVStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(strings.TrimSuffix(name, ".csv")))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ReadBars parses the symbol's CSV file and returns its cleaned bars within
// [start, end]. A missing required column is a fatal precondition error.
func (s *CSVStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	path := filepath.Join(s.Dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns in %s: %v", path, missing)
	}

	var bars []domain.Bar
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A ragged row or mid-file read failure must not silently
			// truncate the series; a short series shrinks the calendar
			// intersection and corrupts the whole run.
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		dt, err := parseDate(row[col["Date"]])
		if err != nil {
			continue
		}
		adjClose := parseFloatOrNaN(row[col["Adj Close"]])
		if math.IsNaN(adjClose) {
			// Rows without an adjusted close cannot support indicators.
			continue
		}

		sym := strings.TrimSpace(row[col["Symbol"]])
		if sym == "" {
			sym = strings.ToUpper(symbol)
		}

		bars = append(bars, domain.Bar{
			Symbol:   sym,
			Date:     dt,
			Open:     parseFloatOrNaN(row[col["Open"]]),
			High:     parseFloatOrNaN(row[col["High"]]),
			Low:      parseFloatOrNaN(row[col["Low"]]),
			Close:    parseFloatOrNaN(row[col["Close"]]),
			AdjClose: adjClose,
			Volume:   int64(parseFloatOrZero(row[col["Volume"]])),
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	// Drop duplicate dates, keeping the first occurrence.
	deduped := bars[:0]
	var prev time.Time
	for i, b := range bars {
		if i > 0 && b.Date.Equal(prev) {
			continue
		}
		deduped = append(deduped, b)
		prev = b.Date
	}

	var out []domain.Bar
	for _, b := range deduped {
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// parseDate accepts bare dates and date-times, normalizing to midnight UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

func parseFloatOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
