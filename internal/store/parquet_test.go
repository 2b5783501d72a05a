package store

import (
	"context"
	"testing"
	"time"

	"marketsim/internal/domain"
)

func bar(sym string, y, m, d int, close float64) domain.Bar {
	return domain.Bar{
		Symbol: sym,
		Date:   time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC),
		Open:   close - 1, High: close + 1, Low: close - 2,
		Close: close, AdjClose: close * 0.98, Volume: 1000,
	}
}

func TestParquetRoundTrip(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	in := []domain.Bar{
		bar("AAPL", 2024, 1, 2, 100),
		bar("AAPL", 2024, 1, 3, 101),
		bar("MSFT", 2024, 1, 2, 300),
	}
	if err := s.WriteBars(ctx, in); err != nil {
		t.Fatal(err)
	}

	bars, err := s.ReadBars(ctx, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(bars))
	}
	if bars[0].Close != 100 || bars[1].Close != 101 {
		t.Errorf("closes = %v, %v", bars[0].Close, bars[1].Close)
	}
	if bars[0].AdjClose != 98 {
		t.Errorf("adj close = %v, want 98", bars[0].AdjClose)
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Error("bars not sorted ascending")
	}
}

func TestParquetMergeDedupe(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := s.WriteBars(ctx, []domain.Bar{bar("AAPL", 2024, 1, 2, 100)}); err != nil {
		t.Fatal(err)
	}
	// Rewrite the same date with a corrected close plus one new date.
	if err := s.WriteBars(ctx, []domain.Bar{
		bar("AAPL", 2024, 1, 2, 105),
		bar("AAPL", 2024, 1, 3, 106),
	}); err != nil {
		t.Fatal(err)
	}

	bars, err := s.ReadBars(ctx, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 after merge", len(bars))
	}
	if bars[0].Close != 105 {
		t.Errorf("merged close = %v, want the incoming 105", bars[0].Close)
	}
}

func TestParquetYearSplitAndRange(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := s.WriteBars(ctx, []domain.Bar{
		bar("AAPL", 2023, 12, 29, 90),
		bar("AAPL", 2024, 1, 2, 100),
	}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ReadBars(ctx, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("open range bars = %d, want 2", len(all))
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	only2024, err := s.ReadBars(ctx, "AAPL", start, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(only2024) != 1 || only2024[0].Close != 100 {
		t.Errorf("2024 bars = %+v", only2024)
	}
}

func TestParquetListSymbols(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := s.WriteBars(ctx, []domain.Bar{
		bar("msft", 2024, 1, 2, 300),
		bar("AAPL", 2024, 1, 2, 100),
	}); err != nil {
		t.Fatal(err)
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Errorf("symbols = %v", symbols)
	}
}

func TestParquetReadMissingSymbol(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	bars, err := s.ReadBars(context.Background(), "NONE", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 0 {
		t.Errorf("bars = %d, want 0", len(bars))
	}
}
