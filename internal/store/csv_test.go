package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const csvHeader = "Date,Open,High,Low,Close,Adj Close,Volume,Symbol\n"

func TestCSVReadBarsCleaning(t *testing.T) {
	dir := t.TempDir()
	// Out of order, one duplicate date, one junk numeric cell, one row with
	// no usable adjusted close.
	writeFile(t, filepath.Join(dir, "AAPL.csv"), csvHeader+
		"2024-01-03,102,103,101,102.5,102.5,1200,AAPL\n"+
		"2024-01-02,100,101,99,100.5,100.5,1000,AAPL\n"+
		"2024-01-02,999,999,999,999,999,9999,AAPL\n"+
		"2024-01-04,junk,104,102,103.5,103.5,1300,AAPL\n"+
		"2024-01-05,104,105,103,104.5,n/a,1400,AAPL\n")

	s := NewCSVStore(dir)
	bars, err := s.ReadBars(context.Background(), "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	if len(bars) != 3 {
		t.Fatalf("bars = %d, want 3 (dedupe + drop NaN adj close)", len(bars))
	}
	// Sorted ascending, duplicate keeps the first occurrence in sorted order.
	if bars[0].Date.Day() != 2 || bars[1].Date.Day() != 3 || bars[2].Date.Day() != 4 {
		t.Errorf("dates = %v, %v, %v", bars[0].Date, bars[1].Date, bars[2].Date)
	}
	if bars[0].Close != 100.5 {
		t.Errorf("duplicate resolution kept %v, want 100.5", bars[0].Close)
	}
	// Junk Open coerces to NaN but the row survives via its adj close.
	if bars[2].Open == bars[2].Open { // NaN != NaN
		t.Errorf("junk open = %v, want NaN", bars[2].Open)
	}
}

func TestCSVMissingColumnFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AAPL.csv"),
		"Date,Open,High,Low,Close,Volume,Symbol\n2024-01-02,1,1,1,1,1,AAPL\n")

	s := NewCSVStore(dir)
	if _, err := s.ReadBars(context.Background(), "AAPL", time.Time{}, time.Time{}); err == nil {
		t.Fatal("expected error for missing Adj Close column")
	}
}

func TestCSVRaggedRowFatal(t *testing.T) {
	dir := t.TempDir()
	// A row with the wrong field count must fail the read, not silently
	// drop it and everything after it.
	writeFile(t, filepath.Join(dir, "AAPL.csv"), csvHeader+
		"2024-01-02,100,101,99,100.5,100.5,1000,AAPL\n"+
		"2024-01-03,102,103\n"+
		"2024-01-04,103,104,102,103.5,103.5,1300,AAPL\n")

	s := NewCSVStore(dir)
	if _, err := s.ReadBars(context.Background(), "AAPL", time.Time{}, time.Time{}); err == nil {
		t.Fatal("expected error for ragged row")
	}
}

func TestCSVRangeFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AAPL.csv"), csvHeader+
		"2024-01-02,1,1,1,1,1,100,AAPL\n"+
		"2024-01-03,2,2,2,2,2,100,AAPL\n"+
		"2024-01-04,3,3,3,3,3,100,AAPL\n")

	s := NewCSVStore(dir)
	start := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	bars, err := s.ReadBars(context.Background(), "AAPL", start, start)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].AdjClose != 2 {
		t.Errorf("bars = %+v", bars)
	}
}

func TestCSVDateTimeFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AAPL.csv"), csvHeader+
		"2024-01-02 00:00:00,1,1,1,1,1,100,AAPL\n")

	s := NewCSVStore(dir)
	bars, err := s.ReadBars(context.Background(), "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d", len(bars))
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !bars[0].Date.Equal(want) {
		t.Errorf("date = %v, want %v", bars[0].Date, want)
	}
}

func TestCSVListSymbols(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "msft.csv"), csvHeader)
	writeFile(t, filepath.Join(dir, "AAPL.csv"), csvHeader)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	s := NewCSVStore(dir)
	symbols, err := s.ListSymbols(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Errorf("symbols = %v", symbols)
	}
}

func TestCSVMissingDirListsNothing(t *testing.T) {
	s := NewCSVStore(filepath.Join(t.TempDir(), "nope"))
	symbols, err := s.ListSymbols(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 0 {
		t.Errorf("symbols = %v", symbols)
	}
}
