package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TrendEngine/internal/domain/repository"
)

func TestFileSourceLoad(t *testing.T) {
	dir := t.TempDir()
	// exchange wire format: numbers arrive as strings or raw numbers
	payload := `[
		[1738368000000, "100.5", "101.0", "100.0", "100.8", "12.5", 1738368299999],
		[1738368300000, 100.8, 101.5, 100.6, 101.2, 8.25, 1738368599999, "ignored", "extra"]
	]`
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	name := "BTCUSDT_5m_2025-02-01_2025-02-02.json"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(payload), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src := &FileSource{Dir: dir}
	bars, err := src.Load(context.Background(), "BTCUSDT", from, to, repository.NormalizeTimeframe("5m"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(bars))
	}

	b := bars[0]
	if b.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s, want BTCUSDT", b.Symbol)
	}
	if !b.OpenTime.Equal(time.UnixMilli(1738368000000).UTC()) {
		t.Errorf("open time = %v", b.OpenTime)
	}
	if b.Open != 100.5 || b.High != 101.0 || b.Low != 100.0 || b.Close != 100.8 || b.Volume != 12.5 {
		t.Errorf("OHLCV = %+v", b)
	}
	if bars[1].Close != 101.2 {
		t.Errorf("second close = %.2f, want 101.2", bars[1].Close)
	}
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()
	src := &FileSource{Dir: dir}
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	tf := repository.NormalizeTimeframe("5m")
	ctx := context.Background()

	if _, err := src.Load(ctx, "BTCUSDT", from, to, tf); err == nil {
		t.Error("missing cache file should error")
	}

	short := filepath.Join(dir, "ETHUSDT_5m_2025-02-01_2025-02-02.json")
	if err := os.WriteFile(short, []byte(`[[1738368000000, "1", "1"]]`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := src.Load(ctx, "ETHUSDT", from, to, tf); err == nil {
		t.Error("kline with too few fields should error")
	}
}
