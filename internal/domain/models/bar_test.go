package models

import (
	"math"
	"testing"
	"time"
)

func seriesBar(closeTime time.Time, close float64) Bar {
	return Bar{
		Symbol:    "BTCUSDT",
		OpenTime:  closeTime.Add(-5 * time.Minute),
		CloseTime: closeTime,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func TestSeriesAppendOrdering(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC)
	s := NewSeries("BTCUSDT")

	if !s.Append(seriesBar(t0, 100)) {
		t.Fatal("first bar rejected")
	}
	if !s.Append(seriesBar(t0.Add(5*time.Minute), 101)) {
		t.Fatal("in-order bar rejected")
	}
	// duplicate close time drops silently
	if s.Append(seriesBar(t0.Add(5*time.Minute), 999)) {
		t.Error("duplicate bar accepted")
	}
	// out-of-order bar drops silently
	if s.Append(seriesBar(t0, 999)) {
		t.Error("out-of-order bar accepted")
	}

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if last, _ := s.Last(); last.Close != 101 {
		t.Errorf("last close = %.2f, want 101", last.Close)
	}
	if s.LastClose() != 101 {
		t.Errorf("LastClose = %.2f, want 101", s.LastClose())
	}
}

func TestSeriesReturns(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC)
	s := NewSeriesFrom("BTCUSDT", []Bar{
		seriesBar(t0, 100),
		seriesBar(t0.Add(5*time.Minute), 102),
		seriesBar(t0.Add(10*time.Minute), 51),
	})

	rets := s.Returns()
	if len(rets) != 2 {
		t.Fatalf("returns length = %d, want 2", len(rets))
	}
	if math.Abs(rets[0]-0.02) > 1e-9 {
		t.Errorf("rets[0] = %.6f, want 0.02", rets[0])
	}
	if math.Abs(rets[1]-(-0.5)) > 1e-9 {
		t.Errorf("rets[1] = %.6f, want -0.5", rets[1])
	}

	empty := NewSeries("X")
	if empty.Returns() != nil {
		t.Error("empty series should have nil returns")
	}
	if empty.LastClose() != 0 {
		t.Error("empty series LastClose should be 0")
	}
}
