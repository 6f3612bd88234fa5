package models

import "time"

// Bar represents a closed OHLCV candle for a symbol.
type Bar struct {
	Symbol    string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series holds bars for one symbol in strictly increasing close-time order.
// Append silently drops duplicate or out-of-order bars; history is never
// rewritten once a bar is in the series.
type Series struct {
	Symbol string
	bars   []Bar
}

// NewSeries creates an empty series for a symbol.
func NewSeries(symbol string) *Series {
	return &Series{Symbol: symbol}
}

// NewSeriesFrom creates a series and appends the given bars in order,
// applying the same dedup rules as Append.
func NewSeriesFrom(symbol string, bars []Bar) *Series {
	s := NewSeries(symbol)
	for _, b := range bars {
		s.Append(b)
	}
	return s
}

// Append adds a bar if its close time is strictly after the last bar.
// Returns true if the bar was accepted.
func (s *Series) Append(b Bar) bool {
	if n := len(s.bars); n > 0 && !b.CloseTime.After(s.bars[n-1].CloseTime) {
		return false
	}
	s.bars = append(s.bars, b)
	return true
}

// Len returns the number of bars in the series.
func (s *Series) Len() int { return len(s.bars) }

// Bar returns the bar at index i.
func (s *Series) Bar(i int) Bar { return s.bars[i] }

// Bars returns the underlying bars in order. Callers must not mutate them.
func (s *Series) Bars() []Bar { return s.bars }

// Last returns the most recent bar; ok is false for an empty series.
func (s *Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// LastClose returns the close price of the most recent bar, or 0 if empty.
func (s *Series) LastClose() float64 {
	if b, ok := s.Last(); ok {
		return b.Close
	}
	return 0
}

// Closes returns all close prices in order.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Returns computes simple per-bar returns of the close price series.
func (s *Series) Returns() []float64 {
	if len(s.bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s.bars)-1)
	for i := 1; i < len(s.bars); i++ {
		prev := s.bars[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (s.bars[i].Close-prev)/prev)
	}
	return out
}
