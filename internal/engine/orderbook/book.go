package orderbook

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Level is one price level of the book.
type Level struct {
	Price    float64
	Quantity float64
}

// Book is the live depth of one symbol. Bids are kept best-first
// (descending), asks best-first (ascending). Zero-quantity updates remove
// the level.
type Book struct {
	mu           sync.RWMutex
	symbol       string
	bids         map[float64]float64
	asks         map[float64]float64
	lastUpdateID int64
	lastUpdate   time.Time
}

// NewBook creates an empty book for a symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
	}
}

// Symbol returns the symbol this book tracks.
func (b *Book) Symbol() string { return b.symbol }

// UpdateBid sets the bid quantity at price, removing the level at zero.
func (b *Book) UpdateBid(price, quantity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if quantity == 0 {
		delete(b.bids, price)
	} else {
		b.bids[price] = quantity
	}
	b.lastUpdate = time.Now()
}

// UpdateAsk sets the ask quantity at price, removing the level at zero.
func (b *Book) UpdateAsk(price, quantity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if quantity == 0 {
		delete(b.asks, price)
	} else {
		b.asks[price] = quantity
	}
	b.lastUpdate = time.Now()
}

// Replace swaps in a full snapshot.
func (b *Book) Replace(bids, asks []Level, updateID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[float64]float64, len(bids))
	for _, l := range bids {
		if l.Quantity > 0 {
			b.bids[l.Price] = l.Quantity
		}
	}
	b.asks = make(map[float64]float64, len(asks))
	for _, l := range asks {
		if l.Quantity > 0 {
			b.asks[l.Price] = l.Quantity
		}
	}
	b.lastUpdateID = updateID
	b.lastUpdate = time.Now()
}

// SetLastUpdateID records the exchange sequence number.
func (b *Book) SetLastUpdateID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdateID = id
}

// LastUpdateID returns the exchange sequence number.
func (b *Book) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

func (b *Book) sortedBids() []Level {
	out := make([]Level, 0, len(b.bids))
	for p, q := range b.bids {
		out = append(out, Level{Price: p, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

func (b *Book) sortedAsks() []Level {
	out := make([]Level, 0, len(b.asks))
	for p, q := range b.asks {
		out = append(out, Level{Price: p, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// BestBid returns the highest bid; ok is false for an empty side.
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	best, ok := 0.0, false
	for p := range b.bids {
		if !ok || p > best {
			best, ok = p, true
		}
	}
	return best, ok
}

// BestAsk returns the lowest ask; ok is false for an empty side.
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	best, ok := 0.0, false
	for p := range b.asks {
		if !ok || p < best {
			best, ok = p, true
		}
	}
	return best, ok
}

// SpreadPercent returns (ask-bid)/mid, or 0 when either side is empty.
func (b *Book) SpreadPercent() float64 {
	bid, ok1 := b.BestBid()
	ask, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return 0
	}
	mid := (bid + ask) / 2
	if mid == 0 {
		return 0
	}
	return (ask - bid) / mid
}

// Imbalance returns (bidVol-askVol)/(bidVol+askVol) over the top levels on
// each side, in [-1, 1]. Empty books report 0.
func (b *Book) Imbalance(levels int) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bidVol := topVolume(b.sortedBids(), levels)
	askVol := topVolume(b.sortedAsks(), levels)
	if bidVol+askVol == 0 {
		return 0
	}
	return (bidVol - askVol) / (bidVol + askVol)
}

func topVolume(levels []Level, n int) float64 {
	if n < len(levels) {
		levels = levels[:n]
	}
	var sum float64
	for _, l := range levels {
		sum += l.Quantity
	}
	return sum
}

// BuyWall returns the best-priced bid level whose quantity exceeds the mean
// plus stdDevMult standard deviations of the top-20 bid quantities.
func (b *Book) BuyWall(stdDevMult float64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return findWall(b.sortedBids(), stdDevMult)
}

// SellWall is BuyWall for the ask side.
func (b *Book) SellWall(stdDevMult float64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return findWall(b.sortedAsks(), stdDevMult)
}

func findWall(levels []Level, stdDevMult float64) (float64, bool) {
	if len(levels) < 5 {
		return 0, false
	}
	window := levels
	if len(window) > 20 {
		window = window[:20]
	}
	var mean float64
	for _, l := range window {
		mean += l.Quantity
	}
	mean /= float64(len(window))
	var variance float64
	for _, l := range window {
		variance += (l.Quantity - mean) * (l.Quantity - mean)
	}
	threshold := mean + stdDevMult*math.Sqrt(variance/float64(len(window)))
	for _, l := range levels {
		if l.Quantity > threshold {
			return l.Price, true
		}
	}
	return 0, false
}

// EstimateSlippage walks the book for a market order of notional (quote
// units) and returns the expected relative price impact. A book too thin to
// fill the order reports 1.0 so callers refuse the trade.
func (b *Book) EstimateSlippage(isBuy bool, notional, currentPrice float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var levels []Level
	if isBuy {
		levels = b.sortedAsks()
	} else {
		levels = b.sortedBids()
	}
	if len(levels) == 0 || currentPrice == 0 {
		return 0
	}

	remaining := notional
	var filledBase float64
	for _, l := range levels {
		available := l.Quantity * l.Price
		if remaining <= available {
			filledBase += remaining / l.Price
			remaining = 0
			break
		}
		filledBase += l.Quantity
		remaining -= available
	}
	if remaining > 0 {
		return 1.0
	}
	avgPrice := notional / filledBase
	return math.Abs(avgPrice-currentPrice) / currentPrice
}

// Depth returns the number of levels on each side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// Clear drops all levels.
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
	b.lastUpdateID = 0
}
