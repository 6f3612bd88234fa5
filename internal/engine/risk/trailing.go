package risk

import (
	"sync"
)

// trailingState is the per-symbol trailing stop record. The extreme price
// only ever moves in the favorable direction; it never retreats.
type trailingState struct {
	entry       float64
	extreme     float64
	trailingPct float64
	isLong      bool
	activated   bool
	partialDone bool
}

// TrailingBook owns trailing stop state for all open positions. The position
// tracker registers entries here; the risk manager consults it on every
// price update.
type TrailingBook struct {
	mu         sync.Mutex
	states     map[string]*trailingState
	activation float64
}

// NewTrailingBook creates a book with the given activation threshold
// (favorable excursion from entry required before the trail arms).
func NewTrailingBook(activationThreshold float64) *TrailingBook {
	return &TrailingBook{
		states:     make(map[string]*trailingState),
		activation: activationThreshold,
	}
}

// Register starts trailing a new position.
func (b *TrailingBook) Register(symbol string, isLong bool, entryPrice, trailingPct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[symbol] = &trailingState{
		entry:       entryPrice,
		extreme:     entryPrice,
		trailingPct: trailingPct,
		isLong:      isLong,
	}
}

// Clear drops all trailing state for a symbol. Safe to call for unknown
// symbols, so close paths can clear unconditionally.
func (b *TrailingBook) Clear(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, symbol)
}

// Tracked reports whether a symbol has trailing state.
func (b *TrailingBook) Tracked(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.states[symbol]
	return ok
}

// Observation is the outcome of feeding one price into the book.
type Observation struct {
	Tracked   bool
	Activated bool    // trail armed (extreme passed the activation price)
	StopPrice float64 // valid only when Activated
	StopHit   bool    // price at or through the stop, valid only when Activated
	Extreme   float64
}

// Observe updates the extreme with the new price and reports the trailing
// stop status. The stop price ratchets off the extreme, so once the trail is
// armed it can only tighten.
func (b *TrailingBook) Observe(symbol string, price float64) Observation {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[symbol]
	if !ok {
		return Observation{}
	}

	if st.isLong {
		if price > st.extreme {
			st.extreme = price
		}
		if !st.activated && st.extreme >= st.entry*(1+b.activation) {
			st.activated = true
		}
		if !st.activated {
			return Observation{Tracked: true, Extreme: st.extreme}
		}
		stop := st.extreme * (1 - st.trailingPct)
		return Observation{
			Tracked:   true,
			Activated: true,
			StopPrice: stop,
			StopHit:   price <= stop,
			Extreme:   st.extreme,
		}
	}

	if price < st.extreme {
		st.extreme = price
	}
	if !st.activated && st.extreme <= st.entry*(1-b.activation) {
		st.activated = true
	}
	if !st.activated {
		return Observation{Tracked: true, Extreme: st.extreme}
	}
	stop := st.extreme * (1 + st.trailingPct)
	return Observation{
		Tracked:   true,
		Activated: true,
		StopPrice: stop,
		StopHit:   price >= stop,
		Extreme:   st.extreme,
	}
}

// MarkPartialTaken records that the one-shot partial take profit fired for a
// symbol. Returns false if it had already fired.
func (b *TrailingBook) MarkPartialTaken(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[symbol]
	if !ok || st.partialDone {
		return false
	}
	st.partialDone = true
	return true
}

// PartialTaken reports whether the partial take profit already fired.
func (b *TrailingBook) PartialTaken(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[symbol]
	return ok && st.partialDone
}
