package risk

import (
	"math"
	"testing"
)

func TestTrailingLongLifecycle(t *testing.T) {
	b := NewTrailingBook(0.002) // arm after +0.2%
	b.Register("BTCUSDT", true, 100, 0.002)

	// below the activation price the trail stays dormant
	obs := b.Observe("BTCUSDT", 100.1)
	if !obs.Tracked || obs.Activated {
		t.Fatalf("obs = %+v, want tracked but dormant", obs)
	}

	// extreme reaches entry*(1+activation): trail arms
	obs = b.Observe("BTCUSDT", 100.2)
	if !obs.Activated {
		t.Fatal("trail should arm at +0.2%")
	}
	wantStop := 100.2 * (1 - 0.002)
	if math.Abs(obs.StopPrice-wantStop) > 1e-9 {
		t.Errorf("stop = %.6f, want %.6f", obs.StopPrice, wantStop)
	}
	if obs.StopHit {
		t.Error("price above the stop should not hit")
	}

	// higher extreme ratchets the stop up
	obs = b.Observe("BTCUSDT", 101)
	wantStop = 101 * (1 - 0.002)
	if math.Abs(obs.StopPrice-wantStop) > 1e-9 {
		t.Errorf("ratcheted stop = %.6f, want %.6f", obs.StopPrice, wantStop)
	}

	// a pullback does not loosen the stop, and through it triggers
	obs = b.Observe("BTCUSDT", 100.7)
	if obs.Extreme != 101 {
		t.Errorf("extreme retreated to %.4f", obs.Extreme)
	}
	if !obs.StopHit {
		t.Errorf("price 100.7 under stop %.4f should hit", obs.StopPrice)
	}
}

func TestTrailingShortLifecycle(t *testing.T) {
	b := NewTrailingBook(0.002)
	b.Register("ETHUSDT", false, 100, 0.002)

	if obs := b.Observe("ETHUSDT", 99.9); obs.Activated {
		t.Fatal("short trail armed before -0.2%")
	}

	obs := b.Observe("ETHUSDT", 99.8)
	if !obs.Activated {
		t.Fatal("short trail should arm at -0.2%")
	}
	wantStop := 99.8 * 1.002
	if math.Abs(obs.StopPrice-wantStop) > 1e-9 {
		t.Errorf("stop = %.6f, want %.6f", obs.StopPrice, wantStop)
	}

	// deeper low tightens the stop, bounce through it triggers
	b.Observe("ETHUSDT", 99)
	obs = b.Observe("ETHUSDT", 99.3)
	if obs.Extreme != 99 {
		t.Errorf("extreme = %.4f, want 99", obs.Extreme)
	}
	if !obs.StopHit {
		t.Errorf("bounce to 99.3 through stop %.4f should hit", obs.StopPrice)
	}
}

func TestTrailingUnknownSymbol(t *testing.T) {
	b := NewTrailingBook(0.002)
	if obs := b.Observe("NOPE", 100); obs.Tracked {
		t.Error("unknown symbol reported as tracked")
	}
	b.Clear("NOPE") // must not panic
}

func TestMarkPartialTakenOnce(t *testing.T) {
	b := NewTrailingBook(0.002)
	b.Register("BTCUSDT", true, 100, 0.002)

	if b.PartialTaken("BTCUSDT") {
		t.Fatal("partial reported taken before firing")
	}
	if !b.MarkPartialTaken("BTCUSDT") {
		t.Fatal("first mark should succeed")
	}
	if b.MarkPartialTaken("BTCUSDT") {
		t.Fatal("second mark should report already taken")
	}
	if !b.PartialTaken("BTCUSDT") {
		t.Fatal("partial not recorded")
	}
	if b.MarkPartialTaken("UNKNOWN") {
		t.Fatal("unknown symbol cannot take partial")
	}

	// re-registering the symbol resets the one-shot
	b.Register("BTCUSDT", true, 200, 0.002)
	if b.PartialTaken("BTCUSDT") {
		t.Fatal("partial flag survived re-registration")
	}
}
