package score

import (
	"sort"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
)

// Batch collects scored candidates during one batching window. It is safe
// for concurrent use; per-symbol evaluations add while the window timer
// drains.
type Batch struct {
	mu      sync.Mutex
	signals []*models.SignalCandidate
	started time.Time
}

// NewBatch opens an empty batch window starting at now.
func NewBatch(now time.Time) *Batch {
	return &Batch{started: now}
}

// Add appends a candidate to the current window.
func (b *Batch) Add(c *models.SignalCandidate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, c)
}

// Len returns the number of collected candidates.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}

// Age returns how long the current window has been open.
func (b *Batch) Age(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.started)
}

// TopAboveThreshold returns up to limit candidates whose total score is at
// least minScore, ordered by score descending. Ties keep insertion order.
func (b *Batch) TopAboveThreshold(minScore float64, limit int) []*models.SignalCandidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*models.SignalCandidate, 0, len(b.signals))
	for _, c := range b.signals {
		if c.TotalScore >= minScore {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Clear drops all candidates and restarts the window at now. It runs
// unconditionally at the end of every window, selected or not.
func (b *Batch) Clear(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = b.signals[:0]
	b.started = now
}
