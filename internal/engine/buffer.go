package engine

import "DecisionCore/internal/domain/models"

// Buffer is a fixed-capacity ring of observations, oldest evicted first.
type Buffer struct {
	items []models.MarketObservation
	start int
	size  int
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{items: make([]models.MarketObservation, capacity)}
}

// Push appends obs and returns true if an older entry was evicted.
func (b *Buffer) Push(obs models.MarketObservation) bool {
	if b.size < len(b.items) {
		b.items[(b.start+b.size)%len(b.items)] = obs
		b.size++
		return false
	}
	b.items[b.start] = obs
	b.start = (b.start + 1) % len(b.items)
	return true
}

func (b *Buffer) Len() int { return b.size }

func (b *Buffer) Cap() int { return len(b.items) }

// Last returns the newest observation.
func (b *Buffer) Last() (models.MarketObservation, bool) {
	if b.size == 0 {
		return models.MarketObservation{}, false
	}
	return b.items[(b.start+b.size-1)%len(b.items)], true
}

// Snapshot copies the contents oldest first.
func (b *Buffer) Snapshot() []models.MarketObservation {
	out := make([]models.MarketObservation, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

// Returns gives the last n returns oldest first, or fewer if not buffered.
func (b *Buffer) Returns(n int) []float64 {
	if n > b.size {
		n = b.size
	}
	out := make([]float64, n)
	off := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.start+off+i)%len(b.items)].Return
	}
	return out
}

func (b *Buffer) Clear() {
	b.start, b.size = 0, 0
	for i := range b.items {
		b.items[i] = models.MarketObservation{}
	}
}
