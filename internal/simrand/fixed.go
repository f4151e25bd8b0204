package simrand

import "sync"

// Fixed replays a scripted sequence of draws and is meant for tests.
// Float64 consumes the next value as-is. IntN scales the next value to [0, n).
// Once the script is exhausted it keeps returning Fallback.
type Fixed struct {
	mu       sync.Mutex
	values   []float64
	pos      int
	Fallback float64
}

func NewFixed(values ...float64) *Fixed {
	return &Fixed{values: values}
}

func (f *Fixed) next() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.values) {
		return f.Fallback
	}
	v := f.values[f.pos]
	f.pos++
	return v
}

func (f *Fixed) Float64() float64 {
	return f.next()
}

func (f *Fixed) IntN(n int) int {
	v := int(f.next() * float64(n))
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// Remaining reports how many scripted values have not been drawn yet.
func (f *Fixed) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values) - f.pos
}
