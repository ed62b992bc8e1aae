// Package ringbuf provides a fixed-capacity circular window of float64 values
// for streaming primitives. The window is always full: it is prefilled with a
// seed value, and every Push evicts and returns the oldest element.
// Not safe for concurrent use; a Window belongs to one indicator instance.
package ringbuf

// Window is a fixed-size circular buffer indexed arithmetically.
type Window struct {
	buf  []float64
	head int // index of the oldest element
}

// New creates a window of size slots, each holding fill.
// size must be at least 1.
func New(size int, fill float64) *Window {
	if size < 1 {
		size = 1
	}
	buf := make([]float64, size)
	for i := range buf {
		buf[i] = fill
	}
	return &Window{buf: buf}
}

// Push appends v as the newest element and returns the evicted oldest one.
func (w *Window) Push(v float64) float64 {
	old := w.buf[w.head]
	w.buf[w.head] = v
	w.head++
	if w.head == len(w.buf) {
		w.head = 0
	}
	return old
}

// At returns the i-th element, 0 being the oldest and Len()-1 the newest.
func (w *Window) At(i int) float64 {
	i += w.head
	if i >= len(w.buf) {
		i -= len(w.buf)
	}
	return w.buf[i]
}

// Oldest returns the element the next Push will evict.
func (w *Window) Oldest() float64 {
	return w.buf[w.head]
}

// Newest returns the most recently pushed element.
func (w *Window) Newest() float64 {
	return w.At(len(w.buf) - 1)
}

// Len returns the window size.
func (w *Window) Len() int {
	return len(w.buf)
}
