package history

// Window is a fixed-capacity FIFO of optional samples. A nil entry means no
// sample was available at that tick.
type Window struct {
	capacity int
	values   []*float64
}

// NewWindow creates an empty window holding at most capacity samples
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		values:   make([]*float64, 0, capacity),
	}
}

// Record appends a sample, evicting the oldest once the window is full
func (w *Window) Record(value *float64) {
	if value != nil {
		v := *value
		value = &v
	}
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = value
		return
	}
	w.values = append(w.values, value)
}

// Len returns the number of samples held
func (w *Window) Len() int {
	return len(w.values)
}

// Values returns the samples oldest first
func (w *Window) Values() []*float64 {
	out := make([]*float64, len(w.values))
	copy(out, w.values)
	return out
}

// Average is the mean of the non-nil samples, or nil if there are none
func (w *Window) Average() *float64 {
	sum, n := 0.0, 0
	for _, v := range w.values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
