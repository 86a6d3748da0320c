// Package focus implements the attention scoring engine: smoothing of
// per-frame face measurements, the focus score relative to a personal
// baseline, the alert detectors and the per-session aggregation of metrics.
package focus

import "github.com/your-org/mindfocus/internal/face"

// WindowSize is the number of frames the smoother averages over.
const WindowSize = 60

// Window is a fixed-capacity FIFO of the most recent measurements.
// It is not safe for concurrent use; the owning engine serialises access.
type Window struct {
	buf   []face.Metrics
	head  int // index of the oldest sample
	count int
}

// NewWindow returns an empty window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = WindowSize
	}
	return &Window{buf: make([]face.Metrics, capacity)}
}

// Push appends m, evicting the oldest sample when the window is full.
func (w *Window) Push(m face.Metrics) {
	if w.count == len(w.buf) {
		w.buf[w.head] = m
		w.head = (w.head + 1) % len(w.buf)
	} else {
		w.buf[(w.head+w.count)%len(w.buf)] = m
		w.count++
	}
}

// Mean returns the component-wise average of the buffered samples.
// An empty window averages to zero.
func (w *Window) Mean() face.Metrics {
	if w.count == 0 {
		return face.Metrics{}
	}
	var s face.Metrics
	for i := 0; i < w.count; i++ {
		m := w.buf[(w.head+i)%len(w.buf)]
		s.EAR += m.EAR
		s.MAR += m.MAR
		s.HeadPitchDeg += m.HeadPitchDeg
	}
	n := float64(w.count)
	return face.Metrics{EAR: s.EAR / n, MAR: s.MAR / n, HeadPitchDeg: s.HeadPitchDeg / n}
}

// Len returns the number of buffered samples.
func (w *Window) Len() int { return w.count }

// Reset drops every buffered sample.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}
