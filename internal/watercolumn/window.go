package watercolumn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window is the running average buffer: a capacity bounded FIFO of
// per-ensemble averages in arrival order. It is owned by the producer and
// not safe for concurrent use.
type Window struct {
	samples  []Average
	capacity int
	dirMean  DirectionMean
}

// NewWindow creates an empty window holding at most capacity samples.
func NewWindow(capacity int, dirMean DirectionMean) *Window {
	if capacity < 0 {
		capacity = 0
	}
	return &Window{
		samples:  make([]Average, 0, capacity),
		capacity: capacity,
		dirMean:  dirMean,
	}
}

// Push evicts the oldest samples until there is room, appends s and returns
// the smoothed average over what remains. A zero capacity window retains
// nothing and always reports a zero average.
func (w *Window) Push(s Average) Average {
	if w.capacity == 0 {
		w.samples = w.samples[:0]
		return Average{}
	}
	for len(w.samples) >= w.capacity {
		w.samples = w.samples[1:]
	}
	w.samples = append(w.samples, s)
	return w.Smoothed()
}

// Smoothed returns the mean velocity and direction and the maximum of the
// per-sample maxima over the retained samples. The bin range is the one of
// the most recently pushed sample.
func (w *Window) Smoothed() Average {
	n := len(w.samples)
	if n == 0 {
		return Average{}
	}

	vels := make([]float64, n)
	dirs := make([]float64, n)
	maxes := make([]float64, n)
	for i, s := range w.samples {
		vels[i] = s.AvgVel
		dirs[i] = s.AvgDir
		maxes[i] = s.MaxVel
	}

	last := w.samples[n-1]
	return Average{
		AvgVel: stat.Mean(vels, nil),
		AvgDir: w.meanDirection(dirs),
		MaxVel: math.Max(floats.Max(maxes), 0),
		MinBin: last.MinBin,
		MaxBin: last.MaxBin,
	}
}

func (w *Window) meanDirection(dirs []float64) float64 {
	if w.dirMean != DirectionCircular {
		return stat.Mean(dirs, nil)
	}
	rad := make([]float64, len(dirs))
	for i, d := range dirs {
		rad[i] = d * math.Pi / 180
	}
	deg := stat.CircularMean(rad, nil) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Len returns the number of retained samples.
func (w *Window) Len() int { return len(w.samples) }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.capacity }

// Samples returns a copy of the retained samples, oldest first.
func (w *Window) Samples() []Average {
	return append([]Average(nil), w.samples...)
}

// SetCapacity changes the capacity. Samples beyond the new capacity are
// dropped oldest first so the length never exceeds the capacity.
func (w *Window) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	w.capacity = capacity
	if over := len(w.samples) - capacity; over > 0 {
		w.samples = append([]Average(nil), w.samples[over:]...)
	}
}

// Reset drops every sample.
func (w *Window) Reset() {
	w.samples = w.samples[:0]
}
