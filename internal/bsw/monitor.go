package bsw

import "github.com/lactplc/skidcore/internal/tagstore"

// Monitor wraps a rolling Window over AI_BSW_PROBE and tracks whether the
// most recent raw sample was rejected as out of range.
type Monitor struct {
	window      *Window
	lastQuality tagstore.Quality
}

// New returns a Monitor with the default 60-sample window.
func New() *Monitor {
	return &Monitor{window: NewWindow(60), lastQuality: tagstore.Good}
}

// Sample consumes one scan's AI_BSW_PROBE reading. Raw values outside
// 0-5% are rejected (not pushed into the window) and the rejection is
// reflected in Quality(); a bad-quality input tag is propagated the same
// way.
func (m *Monitor) Sample(raw float64, quality tagstore.Quality) {
	if quality == tagstore.Bad || raw < 0 || raw > 5 {
		m.lastQuality = tagstore.Bad
		return
	}
	m.lastQuality = quality
	m.window.Push(raw)
}

// Mean returns the current effective BS&W percentage.
func (m *Monitor) Mean() float64 {
	return m.window.Mean()
}

// Quality reports the quality of the most recently sampled input.
func (m *Monitor) Quality() tagstore.Quality {
	return m.lastQuality
}
