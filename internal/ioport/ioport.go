// Package ioport defines the boundary between the control core and the
// physical field side (or a simulator standing in for it).
package ioport

import (
	"context"

	"github.com/lactplc/skidcore/internal/tagstore"
)

// Port is the only way the core touches the outside world. Concrete
// collaborators (a fieldbus client, a simulator) implement it; neither
// appears in any core invariant.
type Port interface {
	// ReadInputs populates every DI, AI and PI tag in store with current
	// field values and quality. Must return within the caller's context
	// deadline; a timeout is an IOError, not a panic.
	ReadInputs(ctx context.Context, store *tagstore.Store) error

	// WriteOutputs pushes every DO and AO tag in store to the field.
	WriteOutputs(ctx context.Context, store *tagstore.Store) error

	// Close releases any transport resources (socket, serial handle).
	Close() error
}

// ScaleAnalog performs the deterministic linear scaling from a 0-4095
// raw count to the declared engineering range [lo, hi].
func ScaleAnalog(raw uint16, lo, hi float64) float64 {
	if raw > 4095 {
		raw = 4095
	}
	return lo + (hi-lo)*float64(raw)/4095.0
}

// UnscaleAnalog is ScaleAnalog's inverse, used when writing an AO
// engineering value back out as a 0-4095 raw count.
func UnscaleAnalog(v, lo, hi float64) uint16 {
	if hi <= lo {
		return 0
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	raw := (v - lo) / (hi - lo) * 4095.0
	return uint16(raw + 0.5)
}
