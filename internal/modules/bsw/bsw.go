// Package bswmodule is the BS&W Monitor process module: it samples
// AI_BSW_PROBE each scan into the rolling-window monitor and publishes
// the effective mean to the tag store for the Safety Manager and console
// (spec §4.7).
package bswmodule

import (
	"github.com/lactplc/skidcore/internal/bsw"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Module wraps a bsw.Monitor as a scan-ordered process module.
type Module struct {
	monitor *bsw.Monitor
}

// New returns a Module with a fresh rolling-window monitor.
func New() *Module {
	return &Module{monitor: bsw.New()}
}

// Step samples AI_BSW_PROBE and publishes VT_BSW_EFFECTIVE.
func (m *Module) Step(store *tagstore.Store) error {
	raw, q, _, err := store.ReadFloat(tagstore.AIBSWProbe)
	if err != nil {
		return err
	}
	// The tag store clamps an out-of-range probe write to the 0-5% span and
	// marks it Uncertain, so an Uncertain reading is an out-of-range sample:
	// reject it as Bad rather than averaging the clamped value.
	if q == tagstore.Uncertain {
		q = tagstore.Bad
	}
	m.monitor.Sample(raw, q)
	return store.WriteFloat(tagstore.VTBSWEffective, m.monitor.Mean(), m.monitor.Quality())
}

// Mean returns the current effective BS&W for the Safety Manager, which
// needs it before the Process Modules pass runs (see controller.Scan for
// ordering).
func (m *Module) Mean() float64 { return m.monitor.Mean() }

// Quality returns the current BS&W sample quality for the Safety Manager.
func (m *Module) Quality() tagstore.Quality { return m.monitor.Quality() }
