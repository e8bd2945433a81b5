// Package ctlmodel provides a substitutable registry of temperature
// correction-for-liquid (CTL) models, so the linear field approximation
// can be swapped for a fuller API MPMS Ch. 11.1 treatment without
// changing Flow Measurement's interface.
package ctlmodel

import (
	"fmt"
	"sync"
)

// Model computes the CTL factor for an observed temperature in degrees F,
// given the crude's thermal expansion coefficient alpha and the base
// temperature (spec default 60 degF). Implementations must be pure
// functions of their inputs.
type Model interface {
	Name() string
	// CTL returns the correction factor and whether it was clamped to
	// [0.90, 1.10] to stay within the physically plausible range.
	CTL(tempObsDegF, tempBaseDegF, alpha float64) (value float64, clamped bool)
}

var (
	mu        sync.RWMutex
	registry  = map[string]Model{}
)

// Register adds a model to the registry, keyed by its Name(). Re-
// registering a name overwrites the previous entry.
func Register(m Model) {
	mu.Lock()
	defer mu.Unlock()
	registry[m.Name()] = m
}

// Get looks up a registered model by name.
func Get(name string) (Model, error) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("ctlmodel: no model registered as %q", name)
	}
	return m, nil
}

// List returns the names of every registered model.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func init() {
	Register(Linear{})
	Register(TableInterpolated{})
}
