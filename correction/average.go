// Package correction adjusts reduced per-body hydrodynamic loads before
// they are committed: smoothing over cycles, unresolved lubrication forces
// for near-contact pairs, and virtual mass for accelerating bodies. All
// correctors keep their state on the reduce root and must be applied there
// only.
package correction

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/mesapd"
)

// AveragingMode selects how loads are smoothed over cycles.
type AveragingMode uint8

const (
	// AverageNone leaves loads untouched.
	AverageNone AveragingMode = iota
	// AverageEuler replaces the load with the trailing mean of the most
	// recent cycles, the current one included.
	AverageEuler
	// AverageSecondOrder extrapolates 1.5*f(t) - 0.5*f(t-1), damping the
	// odd-even oscillation of the momentum exchange.
	AverageSecondOrder
)

func (m AveragingMode) String() string {
	switch m {
	case AverageNone:
		return "none"
	case AverageEuler:
		return "euler"
	case AverageSecondOrder:
		return "second-order"
	}
	return "invalid"
}

// Averager smooths per-body loads across cycles. A body's first sighting
// passes through unchanged; histories of removed bodies are dropped.
type Averager struct {
	mode   AveragingMode
	window int
	hist   map[int64][]mesapd.HydroLoad
}

// NewAverager returns an averager. window bounds the Euler history length
// and must be positive; the second-order mode keeps one cycle regardless.
func NewAverager(mode AveragingMode, window int) *Averager {
	if window < 1 {
		panic("correction: averaging window must be positive")
	}
	return &Averager{mode: mode, window: window, hist: make(map[int64][]mesapd.HydroLoad)}
}

// Apply implements the corrector contract.
func (a *Averager) Apply(snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad) {
	if a.mode == AverageNone {
		return
	}
	present := make(map[int64]bool, len(snaps))
	for _, s := range snaps {
		present[s.ID] = true
	}
	for id := range a.hist {
		if !present[id] {
			delete(a.hist, id)
		}
	}

	for _, s := range snaps {
		cur, loaded := loads[s.ID]
		h := a.hist[s.ID]
		if !loaded && len(h) == 0 {
			continue
		}
		switch a.mode {
		case AverageEuler:
			h = append(h, cur)
			if len(h) > a.window {
				copy(h, h[1:])
				h = h[:a.window]
			}
			a.hist[s.ID] = h
			loads[s.ID] = meanLoad(h)
		case AverageSecondOrder:
			if len(h) == 0 {
				a.hist[s.ID] = []mesapd.HydroLoad{cur}
				loads[s.ID] = cur
				continue
			}
			prev := h[0]
			h[0] = cur
			loads[s.ID] = mesapd.HydroLoad{
				Force:  r3.Sub(r3.Scale(1.5, cur.Force), r3.Scale(0.5, prev.Force)),
				Torque: r3.Sub(r3.Scale(1.5, cur.Torque), r3.Scale(0.5, prev.Torque)),
			}
		}
	}
}

func meanLoad(h []mesapd.HydroLoad) mesapd.HydroLoad {
	var sum mesapd.HydroLoad
	for _, l := range h {
		sum.Force = r3.Add(sum.Force, l.Force)
		sum.Torque = r3.Add(sum.Torque, l.Torque)
	}
	inv := 1 / float64(len(h))
	sum.Force = r3.Scale(inv, sum.Force)
	sum.Torque = r3.Scale(inv, sum.Torque)
	return sum
}
