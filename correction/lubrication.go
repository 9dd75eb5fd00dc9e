package correction

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/diag"
	"github.com/mengjing120/walberla/mesapd"
)

// Lubrication adds the squeeze-film force the lattice cannot resolve once
// two surfaces come closer than the cutoff gap. Only the normal component
// is modeled; the force is exactly zero at and above the cutoff, so bodies
// feel no jump when entering the corrected range.
type Lubrication struct {
	viscosity float64
	cutoff    float64
	minGap    float64
	period    r3.Vec
}

// NewLubrication returns the corrector. viscosity is the dynamic fluid
// viscosity, cutoff the gap below which the correction acts, and minGap the
// resolution floor the gap is clamped to. period gives the domain extent on
// periodic axes, zero on bounded ones.
func NewLubrication(viscosity, cutoff, minGap float64, period r3.Vec) *Lubrication {
	if viscosity <= 0 {
		panic(fmt.Sprintf("correction: invalid viscosity %v", viscosity))
	}
	if cutoff <= 0 || minGap <= 0 || minGap >= cutoff {
		panic(fmt.Sprintf("correction: invalid lubrication gaps min %v cutoff %v", minGap, cutoff))
	}
	return &Lubrication{viscosity: viscosity, cutoff: cutoff, minGap: minGap, period: period}
}

// Apply implements the corrector contract.
func (l *Lubrication) Apply(snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad) {
	for _, p := range mesapd.ProximityPairs(snaps, l.cutoff, l.period) {
		gap := p.Gap
		if gap < l.minGap {
			diag.LubricationClamps.Inc()
			slog.Warn("lubrication gap below resolution floor",
				"a", p.A.ID, "b", p.B.ID, "gap", gap, "floor", l.minGap)
			gap = l.minGap
		}

		sa, ok := p.A.Shape.(mesapd.Sphere)
		if !ok {
			continue
		}
		rEff := sa.Radius
		if sb, ok := p.B.Shape.(mesapd.Sphere); ok {
			rEff = sa.Radius * sb.Radius / (sa.Radius + sb.Radius)
		}

		// Relative normal approach velocity; positive means separating.
		un := r3.Dot(r3.Sub(p.A.LinearVel, p.B.LinearVel), p.Normal)
		mag := -6 * math.Pi * l.viscosity * rEff * rEff * (1/gap - 1/l.cutoff) * un
		force := r3.Scale(mag, p.Normal)

		la := loads[p.A.ID]
		la.Force = r3.Add(la.Force, force)
		loads[p.A.ID] = la
		lb := loads[p.B.ID]
		lb.Force = r3.Sub(lb.Force, force)
		loads[p.B.ID] = lb
	}
}
