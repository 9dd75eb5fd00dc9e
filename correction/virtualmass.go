package correction

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/mesapd"
)

// VirtualMass adds the force a body needs to accelerate the fluid it
// displaces. The body acceleration is the first-order difference of the
// registry velocities between cycles; the ambient fluid acceleration is a
// configured constant. A body's first sighting records its velocities and
// applies nothing.
type VirtualMass struct {
	coeff      float64
	omegaCoeff float64
	density    float64
	fluidAccel r3.Vec

	prevLin map[int64]r3.Vec
	prevAng map[int64]r3.Vec
}

// NewVirtualMass returns the corrector. coeff and omegaCoeff scale the
// translational and rotational terms, density is the fluid density and
// fluidAccel the ambient fluid acceleration.
func NewVirtualMass(coeff, omegaCoeff, density float64, fluidAccel r3.Vec) *VirtualMass {
	if coeff < 0 || omegaCoeff < 0 {
		panic(fmt.Sprintf("correction: negative virtual mass coefficients %v %v", coeff, omegaCoeff))
	}
	if density <= 0 {
		panic(fmt.Sprintf("correction: invalid fluid density %v", density))
	}
	return &VirtualMass{
		coeff:      coeff,
		omegaCoeff: omegaCoeff,
		density:    density,
		fluidAccel: fluidAccel,
		prevLin:    make(map[int64]r3.Vec),
		prevAng:    make(map[int64]r3.Vec),
	}
}

// Apply implements the corrector contract.
func (v *VirtualMass) Apply(snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad) {
	present := make(map[int64]bool, len(snaps))
	for _, s := range snaps {
		present[s.ID] = true
	}
	for id := range v.prevLin {
		if !present[id] {
			delete(v.prevLin, id)
			delete(v.prevAng, id)
		}
	}

	for _, s := range snaps {
		if s.GlobalFixed || s.Mass <= 0 {
			continue
		}
		pl, seen := v.prevLin[s.ID]
		pa := v.prevAng[s.ID]
		v.prevLin[s.ID] = s.LinearVel
		v.prevAng[s.ID] = s.AngularVel
		if !seen {
			continue
		}

		aLin := r3.Sub(s.LinearVel, pl)
		aAng := r3.Sub(s.AngularVel, pa)
		displaced := v.density * s.Shape.Volume()

		l := loads[s.ID]
		l.Force = r3.Add(l.Force, r3.Scale(v.coeff*displaced, r3.Sub(v.fluidAccel, aLin)))
		specific := r3.Scale(1/s.Mass, s.InertiaBody)
		l.Torque = r3.Add(l.Torque, r3.Vec{
			X: -v.omegaCoeff * displaced * specific.X * aAng.X,
			Y: -v.omegaCoeff * displaced * specific.Y * aAng.Y,
			Z: -v.omegaCoeff * displaced * specific.Z * aAng.Z,
		})
		loads[s.ID] = l
	}
}
