package coupling

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/lattice"
)

// ReconstructMode selects how cells uncovered by particle motion get new
// populations.
type ReconstructMode uint8

const (
	// ReconstructEquilibrium writes the equilibrium of the target density
	// and velocity.
	ReconstructEquilibrium ReconstructMode = iota
	// ReconstructEqNonEq adds the averaged non-equilibrium part of the
	// stable fluid neighbors. The default.
	ReconstructEqNonEq
	// ReconstructGrad adds Grad's first-order non-equilibrium approximation
	// from a least-squares velocity gradient fit over the neighbors.
	ReconstructGrad
)

func (m ReconstructMode) String() string {
	switch m {
	case ReconstructEquilibrium:
		return "equilibrium"
	case ReconstructEqNonEq:
		return "eq-noneq"
	case ReconstructGrad:
		return "grad"
	}
	return "invalid"
}

// Reconstructor fills cells that switched from solid to fluid with valid
// populations. Neighbor sampling only trusts cells that were fluid in both
// the previous and the current mapping; cells reconstructed in the same
// cycle never feed each other, which keeps the result independent of sweep
// order and of the block decomposition.
type Reconstructor struct {
	mode         ReconstructMode
	compressible bool
	omega        float64
	rho0         float64
}

// NewReconstructor returns a reconstructor. rho0 is the reference density
// used when no fluid neighbor is available.
func NewReconstructor(mode ReconstructMode, compressible bool, omega, rho0 float64) *Reconstructor {
	return &Reconstructor{mode: mode, compressible: compressible, omega: omega, rho0: rho0}
}

// Restore writes populations for every became-fluid cell of the block and
// returns the number of cells that had no usable neighbor and fell back to
// the resting equilibrium.
func (rc *Reconstructor) Restore(bd *blockData) int {
	g := bd.block.Geom
	fallbacks := 0
	var feq [lattice.Q]float64

	for _, idx := range bd.becameFluid {
		x, y, z := g.Coords(idx)

		// Stable fluid neighbors over all 18 links.
		var nbs []int
		for q := 1; q < lattice.Q; q++ {
			nx, ny, nz := x+lattice.Cx[q], y+lattice.Cy[q], z+lattice.Cz[q]
			if !g.InBounds(nx, ny, nz) {
				continue
			}
			nIdx := g.Index(nx, ny, nz)
			if bd.cur.State(nIdx) == lattice.Obstacle || bd.prev.State(nIdx) == lattice.Obstacle {
				continue
			}
			nbs = append(nbs, nIdx)
		}
		if len(nbs) == 0 {
			fallbacks++
			lattice.Equilibrium(rc.compressible, rc.rho0, 0, 0, 0, &feq)
			bd.pdf.SetCell(idx, &feq)
			continue
		}

		rhoT := 0.0
		for _, nIdx := range nbs {
			rhoT += bd.pdf.Density(nIdx)
		}
		rhoT /= float64(len(nbs))

		uT := rc.targetVelocity(bd, idx, x, y, z)

		lattice.Equilibrium(rc.compressible, rhoT, uT.X, uT.Y, uT.Z, &feq)
		switch rc.mode {
		case ReconstructEqNonEq:
			rc.addAveragedNonEq(bd, nbs, &feq)
		case ReconstructGrad:
			rc.addGradApprox(bd, idx, nbs, rhoT, uT, &feq)
		}
		bd.pdf.SetCell(idx, &feq)
	}
	return fallbacks
}

// targetVelocity is the surface velocity of the particle that vacated the
// cell; when that particle is gone, the average velocity of the
// face-adjacent stable fluid neighbors; zero as the last resort.
func (rc *Reconstructor) targetVelocity(bd *blockData, idx, x, y, z int) r3.Vec {
	center := bd.block.CellCenter(x, y, z)
	if snap, ok := bd.imageNear(bd.prev.Owner(idx), center); ok {
		return snap.VelocityAt(center)
	}
	g := bd.block.Geom
	var sum r3.Vec
	n := 0
	for q := 1; q <= 6; q++ {
		nx, ny, nz := x+lattice.Cx[q], y+lattice.Cy[q], z+lattice.Cz[q]
		if !g.InBounds(nx, ny, nz) {
			continue
		}
		nIdx := g.Index(nx, ny, nz)
		if bd.cur.State(nIdx) == lattice.Obstacle || bd.prev.State(nIdx) == lattice.Obstacle {
			continue
		}
		ux, uy, uz := bd.pdf.Velocity(nIdx, rc.compressible)
		sum = r3.Add(sum, r3.Vec{X: ux, Y: uy, Z: uz})
		n++
	}
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/float64(n), sum)
}

// addAveragedNonEq adds the mean non-equilibrium part of the neighbors to
// the equilibrium populations.
func (rc *Reconstructor) addAveragedNonEq(bd *blockData, nbs []int, feq *[lattice.Q]float64) {
	var nonEq [lattice.Q]float64
	var feqN [lattice.Q]float64
	for _, nIdx := range nbs {
		rho, ux, uy, uz := bd.pdf.DensityVelocity(nIdx)
		if rc.compressible {
			ux /= rho
			uy /= rho
			uz /= rho
		}
		lattice.Equilibrium(rc.compressible, rho, ux, uy, uz, &feqN)
		cell := bd.pdf.Cell(nIdx)
		for q := 0; q < lattice.Q; q++ {
			nonEq[q] += cell[q] - feqN[q]
		}
	}
	inv := 1 / float64(len(nbs))
	for q := 0; q < lattice.Q; q++ {
		feq[q] += nonEq[q] * inv
	}
}

// addGradApprox adds Grad's first-order non-equilibrium term. The velocity
// gradient is a least-squares fit of the neighbor velocity differences over
// the link offsets; a degenerate fit leaves the equilibrium untouched.
func (rc *Reconstructor) addGradApprox(bd *blockData, idx int, nbs []int, rhoT float64, uT r3.Vec, feq *[lattice.Q]float64) {
	g := bd.block.Geom
	x, y, z := g.Coords(idx)

	a := mat.NewDense(len(nbs), 3, nil)
	b := mat.NewDense(len(nbs), 3, nil)
	for row, nIdx := range nbs {
		nx, ny, nz := g.Coords(nIdx)
		a.Set(row, 0, float64(nx-x))
		a.Set(row, 1, float64(ny-y))
		a.Set(row, 2, float64(nz-z))
		ux, uy, uz := bd.pdf.Velocity(nIdx, rc.compressible)
		b.Set(row, 0, ux-uT.X)
		b.Set(row, 1, uy-uT.Y)
		b.Set(row, 2, uz-uT.Z)
	}
	var grad mat.Dense
	if err := grad.Solve(a, b); err != nil {
		return
	}

	// S_ab = du_b/dx_a + du_a/dx_b from the fitted gradient.
	var s [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s[i][j] = grad.At(i, j) + grad.At(j, i)
		}
	}
	tau := 1 / rc.omega
	coef := -rhoT * tau / (2 * lattice.CsSq * lattice.CsSq)
	c := func(q, axis int) float64 {
		switch axis {
		case 0:
			return float64(lattice.Cx[q])
		case 1:
			return float64(lattice.Cy[q])
		}
		return float64(lattice.Cz[q])
	}
	for q := 0; q < lattice.Q; q++ {
		var contr float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				qq := c(q, i) * c(q, j)
				if i == j {
					qq -= lattice.CsSq
				}
				contr += qq * s[i][j]
			}
		}
		feq[q] += coef * lattice.Weights[q] * contr
	}
}
