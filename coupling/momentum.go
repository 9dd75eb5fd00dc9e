package coupling

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/lattice"
)

// Sweeper applies the momentum-exchange boundary condition of one block.
// For every link from an interior fluid cell into an obstacle cell it
// writes the bounced population into the obstacle cell's reflected slot,
// where the following pull stream picks it up, and credits the momentum
// transferred across the link to the obstacle's owner. Links into ghost
// obstacle cells are handled the same way; each block serves exactly the
// slots its own cells pull from, so no exchange runs between sweep and
// stream and every cross-block link is counted once, by the block owning
// the fluid side.
type Sweeper struct {
	boundary     BoundaryMode
	compressible bool
}

// NewSweeper returns a sweeper for the given boundary mode.
func NewSweeper(boundary BoundaryMode, compressible bool) *Sweeper {
	return &Sweeper{boundary: boundary, compressible: compressible}
}

// Sweep serves all wall links of the block from its post-collision
// populations and accumulates the resulting loads. It returns the number of
// links the interpolated boundary had to degrade to simple bounce-back for
// want of a second upstream fluid node.
func (s *Sweeper) Sweep(bd *blockData, acc *Accumulator) int {
	g := bd.block.Geom
	degraded := 0
	for z := 0; z < g.Nz; z++ {
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				idx := g.Index(x, y, z)
				if bd.cur.State(idx) != lattice.Interface {
					continue
				}
				degraded += s.sweepCell(bd, acc, idx, x, y, z)
			}
		}
	}
	return degraded
}

func (s *Sweeper) sweepCell(bd *blockData, acc *Accumulator, idx, x, y, z int) int {
	g := bd.block.Geom
	from := bd.block.CellCenter(x, y, z)
	rhoWall := 1.0
	if s.compressible {
		rhoWall = bd.pdf.Density(idx)
	}

	degraded := 0
	for q := 1; q < lattice.Q; q++ {
		nx, ny, nz := x+lattice.Cx[q], y+lattice.Cy[q], z+lattice.Cz[q]
		if !g.InBounds(nx, ny, nz) {
			continue
		}
		nIdx := g.Index(nx, ny, nz)
		if bd.cur.State(nIdx) != lattice.Obstacle {
			continue
		}
		dir := lattice.Direction(q)
		cq := r3.Vec{X: float64(lattice.Cx[q]), Y: float64(lattice.Cy[q]), Z: float64(lattice.Cz[q])}
		fOut := bd.pdf.Get(idx, dir)

		// Wall distance along the link, as a fraction of the link length.
		d := 0.5
		interpolated := false
		if s.boundary == InterpolatedBounceBack {
			if frac, ok := bd.links[linkKey{cell: idx, dir: dir}]; ok {
				d = frac
				interpolated = true
			} else {
				degraded++
			}
		}

		wallPoint := r3.Add(from, r3.Scale(d, cq))
		var wallVel r3.Vec
		owner := bd.cur.Owner(nIdx)
		snap, known := bd.imageNear(owner, from)
		if known {
			wallVel = snap.VelocityAt(wallPoint)
		}
		laddTerm := 6 * lattice.Weights[q] * rhoWall * r3.Dot(cq, wallVel)

		var bounce float64
		switch {
		case !interpolated:
			bounce = fOut - laddTerm
		case d < 0.5:
			// Needs the next fluid node upstream of the link.
			ux, uy, uz := x-lattice.Cx[q], y-lattice.Cy[q], z-lattice.Cz[q]
			if g.InBounds(ux, uy, uz) && bd.cur.State(g.Index(ux, uy, uz)) != lattice.Obstacle {
				fUp := bd.pdf.Get(g.Index(ux, uy, uz), dir)
				bounce = 2*d*fOut + (1-2*d)*fUp - laddTerm
			} else {
				bounce = fOut - laddTerm
				degraded++
			}
		default:
			fBack := bd.pdf.Get(idx, lattice.Inverse[q])
			bounce = fOut/(2*d) + (2*d-1)/(2*d)*fBack - laddTerm/(2*d)
		}
		bd.pdf.Set(nIdx, lattice.Inverse[q], bounce)

		if known {
			// Momentum handed to the body across this link per time step.
			force := r3.Scale(fOut+bounce, cq)
			acc.Add(owner, force, r3.Sub(wallPoint, snap.Position))
		}
	}
	return degraded
}
