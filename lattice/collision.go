package lattice

// OmegaFromViscosity returns the BGK relaxation rate for a kinematic lattice
// viscosity nu, omega = 1 / (3 nu + 1/2).
func OmegaFromViscosity(nu float64) float64 {
	return 1.0 / (3.0*nu + 0.5)
}

// ViscosityFromOmega is the inverse of OmegaFromViscosity.
func ViscosityFromOmega(omega float64) float64 {
	return (1.0/omega - 0.5) / 3.0
}

// Collide relaxes every interior Fluid and Interface cell towards its local
// equilibrium with rate omega, in place. Obstacle cells and the ghost layer
// are left untouched; ghosts are refreshed from neighbor interiors by the
// exchange that follows.
func Collide(f *PdfField, st *StateField, omega float64, compressible bool) {
	g := f.Geom
	var feq [Q]float64
	for z := 0; z < g.Nz; z++ {
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				idx := g.Index(x, y, z)
				if st.State(idx) == Obstacle {
					continue
				}
				rho, ux, uy, uz := f.DensityVelocity(idx)
				if compressible {
					ux /= rho
					uy /= rho
					uz /= rho
				}
				Equilibrium(compressible, rho, ux, uy, uz, &feq)
				cell := f.Cell(idx)
				for q := 0; q < Q; q++ {
					cell[q] += omega * (feq[q] - cell[q])
				}
			}
		}
	}
}

// Stream advances every interior Fluid and Interface cell by one pull step,
//
//	f_q(x, t+1) = f~_q(x - c_q, t),
//
// and swaps the buffers. The pull is uniform: a source cell inside an
// obstacle holds the bounce value the boundary sweep stored in the inverse
// slot, so no link needs special casing here. Obstacle cells are not
// streamed into; their populations stay invalid until reconstruction.
func Stream(f *PdfField, st *StateField) {
	g := f.Geom
	for z := 0; z < g.Nz; z++ {
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				idx := g.Index(x, y, z)
				if st.State(idx) == Obstacle {
					continue
				}
				dst := f.tmp[idx*Q : idx*Q+Q]
				for q := 0; q < Q; q++ {
					src := g.Index(x-Cx[q], y-Cy[q], z-Cz[q])
					dst[q] = f.data[src*Q+q]
				}
			}
		}
	}
	f.data, f.tmp = f.tmp, f.data
}
