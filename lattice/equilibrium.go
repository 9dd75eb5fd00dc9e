package lattice

// Equilibrium fills feq with the discrete equilibrium distribution for the
// given density and velocity. The compressible form is
//
//	f_q^eq = w_q rho (1 + 3 c_q.u + 9/2 (c_q.u)^2 - 3/2 u.u)
//
// and the incompressible form replaces the density prefactor of the velocity
// terms by the unit reference density,
//
//	f_q^eq = w_q (rho + 3 c_q.u + 9/2 (c_q.u)^2 - 3/2 u.u).
func Equilibrium(compressible bool, rho, ux, uy, uz float64, feq *[Q]float64) {
	uSq := ux*ux + uy*uy + uz*uz
	for q := 0; q < Q; q++ {
		cu := float64(Cx[q])*ux + float64(Cy[q])*uy + float64(Cz[q])*uz
		vel := 3*cu + 4.5*cu*cu - 1.5*uSq
		if compressible {
			feq[q] = Weights[q] * rho * (1 + vel)
		} else {
			feq[q] = Weights[q] * (rho + vel)
		}
	}
}

// EquilibriumDir returns a single direction of the equilibrium distribution.
func EquilibriumDir(compressible bool, q Direction, rho, ux, uy, uz float64) float64 {
	cu := float64(Cx[q])*ux + float64(Cy[q])*uy + float64(Cz[q])*uz
	uSq := ux*ux + uy*uy + uz*uz
	vel := 3*cu + 4.5*cu*cu - 1.5*uSq
	if compressible {
		return Weights[q] * rho * (1 + vel)
	}
	return Weights[q] * (rho + vel)
}

// EquilibriumSymmetric returns the part of the equilibrium that is even under
// direction reversal, (f_q^eq + f_qbar^eq)/2. Only the odd 3 c_q.u term drops
// out, so this is w_q rho (1 + 9/2 (c_q.u)^2 - 3/2 u.u) in the compressible
// model.
func EquilibriumSymmetric(compressible bool, q Direction, rho, ux, uy, uz float64) float64 {
	cu := float64(Cx[q])*ux + float64(Cy[q])*uy + float64(Cz[q])*uz
	uSq := ux*ux + uy*uy + uz*uz
	even := 4.5*cu*cu - 1.5*uSq
	if compressible {
		return Weights[q] * rho * (1 + even)
	}
	return Weights[q] * (rho + even)
}

// EquilibriumAsymmetric returns the odd part under direction reversal,
// (f_q^eq - f_qbar^eq)/2 = 3 w_q rho c_q.u. The incompressible model uses the
// unit reference density here, so rho does not enter.
func EquilibriumAsymmetric(compressible bool, q Direction, rho, ux, uy, uz float64) float64 {
	cu := float64(Cx[q])*ux + float64(Cy[q])*uy + float64(Cz[q])*uz
	if compressible {
		return 3 * Weights[q] * rho * cu
	}
	return 3 * Weights[q] * cu
}
