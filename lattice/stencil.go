// Package lattice provides the D3Q19 lattice model used by the coupling core:
// stencil tables, per-block population and flag storage, macroscopic field
// evaluation and a plain BGK collide/stream step. The collide/stream kernel is
// a reference implementation standing in for an externally optimized solver;
// the coupling layer only depends on the storage contracts and the stencil.
package lattice

// Direction indexes one of the 19 discrete velocities of the D3Q19 stencil.
// The ordering follows the usual center / axis / edge-diagonal convention:
// C, N, S, W, E, T, B, then the twelve edge diagonals.
type Direction uint8

const (
	C Direction = iota // (0,0,0)
	N                  // (0,+1,0)
	S                  // (0,-1,0)
	W                  // (-1,0,0)
	E                  // (+1,0,0)
	T                  // (0,0,+1)
	B                  // (0,0,-1)
	NW                 // (-1,+1,0)
	NE                 // (+1,+1,0)
	SW                 // (-1,-1,0)
	SE                 // (+1,-1,0)
	TN                 // (0,+1,+1)
	TS                 // (0,-1,+1)
	TW                 // (-1,0,+1)
	TE                 // (+1,0,+1)
	BN                 // (0,+1,-1)
	BS                 // (0,-1,-1)
	BW                 // (-1,0,-1)
	BE                 // (+1,0,-1)
)

// Q is the number of discrete velocities.
const Q = 19

// CsSq is the squared lattice speed of sound, 1/3 in lattice units.
const CsSq = 1.0 / 3.0

// Cx, Cy and Cz hold the integer components of each discrete velocity.
var (
	Cx = [Q]int{0, 0, 0, -1, 1, 0, 0, -1, 1, -1, 1, 0, 0, -1, 1, 0, 0, -1, 1}
	Cy = [Q]int{0, 1, -1, 0, 0, 0, 0, 1, 1, -1, -1, 1, -1, 0, 0, 1, -1, 0, 0}
	Cz = [Q]int{0, 0, 0, 0, 0, 1, -1, 0, 0, 0, 0, 1, 1, 1, 1, -1, -1, -1, -1}
)

// Weights holds the lattice weight of each direction: 1/3 for the rest
// direction, 1/18 for the six axis directions, 1/36 for the twelve diagonals.
var Weights = [Q]float64{
	1.0 / 3.0,
	1.0 / 18.0, 1.0 / 18.0, 1.0 / 18.0, 1.0 / 18.0, 1.0 / 18.0, 1.0 / 18.0,
	1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0,
	1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0,
	1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0, 1.0 / 36.0,
}

// Inverse maps each direction to its opposite.
var Inverse = [Q]Direction{
	C, S, N, E, W, B, T,
	SE, SW, NE, NW,
	BS, BN, BE, BW,
	TS, TN, TE, TW,
}

var names = [Q]string{
	"C", "N", "S", "W", "E", "T", "B",
	"NW", "NE", "SW", "SE",
	"TN", "TS", "TW", "TE",
	"BN", "BS", "BW", "BE",
}

// String returns the stencil name of the direction (C, N, SW, TE, ...).
func (d Direction) String() string {
	if int(d) >= Q {
		return "invalid"
	}
	return names[d]
}
