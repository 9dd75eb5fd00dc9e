package lattice

import "fmt"

// GhostWidth is the halo width carried by every per-block field. One layer is
// enough for the D3Q19 links and the reconstruction stencils.
const GhostWidth = 1

// CellState classifies a lattice cell for the coupling layer.
type CellState uint8

const (
	// Fluid cells carry valid populations and take part in collide/stream.
	Fluid CellState = iota
	// Obstacle cells are covered by a rigid body; their populations are
	// invalid until the cell returns to Fluid and is reconstructed.
	Obstacle
	// Interface cells are fluid cells with at least one Obstacle link
	// neighbor; momentum exchange happens on their solid links.
	Interface
)

// String returns a short name for the state.
func (s CellState) String() string {
	switch s {
	case Fluid:
		return "fluid"
	case Obstacle:
		return "obstacle"
	case Interface:
		return "interface"
	}
	return "invalid"
}

// NoOwner marks a cell that is not claimed by any particle.
const NoOwner int64 = -1

// Geometry describes the interior extent of one block's cell grid and provides
// flattened indexing over the ghost-inclusive array. Interior cells have local
// coordinates in [0,N); ghost cells extend one layer beyond on each side.
type Geometry struct {
	Nx, Ny, Nz int // interior cells per axis

	strideY int
	strideZ int
	nCells  int
}

// NewGeometry returns the geometry for an Nx ✕ Ny ✕ Nz interior.
func NewGeometry(nx, ny, nz int) Geometry {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		panic(fmt.Sprintf("lattice: invalid block extent %dx%dx%d", nx, ny, nz))
	}
	sy := nx + 2*GhostWidth
	sz := sy * (ny + 2*GhostWidth)
	return Geometry{
		Nx: nx, Ny: ny, Nz: nz,
		strideY: sy,
		strideZ: sz,
		nCells:  sz * (nz + 2*GhostWidth),
	}
}

// NumCells returns the ghost-inclusive cell count.
func (g Geometry) NumCells() int { return g.nCells }

// Index returns the flattened index of local cell (x,y,z). Coordinates may
// range over [-GhostWidth, N+GhostWidth) on each axis.
func (g Geometry) Index(x, y, z int) int {
	return (x + GhostWidth) + (y+GhostWidth)*g.strideY + (z+GhostWidth)*g.strideZ
}

// Coords is the inverse of Index.
func (g Geometry) Coords(idx int) (x, y, z int) {
	z = idx/g.strideZ - GhostWidth
	rem := idx % g.strideZ
	y = rem/g.strideY - GhostWidth
	x = rem%g.strideY - GhostWidth
	return x, y, z
}

// Interior reports whether (x,y,z) lies in the block interior.
func (g Geometry) Interior(x, y, z int) bool {
	return x >= 0 && x < g.Nx && y >= 0 && y < g.Ny && z >= 0 && z < g.Nz
}

// InBounds reports whether (x,y,z) lies inside the ghost-inclusive extent.
func (g Geometry) InBounds(x, y, z int) bool {
	return x >= -GhostWidth && x < g.Nx+GhostWidth &&
		y >= -GhostWidth && y < g.Ny+GhostWidth &&
		z >= -GhostWidth && z < g.Nz+GhostWidth
}

// PdfField stores the Q populations of every cell of one block, cell-major
// (all Q values of a cell are contiguous), ghost layer included. A second
// buffer of the same shape backs the pull-streaming step.
type PdfField struct {
	Geom Geometry

	data []float64
	tmp  []float64
}

// NewPdfField allocates a field with all populations set to the rest-state
// equilibrium at density rho0.
func NewPdfField(geom Geometry, rho0 float64) *PdfField {
	f := &PdfField{
		Geom: geom,
		data: make([]float64, geom.NumCells()*Q),
		tmp:  make([]float64, geom.NumCells()*Q),
	}
	for c := 0; c < geom.NumCells(); c++ {
		for q := 0; q < Q; q++ {
			f.data[c*Q+q] = Weights[q] * rho0
		}
	}
	return f
}

// Get returns population q of the cell at flattened index idx.
func (f *PdfField) Get(idx int, q Direction) float64 { return f.data[idx*Q+int(q)] }

// Set stores population q of the cell at flattened index idx.
func (f *PdfField) Set(idx int, q Direction, v float64) { f.data[idx*Q+int(q)] = v }

// Cell returns the Q populations of a cell as a mutable slice.
func (f *PdfField) Cell(idx int) []float64 { return f.data[idx*Q : idx*Q+Q] }

// SetCell overwrites all Q populations of a cell.
func (f *PdfField) SetCell(idx int, pdfs *[Q]float64) {
	copy(f.data[idx*Q:idx*Q+Q], pdfs[:])
}

// Density returns the zeroth moment of the cell's populations.
func (f *PdfField) Density(idx int) float64 {
	var rho float64
	cell := f.data[idx*Q : idx*Q+Q]
	for q := 0; q < Q; q++ {
		rho += cell[q]
	}
	return rho
}

// Velocity returns the macroscopic velocity of the cell. For the compressible
// model the momentum density is divided by the local density.
func (f *PdfField) Velocity(idx int, compressible bool) (ux, uy, uz float64) {
	rho, ux, uy, uz := f.DensityVelocity(idx)
	if compressible {
		ux /= rho
		uy /= rho
		uz /= rho
	}
	return ux, uy, uz
}

// DensityVelocity returns density and momentum density of the cell in one pass.
func (f *PdfField) DensityVelocity(idx int) (rho, mx, my, mz float64) {
	cell := f.data[idx*Q : idx*Q+Q]
	for q := 0; q < Q; q++ {
		v := cell[q]
		rho += v
		mx += v * float64(Cx[q])
		my += v * float64(Cy[q])
		mz += v * float64(Cz[q])
	}
	return rho, mx, my, mz
}

// StateField stores the per-cell coupling state and owning-particle id of one
// block, ghost layer included. Owners are weak references by id, resolved
// through the particle registry; NoOwner marks unowned cells.
type StateField struct {
	Geom Geometry

	state []CellState
	owner []int64
}

// NewStateField returns a field with every cell Fluid and unowned.
func NewStateField(geom Geometry) *StateField {
	s := &StateField{
		Geom:  geom,
		state: make([]CellState, geom.NumCells()),
		owner: make([]int64, geom.NumCells()),
	}
	for i := range s.owner {
		s.owner[i] = NoOwner
	}
	return s
}

// State returns the state of the cell at flattened index idx.
func (s *StateField) State(idx int) CellState { return s.state[idx] }

// Owner returns the owning particle id of the cell, or NoOwner.
func (s *StateField) Owner(idx int) int64 { return s.owner[idx] }

// Set stores state and owner together; the two arrays never diverge.
func (s *StateField) Set(idx int, st CellState, owner int64) {
	s.state[idx] = st
	s.owner[idx] = owner
}

// CopyInto duplicates the field into dst, which must share the geometry.
func (s *StateField) CopyInto(dst *StateField) {
	if dst.Geom != s.Geom {
		panic("lattice: state field geometry mismatch")
	}
	copy(dst.state, s.state)
	copy(dst.owner, s.owner)
}

// Reset marks every cell Fluid and unowned.
func (s *StateField) Reset() {
	for i := range s.state {
		s.state[i] = Fluid
		s.owner[i] = NoOwner
	}
}
