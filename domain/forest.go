// Package domain decomposes the global lattice into a regular grid of
// uniform blocks, assigns blocks to ranks and moves ghost-layer data between
// them over an in-process message-passing network. Ranks are goroutines; all
// cross-rank data flows through the Network, never through shared arrays.
package domain

import (
	"fmt"
	"sort"

	"github.com/mengjing120/walberla/lattice"
	"gonum.org/v1/gonum/spatial/r3"
)

// AssignStrategy defines how blocks are distributed over ranks.
type AssignStrategy int

const (
	// BlockAssign hands out consecutive runs of the linear block index.
	BlockAssign AssignStrategy = iota
	// RoundRobinAssign distributes blocks cyclically.
	RoundRobinAssign
	// MortonAssign orders blocks along a Morton space-filling curve before
	// splitting, keeping each rank's blocks spatially compact.
	MortonAssign
)

// Layout describes the global lattice and its decomposition.
type Layout struct {
	Cells    [3]int  // global interior cells per axis
	Blocks   [3]int  // block grid per axis
	Ranks    int     // number of rank goroutines
	Periodic [3]bool // periodicity per axis
	Strategy AssignStrategy
}

// Block is one node of the forest: a uniform sub-grid of the global lattice.
type Block struct {
	ID    int    // linear block index
	Coord [3]int // block coordinates in the block grid
	Rank  int    // owning rank
	Geom  lattice.Geometry

	// Origin is the global cell coordinate of the block's (0,0,0) cell.
	Origin [3]int
}

// Min returns the world-space lower corner of the block.
func (b *Block) Min() r3.Vec {
	return r3.Vec{X: float64(b.Origin[0]), Y: float64(b.Origin[1]), Z: float64(b.Origin[2])}
}

// Max returns the world-space upper corner of the block.
func (b *Block) Max() r3.Vec {
	return r3.Vec{
		X: float64(b.Origin[0] + b.Geom.Nx),
		Y: float64(b.Origin[1] + b.Geom.Ny),
		Z: float64(b.Origin[2] + b.Geom.Nz),
	}
}

// CellCenter returns the world position of the center of local cell (x,y,z),
// which may be a ghost cell.
func (b *Block) CellCenter(x, y, z int) r3.Vec {
	return r3.Vec{
		X: float64(b.Origin[0]+x) + 0.5,
		Y: float64(b.Origin[1]+y) + 0.5,
		Z: float64(b.Origin[2]+z) + 0.5,
	}
}

// Forest is the assembled block decomposition.
type Forest struct {
	Layout Layout
	Blocks []*Block

	perBlock [3]int // cells per block per axis
}

// NewForest validates the layout and builds the block grid. Cell counts must
// divide evenly into the block grid and every rank must own at least one
// block.
func NewForest(l Layout) (*Forest, error) {
	for a := 0; a < 3; a++ {
		if l.Cells[a] <= 0 || l.Blocks[a] <= 0 {
			return nil, fmt.Errorf("domain: non-positive extent on axis %d", a)
		}
		if l.Cells[a]%l.Blocks[a] != 0 {
			return nil, fmt.Errorf("domain: %d cells do not divide into %d blocks on axis %d",
				l.Cells[a], l.Blocks[a], a)
		}
	}
	nBlocks := l.Blocks[0] * l.Blocks[1] * l.Blocks[2]
	if l.Ranks < 1 {
		return nil, fmt.Errorf("domain: need at least one rank, got %d", l.Ranks)
	}
	if l.Ranks > nBlocks {
		return nil, fmt.Errorf("domain: %d ranks exceed %d blocks", l.Ranks, nBlocks)
	}

	f := &Forest{Layout: l}
	for a := 0; a < 3; a++ {
		f.perBlock[a] = l.Cells[a] / l.Blocks[a]
	}
	geom := lattice.NewGeometry(f.perBlock[0], f.perBlock[1], f.perBlock[2])

	f.Blocks = make([]*Block, 0, nBlocks)
	for cz := 0; cz < l.Blocks[2]; cz++ {
		for cy := 0; cy < l.Blocks[1]; cy++ {
			for cx := 0; cx < l.Blocks[0]; cx++ {
				id := cx + cy*l.Blocks[0] + cz*l.Blocks[0]*l.Blocks[1]
				f.Blocks = append(f.Blocks, &Block{
					ID:    id,
					Coord: [3]int{cx, cy, cz},
					Geom:  geom,
					Origin: [3]int{
						cx * f.perBlock[0],
						cy * f.perBlock[1],
						cz * f.perBlock[2],
					},
				})
			}
		}
	}
	f.assignRanks()
	return f, nil
}

// assignRanks distributes blocks over ranks according to the layout strategy.
func (f *Forest) assignRanks() {
	n := len(f.Blocks)
	ranks := f.Layout.Ranks
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	switch f.Layout.Strategy {
	case RoundRobinAssign:
		for i, id := range order {
			f.Blocks[id].Rank = i % ranks
		}
		return
	case MortonAssign:
		sort.Slice(order, func(i, j int) bool {
			bi, bj := f.Blocks[order[i]], f.Blocks[order[j]]
			return mortonKey(bi.Coord) < mortonKey(bj.Coord)
		})
	}

	// Consecutive runs over the (possibly curve-reordered) block sequence.
	per := (n + ranks - 1) / ranks
	for i, id := range order {
		r := i / per
		if r >= ranks {
			r = ranks - 1
		}
		f.Blocks[id].Rank = r
	}
}

// mortonKey interleaves the bits of the block coordinates.
func mortonKey(c [3]int) uint64 {
	var key uint64
	for bit := 0; bit < 21; bit++ {
		key |= (uint64(c[0]>>bit) & 1) << (3 * bit)
		key |= (uint64(c[1]>>bit) & 1) << (3*bit + 1)
		key |= (uint64(c[2]>>bit) & 1) << (3*bit + 2)
	}
	return key
}

// BlockAt returns the block with the given block-grid coordinates, applying
// periodic wrapping. It returns nil when the coordinate leaves the grid on a
// non-periodic axis.
func (f *Forest) BlockAt(cx, cy, cz int) *Block {
	c := [3]int{cx, cy, cz}
	for a := 0; a < 3; a++ {
		if c[a] < 0 || c[a] >= f.Layout.Blocks[a] {
			if !f.Layout.Periodic[a] {
				return nil
			}
			c[a] = ((c[a] % f.Layout.Blocks[a]) + f.Layout.Blocks[a]) % f.Layout.Blocks[a]
		}
	}
	return f.Blocks[c[0]+c[1]*f.Layout.Blocks[0]+c[2]*f.Layout.Blocks[0]*f.Layout.Blocks[1]]
}

// Neighbor returns the face neighbor of b on the given axis and direction
// (+1 or -1), or nil at a non-periodic domain boundary.
func (f *Forest) Neighbor(b *Block, axis, dir int) *Block {
	c := b.Coord
	c[axis] += dir
	return f.BlockAt(c[0], c[1], c[2])
}

// OwnedBy returns the blocks assigned to one rank, ordered by block id.
func (f *Forest) OwnedBy(rank int) []*Block {
	var out []*Block
	for _, b := range f.Blocks {
		if b.Rank == rank {
			out = append(out, b)
		}
	}
	return out
}

// Period returns the world-space domain extent on periodic axes and zero on
// bounded ones, the form the proximity queries consume.
func (f *Forest) Period() r3.Vec {
	var p r3.Vec
	if f.Layout.Periodic[0] {
		p.X = float64(f.Layout.Cells[0])
	}
	if f.Layout.Periodic[1] {
		p.Y = float64(f.Layout.Cells[1])
	}
	if f.Layout.Periodic[2] {
		p.Z = float64(f.Layout.Cells[2])
	}
	return p
}

// MinImage wraps a world-space displacement to its minimum image across
// periodic axes.
func (f *Forest) MinImage(d r3.Vec) r3.Vec {
	if f.Layout.Periodic[0] {
		d.X = wrapHalf(d.X, float64(f.Layout.Cells[0]))
	}
	if f.Layout.Periodic[1] {
		d.Y = wrapHalf(d.Y, float64(f.Layout.Cells[1]))
	}
	if f.Layout.Periodic[2] {
		d.Z = wrapHalf(d.Z, float64(f.Layout.Cells[2]))
	}
	return d
}

func wrapHalf(x, period float64) float64 {
	for x > period/2 {
		x -= period
	}
	for x < -period/2 {
		x += period
	}
	return x
}
