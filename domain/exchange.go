package domain

import (
	"fmt"

	"github.com/mengjing120/walberla/lattice"
)

type faceKey struct {
	block int
	axis  int
	dir   int
}

// Exchanger refreshes the ghost layers of a rank's blocks from their face
// neighbors. Slabs cover the ghost-inclusive extent of the two off axes, so
// sweeping the axes in order x, y, z also propagates edge and corner values;
// each axis phase ends at the network barrier to keep phases from mixing.
//
// Pick and place index sets are built once per rank, in the same canonical
// order on both sides of a face, so payloads need no per-cell addressing.
type Exchanger struct {
	comm   *Comm
	forest *Forest
	owned  []*Block
	pdfs   map[int]*lattice.PdfField

	pick  map[faceKey][]int
	place map[faceKey][]int
}

// NewExchanger builds the pick and place index sets for every face of the
// rank's blocks that has a neighbor. pdfs maps block id to the block's field
// and must cover every owned block.
func NewExchanger(comm *Comm, forest *Forest, pdfs map[int]*lattice.PdfField) (*Exchanger, error) {
	e := &Exchanger{
		comm:   comm,
		forest: forest,
		owned:  forest.OwnedBy(comm.Rank()),
		pdfs:   pdfs,
		pick:   make(map[faceKey][]int),
		place:  make(map[faceKey][]int),
	}
	for _, b := range e.owned {
		if _, ok := pdfs[b.ID]; !ok {
			return nil, fmt.Errorf("domain: no pdf field for owned block %d", b.ID)
		}
		for axis := 0; axis < 3; axis++ {
			for _, dir := range [2]int{-1, 1} {
				if e.forest.Neighbor(b, axis, dir) == nil {
					continue
				}
				e.pick[faceKey{b.ID, axis, dir}] = slabIndices(b.Geom, axis, dir, false)
				// Incoming slabs were picked at the neighbor's opposite
				// face; they land in the ghost layer facing the sender.
				e.place[faceKey{b.ID, axis, -dir}] = slabIndices(b.Geom, axis, -dir, true)
			}
		}
	}
	return e, nil
}

// slabIndices returns the flattened indices of one face slab in canonical
// order (inner axis fastest). ghost selects the ghost layer outside the face;
// otherwise the outermost interior layer. The off axes range ghost-inclusive.
func slabIndices(g lattice.Geometry, axis, dir int, ghost bool) []int {
	n := [3]int{g.Nx, g.Ny, g.Nz}
	var fixed int
	switch {
	case ghost && dir > 0:
		// A slab picked at the sender's +1 face lands in the receiver's
		// low-side ghost layer, and vice versa.
		fixed = -1
	case ghost:
		fixed = n[axis]
	case dir > 0:
		fixed = n[axis] - 1
	default:
		fixed = 0
	}

	a1, a2 := offAxes(axis)
	out := make([]int, 0, (n[a1]+2)*(n[a2]+2))
	var c [3]int
	c[axis] = fixed
	for i2 := -1; i2 <= n[a2]; i2++ {
		for i1 := -1; i1 <= n[a1]; i1++ {
			c[a1], c[a2] = i1, i2
			out = append(out, g.Index(c[0], c[1], c[2]))
		}
	}
	return out
}

func offAxes(axis int) (int, int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

// ExchangePdfs refreshes the ghost populations of every owned block. It is a
// collective: all ranks of the network must call it in the same phase.
func (e *Exchanger) ExchangePdfs() error {
	for axis := 0; axis < 3; axis++ {
		expect := 0
		for _, b := range e.owned {
			for _, dir := range [2]int{-1, 1} {
				nb := e.forest.Neighbor(b, axis, dir)
				if nb == nil {
					continue
				}
				payload := e.pickPdfs(b, axis, dir)
				if nb.Rank == e.comm.Rank() {
					if err := e.placePdfs(nb.ID, axis, dir, payload); err != nil {
						return err
					}
					continue
				}
				e.comm.Send(nb.Rank, Message{
					Kind:     KindSlab,
					DstBlock: nb.ID,
					Axis:     axis,
					Dir:      dir,
					Floats:   payload,
				})
			}
		}
		for _, b := range e.owned {
			for _, dir := range [2]int{-1, 1} {
				nb := e.forest.Neighbor(b, axis, dir)
				if nb != nil && nb.Rank != e.comm.Rank() {
					expect++
				}
			}
		}
		for i := 0; i < expect; i++ {
			m, err := e.comm.Recv()
			if err != nil {
				return fmt.Errorf("pdf exchange axis %d: %w", axis, err)
			}
			if m.Kind != KindSlab || m.Axis != axis {
				return fmt.Errorf("pdf exchange axis %d: unexpected message kind %d axis %d from rank %d",
					axis, m.Kind, m.Axis, m.Src)
			}
			if err := e.placePdfs(m.DstBlock, m.Axis, m.Dir, m.Floats); err != nil {
				return err
			}
		}
		e.comm.Barrier()
	}
	return nil
}

// pickPdfs gathers the outgoing slab of one face into a flat payload.
func (e *Exchanger) pickPdfs(b *Block, axis, dir int) []float64 {
	idx := e.pick[faceKey{b.ID, axis, dir}]
	f := e.pdfs[b.ID]
	payload := make([]float64, len(idx)*lattice.Q)
	for i, cell := range idx {
		copy(payload[i*lattice.Q:(i+1)*lattice.Q], f.Cell(cell))
	}
	return payload
}

// placePdfs scatters an incoming slab into the ghost layer facing the
// sender. dir is the direction of the sending block's face.
func (e *Exchanger) placePdfs(blockID, axis, dir int, payload []float64) error {
	idx, ok := e.place[faceKey{blockID, axis, dir}]
	if !ok {
		return fmt.Errorf("domain: block %d has no place slab for axis %d dir %d", blockID, axis, dir)
	}
	if len(payload) != len(idx)*lattice.Q {
		return fmt.Errorf("domain: slab size %d does not match %d cells for block %d",
			len(payload), len(idx), blockID)
	}
	f := e.pdfs[blockID]
	for i, cell := range idx {
		copy(f.Cell(cell), payload[i*lattice.Q:(i+1)*lattice.Q])
	}
	return nil
}
