package coupling

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/domain"
	"github.com/mengjing120/walberla/mesapd"
)

// reduceRoot is the rank that merges loads, applies corrections and owns
// the registry write-back.
const reduceRoot = 0

// Corrector adjusts the reduced per-body loads before they are broadcast
// and committed. Correctors run on the reduce root only, in registration
// order, and may add entries for bodies that carried no load.
type Corrector interface {
	Apply(snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad)
}

// Reduce merges the per-rank load sums on the root, applies the correctors
// there and hands every rank the final per-body loads. Contributions are
// merged in rank order, so the result does not depend on message timing.
// All ranks must call Reduce each cycle; on failure every rank returns an
// error wrapping ErrReductionIncomplete and no loads.
func Reduce(comm *domain.Comm, acc *Accumulator, snaps []mesapd.Snapshot, correctors []Corrector) (map[int64]mesapd.HydroLoad, error) {
	if comm.Rank() != reduceRoot {
		ids, floats := acc.Flatten()
		comm.Send(reduceRoot, domain.Message{Kind: domain.KindReduce, Ints: ids, Floats: floats})
		m, err := comm.Recv()
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w: %w", comm.Rank(), ErrReductionIncomplete, err)
		}
		if m.Kind != domain.KindResult {
			return nil, fmt.Errorf("rank %d: %w: kind %d from rank %d", comm.Rank(), ErrReductionIncomplete, m.Kind, m.Src)
		}
		loads, err := unpackLoads(m.Ints, m.Floats)
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w: %w", comm.Rank(), ErrReductionIncomplete, err)
		}
		comm.Barrier()
		return loads, nil
	}

	pending := make([]domain.Message, comm.Size())
	for n := comm.Size() - 1; n > 0; n-- {
		m, err := comm.Recv()
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w: %w", comm.Rank(), ErrReductionIncomplete, err)
		}
		if m.Kind != domain.KindReduce {
			return nil, fmt.Errorf("rank %d: %w: kind %d from rank %d", comm.Rank(), ErrReductionIncomplete, m.Kind, m.Src)
		}
		pending[m.Src] = m
	}
	for r := 1; r < comm.Size(); r++ {
		m := pending[r]
		part, err := unpackLoads(m.Ints, m.Floats)
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w: %w", comm.Rank(), ErrReductionIncomplete, err)
		}
		for _, id := range m.Ints {
			acc.AddLoad(id, part[id])
		}
	}

	loads := make(map[int64]mesapd.HydroLoad)
	for _, id := range acc.IDs() {
		loads[id] = acc.Load(id)
	}
	for _, c := range correctors {
		c.Apply(snaps, loads)
	}

	ids, floats := flattenLoads(loads)
	for r := 1; r < comm.Size(); r++ {
		comm.Send(r, domain.Message{Kind: domain.KindResult, Ints: ids, Floats: floats})
	}
	comm.Barrier()
	return loads, nil
}

func flattenLoads(loads map[int64]mesapd.HydroLoad) ([]int64, []float64) {
	ids := make([]int64, 0, len(loads))
	for id := range loads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	floats := make([]float64, 0, 6*len(ids))
	for _, id := range ids {
		l := loads[id]
		floats = append(floats,
			l.Force.X, l.Force.Y, l.Force.Z,
			l.Torque.X, l.Torque.Y, l.Torque.Z)
	}
	return ids, floats
}

func unpackLoads(ids []int64, floats []float64) (map[int64]mesapd.HydroLoad, error) {
	if len(floats) != 6*len(ids) {
		return nil, fmt.Errorf("load payload: %d floats for %d ids", len(floats), len(ids))
	}
	loads := make(map[int64]mesapd.HydroLoad, len(ids))
	for i, id := range ids {
		o := 6 * i
		loads[id] = mesapd.HydroLoad{
			Force:  r3.Vec{X: floats[o], Y: floats[o+1], Z: floats[o+2]},
			Torque: r3.Vec{X: floats[o+3], Y: floats[o+4], Z: floats[o+5]},
		}
	}
	return loads, nil
}

// agree settles a phase outcome across all ranks. Every rank reports its
// local error to the root; the root picks the failure of the lowest rank
// and every rank returns that same verdict, nil when no rank failed. The
// failing rank returns its own error unchanged, so typed errors survive on
// the rank that raised them.
func agree(comm *domain.Comm, local error) error {
	if comm.Size() == 1 {
		return local
	}
	if comm.Rank() != reduceRoot {
		var status []byte
		if local != nil {
			status = []byte(local.Error())
		}
		comm.Send(reduceRoot, domain.Message{Kind: domain.KindStatus, Bytes: status})
		m, err := comm.Recv()
		if err != nil {
			return err
		}
		if m.Kind != domain.KindStatus {
			return fmt.Errorf("rank %d: kind %d from rank %d during status agreement", comm.Rank(), m.Kind, m.Src)
		}
		comm.Barrier()
		if len(m.Bytes) == 0 {
			return nil
		}
		if fail := int(m.Ints[0]); fail != comm.Rank() {
			return fmt.Errorf("rank %d: %s", fail, m.Bytes)
		}
		return local
	}

	reports := make([][]byte, comm.Size())
	if local != nil {
		reports[reduceRoot] = []byte(local.Error())
	}
	for n := comm.Size() - 1; n > 0; n-- {
		m, err := comm.Recv()
		if err != nil {
			return err
		}
		if m.Kind != domain.KindStatus {
			return fmt.Errorf("rank %d: kind %d from rank %d during status agreement", comm.Rank(), m.Kind, m.Src)
		}
		reports[m.Src] = m.Bytes
	}
	failRank := -1
	var verdict []byte
	for r, b := range reports {
		if len(b) > 0 {
			failRank, verdict = r, b
			break
		}
	}
	for r := 1; r < comm.Size(); r++ {
		comm.Send(r, domain.Message{Kind: domain.KindStatus, Bytes: verdict, Ints: []int64{int64(failRank)}})
	}
	comm.Barrier()
	switch failRank {
	case -1:
		return nil
	case reduceRoot:
		return local
	}
	return fmt.Errorf("rank %d: %s", failRank, verdict)
}
