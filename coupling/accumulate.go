package coupling

import (
	"math"
	"sort"

	"github.com/mengjing120/walberla/mesapd"
	"gonum.org/v1/gonum/spatial/r3"
)

// compSum is a Neumaier compensated scalar sum. Interface links contribute
// tiny per-link momenta in arbitrary magnitude order; plain summation loses
// enough bits to break the cross-decomposition invariance checks.
type compSum struct {
	sum, comp float64
}

func (s *compSum) add(v float64) {
	t := s.sum + v
	if math.Abs(s.sum) >= math.Abs(v) {
		s.comp += (s.sum - t) + v
	} else {
		s.comp += (v - t) + s.sum
	}
	s.sum = t
}

func (s *compSum) value() float64 { return s.sum + s.comp }

type loadSum struct {
	force  [3]compSum
	torque [3]compSum
}

// Accumulator collects per-particle force and torque contributions on one
// rank. It is not safe for concurrent use; each rank owns one.
type Accumulator struct {
	loads map[int64]*loadSum
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{loads: make(map[int64]*loadSum)}
}

// Add accumulates a force applied at lever arm relative to the particle
// center, contributing force and lever x force.
func (a *Accumulator) Add(id int64, force, lever r3.Vec) {
	l := a.loads[id]
	if l == nil {
		l = &loadSum{}
		a.loads[id] = l
	}
	l.force[0].add(force.X)
	l.force[1].add(force.Y)
	l.force[2].add(force.Z)
	t := r3.Cross(lever, force)
	l.torque[0].add(t.X)
	l.torque[1].add(t.Y)
	l.torque[2].add(t.Z)
}

// AddLoad accumulates an already-resolved force/torque pair.
func (a *Accumulator) AddLoad(id int64, load mesapd.HydroLoad) {
	l := a.loads[id]
	if l == nil {
		l = &loadSum{}
		a.loads[id] = l
	}
	l.force[0].add(load.Force.X)
	l.force[1].add(load.Force.Y)
	l.force[2].add(load.Force.Z)
	l.torque[0].add(load.Torque.X)
	l.torque[1].add(load.Torque.Y)
	l.torque[2].add(load.Torque.Z)
}

// Reset drops all accumulated loads.
func (a *Accumulator) Reset() {
	for id := range a.loads {
		delete(a.loads, id)
	}
}

// IDs returns the particle ids with contributions, ascending.
func (a *Accumulator) IDs() []int64 {
	ids := make([]int64, 0, len(a.loads))
	for id := range a.loads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Load returns the accumulated load of one particle.
func (a *Accumulator) Load(id int64) mesapd.HydroLoad {
	l := a.loads[id]
	if l == nil {
		return mesapd.HydroLoad{}
	}
	return mesapd.HydroLoad{
		Force:  r3.Vec{X: l.force[0].value(), Y: l.force[1].value(), Z: l.force[2].value()},
		Torque: r3.Vec{X: l.torque[0].value(), Y: l.torque[1].value(), Z: l.torque[2].value()},
	}
}

// Flatten serializes the accumulator into parallel id and component slices,
// six floats per id (force xyz, torque xyz), ids ascending. The layout is
// what the reduce messages carry.
func (a *Accumulator) Flatten() ([]int64, []float64) {
	ids := a.IDs()
	floats := make([]float64, 0, 6*len(ids))
	for _, id := range ids {
		load := a.Load(id)
		floats = append(floats,
			load.Force.X, load.Force.Y, load.Force.Z,
			load.Torque.X, load.Torque.Y, load.Torque.Z)
	}
	return ids, floats
}
