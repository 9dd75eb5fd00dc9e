// Package mesapd holds the rigid-particle side of the fluid-particle
// coupling: shapes, immutable per-cycle particle snapshots, an in-memory
// registry implementation and the proximity query used by the lubrication
// correction. It deliberately contains no dynamics; integrating particle
// motion is the caller's job.
package mesapd

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Snapshot is an immutable view of one particle, taken once per coupling
// cycle. All vectors are in world coordinates and lattice units.
type Snapshot struct {
	ID          int64
	Shape       Shape
	Position    r3.Vec
	Orientation r3.Rotation
	LinearVel   r3.Vec
	AngularVel  r3.Vec
	Mass        float64
	InertiaBody r3.Vec // principal moments of inertia in the body frame
	GlobalFixed bool   // immovable body, e.g. a domain wall
}

// IdentityRotation is the no-op orientation.
func IdentityRotation() r3.Rotation {
	return r3.Rotation(quat.Number{Real: 1})
}

// ToBody transforms a world point into the snapshot's body frame.
func (s Snapshot) ToBody(p r3.Vec) r3.Vec {
	inv := r3.Rotation(quat.Conj(quat.Number(s.Orientation)))
	return inv.Rotate(r3.Sub(p, s.Position))
}

// ToWorld transforms a body-frame point into world coordinates.
func (s Snapshot) ToWorld(p r3.Vec) r3.Vec {
	return r3.Add(s.Position, s.Orientation.Rotate(p))
}

// Contains reports whether the world point p lies inside the particle.
func (s Snapshot) Contains(p r3.Vec) bool {
	return s.Shape.Contains(s.ToBody(p))
}

// SurfaceFraction returns the fraction along the world segment from outside
// to inside at which the particle surface is crossed. Rotations preserve the
// segment parameter, so the body-frame fraction applies unchanged.
func (s Snapshot) SurfaceFraction(outside, inside r3.Vec) float64 {
	return s.Shape.LinkFraction(s.ToBody(outside), s.ToBody(inside))
}

// VelocityAt returns the rigid-body velocity of the world point p,
// v + omega x (p - x).
func (s Snapshot) VelocityAt(p r3.Vec) r3.Vec {
	return r3.Add(s.LinearVel, r3.Cross(s.AngularVel, r3.Sub(p, s.Position)))
}

// Registry is the particle-side contract the coupling layer consumes. The
// coupling never mutates particle state beyond storing the resolved
// hydrodynamic load; advancing particles is the caller's responsibility.
type Registry interface {
	// Snapshots returns a consistent view of all particles, ordered by id.
	Snapshots() []Snapshot
	// SetHydrodynamic stores the cycle's total hydrodynamic force and torque
	// for the particle. Unknown ids are an error.
	SetHydrodynamic(id int64, force, torque r3.Vec) error
	// Epoch increments whenever the particle population or a shape changes.
	// Kinematic updates do not bump it. The mapping layer rescans blocks in
	// full whenever the epoch moved.
	Epoch() uint64
}

// HydroLoad is the reduced hydrodynamic force and torque of one particle.
type HydroLoad struct {
	Force  r3.Vec
	Torque r3.Vec
}

// InMemoryRegistry is a Registry backed by a map, safe for concurrent use.
// It is the registry used by the example drivers and the tests; a production
// particle engine can stand in behind the same interface.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	particles map[int64]*Snapshot
	loads     map[int64]HydroLoad
	epoch     uint64
}

// NewInMemoryRegistry returns an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		particles: make(map[int64]*Snapshot),
		loads:     make(map[int64]HydroLoad),
	}
}

// Add inserts a particle. A zero orientation is normalized to the identity;
// duplicate ids and nil shapes are errors.
func (r *InMemoryRegistry) Add(s Snapshot) error {
	if s.Shape == nil {
		return fmt.Errorf("mesapd: particle %d has no shape", s.ID)
	}
	if (s.Orientation == r3.Rotation{}) {
		s.Orientation = IdentityRotation()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.particles[s.ID]; ok {
		return fmt.Errorf("mesapd: duplicate particle id %d", s.ID)
	}
	r.particles[s.ID] = &s
	r.epoch++
	return nil
}

// Remove deletes a particle and its stored load.
func (r *InMemoryRegistry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.particles[id]; !ok {
		return
	}
	delete(r.particles, id)
	delete(r.loads, id)
	r.epoch++
}

// Get returns the snapshot of one particle.
func (r *InMemoryRegistry) Get(id int64) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.particles[id]
	if !ok {
		return Snapshot{}, false
	}
	return *p, true
}

// SetKinematics updates position, orientation and velocities of a particle
// without bumping the epoch.
func (r *InMemoryRegistry) SetKinematics(id int64, pos r3.Vec, orient r3.Rotation, linVel, angVel r3.Vec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.particles[id]
	if !ok {
		return fmt.Errorf("mesapd: unknown particle id %d", id)
	}
	if (orient == r3.Rotation{}) {
		orient = IdentityRotation()
	}
	p.Position = pos
	p.Orientation = orient
	p.LinearVel = linVel
	p.AngularVel = angVel
	return nil
}

// Snapshots implements Registry.
func (r *InMemoryRegistry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.particles))
	for _, p := range r.particles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetHydrodynamic implements Registry.
func (r *InMemoryRegistry) SetHydrodynamic(id int64, force, torque r3.Vec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.particles[id]; !ok {
		return fmt.Errorf("mesapd: unknown particle id %d", id)
	}
	r.loads[id] = HydroLoad{Force: force, Torque: torque}
	return nil
}

// Hydrodynamic returns the load stored by the last completed coupling cycle.
func (r *InMemoryRegistry) Hydrodynamic(id int64) HydroLoad {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loads[id]
}

// Epoch implements Registry.
func (r *InMemoryRegistry) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}
