package coupling

import (
	"errors"
	"testing"

	"github.com/mengjing120/walberla/diag"
	"github.com/mengjing120/walberla/domain"
	"github.com/mengjing120/walberla/lattice"
	"github.com/mengjing120/walberla/mesapd"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

// testRecorder keeps a copy of every committed load map.
type testRecorder struct {
	cycles []uint64
	loads  []map[int64]mesapd.HydroLoad
}

func (r *testRecorder) Record(cycle uint64, snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad) error {
	copied := make(map[int64]mesapd.HydroLoad, len(loads))
	for id, l := range loads {
		copied[id] = l
	}
	r.cycles = append(r.cycles, cycle)
	r.loads = append(r.loads, copied)
	return nil
}

// fluidMomentum sums the momentum of all interior non-solid cells.
func fluidMomentum(s *Simulation) r3.Vec {
	var p r3.Vec
	for _, w := range s.workers {
		for _, bd := range w.blocks {
			g := bd.block.Geom
			for z := 0; z < g.Nz; z++ {
				for y := 0; y < g.Ny; y++ {
					for x := 0; x < g.Nx; x++ {
						idx := g.Index(x, y, z)
						if bd.cur.State(idx) == lattice.Obstacle {
							continue
						}
						_, mx, my, mz := bd.pdf.DensityVelocity(idx)
						p = r3.Add(p, r3.Vec{X: mx, Y: my, Z: mz})
					}
				}
			}
		}
	}
	return p
}

// TestNewSimulationValidation tests the constructor's parameter checks.
func TestNewSimulationValidation(t *testing.T) {
	f := testForest(t, [3]int{8, 8, 8}, [3]int{1, 1, 1}, [3]bool{})
	valid := Params{Omega: 1.2, Density: 1, Boundary: SimpleBounceBack, Reconstruct: ReconstructEqNonEq}

	tests := []struct {
		name string
		fn   func()
	}{
		{"nil registry", func() { NewSimulation(f, nil, valid) }},
		{"zero omega", func() {
			p := valid
			p.Omega = 0
			NewSimulation(f, mesapd.NewInMemoryRegistry(), p)
		}},
		{"omega at stability bound", func() {
			p := valid
			p.Omega = 2
			NewSimulation(f, mesapd.NewInMemoryRegistry(), p)
		}},
		{"non-positive density", func() {
			p := valid
			p.Density = 0
			NewSimulation(f, mesapd.NewInMemoryRegistry(), p)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Expected a panic")
				}
			}()
			tc.fn()
		})
	}
}

// TestSimulationStationarySphere tests that a resting sphere in quiescent
// fluid stays force free and leaves the fluid at rest over several cycles.
func TestSimulationStationarySphere(t *testing.T) {
	f := testForest(t, [3]int{12, 12, 12}, [3]int{1, 1, 1}, [3]bool{})
	reg := mesapd.NewInMemoryRegistry()
	if err := reg.Add(sphere(3, r3.Vec{X: 6.5, Y: 6.5, Z: 6.5}, 2.2)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sim := NewSimulation(f, reg, Params{
		Omega:        1.2,
		Density:      1,
		Compressible: true,
		Boundary:     SimpleBounceBack,
		Reconstruct:  ReconstructEqNonEq,
	})
	countedBefore := testutil.ToFloat64(diag.CyclesTotal)
	for c := 0; c < 3; c++ {
		if err := sim.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", c, err)
		}
	}
	if sim.Cycle() != 3 {
		t.Errorf("Expected 3 completed cycles, got %d", sim.Cycle())
	}
	if got := testutil.ToFloat64(diag.CyclesTotal) - countedBefore; got != 3 {
		t.Errorf("Expected the cycle counter to grow by 3, got %v", got)
	}

	load := reg.Hydrodynamic(3)
	assert.InDelta(t, 0.0, load.Force.X, 1e-12, "force x")
	assert.InDelta(t, 0.0, load.Force.Y, 1e-12, "force y")
	assert.InDelta(t, 0.0, load.Force.Z, 1e-12, "force z")
	assert.InDelta(t, 0.0, load.Torque.X, 1e-12, "torque x")
	assert.InDelta(t, 0.0, load.Torque.Y, 1e-12, "torque y")
	assert.InDelta(t, 0.0, load.Torque.Z, 1e-12, "torque z")

	bd := sim.workers[0].blocks[0]
	probe := bd.block.Geom.Index(2, 2, 2)
	rho, mx, my, mz := bd.pdf.DensityVelocity(probe)
	assert.InDelta(t, 1.0, rho, 1e-13, "far-field density")
	assert.InDelta(t, 0.0, mx, 1e-13, "far-field momentum x")
	assert.InDelta(t, 0.0, my, 1e-13, "far-field momentum y")
	assert.InDelta(t, 0.0, mz, 1e-13, "far-field momentum z")
}

// TestSimulationMomentumConservation tests that the momentum the fluid
// loses each cycle is exactly the load credited to the body.
func TestSimulationMomentumConservation(t *testing.T) {
	f := testForest(t, [3]int{12, 12, 12}, [3]int{1, 1, 1}, [3]bool{true, true, true})
	reg := mesapd.NewInMemoryRegistry()
	s := sphere(2, r3.Vec{X: 6.5, Y: 6.5, Z: 6.5}, 2.2)
	s.LinearVel = r3.Vec{X: 0.02}
	s.AngularVel = r3.Vec{Z: 0.005}
	if err := reg.Add(s); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sim := NewSimulation(f, reg, Params{
		Omega:        1.0,
		Density:      1,
		Compressible: true,
		Boundary:     SimpleBounceBack,
		Reconstruct:  ReconstructEqNonEq,
	})

	// The body is never moved, so no cells transition after the first map
	// and reconstruction cannot inject momentum.
	prev := fluidMomentum(sim)
	for c := 0; c < 3; c++ {
		if err := sim.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", c, err)
		}
		cur := fluidMomentum(sim)
		force := reg.Hydrodynamic(2).Force
		assert.InDelta(t, -force.X, cur.X-prev.X, 1e-11, "cycle %d momentum x", c)
		assert.InDelta(t, -force.Y, cur.Y-prev.Y, 1e-11, "cycle %d momentum y", c)
		assert.InDelta(t, -force.Z, cur.Z-prev.Z, 1e-11, "cycle %d momentum z", c)
		prev = cur
	}
}

// TestSimulationDecompositionInvariance tests that one block on one rank
// and two blocks on two ranks produce the same loads for a sphere crossing
// the block seam.
func TestSimulationDecompositionInvariance(t *testing.T) {
	run := func(blocks [3]int, ranks int) []map[int64]mesapd.HydroLoad {
		f, err := domain.NewForest(domain.Layout{
			Cells:    [3]int{16, 8, 8},
			Blocks:   blocks,
			Ranks:    ranks,
			Periodic: [3]bool{true, true, true},
		})
		if err != nil {
			t.Fatalf("NewForest failed: %v", err)
		}
		reg := mesapd.NewInMemoryRegistry()
		s := sphere(1, r3.Vec{X: 6.9, Y: 4.3, Z: 4.1}, 2.2)
		s.LinearVel = r3.Vec{X: 0.3, Y: 0.05}
		s.AngularVel = r3.Vec{Z: 0.01}
		if err := reg.Add(s); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		rec := &testRecorder{}
		sim := NewSimulation(f, reg, Params{
			Omega:        1.4,
			Density:      1,
			Compressible: true,
			Boundary:     InterpolatedBounceBack,
			Reconstruct:  ReconstructEqNonEq,
			Recorder:     rec,
		})
		for c := 0; c < 6; c++ {
			if err := sim.Step(); err != nil {
				t.Fatalf("Step %d failed: %v", c, err)
			}
			cur, ok := reg.Get(1)
			if !ok {
				t.Fatal("Body 1 disappeared")
			}
			pos := r3.Add(cur.Position, cur.LinearVel)
			if err := reg.SetKinematics(1, pos, cur.Orientation, cur.LinearVel, cur.AngularVel); err != nil {
				t.Fatalf("SetKinematics failed: %v", err)
			}
		}
		return rec.loads
	}

	single := run([3]int{1, 1, 1}, 1)
	split := run([3]int{2, 1, 1}, 2)

	if len(single) != len(split) {
		t.Fatalf("Expected %d recorded cycles, got %d", len(single), len(split))
	}
	for c := range single {
		if len(single[c]) != len(split[c]) {
			t.Fatalf("Cycle %d: expected %d bodies, got %d", c, len(single[c]), len(split[c]))
		}
		for id, a := range single[c] {
			b, ok := split[c][id]
			if !ok {
				t.Fatalf("Cycle %d: body %d missing from the split run", c, id)
			}
			assert.InDelta(t, a.Force.X, b.Force.X, 5e-13, "cycle %d force x", c)
			assert.InDelta(t, a.Force.Y, b.Force.Y, 5e-13, "cycle %d force y", c)
			assert.InDelta(t, a.Force.Z, b.Force.Z, 5e-13, "cycle %d force z", c)
			assert.InDelta(t, a.Torque.X, b.Torque.X, 5e-13, "cycle %d torque x", c)
			assert.InDelta(t, a.Torque.Y, b.Torque.Y, 5e-13, "cycle %d torque y", c)
			assert.InDelta(t, a.Torque.Z, b.Torque.Z, 5e-13, "cycle %d torque z", c)
		}
	}
}

// TestSimulationMappingConflictAborts tests that a movable body overlapping
// a fixed wall fails the cycle without committing loads.
func TestSimulationMappingConflictAborts(t *testing.T) {
	f := testForest(t, [3]int{8, 8, 8}, [3]int{1, 1, 1}, [3]bool{})
	reg := mesapd.NewInMemoryRegistry()
	if err := reg.Add(wall(1, r3.Vec{Z: 1}, r3.Vec{Z: 1})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := reg.Add(sphere(2, r3.Vec{X: 4.5, Y: 4.5, Z: 1.9}, 1.5)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sim := NewSimulation(f, reg, Params{
		Omega:       1.2,
		Density:     1,
		Boundary:    SimpleBounceBack,
		Reconstruct: ReconstructEqNonEq,
	})
	err := sim.Step()
	var conflict *MappingConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected MappingConflictError, got %v", err)
	}
	if conflict.IDs != [2]int64{1, 2} {
		t.Errorf("Expected conflict between 1 and 2, got %v", conflict.IDs)
	}
	if sim.Cycle() != 0 {
		t.Errorf("Expected no completed cycles, got %d", sim.Cycle())
	}
	if load := reg.Hydrodynamic(2); load != (mesapd.HydroLoad{}) {
		t.Errorf("Expected no committed load, got %+v", load)
	}
}

// TestSimulationEpochRescan tests that bodies added between cycles are
// picked up by the next mapping.
func TestSimulationEpochRescan(t *testing.T) {
	f := testForest(t, [3]int{12, 12, 12}, [3]int{1, 1, 1}, [3]bool{})
	reg := mesapd.NewInMemoryRegistry()
	if err := reg.Add(sphere(1, r3.Vec{X: 3.5, Y: 6.5, Z: 6.5}, 1.5)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	rec := &testRecorder{}
	sim := NewSimulation(f, reg, Params{
		Omega:       1.2,
		Density:     1,
		Boundary:    SimpleBounceBack,
		Reconstruct: ReconstructEqNonEq,
		Recorder:    rec,
	})
	if err := sim.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if _, ok := rec.loads[0][9]; ok {
		t.Fatal("Body 9 recorded before it was added")
	}

	if err := reg.Add(sphere(9, r3.Vec{X: 8.5, Y: 6.5, Z: 6.5}, 1.5)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := sim.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if len(rec.cycles) != 2 || rec.cycles[0] != 0 || rec.cycles[1] != 1 {
		t.Fatalf("Expected recorded cycles [0 1], got %v", rec.cycles)
	}
	if _, ok := rec.loads[1][9]; !ok {
		t.Error("Expected the added body in the next cycle's loads")
	}
	if _, ok := rec.loads[1][1]; !ok {
		t.Error("Expected the original body in the next cycle's loads")
	}
}
