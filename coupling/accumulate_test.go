package coupling

import (
	"testing"

	"github.com/mengjing120/walberla/mesapd"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestAccumulatorAdd tests that per-link contributions sum into force and
// lever-arm torque.
func TestAccumulatorAdd(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(5, r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 1})
	acc.Add(5, r3.Vec{X: -1, Z: 0.5}, r3.Vec{Y: 2})

	load := acc.Load(5)
	wantForce := r3.Vec{X: 0, Y: 2, Z: 3.5}
	if load.Force != wantForce {
		t.Errorf("Expected force %v, got %v", wantForce, load.Force)
	}
	// (1,0,0)x(1,2,3) + (0,2,0)x(-1,0,0.5)
	wantTorque := r3.Vec{X: 1, Y: -3, Z: 4}
	if load.Torque != wantTorque {
		t.Errorf("Expected torque %v, got %v", wantTorque, load.Torque)
	}
}

// TestAccumulatorAddLoad tests merging already-resolved loads.
func TestAccumulatorAddLoad(t *testing.T) {
	acc := NewAccumulator()
	acc.AddLoad(1, mesapd.HydroLoad{Force: r3.Vec{X: 1}, Torque: r3.Vec{Z: -2}})
	acc.AddLoad(1, mesapd.HydroLoad{Force: r3.Vec{X: 2, Y: 1}, Torque: r3.Vec{Z: 5}})

	load := acc.Load(1)
	if want := (r3.Vec{X: 3, Y: 1}); load.Force != want {
		t.Errorf("Expected force %v, got %v", want, load.Force)
	}
	if want := (r3.Vec{Z: 3}); load.Torque != want {
		t.Errorf("Expected torque %v, got %v", want, load.Torque)
	}
}

// TestAccumulatorCompensation tests that the compensated sum survives
// catastrophic cancellation that plain float64 addition loses.
func TestAccumulatorCompensation(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(1, r3.Vec{X: 1}, r3.Vec{})
	acc.Add(1, r3.Vec{X: 1e16}, r3.Vec{})
	acc.Add(1, r3.Vec{X: -1e16}, r3.Vec{})

	if got := acc.Load(1).Force.X; got != 1 {
		t.Errorf("Expected compensated sum 1, got %v", got)
	}
}

// TestAccumulatorReset tests that Reset drops every contribution.
func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(1, r3.Vec{X: 1}, r3.Vec{})
	acc.Add(2, r3.Vec{Y: 1}, r3.Vec{})
	acc.Reset()

	if ids := acc.IDs(); len(ids) != 0 {
		t.Errorf("Expected no ids after reset, got %v", ids)
	}
	if load := acc.Load(1); load != (mesapd.HydroLoad{}) {
		t.Errorf("Expected zero load after reset, got %+v", load)
	}
}

// TestAccumulatorIDs tests that ids come back ascending regardless of
// insertion order.
func TestAccumulatorIDs(t *testing.T) {
	acc := NewAccumulator()
	for _, id := range []int64{42, 7, 100, 9} {
		acc.Add(id, r3.Vec{X: 1}, r3.Vec{})
	}

	want := []int64{7, 9, 42, 100}
	got := acc.IDs()
	if len(got) != len(want) {
		t.Fatalf("Expected %d ids, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected id %d at position %d, got %d", want[i], i, got[i])
		}
	}
}

// TestAccumulatorFlatten tests the six-floats-per-id wire layout.
func TestAccumulatorFlatten(t *testing.T) {
	acc := NewAccumulator()
	acc.AddLoad(20, mesapd.HydroLoad{Force: r3.Vec{X: 4, Y: 5, Z: 6}, Torque: r3.Vec{X: -4, Y: -5, Z: -6}})
	acc.AddLoad(10, mesapd.HydroLoad{Force: r3.Vec{X: 1, Y: 2, Z: 3}, Torque: r3.Vec{X: -1, Y: -2, Z: -3}})

	ids, floats := acc.Flatten()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Fatalf("Expected ids [10 20], got %v", ids)
	}
	want := []float64{1, 2, 3, -1, -2, -3, 4, 5, 6, -4, -5, -6}
	if len(floats) != len(want) {
		t.Fatalf("Expected %d floats, got %d", len(want), len(floats))
	}
	for i := range want {
		if floats[i] != want[i] {
			t.Errorf("Expected %v at position %d, got %v", want[i], i, floats[i])
		}
	}
}

// TestUnpackLoads tests wire payload validation and round-tripping.
func TestUnpackLoads(t *testing.T) {
	acc := NewAccumulator()
	acc.AddLoad(3, mesapd.HydroLoad{Force: r3.Vec{X: 1.5}, Torque: r3.Vec{Y: 2.5}})
	ids, floats := acc.Flatten()

	loads, err := unpackLoads(ids, floats)
	if err != nil {
		t.Fatalf("unpackLoads failed: %v", err)
	}
	if got := loads[3]; got != acc.Load(3) {
		t.Errorf("Expected load %+v, got %+v", acc.Load(3), got)
	}

	if _, err := unpackLoads(ids, floats[:4]); err == nil {
		t.Error("Expected error for truncated payload, got nil")
	}
}
