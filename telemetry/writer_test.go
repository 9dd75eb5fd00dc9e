package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mengjing120/walberla/mesapd"
)

// readRows parses loads.csv back into rows.
func readRows(t *testing.T, dir string) []LoadRow {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "loads.csv"))
	if err != nil {
		t.Fatalf("Failed to open loads.csv: %v", err)
	}
	defer f.Close()
	var rows []LoadRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		t.Fatalf("Failed to parse loads.csv: %v", err)
	}
	return rows
}

// TestNewWriterDisabled tests that an empty directory disables telemetry
// and that the nil Writer is safe to use.
func TestNewWriterDisabled(t *testing.T) {
	w, err := NewWriter("", 1)
	if err != nil {
		t.Fatalf("Failed to create disabled writer: %v", err)
	}
	if w != nil {
		t.Fatal("Expected a nil writer for an empty directory")
	}
	if got := w.Run(); got != "" {
		t.Errorf("Expected an empty run id on a nil writer, got %q", got)
	}
	snaps := []mesapd.Snapshot{{ID: 1}}
	if err := w.Record(0, snaps, nil); err != nil {
		t.Errorf("Expected Record on a nil writer to succeed, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Expected Close on a nil writer to succeed, got %v", err)
	}
}

// TestNewWriterValidation tests the stride range check.
func TestNewWriterValidation(t *testing.T) {
	if _, err := NewWriter(t.TempDir(), 0); err == nil {
		t.Error("Expected an error for a zero stride")
	}
	if _, err := NewWriter(t.TempDir(), -2); err == nil {
		t.Error("Expected an error for a negative stride")
	}
}

// TestNewWriterCreatesOutput tests that nested output directories are
// created and each run gets its own id.
func TestNewWriterCreatesOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "run1")
	w, err := NewWriter(dir, 1)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(filepath.Join(dir, "loads.csv")); err != nil {
		t.Errorf("Expected loads.csv to exist: %v", err)
	}
	if w.Run() == "" {
		t.Error("Expected a non-empty run id")
	}

	other, err := NewWriter(filepath.Join(t.TempDir(), "run2"), 1)
	if err != nil {
		t.Fatalf("Failed to create second writer: %v", err)
	}
	defer other.Close()
	if w.Run() == other.Run() {
		t.Errorf("Expected distinct run ids, both are %q", w.Run())
	}
}

// TestRecordRows tests that every body gets a row per recorded cycle, in
// snapshot order, with zero loads for bodies the coupling reported nothing
// for.
func TestRecordRows(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	snaps := []mesapd.Snapshot{
		{ID: 3, Position: r3.Vec{X: 1, Y: 2, Z: 3}, LinearVel: r3.Vec{X: 0.1}},
		{ID: 7, Position: r3.Vec{X: 4, Y: 5, Z: 6}},
	}
	loads := map[int64]mesapd.HydroLoad{
		3: {Force: r3.Vec{X: 1, Y: 2, Z: 3}, Torque: r3.Vec{X: 4, Y: 5, Z: 6}},
	}
	if err := w.Record(0, snaps, loads); err != nil {
		t.Fatalf("Failed to record cycle 0: %v", err)
	}
	if err := w.Record(1, snaps, loads); err != nil {
		t.Fatalf("Failed to record cycle 1: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	rows := readRows(t, dir)
	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Run != w.Run() {
			t.Errorf("Expected run id %q in row %d, got %q", w.Run(), i, row.Run)
		}
	}
	if rows[0].Body != 3 || rows[1].Body != 7 {
		t.Errorf("Expected bodies in snapshot order [3 7], got [%d %d]", rows[0].Body, rows[1].Body)
	}
	if rows[2].Cycle != 1 || rows[3].Cycle != 1 {
		t.Errorf("Expected cycle 1 in rows 2 and 3, got %d and %d", rows[2].Cycle, rows[3].Cycle)
	}
	if rows[0].Px != 1 || rows[0].Vx != 0.1 || rows[0].Fy != 2 || rows[0].Tz != 6 {
		t.Errorf("Expected body 3 kinematics and loads, got %+v", rows[0])
	}
	if rows[1].Fx != 0 || rows[1].Fy != 0 || rows[1].Fz != 0 || rows[1].Tx != 0 {
		t.Errorf("Expected zero loads for the unreported body, got %+v", rows[1])
	}
}

// TestRecordHeaderOnce tests that the csv header is written exactly once
// across repeated records.
func TestRecordHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	snaps := []mesapd.Snapshot{{ID: 1}}
	for cycle := uint64(0); cycle < 3; cycle++ {
		if err := w.Record(cycle, snaps, nil); err != nil {
			t.Fatalf("Failed to record cycle %d: %v", cycle, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "loads.csv"))
	if err != nil {
		t.Fatalf("Failed to read loads.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected a header and 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "run,cycle,body") {
		t.Errorf("Expected the header first, got %q", lines[0])
	}
	for i, line := range lines[1:] {
		if strings.HasPrefix(line, "run,") {
			t.Errorf("Expected no repeated header, line %d is %q", i+1, line)
		}
	}
}

// TestRecordStride tests that only every n-th cycle is recorded.
func TestRecordStride(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 3)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	snaps := []mesapd.Snapshot{{ID: 1}}
	for cycle := uint64(0); cycle < 7; cycle++ {
		if err := w.Record(cycle, snaps, nil); err != nil {
			t.Fatalf("Failed to record cycle %d: %v", cycle, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	rows := readRows(t, dir)
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows for stride 3 over 7 cycles, got %d", len(rows))
	}
	for i, want := range []uint64{0, 3, 6} {
		if rows[i].Cycle != want {
			t.Errorf("Expected cycle %d in row %d, got %d", want, i, rows[i].Cycle)
		}
	}
}

// TestRecordEmptySnapshots tests that a cycle without bodies writes nothing.
func TestRecordEmptySnapshots(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if err := w.Record(0, nil, nil); err != nil {
		t.Fatalf("Failed to record empty cycle: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "loads.csv"))
	if err != nil {
		t.Fatalf("Failed to read loads.csv: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected an empty file, got %d bytes", len(data))
	}
}
