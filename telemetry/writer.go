// Package telemetry records the per-cycle loads and kinematics of every
// body as a CSV time series, one run per output directory.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/mengjing120/walberla/mesapd"
)

// LoadRow is one body in one recorded cycle.
type LoadRow struct {
	Run   string `csv:"run"`
	Cycle uint64 `csv:"cycle"`
	Body  int64  `csv:"body"`

	Px float64 `csv:"px"`
	Py float64 `csv:"py"`
	Pz float64 `csv:"pz"`
	Vx float64 `csv:"vx"`
	Vy float64 `csv:"vy"`
	Vz float64 `csv:"vz"`

	Fx float64 `csv:"fx"`
	Fy float64 `csv:"fy"`
	Fz float64 `csv:"fz"`
	Tx float64 `csv:"tx"`
	Ty float64 `csv:"ty"`
	Tz float64 `csv:"tz"`
}

// Writer appends load rows to loads.csv in the output directory. Methods on
// a nil Writer do nothing, so a disabled telemetry section needs no call
// site guards.
type Writer struct {
	run           string
	every         uint64
	file          *os.File
	headerWritten bool
}

// NewWriter creates the output directory and loads.csv and tags the run
// with a fresh id. Returns nil when dir is empty (telemetry disabled).
// every selects which cycles are recorded and must be positive.
func NewWriter(dir string, every int) (*Writer, error) {
	if dir == "" {
		return nil, nil
	}
	if every < 1 {
		return nil, fmt.Errorf("telemetry: every %d must be positive", every)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "loads.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating loads.csv: %w", err)
	}
	return &Writer{run: uuid.New().String(), every: uint64(every), file: f}, nil
}

// Run returns the run id, empty on a nil Writer.
func (w *Writer) Run() string {
	if w == nil {
		return ""
	}
	return w.run
}

// Record writes one row per body for the cycle, in snapshot order. Cycles
// between the configured stride are skipped.
func (w *Writer) Record(cycle uint64, snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad) error {
	if w == nil || cycle%w.every != 0 || len(snaps) == 0 {
		return nil
	}
	rows := make([]LoadRow, 0, len(snaps))
	for _, s := range snaps {
		l := loads[s.ID]
		rows = append(rows, LoadRow{
			Run:   w.run,
			Cycle: cycle,
			Body:  s.ID,
			Px:    s.Position.X, Py: s.Position.Y, Pz: s.Position.Z,
			Vx: s.LinearVel.X, Vy: s.LinearVel.Y, Vz: s.LinearVel.Z,
			Fx: l.Force.X, Fy: l.Force.Y, Fz: l.Force.Z,
			Tx: l.Torque.X, Ty: l.Torque.Y, Tz: l.Torque.Z,
		})
	}
	if !w.headerWritten {
		if err := gocsv.Marshal(rows, w.file); err != nil {
			return fmt.Errorf("writing loads: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, w.file); err != nil {
		return fmt.Errorf("writing loads: %w", err)
	}
	return nil
}

// Close flushes and closes the output file.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	return w.file.Close()
}
