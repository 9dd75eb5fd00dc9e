package coupling

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mengjing120/walberla/diag"
	"github.com/mengjing120/walberla/domain"
	"github.com/mengjing120/walberla/lattice"
	"github.com/mengjing120/walberla/mesapd"
)

// Params collects the physical and numerical settings of a coupling run.
type Params struct {
	// Omega is the BGK relaxation rate, in (0,2).
	Omega float64
	// Density is the reference fluid density used to initialize the
	// populations and as the reconstruction fallback.
	Density float64
	// Compressible selects the compressible equilibrium and velocity moments.
	Compressible bool
	// Boundary is the wall treatment of the momentum-exchange sweep.
	Boundary BoundaryMode
	// Reconstruct selects how uncovered cells regain populations.
	Reconstruct ReconstructMode
	// Correctors run on the reduce root each cycle, in order.
	Correctors []Corrector
	// Recorder, when set, observes the committed loads of each cycle.
	Recorder Recorder
}

// Recorder observes the per-body loads committed at the end of a cycle.
type Recorder interface {
	Record(cycle uint64, snaps []mesapd.Snapshot, loads map[int64]mesapd.HydroLoad) error
}

// Simulation drives the coupled update over a block forest. Each rank of the
// decomposition runs as one goroutine per cycle; rank state persists in the
// workers between cycles. The registry must only be mutated between Step
// calls.
type Simulation struct {
	forest   *domain.Forest
	registry mesapd.Registry
	params   Params

	net     *domain.Network
	workers []*rankWorker
	cycle   uint64
}

type rankWorker struct {
	comm    *domain.Comm
	blocks  []*blockData
	exch    *domain.Exchanger
	acc     *Accumulator
	mapper  *Mapper
	recon   *Reconstructor
	sweeper *Sweeper

	omega        float64
	compressible bool
	correctors   []Corrector

	epoch  uint64
	seeded bool
}

// NewSimulation builds the rank workers and their block fields. Populations
// start at the resting equilibrium of the reference density. Invalid
// parameters panic.
func NewSimulation(forest *domain.Forest, registry mesapd.Registry, params Params) *Simulation {
	if registry == nil {
		panic("coupling: nil registry")
	}
	if params.Omega <= 0 || params.Omega >= 2 {
		panic(fmt.Sprintf("coupling: relaxation rate %v outside (0,2)", params.Omega))
	}
	if params.Density <= 0 {
		panic(fmt.Sprintf("coupling: invalid reference density %v", params.Density))
	}

	s := &Simulation{
		forest:   forest,
		registry: registry,
		params:   params,
		net:      domain.NewNetwork(forest.Layout.Ranks, len(forest.Blocks)),
	}
	for rank := 0; rank < forest.Layout.Ranks; rank++ {
		comm := s.net.Rank(rank)
		pdfs := make(map[int]*lattice.PdfField)
		var blocks []*blockData
		for _, b := range forest.OwnedBy(rank) {
			bd := newBlockData(forest, b, lattice.NewPdfField(b.Geom, params.Density))
			pdfs[b.ID] = bd.pdf
			blocks = append(blocks, bd)
		}
		exch, err := domain.NewExchanger(comm, forest, pdfs)
		if err != nil {
			panic(err)
		}
		s.workers = append(s.workers, &rankWorker{
			comm:         comm,
			blocks:       blocks,
			exch:         exch,
			acc:          NewAccumulator(),
			mapper:       NewMapper(forest, params.Boundary),
			recon:        NewReconstructor(params.Reconstruct, params.Compressible, params.Omega, params.Density),
			sweeper:      NewSweeper(params.Boundary, params.Compressible),
			omega:        params.Omega,
			compressible: params.Compressible,
			correctors:   params.Correctors,
		})
	}
	return s
}

// Cycle returns the number of completed cycles.
func (s *Simulation) Cycle() uint64 { return s.cycle }

// Step advances fluid and coupling state by one cycle and commits the
// resulting per-body loads to the registry. On error no loads are
// committed; a *MappingConflictError is fatal for the run.
func (s *Simulation) Step() error {
	snaps := s.registry.Snapshots()
	epoch := s.registry.Epoch()

	results := make([]map[int64]mesapd.HydroLoad, len(s.workers))
	errs := make([]error, len(s.workers))
	var wg sync.WaitGroup
	for i, w := range s.workers {
		wg.Add(1)
		go func(i int, w *rankWorker) {
			defer wg.Done()
			results[i], errs[i] = w.step(snaps, epoch)
		}(i, w)
	}
	wg.Wait()

	var conflict *MappingConflictError
	for _, err := range errs {
		if errors.As(err, &conflict) {
			diag.MappingConflicts.Inc()
			return fmt.Errorf("cycle %d: %w", s.cycle, conflict)
		}
	}
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("cycle %d: %w", s.cycle, err)
		}
	}

	for id, l := range results[reduceRoot] {
		if err := s.registry.SetHydrodynamic(id, l.Force, l.Torque); err != nil {
			return fmt.Errorf("cycle %d: commit load for body %d: %w", s.cycle, id, err)
		}
	}
	if s.params.Recorder != nil {
		if err := s.params.Recorder.Record(s.cycle, snaps, results[reduceRoot]); err != nil {
			return fmt.Errorf("cycle %d: record loads: %w", s.cycle, err)
		}
	}
	s.cycle++
	diag.CyclesTotal.Inc()
	return nil
}

// step runs one rank through the cycle's phase script.
func (w *rankWorker) step(snaps []mesapd.Snapshot, epoch uint64) (map[int64]mesapd.HydroLoad, error) {
	// Ghost layers must hold the peers' post-stream populations before
	// mapping, so reconstruction and link interpolation read valid
	// neighbors. Mapping errors are settled collectively to keep all ranks
	// on the same cycle outcome.
	var localErr error
	if err := w.exch.ExchangePdfs(); err != nil {
		localErr = err
	} else {
		full := !w.seeded || epoch != w.epoch
		for _, bd := range w.blocks {
			if err := w.mapper.MapBlock(bd, snaps, full); err != nil {
				localErr = err
				break
			}
		}
	}
	if err := agree(w.comm, localErr); err != nil {
		return nil, err
	}
	w.seeded, w.epoch = true, epoch

	fallbacks := 0
	for _, bd := range w.blocks {
		fallbacks += w.recon.Restore(bd)
	}
	if fallbacks > 0 {
		diag.ReconstructionFallbacks.Add(float64(fallbacks))
		slog.Warn("reconstructed cells without fluid neighbors", "rank", w.comm.Rank(), "cells", fallbacks)
	}

	for _, bd := range w.blocks {
		lattice.Collide(bd.pdf, bd.cur, w.omega, w.compressible)
	}

	// Second exchange: the wall sweep interpolates from post-collision
	// ghost populations and the following pull stream reads them.
	if err := w.exch.ExchangePdfs(); err != nil {
		return nil, err
	}

	w.acc.Reset()
	degraded := 0
	for _, bd := range w.blocks {
		degraded += w.sweeper.Sweep(bd, w.acc)
	}
	if degraded > 0 {
		diag.DegradedLinks.Add(float64(degraded))
		slog.Warn("wall links degraded to simple bounce-back", "rank", w.comm.Rank(), "links", degraded)
	}

	for _, bd := range w.blocks {
		lattice.Stream(bd.pdf, bd.cur)
	}

	return Reduce(w.comm, w.acc, snaps, w.correctors)
}
