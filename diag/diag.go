// Package diag exposes the coupling layer's diagnostic counters. Counted
// events are anomalies a run survives: the call site warns through the
// default slog logger and increments the matching counter here, where
// scrapes and tests can read it.
package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed coupling cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walberla",
		Subsystem: "coupling",
		Name:      "cycles_total",
		Help:      "Completed coupling cycles.",
	})

	// ReconstructionFallbacks counts uncovered cells restored from the
	// resting equilibrium because no stable fluid neighbor was available.
	ReconstructionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walberla",
		Subsystem: "coupling",
		Name:      "reconstruction_fallbacks_total",
		Help:      "Uncovered cells restored without a usable fluid neighbor.",
	})

	// DegradedLinks counts wall links the interpolated boundary served with
	// simple bounce-back for want of a second upstream fluid node.
	DegradedLinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walberla",
		Subsystem: "coupling",
		Name:      "degraded_links_total",
		Help:      "Interpolated-boundary links served with simple bounce-back.",
	})

	// LubricationClamps counts pair gaps below the resolution floor whose
	// lubrication force was evaluated at the clamped gap instead.
	LubricationClamps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walberla",
		Subsystem: "coupling",
		Name:      "lubrication_clamps_total",
		Help:      "Lubrication gaps clamped at the resolution floor.",
	})

	// MappingConflicts counts fatal particle-overlap conflicts.
	MappingConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walberla",
		Subsystem: "coupling",
		Name:      "mapping_conflicts_total",
		Help:      "Fatal overlap conflicts detected while mapping bodies.",
	})
)
