// Package coupling implements momentum-exchange coupling between the lattice
// fluid and rigid particles: particle-to-cell mapping, PDF reconstruction for
// uncovered cells, the boundary sweep that exchanges momentum across
// interface links, the distributed force reduction and the per-cycle
// orchestration of all phases across rank goroutines.
package coupling

import (
	"errors"
	"fmt"
)

// ErrReductionIncomplete marks a force reduction that did not hear from every
// rank within the network watchdog window. It is fatal for the cycle.
var ErrReductionIncomplete = errors.New("coupling: force reduction incomplete")

// MappingConflictError reports a cell claimed by an irreconcilable pair of
// bodies: a movable particle overlapping a global fixed body, or two
// snapshots carrying the same id. Overlaps between movable particles are not
// conflicts; the lower id claims the cell.
type MappingConflictError struct {
	Block int      // block id of the conflicting cell
	Cell  [3]int   // global cell coordinate
	IDs   [2]int64 // claimants, existing owner first
}

func (e *MappingConflictError) Error() string {
	return fmt.Sprintf("coupling: mapping conflict in block %d at cell (%d,%d,%d) between particles %d and %d",
		e.Block, e.Cell[0], e.Cell[1], e.Cell[2], e.IDs[0], e.IDs[1])
}
