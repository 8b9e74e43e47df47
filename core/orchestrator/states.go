// Package orchestrator drives jobs through the estimation pipeline.
//
// A job moves UPLOADED -> PLANNING -> PARSING -> ENRICHING -> COSTING ->
// COMPLETED, or from any non-terminal state to FAILED. Transitions are
// validated here and enforced again at the database by a compare-and-set
// on the current state, so two orchestrators racing on the same job
// cannot both advance it.
package orchestrator

import (
	"costplan/core/types"
	"costplan/internal/errors"
)

var transitions = map[types.JobState][]types.JobState{
	types.StateUploaded:  {types.StatePlanning, types.StateFailed},
	types.StatePlanning:  {types.StateParsing, types.StateFailed},
	types.StateParsing:   {types.StateEnriching, types.StateFailed},
	types.StateEnriching: {types.StateCosting, types.StateFailed},
	types.StateCosting:   {types.StateCompleted, types.StateFailed},
}

// ValidTransition reports whether from -> to is a legal state change.
func ValidTransition(from, to types.JobState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a typed error for an illegal state change.
func CheckTransition(from, to types.JobState) error {
	if !ValidTransition(from, to) {
		return errors.Newf(errors.TypeConflict,
			"illegal transition %s -> %s", from, to)
	}
	return nil
}

// Progress maps a state to an approximate completion percentage.
func Progress(state types.JobState) int {
	switch state {
	case types.StateUploaded:
		return 0
	case types.StatePlanning:
		return 20
	case types.StateParsing:
		return 40
	case types.StateEnriching:
		return 60
	case types.StateCosting:
		return 80
	case types.StateCompleted:
		return 100
	case types.StateFailed:
		return 100
	default:
		return 0
	}
}
