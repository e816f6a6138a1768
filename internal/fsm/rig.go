package fsm

import (
	"fmt"

	"github.com/cambang/cambang/model"
)

// legalRigEdges is the closed transition table for RigMode (§4.F).
// OFF->ARMED (arm), ARMED->TRIGGERING (capture accepted), TRIGGERING->
// COLLECTING (first member frame observed), COLLECTING->ARMED (all
// members complete), any->ERROR, ARMED->OFF (disarm). Disarm is only
// legal from ARMED at the table level; the additional "no capture in
// flight" precondition is the caller's to enforce before calling
// ApplyRigMode, since it depends on state the fsm package doesn't own.
var legalRigEdges = map[model.RigMode]map[model.RigMode]bool{
	model.RigOff:        {model.RigArmed: true},
	model.RigArmed:      {model.RigTriggering: true, model.RigOff: true},
	model.RigTriggering: {model.RigCollecting: true},
	model.RigCollecting: {model.RigArmed: true},
	model.RigError:      {},
}

// LegalRigModeTransition reports whether from->to is in the table. Any
// mode may move to RigError.
func LegalRigModeTransition(from, to model.RigMode) bool {
	if to == model.RigError {
		return true
	}
	edges, ok := legalRigEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ApplyRigMode mutates rig.Mode to to, panicking if the move is illegal.
func ApplyRigMode(rig *model.Rig, to model.RigMode) {
	if !LegalRigModeTransition(rig.Mode, to) {
		panic(fmt.Sprintf("fsm: illegal rig mode transition for rig %d: %s -> %s", rig.RigID, rig.Mode, to))
	}
	rig.Mode = to
}
