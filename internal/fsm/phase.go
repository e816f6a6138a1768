// Package fsm implements the closed transition tables for rig, device,
// and stream state (§4.F). Every transition here is either legal per
// the table or a programming error; illegal transitions panic rather than
// silently clamping to some "safe" state, since they are bugs, not
// recoverable runtime conditions.
package fsm

import (
	"fmt"

	"github.com/cambang/cambang/model"
)

// LegalPhaseTransition reports whether from->to is a legal Phase move.
// Phases only move forward (CREATED < LIVE < TEARING_DOWN < DESTROYED);
// forward skips are permitted (invariant 4: "skipping permitted forward
// only"), backward moves and self-loops are not.
func LegalPhaseTransition(from, to model.Phase) bool {
	return to > from
}

// ApplyPhase mutates *phase to to, panicking if the move is illegal.
func ApplyPhase(phase *model.Phase, to model.Phase, context string) {
	if !LegalPhaseTransition(*phase, to) {
		panic(fmt.Sprintf("fsm: illegal phase transition %s: %s -> %s", context, *phase, to))
	}
	*phase = to
}
