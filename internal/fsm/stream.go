package fsm

import (
	"fmt"

	"github.com/cambang/cambang/model"
)

// legalStreamEdges is the closed transition table for StreamMode (§4.F):
// STOPPED->FLOWING (on_stream_started), FLOWING->STARVED (starvation
// watchdog fires), STARVED->FLOWING (next frame arrives), any->STOPPED
// (on_stream_stopped, with stop_reason recorded by the caller), any->ERROR.
var legalStreamEdges = map[model.StreamMode]map[model.StreamMode]bool{
	model.StreamStopped: {model.StreamFlowing: true},
	model.StreamFlowing: {model.StreamStarved: true, model.StreamStopped: true},
	model.StreamStarved: {model.StreamFlowing: true, model.StreamStopped: true},
	model.StreamError:   {model.StreamStopped: true},
}

// LegalStreamModeTransition reports whether from->to is in the table.
// Any mode may move to StreamStopped or StreamError.
func LegalStreamModeTransition(from, to model.StreamMode) bool {
	if to == model.StreamStopped || to == model.StreamError {
		return true
	}
	edges, ok := legalStreamEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ApplyStreamMode mutates s.Mode to to, panicking if the move is
// illegal. When to is StreamStopped, the caller is responsible for
// setting s.StopReason before or after this call.
func ApplyStreamMode(s *model.Stream, to model.StreamMode) {
	if !LegalStreamModeTransition(s.Mode, to) {
		panic(fmt.Sprintf("fsm: illegal stream mode transition for stream %d: %s -> %s", s.StreamID, s.Mode, to))
	}
	s.Mode = to
}
