package fsm

import (
	"fmt"

	"github.com/cambang/cambang/model"
)

// legalDeviceEdges is the closed transition table for DeviceMode (§4.F):
// IDLE<->STREAMING via stream start/stop, {IDLE,STREAMING}->CAPTURING on
// capture accept, any->ERROR. CAPTURING's exit edge isn't a
// fixed table entry — it returns to whichever mode preceded the capture
// (IDLE or STREAMING), so ApplyDeviceCaptureExit takes that
// mode explicitly from the caller instead of going through this table.
var legalDeviceEdges = map[model.DeviceMode]map[model.DeviceMode]bool{
	model.DeviceIdle:      {model.DeviceStreaming: true, model.DeviceCapturing: true},
	model.DeviceStreaming: {model.DeviceIdle: true, model.DeviceCapturing: true},
	model.DeviceCapturing: {}, // exit handled by ApplyDeviceCaptureExit
	model.DeviceError:     {},
}

// LegalDeviceModeTransition reports whether from->to is in the table.
// Any mode may move to DeviceError.
func LegalDeviceModeTransition(from, to model.DeviceMode) bool {
	if to == model.DeviceError {
		return true
	}
	edges, ok := legalDeviceEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ApplyDeviceMode mutates dev.Mode to to, panicking if the move is
// illegal. Use ApplyDeviceCaptureExit for CAPTURING's exit edge.
func ApplyDeviceMode(dev *model.Device, to model.DeviceMode) {
	if !LegalDeviceModeTransition(dev.Mode, to) {
		panic(fmt.Sprintf("fsm: illegal device mode transition for instance %d: %s -> %s", dev.InstanceID, dev.Mode, to))
	}
	dev.Mode = to
}

// ApplyDeviceCaptureExit returns a device from CAPTURING to the mode it
// held before the capture started (IDLE or STREAMING, per whether a
// stream was flowing). It panics if dev isn't currently CAPTURING or if
// priorMode isn't one of the two legal resting modes.
func ApplyDeviceCaptureExit(dev *model.Device, priorMode model.DeviceMode) {
	if dev.Mode != model.DeviceCapturing {
		panic(fmt.Sprintf("fsm: ApplyDeviceCaptureExit called while device %d is %s, not CAPTURING", dev.InstanceID, dev.Mode))
	}
	if priorMode != model.DeviceIdle && priorMode != model.DeviceStreaming {
		panic(fmt.Sprintf("fsm: illegal capture-exit target for device %d: %s", dev.InstanceID, priorMode))
	}
	dev.Mode = priorMode
}
