package fsm

import (
	"testing"

	"github.com/cambang/cambang/model"
)

func TestPhaseTransitionsForwardOnlySkipAllowed(t *testing.T) {
	if !LegalPhaseTransition(model.PhaseCreated, model.PhaseLive) {
		t.Error("CREATED->LIVE should be legal")
	}
	if !LegalPhaseTransition(model.PhaseCreated, model.PhaseDestroyed) {
		t.Error("forward skip CREATED->DESTROYED should be legal")
	}
	if LegalPhaseTransition(model.PhaseLive, model.PhaseCreated) {
		t.Error("backward move should be illegal")
	}
	if LegalPhaseTransition(model.PhaseLive, model.PhaseLive) {
		t.Error("self-loop should be illegal")
	}
}

func TestApplyPhasePanicsOnIllegalMove(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on illegal phase move")
		}
	}()
	p := model.PhaseLive
	ApplyPhase(&p, model.PhaseCreated, "test")
}

func TestRigModeTable(t *testing.T) {
	cases := []struct {
		from, to model.RigMode
		legal    bool
	}{
		{model.RigOff, model.RigArmed, true},
		{model.RigArmed, model.RigTriggering, true},
		{model.RigTriggering, model.RigCollecting, true},
		{model.RigCollecting, model.RigArmed, true},
		{model.RigArmed, model.RigOff, true},
		{model.RigOff, model.RigTriggering, false},
		{model.RigCollecting, model.RigOff, false},
		{model.RigTriggering, model.RigError, true},
	}
	for _, c := range cases {
		if got := LegalRigModeTransition(c.from, c.to); got != c.legal {
			t.Errorf("LegalRigModeTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.legal)
		}
	}
}

func TestApplyRigModePanicsOnIllegalMove(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on illegal rig mode move")
		}
	}()
	rig := &model.Rig{RigID: 1, Mode: model.RigOff}
	ApplyRigMode(rig, model.RigCollecting)
}

func TestDeviceModeTable(t *testing.T) {
	cases := []struct {
		from, to model.DeviceMode
		legal    bool
	}{
		{model.DeviceIdle, model.DeviceStreaming, true},
		{model.DeviceStreaming, model.DeviceIdle, true},
		{model.DeviceIdle, model.DeviceCapturing, true},
		{model.DeviceStreaming, model.DeviceCapturing, true},
		{model.DeviceCapturing, model.DeviceIdle, false},
		{model.DeviceIdle, model.DeviceError, true},
	}
	for _, c := range cases {
		if got := LegalDeviceModeTransition(c.from, c.to); got != c.legal {
			t.Errorf("LegalDeviceModeTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.legal)
		}
	}
}

func TestApplyDeviceCaptureExitRestoresPriorMode(t *testing.T) {
	dev := &model.Device{InstanceID: 1, Mode: model.DeviceStreaming}
	ApplyDeviceMode(dev, model.DeviceCapturing)
	ApplyDeviceCaptureExit(dev, model.DeviceStreaming)
	if dev.Mode != model.DeviceStreaming {
		t.Fatalf("Mode = %s, want STREAMING", dev.Mode)
	}
}

func TestApplyDeviceCaptureExitPanicsIfNotCapturing(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	dev := &model.Device{InstanceID: 1, Mode: model.DeviceIdle}
	ApplyDeviceCaptureExit(dev, model.DeviceIdle)
}

func TestStreamModeTable(t *testing.T) {
	cases := []struct {
		from, to model.StreamMode
		legal    bool
	}{
		{model.StreamStopped, model.StreamFlowing, true},
		{model.StreamFlowing, model.StreamStarved, true},
		{model.StreamStarved, model.StreamFlowing, true},
		{model.StreamFlowing, model.StreamStopped, true},
		{model.StreamStopped, model.StreamStarved, false},
		{model.StreamStarved, model.StreamError, true},
	}
	for _, c := range cases {
		if got := LegalStreamModeTransition(c.from, c.to); got != c.legal {
			t.Errorf("LegalStreamModeTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.legal)
		}
	}
}

func TestApplyStreamModePanicsOnIllegalMove(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	s := &model.Stream{StreamID: 1, Mode: model.StreamStopped}
	ApplyStreamMode(s, model.StreamStarved)
}
