package cambang

import (
	"github.com/cambang/cambang/internal/fsm"
	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

// event is a provider-originated fact, dispatched during the "drain
// events" step of the loop — always before commands in the same
// iteration (§4.J step 2, §5 "events before commands").
type event interface {
	apply(c *Core, now int64)
}

type deviceOpenedEvent struct{ instanceID uint64 }

func (e deviceOpenedEvent) apply(c *Core, now int64) {
	d, ok := c.devices[e.instanceID]
	if !ok {
		return
	}
	fsm.ApplyPhase(&d.Phase, model.PhaseLive, "on_device_opened")
	c.markDirty()
}

type deviceClosedEvent struct{ instanceID uint64 }

func (e deviceClosedEvent) apply(c *Core, now int64) {
	d, ok := c.devices[e.instanceID]
	if !ok {
		return
	}
	fsm.ApplyPhase(&d.Phase, model.PhaseDestroyed, "on_device_closed")
	if d.RigID != 0 {
		delete(c.rigMemberByHW[d.RigID], d.HardwareID)
	}
	delete(c.hwToInstance, d.HardwareID)
	delete(c.deviceRoot, e.instanceID)
	delete(c.stillProfile, e.instanceID)
	delete(c.devices, e.instanceID)
	c.markDirty()
}

type streamCreatedEvent struct{ streamID uint64 }

func (e streamCreatedEvent) apply(c *Core, now int64) {
	s, ok := c.streams[e.streamID]
	if !ok {
		return
	}
	fsm.ApplyPhase(&s.Phase, model.PhaseLive, "on_stream_created")
	c.markDirty()
}

type streamDestroyedEvent struct{ streamID uint64 }

func (e streamDestroyedEvent) apply(c *Core, now int64) {
	s, ok := c.streams[e.streamID]
	if !ok {
		return
	}
	fsm.ApplyPhase(&s.Phase, model.PhaseDestroyed, "on_stream_destroyed")
	c.cancelStarveWatchdog(e.streamID)
	delete(c.streams, e.streamID)
	if c.streamByDevice[s.DeviceInstanceID] == e.streamID {
		delete(c.streamByDevice, s.DeviceInstanceID)
	}
	c.markDirty()
}

type streamStartedEvent struct{ streamID uint64 }

func (e streamStartedEvent) apply(c *Core, now int64) {
	s, ok := c.streams[e.streamID]
	if !ok {
		return
	}
	fsm.ApplyStreamMode(s, model.StreamFlowing)
	if d, ok := c.devices[s.DeviceInstanceID]; ok && d.Mode == model.DeviceIdle {
		fsm.ApplyDeviceMode(d, model.DeviceStreaming)
	}
	c.armStarveWatchdog(e.streamID, now)
	c.markDirty()
}

type streamStoppedEvent struct {
	streamID uint64
	result   provider.Result
}

func (e streamStoppedEvent) apply(c *Core, now int64) {
	s, ok := c.streams[e.streamID]
	if !ok {
		return
	}
	if !e.result.OK() {
		fsm.ApplyStreamMode(s, model.StreamError)
		c.cancelStarveWatchdog(e.streamID)
		if d, ok := c.devices[s.DeviceInstanceID]; ok && d.Mode == model.DeviceStreaming {
			fsm.ApplyDeviceMode(d, model.DeviceIdle)
			c.armWarmTimerIfIdle(d.InstanceID, now)
		}
		c.markDirty()
		return
	}
	// Core already marked STOPPED synchronously at preemption/stop-command
	// time (§4.G); this confirms the provider caught up. A stream
	// already STOPPED by the time this arrives is the common case, not a
	// race to guard against.
	c.stopStreamInternal(e.streamID, s.StopReason)
}

type captureStartedEvent struct{ captureID uint64 }

func (e captureStartedEvent) apply(c *Core, now int64) {
	c.markDirty()
}

type captureCompletedEvent struct{ captureID uint64 }

func (e captureCompletedEvent) apply(c *Core, now int64) {
	if instanceID, ok := c.deviceCaptureOwner[e.captureID]; ok {
		c.completeDeviceCapture(instanceID, e.captureID, now)
		return
	}
	if rigID, ok := c.rigCaptureOwner[e.captureID]; ok {
		c.completeRigCaptureMember(rigID, e.captureID, now)
	}
}

type captureFailedEvent struct {
	captureID uint64
	result    provider.Result
}

func (e captureFailedEvent) apply(c *Core, now int64) {
	if instanceID, ok := c.deviceCaptureOwner[e.captureID]; ok {
		d := c.devices[instanceID]
		if d != nil {
			d.ErrorsCount++
			d.LastErrorCode = providerErrorToModel(e.result.Code)
			prior := c.preCaptureMode[instanceID]
			fsm.ApplyDeviceCaptureExit(d, prior)
			c.armWarmTimerIfIdle(instanceID, now)
		}
		delete(c.deviceCaptureOwner, e.captureID)
		delete(c.preCaptureMode, instanceID)
		c.markDirty()
		c.retrySpecPatches()
		return
	}
	if rigID, ok := c.rigCaptureOwner[e.captureID]; ok {
		r := c.rigs[rigID]
		if r != nil {
			r.Counters.Failed++
			r.ErrorCode = providerErrorToModel(e.result.Code)
			fsm.ApplyRigMode(r, model.RigError)
			r.ActiveCaptureID = 0
		}
		for _, iid := range c.rigCaptureMembers[e.captureID] {
			if d := c.devices[iid]; d != nil {
				fsm.ApplyDeviceCaptureExit(d, c.preCaptureMode[iid])
				c.armWarmTimerIfIdle(iid, now)
			}
			delete(c.preCaptureMode, iid)
		}
		c.clearRigCapture(e.captureID)
		c.markDirty()
		c.retrySpecPatches()
	}
}

type frameEvent struct{ frame provider.FrameView }

func (e frameEvent) apply(c *Core, now int64) {
	defer e.frame.ReleaseNow()

	if e.frame.StreamID != 0 {
		s, ok := c.streams[e.frame.StreamID]
		if !ok {
			return
		}
		s.FramesReceived++
		s.FramesDelivered++
		s.LastFrameTSNS = e.frame.TimestampNS
		if s.Mode == model.StreamStarved {
			fsm.ApplyStreamMode(s, model.StreamFlowing)
		}
		c.armStarveWatchdog(e.frame.StreamID, now)
		c.markDirty()
		return
	}

	if e.frame.CaptureID != 0 {
		if rigID, ok := c.rigCaptureOwner[e.frame.CaptureID]; ok {
			if r := c.rigs[rigID]; r != nil && r.Mode == model.RigTriggering {
				fsm.ApplyRigMode(r, model.RigCollecting)
				c.markDirty()
			}
		}
	}
}

type deviceErrorEvent struct {
	instanceID uint64
	result     provider.Result
}

func (e deviceErrorEvent) apply(c *Core, now int64) {
	d, ok := c.devices[e.instanceID]
	if !ok {
		return
	}
	d.ErrorsCount++
	d.LastErrorCode = providerErrorToModel(e.result.Code)
	fsm.ApplyDeviceMode(d, model.DeviceError)
	c.markDirty()
}

type streamErrorEvent struct {
	streamID uint64
	result   provider.Result
}

func (e streamErrorEvent) apply(c *Core, now int64) {
	s, ok := c.streams[e.streamID]
	if !ok {
		return
	}
	fsm.ApplyStreamMode(s, model.StreamError)
	c.cancelStarveWatchdog(e.streamID)
	c.markDirty()
}

type nativeObjectCreatedEvent struct{ info provider.NativeObjectCreateInfo }

func (e nativeObjectCreatedEvent) apply(c *Core, now int64) {
	info := e.info
	info.CreatedNS = now
	c.reg.OnCreated(info, model.PhaseLive)
	c.markDirty()
}

type nativeObjectDestroyedEvent struct{ info provider.NativeObjectDestroyInfo }

func (e nativeObjectDestroyedEvent) apply(c *Core, now int64) {
	ts := e.info.DestroyedNS
	if ts == 0 {
		ts = now
	}
	c.reg.OnDestroyed(e.info.NativeID, ts)
	c.markDirty()
}

// completeDeviceCapture restores a single-device capture's owning device
// to its pre-capture mode and re-arms the warm timer if it lands idle.
func (c *Core) completeDeviceCapture(instanceID, captureID uint64, now int64) {
	d := c.devices[instanceID]
	if d != nil {
		prior := c.preCaptureMode[instanceID]
		fsm.ApplyDeviceCaptureExit(d, prior)
		c.armWarmTimerIfIdle(instanceID, now)
	}
	delete(c.deviceCaptureOwner, captureID)
	delete(c.preCaptureMode, instanceID)
	c.markDirty()
	c.retrySpecPatches()
}

// completeRigCaptureMember records one member's completion of a shared
// rig sync capture. The provider contract's on_capture_completed carries
// only capture_id, not device identity, so members are tracked by count
// against the membership list recorded at trigger time (§4.G rule 4,
// §8 S4): the rig only returns to ARMED once every member has reported.
func (c *Core) completeRigCaptureMember(rigID, captureID uint64, now int64) {
	c.rigCaptureSeen[captureID]++
	c.rigCaptureTS[captureID] = append(c.rigCaptureTS[captureID], now)

	if c.rigCaptureSeen[captureID] < c.rigCaptureExpected[captureID] {
		c.markDirty()
		return
	}

	r := c.rigs[rigID]
	members := c.rigCaptureMembers[captureID]
	for _, iid := range members {
		if d := c.devices[iid]; d != nil {
			fsm.ApplyDeviceCaptureExit(d, c.preCaptureMode[iid])
			c.armWarmTimerIfIdle(iid, now)
		}
		delete(c.preCaptureMode, iid)
	}
	if r != nil {
		r.Counters.Completed++
		r.LastCapture = model.LastCapture{
			CaptureID:  captureID,
			LatencyNS:  now - c.rigCaptureStartNS[captureID],
			SyncSkewNS: syncSkew(c.rigCaptureTS[captureID]),
		}
		r.ActiveCaptureID = 0
		fsm.ApplyRigMode(r, model.RigArmed)
	}
	c.clearRigCapture(captureID)
	c.markDirty()
	c.retrySpecPatches()
}

func (c *Core) clearRigCapture(captureID uint64) {
	delete(c.rigCaptureOwner, captureID)
	delete(c.rigCaptureMembers, captureID)
	delete(c.rigCaptureExpected, captureID)
	delete(c.rigCaptureSeen, captureID)
	delete(c.rigCaptureTS, captureID)
	delete(c.rigCaptureStartNS, captureID)
}

// syncSkew returns the spread between the earliest and latest completion
// timestamp observed for a rig capture (§8 S4: "last_sync_skew_ns =
// |tsA - tsB|", generalized to N members as max-min).
func syncSkew(ts []int64) int64 {
	if len(ts) == 0 {
		return 0
	}
	min, max := ts[0], ts[0]
	for _, t := range ts[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return max - min
}

func providerErrorToModel(code provider.ErrorCode) model.ErrorCode {
	switch code {
	case provider.OK:
		return model.ErrNone
	case provider.ErrNotSupported:
		return model.ErrNotSupported
	case provider.ErrInvalidArgument:
		return model.ErrInvalidArgument
	case provider.ErrBusy:
		return model.ErrBusy
	case provider.ErrBadState:
		return model.ErrBadState
	case provider.ErrPlatformConstraint:
		return model.ErrPlatformConstraint
	case provider.ErrTransientFailure:
		return model.ErrTransientFailure
	case provider.ErrShuttingDown:
		return model.ErrShuttingDown
	default:
		return model.ErrProviderFailed
	}
}
