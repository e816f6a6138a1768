package cambang

import (
	"github.com/cambang/cambang/internal/fsm"
	"github.com/cambang/cambang/internal/timers"
	"github.com/cambang/cambang/model"
)

// stopStreamInternal marks a stream STOPPED and, if its device has no
// other reason to stay active, returns the device to IDLE and arms its
// warm timer. Preemption is optimistic (§4.G): state is marked here,
// synchronously, before the provider's stop_stream confirmation arrives —
// the later on_stream_stopped event is a no-op against already-stopped
// state.
func (c *Core) stopStreamInternal(streamID uint64, reason model.StopReason) {
	s, ok := c.streams[streamID]
	if !ok || s.Mode == model.StreamStopped {
		return
	}
	c.cam.StopStream(streamID)
	fsm.ApplyStreamMode(s, model.StreamStopped)
	s.StopReason = reason
	c.cancelStarveWatchdog(streamID)

	if d, ok := c.devices[s.DeviceInstanceID]; ok && d.Mode == model.DeviceStreaming {
		fsm.ApplyDeviceMode(d, model.DeviceIdle)
		c.armWarmTimerIfIdle(d.InstanceID, c.clk.NowNS())
	}
	c.markDirty()
}

// destroyStreamInternal stops a stream if still flowing, asks the
// provider to destroy it, and marks it TEARING_DOWN; removal from core's
// maps happens on the confirming on_stream_destroyed event.
func (c *Core) destroyStreamInternal(streamID uint64) {
	s, ok := c.streams[streamID]
	if !ok {
		return
	}
	if s.Mode != model.StreamStopped {
		c.stopStreamInternal(streamID, model.StopUser)
	}
	c.cam.DestroyStream(streamID)
	fsm.ApplyPhase(&s.Phase, model.PhaseTearingDown, "destroy_stream")
	c.markDirty()
}

// armWarmTimerIfIdle schedules warm expiry for instanceID if it is idle,
// has a positive warm_hold_ms, and doesn't already have one armed. Called
// on every transition into "not in use": last stream stopped, capture
// complete.
func (c *Core) armWarmTimerIfIdle(instanceID uint64, now int64) {
	d, ok := c.devices[instanceID]
	if !ok || d.Mode != model.DeviceIdle || d.WarmHoldMS <= 0 {
		return
	}
	if _, armed := c.warmDeadlineNS[instanceID]; armed {
		return
	}
	deadline := now + d.WarmHoldMS*1_000_000
	handle := c.timerHeap.Schedule(deadline, timers.Tag{Kind: timers.WarmExpiry, CorrelationID: instanceID})
	c.warmTimer[instanceID] = handle
	c.warmDeadlineNS[instanceID] = deadline
}

// cancelWarmTimer cancels instanceID's pending warm expiry, if any: any
// engage, new stream, or new capture cancels the warm timer.
func (c *Core) cancelWarmTimer(instanceID uint64) {
	if handle, ok := c.warmTimer[instanceID]; ok {
		c.timerHeap.Cancel(handle)
		delete(c.warmTimer, instanceID)
	}
	delete(c.warmDeadlineNS, instanceID)
}

// specSafe reports whether it is currently safe to apply a deferred spec
// patch: for a specific hardware id, its device must not be engaged; for
// the imaging spec (hardwareID == ""), no device anywhere may be
// capturing (§4.E).
func (c *Core) specSafe(hardwareID string) bool {
	if hardwareID == "" {
		for _, d := range c.devices {
			if d.Mode == model.DeviceCapturing {
				return false
			}
		}
		return true
	}
	instanceID, ok := c.hwToInstance[hardwareID]
	if !ok {
		return true
	}
	d, ok := c.devices[instanceID]
	return !ok || !d.Engaged
}

// retrySpecPatches re-attempts every patch deferred under APPLY_WHEN_SAFE
// against specSafe, forwarding whichever are now safe to the provider the
// same way a direct apply does (store decides, then provider is notified)
// and bumping the affected device's CameraSpecVersion. Call after any
// state transition that can flip specSafe from false to true: a device
// disengaging, or a capture (device or rig member) completing or failing.
func (c *Core) retrySpecPatches() {
	changed := c.specs.RetryPending(c.specSafe)
	if len(changed) == 0 {
		return
	}
	for _, hardwareID := range changed {
		if hardwareID == "" {
			imaging := c.specs.ImagingSpec()
			c.cam.ApplyImagingSpecPatch(imaging.Version, imaging.Patch)
			continue
		}
		spec := c.specs.CameraSpec(hardwareID)
		c.cam.ApplyCameraSpecPatch(hardwareID, spec.Version, spec.Patch)
		if instanceID, ok := c.hwToInstance[hardwareID]; ok {
			if d, ok := c.devices[instanceID]; ok {
				d.CameraSpecVersion = spec.Version
			}
		}
	}
	c.markDirty()
}

// armStarveWatchdog (re)schedules the starvation deadline for streamID,
// cancelling any prior one. Called on stream start and on every frame.
func (c *Core) armStarveWatchdog(streamID uint64, now int64) {
	c.cancelStarveWatchdog(streamID)
	deadline := now + c.cfg.StarveMS*1_000_000
	c.starveTimer[streamID] = c.timerHeap.Schedule(deadline, timers.Tag{Kind: timers.StreamStarveWatchdog, CorrelationID: streamID})
}

func (c *Core) cancelStarveWatchdog(streamID uint64) {
	if handle, ok := c.starveTimer[streamID]; ok {
		c.timerHeap.Cancel(handle)
		delete(c.starveTimer, streamID)
	}
}

// fireTimer dispatches one due timer tag popped from the heap (§4.J step 4).
func (c *Core) fireTimer(tag timers.Tag, now int64) {
	switch tag.Kind {
	case timers.WarmExpiry:
		c.handleWarmExpiry(tag.CorrelationID, now)
	case timers.StreamStarveWatchdog:
		c.handleStarveWatchdog(tag.CorrelationID)
	case timers.RetentionExpiry:
		c.retentionArmed = false
		c.markDirty()
	}
}

// handleWarmExpiry initiates automatic teardown of an idle device whose
// warm-hold window elapsed with no further activity. A device reactivated
// since the timer was scheduled has already had it cancelled, so a device
// found not idle here is a race this check defuses defensively.
func (c *Core) handleWarmExpiry(instanceID uint64, now int64) {
	delete(c.warmTimer, instanceID)
	delete(c.warmDeadlineNS, instanceID)

	d, ok := c.devices[instanceID]
	if !ok || d.Mode != model.DeviceIdle {
		return
	}
	fsm.ApplyPhase(&d.Phase, model.PhaseTearingDown, "warm_expiry")
	if res := c.cam.CloseDevice(instanceID); !res.OK() {
		c.log.Warn("warm expiry close_device failed", "instance_id", instanceID, "result", res.Error())
	}
	c.markDirty()
}

// handleStarveWatchdog transitions a stream still FLOWING with no frame
// since the watchdog was armed into STARVED.
func (c *Core) handleStarveWatchdog(streamID uint64) {
	delete(c.starveTimer, streamID)
	s, ok := c.streams[streamID]
	if !ok || s.Mode != model.StreamFlowing {
		return
	}
	fsm.ApplyStreamMode(s, model.StreamStarved)
	c.markDirty()
}

// runRetentionSweep removes every retention-expired registry record and
// reschedules the retention timer for whatever destroyed record expires
// soonest: scheduled for the nearest upcoming record expiry, and also
// run opportunistically before each publish.
func (c *Core) runRetentionSweep(now int64) {
	if removed := c.reg.Sweep(now, c.cfg.RetentionMS); removed > 0 {
		c.markDirty()
	}
	c.rescheduleRetentionTimer()
}

func (c *Core) rescheduleRetentionTimer() {
	if c.retentionArmed {
		c.timerHeap.Cancel(c.retentionTimer)
		c.retentionArmed = false
	}
	retentionNS := c.cfg.RetentionMS * 1_000_000
	var soonest int64
	found := false
	for _, rec := range c.reg.All() {
		if rec.Phase != model.PhaseDestroyed {
			continue
		}
		deadline := rec.DestroyedNS + retentionNS
		if !found || deadline < soonest {
			soonest, found = deadline, true
		}
	}
	if found {
		c.retentionTimer = c.timerHeap.Schedule(soonest, timers.Tag{Kind: timers.RetentionExpiry})
		c.retentionArmed = true
	}
}
