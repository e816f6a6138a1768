package cambang

import (
	"github.com/cambang/cambang/fourcc"
	"github.com/cambang/cambang/internal/arbitration"
	"github.com/cambang/cambang/internal/fsm"
	"github.com/cambang/cambang/internal/queue"
	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
	"github.com/google/uuid"
)

// command is a host-originated intent, dispatched on the core goroutine
// during the "drain commands" step of the loop (§4.J step 3). Every
// concrete command type knows how to apply itself against Core and how
// to reply SHUTTING_DOWN if it's drained after shutdown begins.
type command interface {
	apply(c *Core, now int64)
	deny(err error)
}

// EnumerateEndpoints lists every hardware endpoint the provider reports.
func (c *Core) EnumerateEndpoints() ([]provider.Endpoint, error) {
	reply := make(chan enumerateEndpointsReply, 1)
	if err := c.submit(&enumerateEndpointsCmd{reply: reply}); err != nil {
		return nil, err
	}
	r := <-reply
	return r.endpoints, r.err
}

// EngageDevice opens hardwareID and returns its new instance id.
func (c *Core) EngageDevice(hardwareID string) (uint64, error) {
	reply := make(chan engageDeviceReply, 1)
	if err := c.submit(&engageDeviceCmd{hardwareID: hardwareID, reply: reply}); err != nil {
		return 0, err
	}
	r := <-reply
	return r.instanceID, r.err
}

// DisengageDevice closes a previously engaged device instance.
func (c *Core) DisengageDevice(instanceID uint64) error {
	return c.submitErr(&disengageDeviceCmd{instanceID: instanceID})
}

// SetWarmPolicy updates a device's warm-hold duration.
func (c *Core) SetWarmPolicy(instanceID uint64, warmHoldMS int64) error {
	return c.submitErr(&setWarmPolicyCmd{instanceID: instanceID, warmHoldMS: warmHoldMS})
}

// CreateStream requests a new repeating stream on instanceID.
func (c *Core) CreateStream(instanceID uint64, profile model.StreamProfile, explicitReplace bool) (uint64, error) {
	reply := make(chan createStreamReply, 1)
	cmd := &createStreamCmd{instanceID: instanceID, profile: profile, explicitReplace: explicitReplace, reply: reply}
	if err := c.submit(cmd); err != nil {
		return 0, err
	}
	r := <-reply
	return r.streamID, r.err
}

// DestroyStream tears down a repeating stream.
func (c *Core) DestroyStream(streamID uint64) error {
	return c.submitErr(&destroyStreamCmd{streamID: streamID})
}

// StartStream begins frame delivery on an already-created stream.
func (c *Core) StartStream(streamID uint64) error {
	return c.submitErr(&startStreamCmd{streamID: streamID})
}

// StopStream halts frame delivery on a stream without destroying it.
func (c *Core) StopStream(streamID uint64) error {
	return c.submitErr(&stopStreamCmd{streamID: streamID})
}

// SetStillCaptureProfile configures the profile used for the device's
// next trigger_capture.
func (c *Core) SetStillCaptureProfile(instanceID uint64, profile model.StillProfile) error {
	return c.submitErr(&setStillCaptureProfileCmd{instanceID: instanceID, profile: profile})
}

// TriggerDeviceCapture requests a still capture on instanceID.
func (c *Core) TriggerDeviceCapture(instanceID uint64) (uint64, error) {
	reply := make(chan triggerCaptureReply, 1)
	if err := c.submit(&triggerDeviceCaptureCmd{instanceID: instanceID, reply: reply}); err != nil {
		return 0, err
	}
	r := <-reply
	return r.captureID, r.err
}

// CreateRig registers a new rig of the named hardware members.
func (c *Core) CreateRig(name string, members []string, cfg model.RigConfig) (uint64, error) {
	reply := make(chan createRigReply, 1)
	if err := c.submit(&createRigCmd{name: name, members: members, cfg: cfg, reply: reply}); err != nil {
		return 0, err
	}
	r := <-reply
	return r.rigID, r.err
}

// DestroyRig tears down a rig. Its member devices are not affected.
func (c *Core) DestroyRig(rigID uint64) error {
	return c.submitErr(&destroyRigCmd{rigID: rigID})
}

// ArmRig moves a rig from OFF to ARMED, fixing its membership.
func (c *Core) ArmRig(rigID uint64) error {
	return c.submitErr(&armRigCmd{rigID: rigID})
}

// DisarmRig moves a rig back to OFF, only legal with no capture in flight.
func (c *Core) DisarmRig(rigID uint64) error {
	return c.submitErr(&disarmRigCmd{rigID: rigID})
}

// TriggerRigSyncCapture requests a synchronised capture across every
// member of an armed rig.
func (c *Core) TriggerRigSyncCapture(rigID uint64) (uint64, error) {
	reply := make(chan triggerCaptureReply, 1)
	if err := c.submit(&triggerRigSyncCaptureCmd{rigID: rigID, reply: reply}); err != nil {
		return 0, err
	}
	r := <-reply
	return r.captureID, r.err
}

// UpdateCameraSpec applies a patch to one hardware endpoint's CameraSpec.
func (c *Core) UpdateCameraSpec(hardwareID string, patch []byte, mode model.ApplyMode) error {
	return c.submitErr(&updateCameraSpecCmd{hardwareID: hardwareID, patch: patch, mode: mode})
}

// UpdateImagingSpec applies a patch to the single global ImagingSpec.
func (c *Core) UpdateImagingSpec(patch []byte, mode model.ApplyMode) error {
	return c.submitErr(&updateImagingSpecCmd{patch: patch, mode: mode})
}

// Shutdown requests an orderly teardown: no further commands are
// accepted, every device and stream is torn down, one final snapshot is
// published, and Run returns. It blocks until that teardown completes.
func (c *Core) Shutdown() error {
	reply := make(chan struct{}, 1)
	if err := c.cmdQueue.Enqueue(&shutdownCmd{reply: reply}); err != nil {
		return mapQueueErr(err)
	}
	<-reply
	<-c.shutdownDone
	return nil
}

// submit enqueues cmd and is a helper shared by every command method
// that needs to surface a full queue (ERR_BUSY) or a closed one
// (ERR_SHUTTING_DOWN) before even reaching Core.
func (c *Core) submit(cmd command) error {
	if err := c.cmdQueue.Enqueue(cmd); err != nil {
		return mapQueueErr(err)
	}
	return nil
}

// submitErr is submit for commands whose only reply is an error.
func (c *Core) submitErr(cmd interface {
	command
	replyChan() chan error
}) error {
	reply := cmd.replyChan()
	if err := c.cmdQueue.Enqueue(cmd); err != nil {
		return mapQueueErr(err)
	}
	return <-reply
}

func mapQueueErr(err error) error {
	if err == queue.ErrClosed {
		return model.NewCoreError(model.ErrShuttingDown)
	}
	return model.NewCoreError(model.ErrBusy)
}

// newCorrelationID returns a fresh uuid.UUID. Nothing calls it: commands
// and replies carry no correlation id, and none is logged.
func newCorrelationID() uuid.UUID { return uuid.New() }

type enumerateEndpointsCmd struct{ reply chan enumerateEndpointsReply }
type enumerateEndpointsReply struct {
	endpoints []provider.Endpoint
	err       error
}

func (cmd *enumerateEndpointsCmd) apply(c *Core, now int64) {
	endpoints, res := c.cam.EnumerateEndpoints()
	if !res.OK() {
		cmd.reply <- enumerateEndpointsReply{err: res}
		return
	}
	cmd.reply <- enumerateEndpointsReply{endpoints: endpoints}
}
func (cmd *enumerateEndpointsCmd) deny(err error) { cmd.reply <- enumerateEndpointsReply{err: err} }

type engageDeviceCmd struct {
	hardwareID string
	reply      chan engageDeviceReply
}
type engageDeviceReply struct {
	instanceID uint64
	err        error
}

func (cmd *engageDeviceCmd) apply(c *Core, now int64) {
	if existing, ok := c.hwToInstance[cmd.hardwareID]; ok {
		if d := c.devices[existing]; d != nil && d.Phase != model.PhaseDestroyed {
			d.Engaged = true
			c.cancelWarmTimer(existing)
			c.markDirty()
			cmd.reply <- engageDeviceReply{instanceID: existing}
			return
		}
		delete(c.hwToInstance, cmd.hardwareID)
	}
	instanceID := c.idSpaces.DeviceInstance.Next()
	rootID := c.idSpaces.Root.Next()
	res := c.cam.OpenDevice(cmd.hardwareID, instanceID, rootID)
	if !res.OK() {
		cmd.reply <- engageDeviceReply{err: res}
		return
	}
	c.devices[instanceID] = &model.Device{
		HardwareID: cmd.hardwareID,
		InstanceID: instanceID,
		Phase:      model.PhaseCreated,
		Mode:       model.DeviceIdle,
		Engaged:    true,
		WarmHoldMS: c.cfg.DefaultWarmHoldMS,
	}
	c.hwToInstance[cmd.hardwareID] = instanceID
	c.deviceRoot[instanceID] = rootID
	c.markDirty()
	cmd.reply <- engageDeviceReply{instanceID: instanceID}
}
func (cmd *engageDeviceCmd) deny(err error) { cmd.reply <- engageDeviceReply{err: err} }

type disengageDeviceCmd struct {
	instanceID uint64
	reply      chan error
}

func (cmd *disengageDeviceCmd) replyChan() chan error { return cmd.reply }
func (cmd *disengageDeviceCmd) apply(c *Core, now int64) {
	d, ok := c.devices[cmd.instanceID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	if d.Mode == model.DeviceCapturing {
		cmd.reply <- model.NewCoreError(model.ErrBusy)
		return
	}
	c.cancelWarmTimer(d.InstanceID)
	if sid, ok := c.streamByDevice[d.InstanceID]; ok {
		c.stopStreamInternal(sid, model.StopUser)
	}
	d.Engaged = false
	res := c.cam.CloseDevice(d.InstanceID)
	if !res.OK() {
		cmd.reply <- res
		return
	}
	fsm.ApplyPhase(&d.Phase, model.PhaseTearingDown, "disengage_device")
	c.markDirty()
	c.retrySpecPatches()
	cmd.reply <- nil
}
func (cmd *disengageDeviceCmd) deny(err error) { cmd.reply <- err }

type setWarmPolicyCmd struct {
	instanceID uint64
	warmHoldMS int64
	reply      chan error
}

func (cmd *setWarmPolicyCmd) replyChan() chan error { return cmd.reply }
func (cmd *setWarmPolicyCmd) apply(c *Core, now int64) {
	d, ok := c.devices[cmd.instanceID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	d.WarmHoldMS = cmd.warmHoldMS
	c.markDirty()
	cmd.reply <- nil
}
func (cmd *setWarmPolicyCmd) deny(err error) { cmd.reply <- err }

type createStreamCmd struct {
	instanceID      uint64
	profile         model.StreamProfile
	explicitReplace bool
	reply           chan createStreamReply
}
type createStreamReply struct {
	streamID uint64
	err      error
}

func (cmd *createStreamCmd) apply(c *Core, now int64) {
	d, ok := c.devices[cmd.instanceID]
	if !ok {
		cmd.reply <- createStreamReply{err: model.NewCoreError(model.ErrInvalidArgument)}
		return
	}
	var rig *model.Rig
	if d.RigID != 0 {
		rig = c.rigs[d.RigID]
	}
	var existing *model.Stream
	if sid, ok := c.streamByDevice[d.InstanceID]; ok {
		existing = c.streams[sid]
	}
	decision, err := arbitration.DecideCreateStream(rig, existing, cmd.explicitReplace, cmd.profile)
	if err != nil {
		cmd.reply <- createStreamReply{err: err}
		return
	}
	if existing != nil && cmd.explicitReplace {
		c.destroyStreamInternal(existing.StreamID)
	}

	streamID := c.idSpaces.Stream.Next()
	res := c.cam.CreateStream(provider.StreamRequest{
		StreamID:         streamID,
		DeviceInstanceID: d.InstanceID,
		Intent:           decision.Profile.Intent,
		Width:            decision.Profile.Width,
		Height:           decision.Profile.Height,
		FormatFourCC:     decision.Profile.FormatFourCC,
		TargetFPSMin:     decision.Profile.TargetFPSMin,
		TargetFPSMax:     decision.Profile.TargetFPSMax,
	})
	if !res.OK() {
		cmd.reply <- createStreamReply{err: res}
		return
	}
	c.streams[streamID] = &model.Stream{
		StreamID:         streamID,
		DeviceInstanceID: d.InstanceID,
		Phase:            model.PhaseCreated,
		Intent:           decision.Profile.Intent,
		Mode:             model.StreamStopped,
		Width:            decision.Profile.Width,
		Height:           decision.Profile.Height,
		FormatFourCC:     decision.Profile.FormatFourCC,
		TargetFPSMin:     decision.Profile.TargetFPSMin,
		TargetFPSMax:     decision.Profile.TargetFPSMax,
	}
	c.streamByDevice[d.InstanceID] = streamID
	c.cancelWarmTimer(d.InstanceID)
	c.markDirty()
	cmd.reply <- createStreamReply{streamID: streamID}
}
func (cmd *createStreamCmd) deny(err error) { cmd.reply <- createStreamReply{err: err} }

type destroyStreamCmd struct {
	streamID uint64
	reply    chan error
}

func (cmd *destroyStreamCmd) replyChan() chan error { return cmd.reply }
func (cmd *destroyStreamCmd) apply(c *Core, now int64) {
	if _, ok := c.streams[cmd.streamID]; !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	c.destroyStreamInternal(cmd.streamID)
	cmd.reply <- nil
}
func (cmd *destroyStreamCmd) deny(err error) { cmd.reply <- err }

type startStreamCmd struct {
	streamID uint64
	reply    chan error
}

func (cmd *startStreamCmd) replyChan() chan error { return cmd.reply }
func (cmd *startStreamCmd) apply(c *Core, now int64) {
	s, ok := c.streams[cmd.streamID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	d := c.devices[s.DeviceInstanceID]
	var rig *model.Rig
	anyMemberCapturing := false
	if d != nil && d.RigID != 0 {
		rig = c.rigs[d.RigID]
		for _, iid := range c.rigMemberByHW[d.RigID] {
			if md := c.devices[iid]; md != nil && md.Mode == model.DeviceCapturing {
				anyMemberCapturing = true
			}
		}
	}
	rigArmed := rig != nil && rig.Mode != model.RigOff
	deviceCapturing := d != nil && d.Mode == model.DeviceCapturing
	if err := arbitration.DecideStartStream(deviceCapturing, rigArmed, anyMemberCapturing); err != nil {
		cmd.reply <- err
		return
	}
	res := c.cam.StartStream(s.StreamID)
	if !res.OK() {
		cmd.reply <- res
		return
	}
	c.cancelWarmTimer(s.DeviceInstanceID)
	c.markDirty()
	cmd.reply <- nil
}
func (cmd *startStreamCmd) deny(err error) { cmd.reply <- err }

type stopStreamCmd struct {
	streamID uint64
	reply    chan error
}

func (cmd *stopStreamCmd) replyChan() chan error { return cmd.reply }
func (cmd *stopStreamCmd) apply(c *Core, now int64) {
	if _, ok := c.streams[cmd.streamID]; !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	c.stopStreamInternal(cmd.streamID, model.StopUser)
	cmd.reply <- nil
}
func (cmd *stopStreamCmd) deny(err error) { cmd.reply <- err }

type setStillCaptureProfileCmd struct {
	instanceID uint64
	profile    model.StillProfile
	reply      chan error
}

func (cmd *setStillCaptureProfileCmd) replyChan() chan error { return cmd.reply }
func (cmd *setStillCaptureProfileCmd) apply(c *Core, now int64) {
	d, ok := c.devices[cmd.instanceID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	if _, err := arbitration.ValidateStillProfile(cmd.profile); err != nil {
		cmd.reply <- err
		return
	}
	d.CaptureProfileVersion++
	c.stillProfile[d.InstanceID] = cmd.profile
	c.markDirty()
	cmd.reply <- nil
}
func (cmd *setStillCaptureProfileCmd) deny(err error) { cmd.reply <- err }

type triggerDeviceCaptureCmd struct {
	instanceID uint64
	reply      chan triggerCaptureReply
}
type triggerCaptureReply struct {
	captureID uint64
	err       error
}

func (cmd *triggerDeviceCaptureCmd) apply(c *Core, now int64) {
	d, ok := c.devices[cmd.instanceID]
	if !ok {
		cmd.reply <- triggerCaptureReply{err: model.NewCoreError(model.ErrInvalidArgument)}
		return
	}
	var rig *model.Rig
	if d.RigID != 0 {
		rig = c.rigs[d.RigID]
	}
	var existing *model.Stream
	if sid, ok := c.streamByDevice[d.InstanceID]; ok {
		existing = c.streams[sid]
	}
	decision, err := arbitration.DecideTriggerDeviceCapture(rig, existing)
	if err != nil {
		cmd.reply <- triggerCaptureReply{err: err}
		return
	}
	if decision.PreemptStream != nil {
		c.stopStreamInternal(decision.PreemptStream.StreamID, model.StopPreempted)
	}

	profile, hasProfile := c.stillProfile[d.InstanceID]
	if !hasProfile {
		profile = model.StillProfile{Width: 1920, Height: 1080, FormatFourCC: uint32(fourcc.JPEG)}
	}
	c.cancelWarmTimer(d.InstanceID)
	captureID := c.idSpaces.Capture.Next()
	priorMode := d.Mode
	fsm.ApplyDeviceMode(d, model.DeviceCapturing)
	c.preCaptureMode[d.InstanceID] = priorMode
	c.deviceCaptureOwner[captureID] = d.InstanceID

	res := c.cam.TriggerCapture(provider.CaptureRequest{
		CaptureID:        captureID,
		DeviceInstanceID: d.InstanceID,
		Width:            profile.Width,
		Height:           profile.Height,
		FormatFourCC:     profile.FormatFourCC,
		ProfileVersion:   d.CaptureProfileVersion,
	})
	if !res.OK() {
		fsm.ApplyDeviceCaptureExit(d, priorMode)
		delete(c.preCaptureMode, d.InstanceID)
		delete(c.deviceCaptureOwner, captureID)
		cmd.reply <- triggerCaptureReply{err: res}
		return
	}
	c.markDirty()
	cmd.reply <- triggerCaptureReply{captureID: captureID}
}
func (cmd *triggerDeviceCaptureCmd) deny(err error) { cmd.reply <- triggerCaptureReply{err: err} }

type createRigCmd struct {
	name    string
	members []string
	cfg     model.RigConfig
	reply   chan createRigReply
}
type createRigReply struct {
	rigID uint64
	err   error
}

func (cmd *createRigCmd) apply(c *Core, now int64) {
	rigID := c.idSpaces.Rig.Next()
	c.rigs[rigID] = &model.Rig{
		RigID:             rigID,
		Name:              cmd.name,
		Phase:             model.PhaseLive,
		Mode:              model.RigOff,
		MemberHardwareIDs: append([]string(nil), cmd.members...),
	}
	c.rigMemberByHW[rigID] = make(map[string]uint64)
	c.markDirty()
	cmd.reply <- createRigReply{rigID: rigID}
}
func (cmd *createRigCmd) deny(err error) { cmd.reply <- createRigReply{err: err} }

type destroyRigCmd struct {
	rigID uint64
	reply chan error
}

func (cmd *destroyRigCmd) replyChan() chan error { return cmd.reply }
func (cmd *destroyRigCmd) apply(c *Core, now int64) {
	r, ok := c.rigs[cmd.rigID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	for _, iid := range c.rigMemberByHW[r.RigID] {
		if d := c.devices[iid]; d != nil {
			d.RigID = 0
		}
	}
	fsm.ApplyPhase(&r.Phase, model.PhaseDestroyed, "destroy_rig")
	c.markDirty()
	cmd.reply <- nil
}
func (cmd *destroyRigCmd) deny(err error) { cmd.reply <- err }

type armRigCmd struct {
	rigID uint64
	reply chan error
}

func (cmd *armRigCmd) replyChan() chan error { return cmd.reply }
func (cmd *armRigCmd) apply(c *Core, now int64) {
	r, ok := c.rigs[cmd.rigID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	if !fsm.LegalRigModeTransition(r.Mode, model.RigArmed) {
		cmd.reply <- model.NewCoreError(model.ErrBadState)
		return
	}
	members := c.rigMemberByHW[r.RigID]
	for _, hwID := range r.MemberHardwareIDs {
		iid, ok := c.hwToInstance[hwID]
		if !ok {
			cmd.reply <- model.NewCoreError(model.ErrBadState)
			return
		}
		members[hwID] = iid
		c.devices[iid].RigID = r.RigID
	}
	fsm.ApplyRigMode(r, model.RigArmed)
	c.markDirty()
	cmd.reply <- nil
}
func (cmd *armRigCmd) deny(err error) { cmd.reply <- err }

type disarmRigCmd struct {
	rigID uint64
	reply chan error
}

func (cmd *disarmRigCmd) replyChan() chan error { return cmd.reply }
func (cmd *disarmRigCmd) apply(c *Core, now int64) {
	r, ok := c.rigs[cmd.rigID]
	if !ok {
		cmd.reply <- model.NewCoreError(model.ErrInvalidArgument)
		return
	}
	if r.ActiveCaptureID != 0 {
		cmd.reply <- model.NewCoreError(model.ErrBusy)
		return
	}
	if !fsm.LegalRigModeTransition(r.Mode, model.RigOff) {
		cmd.reply <- model.NewCoreError(model.ErrBadState)
		return
	}
	for _, iid := range c.rigMemberByHW[r.RigID] {
		if d := c.devices[iid]; d != nil {
			d.RigID = 0
		}
	}
	c.rigMemberByHW[r.RigID] = make(map[string]uint64)
	fsm.ApplyRigMode(r, model.RigOff)
	c.markDirty()
	cmd.reply <- nil
}
func (cmd *disarmRigCmd) deny(err error) { cmd.reply <- err }

type triggerRigSyncCaptureCmd struct {
	rigID uint64
	reply chan triggerCaptureReply
}

func (cmd *triggerRigSyncCaptureCmd) apply(c *Core, now int64) {
	r, ok := c.rigs[cmd.rigID]
	if !ok {
		cmd.reply <- triggerCaptureReply{err: model.NewCoreError(model.ErrInvalidArgument)}
		return
	}
	memberIDs := c.rigMemberByHW[r.RigID]
	memberDevices := make([]model.Device, 0, len(memberIDs))
	for _, iid := range memberIDs {
		memberDevices = append(memberDevices, *c.devices[iid])
	}
	var memberStreams []model.Stream
	for _, iid := range memberIDs {
		if sid, ok := c.streamByDevice[iid]; ok {
			memberStreams = append(memberStreams, *c.streams[sid])
		}
	}
	decision, err := arbitration.DecideTriggerRigSyncCapture(*r, memberDevices, memberStreams)
	if err != nil {
		cmd.reply <- triggerCaptureReply{err: err}
		return
	}
	for _, s := range decision.PreemptStreams {
		c.stopStreamInternal(s.StreamID, model.StopPreempted)
	}

	captureID := c.idSpaces.Capture.Next()
	triggered := make([]uint64, 0, len(memberIDs))
	for _, iid := range memberIDs {
		d := c.devices[iid]
		c.cancelWarmTimer(iid)
		priorMode := d.Mode
		fsm.ApplyDeviceMode(d, model.DeviceCapturing)
		c.preCaptureMode[iid] = priorMode

		res := c.cam.TriggerCapture(provider.CaptureRequest{
			CaptureID:        captureID,
			DeviceInstanceID: iid,
			RigID:            r.RigID,
			ProfileVersion:   r.CaptureProfileVersion,
		})
		if !res.OK() {
			fsm.ApplyDeviceCaptureExit(d, priorMode)
			delete(c.preCaptureMode, iid)
			continue
		}
		triggered = append(triggered, iid)
	}
	if len(triggered) == 0 {
		r.ErrorCode = model.ErrProviderFailed
		fsm.ApplyRigMode(r, model.RigError)
		c.markDirty()
		cmd.reply <- triggerCaptureReply{err: model.NewCoreError(model.ErrProviderFailed)}
		return
	}
	c.rigCaptureOwner[captureID] = r.RigID
	c.rigCaptureMembers[captureID] = triggered
	c.rigCaptureExpected[captureID] = len(triggered)
	c.rigCaptureStartNS[captureID] = now
	r.ActiveCaptureID = captureID
	r.Counters.Triggered++
	fsm.ApplyRigMode(r, model.RigTriggering)
	c.markDirty()
	cmd.reply <- triggerCaptureReply{captureID: captureID}
}
func (cmd *triggerRigSyncCaptureCmd) deny(err error) { cmd.reply <- triggerCaptureReply{err: err} }

type updateCameraSpecCmd struct {
	hardwareID string
	patch      []byte
	mode       model.ApplyMode
	reply      chan error
}

func (cmd *updateCameraSpecCmd) replyChan() chan error { return cmd.reply }
func (cmd *updateCameraSpecCmd) apply(c *Core, now int64) {
	d, hasInstance := c.hwToInstance[cmd.hardwareID]
	engaged := hasInstance && c.devices[d] != nil && c.devices[d].Engaged
	safe := func(string) bool { return !engaged }
	newVersion := c.specs.CameraSpec(cmd.hardwareID).Version + 1
	applied, err := c.specs.ApplyCameraSpecPatch(cmd.hardwareID, newVersion, provider.SpecPatch(cmd.patch), cmd.mode, safe)
	if err != nil {
		cmd.reply <- err
		return
	}
	if applied {
		res := c.cam.ApplyCameraSpecPatch(cmd.hardwareID, newVersion, provider.SpecPatch(cmd.patch))
		if !res.OK() {
			cmd.reply <- res
			return
		}
		if dev, ok := c.devices[d]; ok {
			dev.CameraSpecVersion = newVersion
		}
		c.markDirty()
	}
	cmd.reply <- nil
}
func (cmd *updateCameraSpecCmd) deny(err error) { cmd.reply <- err }

type updateImagingSpecCmd struct {
	patch []byte
	mode  model.ApplyMode
	reply chan error
}

func (cmd *updateImagingSpecCmd) replyChan() chan error { return cmd.reply }
func (cmd *updateImagingSpecCmd) apply(c *Core, now int64) {
	anyCapturing := false
	for _, d := range c.devices {
		if d.Mode == model.DeviceCapturing {
			anyCapturing = true
		}
	}
	safe := func(string) bool { return !anyCapturing }
	newVersion := c.specs.ImagingSpec().Version + 1
	applied, err := c.specs.ApplyImagingSpecPatch(newVersion, provider.SpecPatch(cmd.patch), cmd.mode, safe)
	if err != nil {
		cmd.reply <- err
		return
	}
	if applied {
		res := c.cam.ApplyImagingSpecPatch(newVersion, provider.SpecPatch(cmd.patch))
		if !res.OK() {
			cmd.reply <- res
			return
		}
		c.markDirty()
	}
	cmd.reply <- nil
}
func (cmd *updateImagingSpecCmd) deny(err error) { cmd.reply <- err }

type shutdownCmd struct{ reply chan struct{} }

func (cmd *shutdownCmd) apply(c *Core, now int64) {
	c.beginShutdown()
	close(cmd.reply)
}
func (cmd *shutdownCmd) deny(err error) { close(cmd.reply) }

func (c *Core) beginShutdown() {
	if c.shuttingDown {
		return
	}
	c.shuttingDown = true
	c.cmdQueue.Close()
	for id := range c.warmTimer {
		c.cancelWarmTimer(id)
	}
	if c.retentionArmed {
		c.timerHeap.Cancel(c.retentionTimer)
		c.retentionArmed = false
	}
	for _, s := range c.streams {
		if s.Mode != model.StreamStopped {
			c.stopStreamInternal(s.StreamID, model.StopUser)
		}
	}
	for _, d := range c.devices {
		if d.Phase != model.PhaseDestroyed && d.Phase != model.PhaseTearingDown {
			res := c.cam.CloseDevice(d.InstanceID)
			if res.OK() {
				fsm.ApplyPhase(&d.Phase, model.PhaseTearingDown, "shutdown")
			}
		}
	}
	c.cam.Shutdown()
	c.markDirty()
}
