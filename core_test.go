package cambang

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cambang/cambang/fourcc"
	"github.com/cambang/cambang/internal/clock"
	"github.com/cambang/cambang/internal/config"
	"github.com/cambang/cambang/internal/provider/synthetic"
	"github.com/cambang/cambang/internal/queue"
	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

// These scenarios drive Core directly through drive(), bypassing Run's
// blocking select entirely, per the contract drive's own doc comment
// describes: construct a command, enqueue it, call drive(), read the
// reply. No goroutines, no races — each drive() call is one deterministic
// iteration of §4.J steps 2-5.

func newTestCore(t *testing.T, cfg config.Config) (*Core, *clock.Fake, *synthetic.Camera) {
	t.Helper()
	clk := clock.NewFake(1_000_000_000)
	cam := synthetic.New(clk, nil)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(cfg, cam, WithClock(clk), WithLogger(log))
	if res := cam.Initialize(&callbackBridge{evt: c.evtQueue, log: c.log}); !res.OK() {
		t.Fatalf("initialize provider: %v", res)
	}
	return c, clk, cam
}

func previewProfile() model.StreamProfile {
	return model.StreamProfile{
		Intent:       model.IntentPreview,
		Width:        1280,
		Height:       720,
		FormatFourCC: uint32(fourcc.NV12),
		TargetFPSMin: 15,
		TargetFPSMax: 30,
	}
}

func viewfinderProfile() model.StreamProfile {
	p := previewProfile()
	p.Intent = model.IntentViewfinder
	return p
}

// mustEngage engages hardwareID and drives the loop until the device
// reports on_device_opened (Phase LIVE), since every scenario below needs
// a live device, not merely an accepted command.
func mustEngage(t *testing.T, c *Core, hw string) uint64 {
	t.Helper()
	reply := make(chan engageDeviceReply, 1)
	if err := c.cmdQueue.Enqueue(&engageDeviceCmd{hardwareID: hw, reply: reply}); err != nil {
		t.Fatalf("enqueue engage %s: %v", hw, err)
	}
	c.drive()
	r := <-reply
	if r.err != nil {
		t.Fatalf("engage %s: %v", hw, r.err)
	}
	c.drive() // flush on_device_opened
	if d := c.devices[r.instanceID]; d == nil || d.Phase != model.PhaseLive {
		t.Fatalf("device %d not LIVE after engage", r.instanceID)
	}
	return r.instanceID
}

func mustCreateStream(t *testing.T, c *Core, instanceID uint64, profile model.StreamProfile) uint64 {
	t.Helper()
	reply := make(chan createStreamReply, 1)
	cmd := &createStreamCmd{instanceID: instanceID, profile: profile, reply: reply}
	if err := c.cmdQueue.Enqueue(cmd); err != nil {
		t.Fatalf("enqueue create_stream: %v", err)
	}
	c.drive()
	r := <-reply
	if r.err != nil {
		t.Fatalf("create_stream on %d: %v", instanceID, r.err)
	}
	c.drive() // flush on_stream_created
	return r.streamID
}

func mustStartStream(t *testing.T, c *Core, streamID uint64) {
	t.Helper()
	reply := make(chan error, 1)
	if err := c.cmdQueue.Enqueue(&startStreamCmd{streamID: streamID, reply: reply}); err != nil {
		t.Fatalf("enqueue start_stream: %v", err)
	}
	c.drive()
	if err := <-reply; err != nil {
		t.Fatalf("start_stream %d: %v", streamID, err)
	}
	c.drive() // flush on_stream_started
}

func mustStopStream(t *testing.T, c *Core, streamID uint64) {
	t.Helper()
	reply := make(chan error, 1)
	if err := c.cmdQueue.Enqueue(&stopStreamCmd{streamID: streamID, reply: reply}); err != nil {
		t.Fatalf("enqueue stop_stream: %v", err)
	}
	c.drive()
	if err := <-reply; err != nil {
		t.Fatalf("stop_stream %d: %v", streamID, err)
	}
	c.drive() // flush on_stream_stopped
}

func mustCreateRig(t *testing.T, c *Core, name string, members []string) uint64 {
	t.Helper()
	reply := make(chan createRigReply, 1)
	if err := c.cmdQueue.Enqueue(&createRigCmd{name: name, members: members, reply: reply}); err != nil {
		t.Fatalf("enqueue create_rig: %v", err)
	}
	c.drive()
	r := <-reply
	if r.err != nil {
		t.Fatalf("create_rig %s: %v", name, r.err)
	}
	return r.rigID
}

func mustArmRig(t *testing.T, c *Core, rigID uint64) {
	t.Helper()
	reply := make(chan error, 1)
	if err := c.cmdQueue.Enqueue(&armRigCmd{rigID: rigID, reply: reply}); err != nil {
		t.Fatalf("enqueue arm_rig: %v", err)
	}
	c.drive()
	if err := <-reply; err != nil {
		t.Fatalf("arm_rig %d: %v", rigID, err)
	}
}

// S1: an idle device's last stream stops, the warm timer arms, and
// expires into automatic teardown once no activity cancels it.
func TestS1WarmExpiryTeardown(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultWarmHoldMS = 500
	c, clk, _ := newTestCore(t, cfg)

	instanceID := mustEngage(t, c, "camA")
	streamID := mustCreateStream(t, c, instanceID, previewProfile())
	mustStartStream(t, c, streamID)

	first := c.Snapshot()
	if first == nil {
		t.Fatal("expected a publish after engage/create/start")
	}

	clk.Advance(1_000_000_000)
	mustStopStream(t, c, streamID)

	deadline, armed := c.warmDeadlineNS[instanceID]
	if !armed {
		t.Fatal("expected warm timer armed after last stream stopped")
	}
	wantDeadline := clk.NowNS() + cfg.DefaultWarmHoldMS*1_000_000
	if deadline != wantDeadline {
		t.Fatalf("warm deadline = %d, want %d", deadline, wantDeadline)
	}

	afterStop := c.Snapshot()
	if afterStop.Gen <= first.Gen {
		t.Fatalf("expected Gen to advance after stop_stream, got %d -> %d", first.Gen, afterStop.Gen)
	}
	if len(afterStop.Devices) != 1 {
		t.Fatalf("expected device still present before warm expiry, got %d", len(afterStop.Devices))
	}

	clk.Advance(501_000_000) // past the 500ms warm hold
	c.drive()                // pops WarmExpiry, calls CloseDevice, marks TEARING_DOWN
	c.drive()                // flushes on_device_closed

	if _, stillTracked := c.devices[instanceID]; stillTracked {
		t.Fatal("expected device removed from core state after warm expiry teardown")
	}

	final := c.Snapshot()
	if final.Gen <= afterStop.Gen {
		t.Fatal("expected another Gen bump for the teardown publish")
	}
	if final.TopologyGen <= afterStop.TopologyGen {
		t.Fatal("expected TopologyGen to change once the device disappears")
	}
	if len(final.Devices) != 0 {
		t.Fatalf("expected no devices left after warm expiry, got %d", len(final.Devices))
	}
}

// S2: a still capture preempts a flowing VIEWFINDER stream and does not
// auto-restart it on completion.
func TestS2CaptureFollowsPreemptionRules(t *testing.T) {
	c, _, _ := newTestCore(t, config.Default())

	instanceID := mustEngage(t, c, "camA")
	streamID := mustCreateStream(t, c, instanceID, viewfinderProfile())
	mustStartStream(t, c, streamID)

	if s := c.streams[streamID]; s.Mode != model.StreamFlowing {
		t.Fatalf("expected stream FLOWING before capture, got %s", s.Mode)
	}

	reply := make(chan triggerCaptureReply, 1)
	if err := c.cmdQueue.Enqueue(&triggerDeviceCaptureCmd{instanceID: instanceID, reply: reply}); err != nil {
		t.Fatalf("enqueue trigger_capture: %v", err)
	}
	c.drive() // applies the command: preempt the stream, enter CAPTURING

	if s := c.streams[streamID]; s.Mode != model.StreamStopped || s.StopReason != model.StopPreempted {
		t.Fatalf("expected stream STOPPED(PREEMPTED), got mode=%s reason=%s", s.Mode, s.StopReason)
	}
	if d := c.devices[instanceID]; d.Mode != model.DeviceCapturing {
		t.Fatalf("expected device CAPTURING, got %s", d.Mode)
	}

	r := <-reply
	if r.err != nil {
		t.Fatalf("trigger_capture: %v", r.err)
	}

	c.drive() // fires the synthetic capture_started + frame + capture_completed

	if d := c.devices[instanceID]; d.Mode != model.DeviceIdle {
		t.Fatalf("expected device back to IDLE after capture completes, got %s", d.Mode)
	}
	if s := c.streams[streamID]; s.Mode != model.StreamStopped {
		t.Fatalf("expected preempted stream to stay STOPPED with no auto-restart, got %s", s.Mode)
	}
}

// S3: an armed rig is authoritative over its members' captures — a
// direct device-level trigger_capture on a rig member is denied outright.
func TestS3RigAuthoritativeDeniesDeviceCapture(t *testing.T) {
	c, _, _ := newTestCore(t, config.Default())

	a := mustEngage(t, c, "camA")
	_ = mustEngage(t, c, "camB")
	rigID := mustCreateRig(t, c, "stereo", []string{"camA", "camB"})
	mustArmRig(t, c, rigID)

	before := *c.devices[a]

	reply := make(chan triggerCaptureReply, 1)
	if err := c.cmdQueue.Enqueue(&triggerDeviceCaptureCmd{instanceID: a, reply: reply}); err != nil {
		t.Fatalf("enqueue trigger_capture: %v", err)
	}
	c.drive()
	r := <-reply

	if r.captureID != 0 {
		t.Fatalf("expected no capture id on denial, got %d", r.captureID)
	}
	ce, ok := r.err.(model.CoreError)
	if !ok || ce.Code != model.ErrRigAuthoritative {
		t.Fatalf("expected ERR_RIG_AUTHORITATIVE, got %v", r.err)
	}
	after := *c.devices[a]
	if after.Mode != before.Mode || after.ErrorsCount != before.ErrorsCount {
		t.Fatalf("expected device state untouched by a denied capture, before=%+v after=%+v", before, after)
	}
}

// S4: a synchronised rig capture collects every member's frame and
// completion before the rig returns to ARMED.
func TestS4RigSyncCaptureCompletes(t *testing.T) {
	c, _, _ := newTestCore(t, config.Default())

	mustEngage(t, c, "camA")
	mustEngage(t, c, "camB")
	rigID := mustCreateRig(t, c, "stereo", []string{"camA", "camB"})
	mustArmRig(t, c, rigID)

	reply := make(chan triggerCaptureReply, 1)
	if err := c.cmdQueue.Enqueue(&triggerRigSyncCaptureCmd{rigID: rigID, reply: reply}); err != nil {
		t.Fatalf("enqueue trigger_rig_sync_capture: %v", err)
	}
	c.drive()
	r := <-reply
	if r.err != nil {
		t.Fatalf("trigger_rig_sync_capture: %v", r.err)
	}
	if rig := c.rigs[rigID]; rig.Mode != model.RigTriggering {
		t.Fatalf("expected rig TRIGGERING right after trigger, got %s", rig.Mode)
	}

	c.drive() // fires both members' capture_started + frame + capture_completed

	rig := c.rigs[rigID]
	if rig.Mode != model.RigArmed {
		t.Fatalf("expected rig back to ARMED once every member completed, got %s", rig.Mode)
	}
	if rig.Counters.Triggered != 1 || rig.Counters.Completed != 1 {
		t.Fatalf("expected Triggered=1 Completed=1, got %+v", rig.Counters)
	}
	if rig.LastCapture.CaptureID != r.captureID {
		t.Fatalf("expected LastCapture to record capture %d, got %+v", r.captureID, rig.LastCapture)
	}
}

// S5: a native object's destruction is retained for RETENTION_MS before
// Sweep removes it, and removal bumps TopologyGen.
func TestS5RetentionSweepRemovesExpiredRecord(t *testing.T) {
	cfg := config.Default()
	cfg.RetentionMS = 1_000
	c, clk, cam := newTestCore(t, cfg)

	instanceID := mustEngage(t, c, "camA")
	rootID := c.deviceRoot[instanceID]

	nativeID := cam.EmitNativeObjectCreated(provider.NativeObjectBuffer, rootID, instanceID)
	c.drive()

	snap := c.Snapshot()
	var found bool
	for _, rec := range snap.NativeObjects {
		if rec.NativeID == nativeID {
			found = true
			if rec.Phase != model.PhaseLive {
				t.Fatalf("expected native object LIVE, got %s", rec.Phase)
			}
		}
	}
	if !found {
		t.Fatal("expected native object to appear in the snapshot after creation")
	}
	topologyBefore := snap.TopologyGen

	cam.EmitNativeObjectDestroyed(nativeID)
	c.drive()

	snap = c.Snapshot()
	found = false
	for _, rec := range snap.NativeObjects {
		if rec.NativeID == nativeID {
			found = true
			if rec.Phase != model.PhaseDestroyed {
				t.Fatalf("expected native object DESTROYED, got %s", rec.Phase)
			}
		}
	}
	if !found {
		t.Fatal("expected the destroyed record to still be retained")
	}

	clk.Advance(1_001_000_000) // past retention_ms
	c.drive()                 // pops RetentionExpiry, runs the sweep

	snap = c.Snapshot()
	for _, rec := range snap.NativeObjects {
		if rec.NativeID == nativeID {
			t.Fatalf("expected native object %d gone after retention sweep", nativeID)
		}
	}
	if snap.TopologyGen <= topologyBefore {
		t.Fatal("expected TopologyGen to change once the retained record was swept")
	}
}

// S6: shutdown tears every device and stream down deterministically even
// with a capture still in flight, and stops accepting new commands.
func TestS6ShutdownDeterministic(t *testing.T) {
	c, clk, cam := newTestCore(t, config.Default())

	a := mustEngage(t, c, "camA")
	b := mustEngage(t, c, "camB")
	streamID := mustCreateStream(t, c, a, previewProfile())
	mustStartStream(t, c, streamID)

	cam.SetLatencyNS(5_000_000_000) // capture confirmation arrives well after shutdown is issued
	captureReply := make(chan triggerCaptureReply, 1)
	if err := c.cmdQueue.Enqueue(&triggerDeviceCaptureCmd{instanceID: b, reply: captureReply}); err != nil {
		t.Fatalf("enqueue trigger_capture: %v", err)
	}
	c.drive()
	cr := <-captureReply
	if cr.err != nil {
		t.Fatalf("trigger_capture: %v", cr.err)
	}
	if d := c.devices[b]; d.Mode != model.DeviceCapturing {
		t.Fatalf("expected device %d CAPTURING with an in-flight capture, got %s", b, d.Mode)
	}

	shutdownReply := make(chan struct{}, 1)
	if err := c.cmdQueue.Enqueue(&shutdownCmd{reply: shutdownReply}); err != nil {
		t.Fatalf("enqueue shutdown: %v", err)
	}
	c.drive() // beginShutdown: stops the flowing stream, closes every device
	<-shutdownReply

	if err := c.cmdQueue.Enqueue(&disengageDeviceCmd{instanceID: a, reply: make(chan error, 1)}); err != queue.ErrClosed {
		t.Fatalf("expected queue.ErrClosed after shutdown, got %v", err)
	}

	clk.Advance(5_001_000_000) // let the in-flight capture's callbacks become due
	for i := 0; i < 10 && !c.loopIdle(); i++ {
		c.drive()
	}
	if !c.loopIdle() {
		t.Fatal("expected loopIdle() to report drained after shutdown teardown completes")
	}
	if len(c.devices) != 0 {
		t.Fatalf("expected every device removed after shutdown, got %d", len(c.devices))
	}
	for id, s := range c.streams {
		if s.Mode != model.StreamStopped {
			t.Fatalf("expected stream %d STOPPED after shutdown, got %s", id, s.Mode)
		}
	}
}

// S7: an APPLY_WHEN_SAFE camera spec patch defers while its device is
// engaged, APPLY_NOW is rejected outright in the same state, and the
// deferred patch is retried and applied once the device disengages.
func TestS7CameraSpecPatchDeferredRetriedOnDisengage(t *testing.T) {
	c, _, _ := newTestCore(t, config.Default())

	hw := "camA"
	a := mustEngage(t, c, hw)

	deferredReply := make(chan error, 1)
	cmd := &updateCameraSpecCmd{hardwareID: hw, patch: []byte("v2"), mode: model.ApplyWhenSafe, reply: deferredReply}
	if err := c.cmdQueue.Enqueue(cmd); err != nil {
		t.Fatalf("enqueue update_camera_spec: %v", err)
	}
	c.drive()
	if err := <-deferredReply; err != nil {
		t.Fatalf("update_camera_spec (deferred): %v", err)
	}
	if v := c.specs.CameraSpec(hw).Version; v != 0 {
		t.Fatalf("expected patch deferred while engaged, version still 0, got %d", v)
	}
	if d := c.devices[a]; d.CameraSpecVersion != 0 {
		t.Fatalf("expected device's CameraSpecVersion unchanged while patch deferred, got %d", d.CameraSpecVersion)
	}

	nowReply := make(chan error, 1)
	nowCmd := &updateCameraSpecCmd{hardwareID: hw, patch: []byte("v3"), mode: model.ApplyNow, reply: nowReply}
	if err := c.cmdQueue.Enqueue(nowCmd); err != nil {
		t.Fatalf("enqueue update_camera_spec (apply_now): %v", err)
	}
	c.drive()
	ce, ok := (<-nowReply).(model.CoreError)
	if !ok || ce.Code != model.ErrBadState {
		t.Fatalf("expected ERR_BAD_STATE for apply_now while engaged, got %v", ce)
	}

	disReply := make(chan error, 1)
	if err := c.cmdQueue.Enqueue(&disengageDeviceCmd{instanceID: a, reply: disReply}); err != nil {
		t.Fatalf("enqueue disengage_device: %v", err)
	}
	c.drive()
	if err := <-disReply; err != nil {
		t.Fatalf("disengage_device: %v", err)
	}

	spec := c.specs.CameraSpec(hw)
	if spec.Version != 1 {
		t.Fatalf("expected deferred patch applied on disengage, version = %d, want 1", spec.Version)
	}
	if string(spec.Patch) != "v2" {
		t.Fatalf("expected the deferred v2 patch to be the one applied, got %q", spec.Patch)
	}
	if d := c.devices[a]; d == nil || d.CameraSpecVersion != 1 {
		t.Fatalf("expected device's CameraSpecVersion bumped to 1 after retry, got %+v", d)
	}
}
