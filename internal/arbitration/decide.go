package arbitration

import (
	"sort"

	"github.com/cambang/cambang/model"
)

// Priority order is strict: rig sync capture > device still capture >
// repeating stream. Lower-priority in-flight operations are preemptible
// by higher-priority requests (§4.G).
const (
	PriorityStream       = 0
	PriorityDeviceCapture = 1
	PriorityRigCapture    = 2
)

// CreateStreamDecision is the outcome of the create_stream decision
// procedure.
type CreateStreamDecision struct {
	Profile model.StreamProfile
}

// DecideCreateStream implements §4.G rule 1. existingStream is the
// device's current stream, if any; explicitReplace says the command
// asked to replace it. rig is the device's rig, or nil if it isn't a
// member.
func DecideCreateStream(
	rig *model.Rig,
	existingStream *model.Stream,
	explicitReplace bool,
	req model.StreamProfile,
) (CreateStreamDecision, error) {
	normalized, err := ValidateStreamProfile(req)
	if err != nil {
		return CreateStreamDecision{}, err
	}
	if RigAuthoritativeConflict(rig) {
		return CreateStreamDecision{}, model.NewCoreError(model.ErrRigAuthoritative)
	}
	if existingStream != nil && !explicitReplace {
		return CreateStreamDecision{}, model.NewCoreError(model.ErrBusy)
	}
	return CreateStreamDecision{Profile: normalized}, nil
}

// DecideStartStream implements §4.G rule 2: deny ERR_BAD_STATE if
// any capture is in-flight on the device, or on any rig member while
// the rig is ARMED or later.
func DecideStartStream(deviceCapturing bool, rigArmed bool, anyMemberCapturing bool) error {
	if deviceCapturing {
		return model.NewCoreError(model.ErrBadState)
	}
	if rigArmed && anyMemberCapturing {
		return model.NewCoreError(model.ErrBadState)
	}
	return nil
}

// DeviceCaptureDecision is the outcome of the trigger_capture (device)
// decision procedure.
type DeviceCaptureDecision struct {
	// PreemptStream is non-nil when an existing repeating stream on the
	// device must be stopped (stop_reason=PREEMPTED) before the capture
	// proceeds.
	PreemptStream *model.Stream
}

// DecideTriggerDeviceCapture implements §4.G rule 3. v1's policy
// for a rig-armed member is conservative: deny outright, since no
// profile-compatibility model for a device capture that doesn't disturb
// its rig's authoritative pipeline is defined yet (§1 Non-goals).
func DecideTriggerDeviceCapture(rig *model.Rig, existingStream *model.Stream) (DeviceCaptureDecision, error) {
	if RigAuthoritativeConflict(rig) {
		return DeviceCaptureDecision{}, model.NewCoreError(model.ErrRigAuthoritative)
	}
	return DeviceCaptureDecision{PreemptStream: existingStream}, nil
}

// RigSyncCaptureDecision is the outcome of the trigger_sync_capture
// (rig) decision procedure.
type RigSyncCaptureDecision struct {
	// PreemptStreams lists every member stream that must be stopped
	// before the sync capture proceeds, already ordered per
	// OrderStreamsForPreemption.
	PreemptStreams []model.Stream
}

// DecideTriggerRigSyncCapture implements §4.G rule 4: the rig must
// be ARMED and every member LIVE and not already CAPTURING.
func DecideTriggerRigSyncCapture(rig model.Rig, members []model.Device, memberStreams []model.Stream) (RigSyncCaptureDecision, error) {
	if rig.Mode != model.RigArmed {
		return RigSyncCaptureDecision{}, model.NewCoreError(model.ErrBadState)
	}
	for _, d := range members {
		if d.Phase != model.PhaseLive || d.Mode == model.DeviceCapturing {
			return RigSyncCaptureDecision{}, model.NewCoreError(model.ErrBadState)
		}
	}
	return RigSyncCaptureDecision{PreemptStreams: OrderStreamsForPreemption(memberStreams)}, nil
}

// OrderStreamsForPreemption returns streams in preemption order: PREVIEW
// before VIEWFINDER, stable by stream_id within an intent (§4.G
// "Preemption order").
func OrderStreamsForPreemption(streams []model.Stream) []model.Stream {
	out := make([]model.Stream, len(streams))
	copy(out, streams)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Intent != out[j].Intent {
			return out[i].Intent == model.IntentPreview
		}
		return out[i].StreamID < out[j].StreamID
	})
	return out
}
