package model

import "github.com/cambang/cambang/provider"

// Phase is the lifecycle stage shared by devices, streams, rigs, and
// native-object records: existence and teardown, independent of what the
// entity is currently doing (§3, GLOSSARY "Phase").
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseLive
	PhaseTearingDown
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "CREATED"
	case PhaseLive:
		return "LIVE"
	case PhaseTearingDown:
		return "TEARING_DOWN"
	case PhaseDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// RigMode is the operational posture of a rig.
type RigMode uint8

const (
	RigOff RigMode = iota
	RigArmed
	RigTriggering
	RigCollecting
	RigError
)

func (m RigMode) String() string {
	switch m {
	case RigOff:
		return "OFF"
	case RigArmed:
		return "ARMED"
	case RigTriggering:
		return "TRIGGERING"
	case RigCollecting:
		return "COLLECTING"
	case RigError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DeviceMode is the operational posture of a device.
type DeviceMode uint8

const (
	DeviceIdle DeviceMode = iota
	DeviceStreaming
	DeviceCapturing
	DeviceError
)

func (m DeviceMode) String() string {
	switch m {
	case DeviceIdle:
		return "IDLE"
	case DeviceStreaming:
		return "STREAMING"
	case DeviceCapturing:
		return "CAPTURING"
	case DeviceError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StreamMode is the operational posture of a repeating stream.
type StreamMode uint8

const (
	StreamStopped StreamMode = iota
	StreamFlowing
	StreamStarved
	StreamError
)

func (m StreamMode) String() string {
	switch m {
	case StreamStopped:
		return "STOPPED"
	case StreamFlowing:
		return "FLOWING"
	case StreamStarved:
		return "STARVED"
	case StreamError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StopReason records why a stream most recently stopped.
type StopReason uint8

const (
	StopNone StopReason = iota
	StopUser
	StopPreempted
	StopProvider
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "NONE"
	case StopUser:
		return "USER"
	case StopPreempted:
		return "PREEMPTED"
	case StopProvider:
		return "PROVIDER"
	default:
		return "UNKNOWN"
	}
}

// StreamIntent is re-exported from provider: a stream's intent is the same
// value on both sides of the provider boundary.
type StreamIntent = provider.StreamIntent

const (
	IntentPreview    = provider.Preview
	IntentViewfinder = provider.Viewfinder
)

// RigCounters tallies sync-capture outcomes over the rig's lifetime.
type RigCounters struct {
	Triggered uint64
	Completed uint64
	Failed    uint64
}

// LastCapture records the most recently completed rig sync capture.
type LastCapture struct {
	CaptureID   uint64
	LatencyNS   int64
	SyncSkewNS  int64
}

// Rig is the state of a named set of devices coordinated for synchronised
// capture (§3 "Rig").
type Rig struct {
	RigID   uint64
	Name    string
	Phase   Phase
	Mode    RigMode

	// MemberHardwareIDs is fixed once the rig leaves OFF for the first
	// time (§3 invariant: "Membership is fixed while ARMED or
	// later").
	MemberHardwareIDs []string

	ActiveCaptureID      uint64
	CaptureProfileVersion uint64

	Counters    RigCounters
	LastCapture LastCapture

	ErrorCode ErrorCode
}

// Device is the state of one opened camera instance (§3 "Device").
type Device struct {
	HardwareID string
	InstanceID uint64

	Phase Phase
	Mode  DeviceMode

	Engaged bool
	RigID   uint64 // 0 if not a rig member

	CameraSpecVersion     uint64
	CaptureProfileVersion uint64

	WarmHoldMS     int64
	WarmRemainingMS int64

	RebuildCount uint64
	ErrorsCount  uint64
	LastErrorCode ErrorCode
}

// Stream is the state of one repeating stream (§3 "Stream").
type Stream struct {
	StreamID         uint64
	DeviceInstanceID uint64

	Phase Phase
	Intent StreamIntent
	Mode   StreamMode
	StopReason StopReason

	ProfileVersion uint64
	Width, Height  uint32
	FormatFourCC   uint32
	TargetFPSMin, TargetFPSMax uint32

	FramesReceived  uint64
	FramesDelivered uint64
	FramesDropped   uint64

	QueueDepth     int
	LastFrameTSNS  int64
}

// NativeObjectRecord tracks one provider-reported native object through
// its lifecycle and retention window (§3 "NativeObjectRecord").
type NativeObjectRecord struct {
	NativeID uint64
	Type     provider.NativeObjectType
	Phase    Phase

	OwnerRigID            uint64
	OwnerDeviceInstanceID uint64
	OwnerStreamID         uint64
	RootID                uint64

	CreatedNS   int64
	DestroyedNS int64 // 0 while live

	BytesAllocated uint64
	BuffersInUse   uint32
}

// CameraSpec is the current effective hardware-reported truth for one
// hardware endpoint, with an optional user correction layered on top
// (§3 "Spec stores", GLOSSARY "Spec").
type CameraSpec struct {
	HardwareID string
	Version    uint64
	Patch      provider.SpecPatch
}

// ImagingSpec is the single global imaging spec (§3 "Spec stores").
type ImagingSpec struct {
	Version uint64
	Patch   provider.SpecPatch
}

// StreamProfile is a host-requested repeating stream configuration, before
// arbitration validates and normalizes it (§6.1 create_stream).
type StreamProfile struct {
	Intent       StreamIntent
	Width, Height uint32
	FormatFourCC  uint32
	TargetFPSMin, TargetFPSMax uint32
}

// StillProfile is a host-requested still capture configuration
// (§6.1 set_still_capture_profile).
type StillProfile struct {
	Width, Height uint32
	FormatFourCC  uint32
}

// RigConfig configures a rig at creation time (§6.1 create_rig).
type RigConfig struct {
	// Reserved for future rig-level policy knobs (sync tolerance,
	// per-member profile overrides). Intentionally empty in v1 —
	// cross-satisfying device/rig captures and soft-queued captures are
	// left for a later version (§1 Non-goals).
}

// ApplyMode controls when a spec patch is applied (§4.E).
type ApplyMode uint8

const (
	ApplyWhenSafe ApplyMode = iota
	ApplyNow
)

// DetachedRootIDs, topology-affecting id sets, and the rest of Snapshot
// live in snapshot.go.
