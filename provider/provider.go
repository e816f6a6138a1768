// Package provider defines the contract between the CamBANG core and a
// platform camera backend (§6.2). Platform backends themselves —
// Android, V4L2, a stub, or the in-process synthetic provider under
// internal/provider/synthetic — are external collaborators; this package
// only pins down the interface they satisfy and the data that crosses it.
//
// Grounded on original_source/src/provider/icamera_provider.h and
// provider_contract_datatypes.h: the method table, the FrameView release
// contract, and the ProviderError ordering are carried over unchanged.
package provider

import "fmt"

// ErrorCode is the scoped, stable error classification for provider calls
// and asynchronous failure signals. The zero value is OK by design, so a
// zero-valued Result reads as success.
type ErrorCode uint32

const (
	OK ErrorCode = iota
	ErrNotSupported
	ErrInvalidArgument
	ErrBusy
	ErrBadState
	ErrPlatformConstraint
	ErrTransientFailure
	ErrProviderFailed
	ErrShuttingDown
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case ErrNotSupported:
		return "ERR_NOT_SUPPORTED"
	case ErrInvalidArgument:
		return "ERR_INVALID_ARGUMENT"
	case ErrBusy:
		return "ERR_BUSY"
	case ErrBadState:
		return "ERR_BAD_STATE"
	case ErrPlatformConstraint:
		return "ERR_PLATFORM_CONSTRAINT"
	case ErrTransientFailure:
		return "ERR_TRANSIENT_FAILURE"
	case ErrProviderFailed:
		return "ERR_PROVIDER_FAILED"
	case ErrShuttingDown:
		return "ERR_SHUTTING_DOWN"
	default:
		return "ERR_UNKNOWN"
	}
}

// Result is the deterministic outcome of a provider method call.
type Result struct {
	Code ErrorCode
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Code == ErrOK }

// ErrOK is an alias kept for readability at call sites (provider.Result{}
// is already success, but provider.Success() / r.OK() read better than a
// bare zero value).
const ErrOK = OK

// Success returns the OK result.
func Success() Result { return Result{Code: OK} }

// Failure returns a non-OK result for the given code. Passing OK is a
// programming error and panics.
func Failure(code ErrorCode) Result {
	if code == OK {
		panic("provider: Failure called with OK code")
	}
	return Result{Code: code}
}

// Error satisfies the error interface so a Result can be returned directly
// from functions that plumb errors through fmt.Errorf("...: %w", err).
func (r Result) Error() string {
	return fmt.Sprintf("provider: %s", r.Code)
}

// Endpoint is a hardware camera endpoint as reported by enumeration.
type Endpoint struct {
	HardwareID string
	Name       string
}

// StreamIntent is the public semantics of a repeating stream.
type StreamIntent uint8

const (
	Preview StreamIntent = iota
	Viewfinder
)

func (i StreamIntent) String() string {
	if i == Viewfinder {
		return "VIEWFINDER"
	}
	return "PREVIEW"
}

// StreamRequest is a normalized, core-validated repeating stream request.
type StreamRequest struct {
	StreamID         uint64
	DeviceInstanceID uint64
	Intent           StreamIntent

	Width, Height uint32
	FormatFourCC  uint32

	TargetFPSMin, TargetFPSMax uint32

	ProfileVersion uint64
}

// CaptureRequest is a normalized, core-validated still capture request.
type CaptureRequest struct {
	CaptureID        uint64
	DeviceInstanceID uint64

	RigID uint64 // 0 if not a rig capture

	Width, Height uint32
	FormatFourCC  uint32

	ProfileVersion uint64
}

// SpecPatch is an opaque, content-addressed patch payload. Bit-level
// validation of its contents is out of scope for the core (§4.E); the
// store only ever treats it as bytes.
type SpecPatch []byte

// NativeObjectType is a core-owned enumeration of the kinds of native
// object a provider may report.
type NativeObjectType uint32

const (
	NativeObjectUnspecified NativeObjectType = iota
	NativeObjectSession
	NativeObjectStreamPipeline
	NativeObjectCaptureRequest
	NativeObjectBuffer
)

// NativeObjectCreateInfo reports the creation of a provider-owned native
// object. NativeID is assigned by the provider; the core issues no native
// ids. RootID is the core-issued id the provider was given when the
// owning device was opened.
type NativeObjectCreateInfo struct {
	NativeID uint64
	Type     NativeObjectType
	RootID   uint64

	OwnerRigID            uint64
	OwnerDeviceInstanceID uint64
	OwnerStreamID         uint64

	CreatedNS      int64
	BytesAllocated uint64
	BuffersInUse   uint32
}

// NativeObjectDestroyInfo reports the destruction of a previously created
// native object.
type NativeObjectDestroyInfo struct {
	NativeID    uint64
	DestroyedNS int64
}

// FrameView is a frame delivered from a provider. The provider retains
// ownership of Data until Release is invoked; Release must be non-blocking
// and safe to call from the core thread (§6.2).
type FrameView struct {
	DeviceInstanceID uint64
	StreamID         uint64 // 0 for still-capture frames
	CaptureID        uint64 // 0 for repeating-stream frames

	Width, Height uint32
	FormatFourCC  uint32

	TimestampNS int64

	Data      []byte
	SizeBytes uint64

	StrideBytes uint32 // 0 = packed/unknown

	// Release, if non-nil, must be called exactly once by whichever party
	// last holds the frame. It must not block.
	Release func()
}

// ReleaseNow invokes Release if set. Safe to call on a zero-value FrameView.
func (f *FrameView) ReleaseNow() {
	if f.Release != nil {
		f.Release()
	}
}

// Callbacks is the provider-to-core sink. A provider must invoke every
// method here from a single serialized callback context (§5); the
// core never assumes thread-safety across concurrent callback invocations
// from the same provider.
type Callbacks interface {
	OnDeviceOpened(deviceInstanceID uint64)
	OnDeviceClosed(deviceInstanceID uint64)

	OnStreamCreated(streamID uint64)
	OnStreamDestroyed(streamID uint64)
	OnStreamStarted(streamID uint64)
	OnStreamStopped(streamID uint64, errorOrOK Result)

	OnCaptureStarted(captureID uint64)
	OnCaptureCompleted(captureID uint64)
	OnCaptureFailed(captureID uint64, err Result)

	OnFrame(frame FrameView)

	OnDeviceError(deviceInstanceID uint64, err Result)
	OnStreamError(streamID uint64, err Result)

	OnNativeObjectCreated(info NativeObjectCreateInfo)
	OnNativeObjectDestroyed(info NativeObjectDestroyInfo)
}

// Tickable is an optional interface a provider may implement when it
// needs an explicit notice of time progress to fire deterministically
// scheduled callbacks — the in-process synthetic provider (package
// internal/provider/synthetic) is the only implementor in this module.
// Core calls Tick once per loop iteration, after computing the current
// time, for any configured Camera that implements it; a real platform
// backend has no use for this and simply doesn't implement it.
type Tickable interface {
	Tick(nowNS int64)
}

// Camera is the core-facing interface a platform backend implements.
// Every method is called only from the core thread (§6.2).
type Camera interface {
	// Name identifies the provider for logs and diagnostics.
	Name() string

	// Initialize hands the provider its callback sink. The provider
	// retains only a reference, never ownership.
	Initialize(callbacks Callbacks) Result

	EnumerateEndpoints() ([]Endpoint, Result)

	OpenDevice(hardwareID string, deviceInstanceID, rootID uint64) Result
	CloseDevice(deviceInstanceID uint64) Result

	CreateStream(req StreamRequest) Result
	DestroyStream(streamID uint64) Result
	StartStream(streamID uint64) Result
	StopStream(streamID uint64) Result

	TriggerCapture(req CaptureRequest) Result
	AbortCapture(captureID uint64) Result

	ApplyCameraSpecPatch(hardwareID string, newVersion uint64, patch SpecPatch) Result
	ApplyImagingSpecPatch(newVersion uint64, patch SpecPatch) Result

	Shutdown() Result
}
