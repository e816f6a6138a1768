package cambang

import (
	"github.com/cambang/cambang/internal/publish"
	"github.com/cambang/cambang/model"
)

// Observer is notified after every successful publish, on the core
// goroutine, with the snapshot's new generation counters.
type Observer = publish.Observer

// The core data model (§3) is defined in package model so internal
// subsystems (registry, fsm, arbitration, snapshotbuild) can depend on it
// without importing this package. These aliases let host code write
// cambang.Device, cambang.Snapshot, and so on directly.
type (
	Phase        = model.Phase
	RigMode      = model.RigMode
	DeviceMode   = model.DeviceMode
	StreamMode   = model.StreamMode
	StopReason   = model.StopReason
	StreamIntent = model.StreamIntent

	Rig                = model.Rig
	RigCounters        = model.RigCounters
	LastCapture        = model.LastCapture
	Device             = model.Device
	Stream             = model.Stream
	NativeObjectRecord = model.NativeObjectRecord
	CameraSpec         = model.CameraSpec
	ImagingSpec        = model.ImagingSpec
	StreamProfile      = model.StreamProfile
	StillProfile       = model.StillProfile
	RigConfig          = model.RigConfig
	ApplyMode          = model.ApplyMode
	Snapshot           = model.Snapshot
	ErrorCode          = model.ErrorCode
	CoreError          = model.CoreError
)

const (
	PhaseCreated     = model.PhaseCreated
	PhaseLive        = model.PhaseLive
	PhaseTearingDown = model.PhaseTearingDown
	PhaseDestroyed   = model.PhaseDestroyed

	RigOff        = model.RigOff
	RigArmed      = model.RigArmed
	RigTriggering = model.RigTriggering
	RigCollecting = model.RigCollecting
	RigError      = model.RigError

	DeviceIdle      = model.DeviceIdle
	DeviceStreaming = model.DeviceStreaming
	DeviceCapturing = model.DeviceCapturing
	DeviceError     = model.DeviceError

	StreamStopped   = model.StreamStopped
	StreamFlowing   = model.StreamFlowing
	StreamStarved   = model.StreamStarved
	StreamErrorMode = model.StreamError

	StopNone      = model.StopNone
	StopUser      = model.StopUser
	StopPreempted = model.StopPreempted
	StopProvider  = model.StopProvider

	IntentPreview    = model.IntentPreview
	IntentViewfinder = model.IntentViewfinder

	ApplyWhenSafe = model.ApplyWhenSafe
	ApplyNow      = model.ApplyNow

	ErrNone                = model.ErrNone
	ErrNotSupported        = model.ErrNotSupported
	ErrInvalidArgument     = model.ErrInvalidArgument
	ErrBusy                = model.ErrBusy
	ErrBadState            = model.ErrBadState
	ErrPlatformConstraint  = model.ErrPlatformConstraint
	ErrTransientFailure    = model.ErrTransientFailure
	ErrProviderFailed      = model.ErrProviderFailed
	ErrShuttingDown        = model.ErrShuttingDown
	ErrRigAuthoritative    = model.ErrRigAuthoritative
	ErrProfileIncompatible = model.ErrProfileIncompatible
)

// NewCoreError builds a CoreError for the given code.
func NewCoreError(code ErrorCode) CoreError { return model.NewCoreError(code) }
