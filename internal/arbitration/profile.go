// Package arbitration implements the priority and profile-validation
// rules of the arbitration engine (§4.G): the four inbound-command
// decision procedures, preemption ordering, and the pure, deterministic
// profile validator. It owns no state — every function takes the
// relevant slice of core state as arguments and returns a decision, so
// the core loop stays the only state mutator.
package arbitration

import (
	"github.com/cambang/cambang/fourcc"
	"github.com/cambang/cambang/model"
)

// ValidateStreamProfile normalizes and validates a repeating-stream
// request (§4.G create_stream: "raw-only FOURCC for streams;
// resolution/fps within CameraSpec capability union of device").
// CameraSpec's capability payload is an opaque, provider-defined patch
// (§4.E treats it as bit-level out of scope), so the only
// capability checks this validator can make on its own are the
// structural ones: the pixel format must be a raw, streamable format,
// dimensions must be positive, and the fps range must be non-empty. A
// provider that rejects the normalized profile anyway reports that
// through a non-OK provider Result such as ERR_NOT_SUPPORTED.
func ValidateStreamProfile(req model.StreamProfile) (model.StreamProfile, error) {
	if !fourcc.IsRaw(fourcc.Code(req.FormatFourCC)) {
		return model.StreamProfile{}, model.NewCoreError(model.ErrNotSupported)
	}
	if req.Width == 0 || req.Height == 0 {
		return model.StreamProfile{}, model.NewCoreError(model.ErrInvalidArgument)
	}
	if req.TargetFPSMin == 0 || req.TargetFPSMax == 0 || req.TargetFPSMin > req.TargetFPSMax {
		return model.StreamProfile{}, model.NewCoreError(model.ErrInvalidArgument)
	}
	return req, nil
}

// ValidateStillProfile normalizes and validates a still-capture profile
// (§6.1 set_still_capture_profile). Still profiles may use a
// compressed or raw format, unlike streams.
func ValidateStillProfile(req model.StillProfile) (model.StillProfile, error) {
	if req.Width == 0 || req.Height == 0 {
		return model.StillProfile{}, model.NewCoreError(model.ErrInvalidArgument)
	}
	if fourcc.Code(req.FormatFourCC) == 0 {
		return model.StillProfile{}, model.NewCoreError(model.ErrInvalidArgument)
	}
	return req, nil
}

// RigAuthoritativeConflict reports whether a stream profile conflicts
// with the pipeline a device's ARMED rig membership authoritatively
// owns. v1's policy is conservative: any device that is currently an
// armed rig member denies new/replacement streams outright; a real
// compatibility model for cross-satisfying rig and device pipelines is
// left for a later version (§1 Non-goals).
func RigAuthoritativeConflict(rig *model.Rig) bool {
	return rig != nil && rig.Mode != model.RigOff
}
