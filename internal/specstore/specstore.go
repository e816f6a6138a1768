// Package specstore implements the versioned CameraSpec / ImagingSpec
// stores and their patch-application semantics (§4.E): validate,
// decide whether it's safe to apply now, bump the version, and track
// patches deferred until a later state transition makes them safe.
package specstore

import (
	"errors"

	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

// ErrEmptyPatch is returned by the default validator for a nil/empty
// patch payload — bit-level validation is out of scope (§4.E), so
// this is the only content check the store performs itself.
var ErrEmptyPatch = errors.New("specstore: empty patch")

// Validator checks a patch's opaque bytes. The default treats the payload
// as content-addressed and only rejects an empty one.
type Validator func(patch provider.SpecPatch) error

// DefaultValidator is used when no Validator is supplied.
func DefaultValidator(patch provider.SpecPatch) error {
	if len(patch) == 0 {
		return ErrEmptyPatch
	}
	return nil
}

// SafetyCheck reports whether it is currently safe to apply a patch to the
// given hardware id (empty string for the global ImagingSpec). "Safe"
// means no affected device is engaged and no in-flight capture depends on
// it (§4.E).
type SafetyCheck func(hardwareID string) bool

type pendingPatch struct {
	hardwareID string // "" for imaging spec
	newVersion uint64
	patch      provider.SpecPatch
}

// Store holds every CameraSpec plus the single global ImagingSpec, and the
// set of patches deferred under APPLY_WHEN_SAFE.
type Store struct {
	validator Validator

	cameraSpecs map[string]*model.CameraSpec
	imaging     model.ImagingSpec

	pending []pendingPatch
}

// New returns an empty store. A nil validator uses DefaultValidator.
func New(validator Validator) *Store {
	if validator == nil {
		validator = DefaultValidator
	}
	return &Store{validator: validator, cameraSpecs: make(map[string]*model.CameraSpec)}
}

// CameraSpec returns the current effective spec for hardwareID, or a
// zero-version spec (not stored) if none exists yet.
func (s *Store) CameraSpec(hardwareID string) model.CameraSpec {
	spec, ok := s.cameraSpecs[hardwareID]
	if !ok {
		return model.CameraSpec{HardwareID: hardwareID}
	}
	return *spec
}

// ImagingSpec returns the current global imaging spec.
func (s *Store) ImagingSpec() model.ImagingSpec {
	return s.imaging
}

// ApplyCameraSpecPatch validates and, if safe (or immediately, for
// APPLY_NOW), applies a patch to hardwareID's CameraSpec. applied reports
// whether the version actually changed; it is false for a deferred patch.
func (s *Store) ApplyCameraSpecPatch(
	hardwareID string,
	newVersion uint64,
	patch provider.SpecPatch,
	mode model.ApplyMode,
	safe SafetyCheck,
) (applied bool, err error) {
	if err := s.validator(patch); err != nil {
		return false, err
	}

	if mode == model.ApplyWhenSafe && !safe(hardwareID) {
		s.pending = append(s.pending, pendingPatch{hardwareID: hardwareID, newVersion: newVersion, patch: patch})
		return false, nil
	}
	if mode == model.ApplyNow && !safe(hardwareID) {
		return false, model.NewCoreError(model.ErrBadState)
	}

	spec, ok := s.cameraSpecs[hardwareID]
	if !ok {
		spec = &model.CameraSpec{HardwareID: hardwareID}
		s.cameraSpecs[hardwareID] = spec
	}
	if bytesEqual(spec.Patch, patch) {
		return false, nil
	}
	spec.Version = newVersion
	spec.Patch = patch
	return true, nil
}

// ApplyImagingSpecPatch is the global-spec analogue of
// ApplyCameraSpecPatch; hardwareID is always "" in the safety check.
func (s *Store) ApplyImagingSpecPatch(
	newVersion uint64,
	patch provider.SpecPatch,
	mode model.ApplyMode,
	safe SafetyCheck,
) (applied bool, err error) {
	if err := s.validator(patch); err != nil {
		return false, err
	}

	if mode == model.ApplyWhenSafe && !safe("") {
		s.pending = append(s.pending, pendingPatch{newVersion: newVersion, patch: patch})
		return false, nil
	}
	if mode == model.ApplyNow && !safe("") {
		return false, model.NewCoreError(model.ErrBadState)
	}

	if bytesEqual(s.imaging.Patch, patch) {
		return false, nil
	}
	s.imaging.Version = newVersion
	s.imaging.Patch = patch
	return true, nil
}

// RetryPending re-attempts every deferred patch against the current
// SafetyCheck, applying whichever are now safe. Call after any state
// transition that might make a deferred patch safe (§4.E: "retried
// after each relevant state transition"). Returns the hardware ids (or ""
// for the imaging spec) whose spec actually changed.
func (s *Store) RetryPending(safe SafetyCheck) []string {
	if len(s.pending) == 0 {
		return nil
	}
	var changed []string
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if !safe(p.hardwareID) {
			remaining = append(remaining, p)
			continue
		}
		if p.hardwareID == "" {
			if bytesEqual(s.imaging.Patch, p.patch) {
				continue
			}
			s.imaging.Version = p.newVersion
			s.imaging.Patch = p.patch
		} else {
			spec, ok := s.cameraSpecs[p.hardwareID]
			if !ok {
				spec = &model.CameraSpec{HardwareID: p.hardwareID}
				s.cameraSpecs[p.hardwareID] = spec
			}
			if bytesEqual(spec.Patch, p.patch) {
				continue
			}
			spec.Version = p.newVersion
			spec.Patch = p.patch
		}
		changed = append(changed, p.hardwareID)
	}
	s.pending = remaining
	return changed
}

func bytesEqual(a, b provider.SpecPatch) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
