package specstore

import (
	"testing"

	"github.com/cambang/cambang/model"
)

func alwaysSafe(string) bool  { return true }
func neverSafe(string) bool   { return false }

func TestApplyNowFailsWhenUnsafe(t *testing.T) {
	s := New(nil)
	_, err := s.ApplyCameraSpecPatch("cam1", 2, []byte("patch"), model.ApplyNow, neverSafe)
	if err == nil {
		t.Fatal("expected ERR_BAD_STATE for unsafe APPLY_NOW")
	}
}

func TestApplyWhenSafeDefersAndRetries(t *testing.T) {
	s := New(nil)
	applied, err := s.ApplyCameraSpecPatch("cam1", 2, []byte("patch"), model.ApplyWhenSafe, neverSafe)
	if err != nil || applied {
		t.Fatalf("expected deferred, non-applied patch, got applied=%v err=%v", applied, err)
	}
	if s.CameraSpec("cam1").Version != 0 {
		t.Fatal("version should not change while patch is pending")
	}

	changed := s.RetryPending(alwaysSafe)
	if len(changed) != 1 || changed[0] != "cam1" {
		t.Fatalf("RetryPending = %v, want [cam1]", changed)
	}
	if s.CameraSpec("cam1").Version != 2 {
		t.Fatalf("version = %d after retry, want 2", s.CameraSpec("cam1").Version)
	}
}

func TestEmptyPatchRejected(t *testing.T) {
	s := New(nil)
	_, err := s.ApplyCameraSpecPatch("cam1", 1, nil, model.ApplyNow, alwaysSafe)
	if err != ErrEmptyPatch {
		t.Fatalf("err = %v, want ErrEmptyPatch", err)
	}
}

func TestApplySameContentIsNoop(t *testing.T) {
	s := New(nil)
	applied, err := s.ApplyCameraSpecPatch("cam1", 1, []byte("x"), model.ApplyNow, alwaysSafe)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, err = s.ApplyCameraSpecPatch("cam1", 2, []byte("x"), model.ApplyNow, alwaysSafe)
	if err != nil {
		t.Fatalf("second apply errored: %v", err)
	}
	if applied {
		t.Fatal("re-applying identical content should be a no-op")
	}
	if s.CameraSpec("cam1").Version != 1 {
		t.Fatalf("version changed on no-op apply: got %d", s.CameraSpec("cam1").Version)
	}
}

func TestImagingSpecPatch(t *testing.T) {
	s := New(nil)
	applied, err := s.ApplyImagingSpecPatch(5, []byte("global"), model.ApplyNow, alwaysSafe)
	if err != nil || !applied {
		t.Fatalf("applied=%v err=%v", applied, err)
	}
	if s.ImagingSpec().Version != 5 {
		t.Fatalf("version = %d, want 5", s.ImagingSpec().Version)
	}
}
