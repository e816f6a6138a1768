package synthetic

import (
	"testing"

	"github.com/cambang/cambang/internal/clock"
	"github.com/cambang/cambang/provider"
)

type recordingCallbacks struct {
	opened []uint64
}

func (r *recordingCallbacks) OnDeviceOpened(id uint64)  { r.opened = append(r.opened, id) }
func (r *recordingCallbacks) OnDeviceClosed(uint64)     {}
func (r *recordingCallbacks) OnStreamCreated(uint64)    {}
func (r *recordingCallbacks) OnStreamDestroyed(uint64)  {}
func (r *recordingCallbacks) OnStreamStarted(uint64)    {}
func (r *recordingCallbacks) OnStreamStopped(uint64, provider.Result) {}
func (r *recordingCallbacks) OnCaptureStarted(uint64)   {}
func (r *recordingCallbacks) OnCaptureCompleted(uint64) {}
func (r *recordingCallbacks) OnCaptureFailed(uint64, provider.Result) {}
func (r *recordingCallbacks) OnFrame(provider.FrameView) {}
func (r *recordingCallbacks) OnDeviceError(uint64, provider.Result) {}
func (r *recordingCallbacks) OnStreamError(uint64, provider.Result) {}
func (r *recordingCallbacks) OnNativeObjectCreated(provider.NativeObjectCreateInfo) {}
func (r *recordingCallbacks) OnNativeObjectDestroyed(provider.NativeObjectDestroyInfo) {}

func TestEnumerateEndpointsDefaultsToOneCam(t *testing.T) {
	cam := New(clock.NewFake(0), nil)
	eps, res := cam.EnumerateEndpoints()
	if !res.OK() || len(eps) != 1 || eps[0].HardwareID != "cam0" {
		t.Fatalf("unexpected endpoints: %v, %v", eps, res)
	}
}

func TestOpenDeviceFiresCallbackOnTick(t *testing.T) {
	fake := clock.NewFake(0)
	cam := New(fake, nil)
	cb := &recordingCallbacks{}
	cam.Initialize(cb)

	cam.OpenDevice("cam0", 1, 1)
	if len(cb.opened) != 0 {
		t.Fatal("callback fired before Tick")
	}

	cam.Tick(fake.NowNS())
	if len(cb.opened) != 1 || cb.opened[0] != 1 {
		t.Fatalf("expected OnDeviceOpened(1), got %v", cb.opened)
	}
}

func TestLatencyDelaysCallbackUntilDeadlineElapses(t *testing.T) {
	fake := clock.NewFake(0)
	cam := New(fake, nil)
	cam.SetLatencyNS(1_000_000_000)
	cb := &recordingCallbacks{}
	cam.Initialize(cb)

	cam.OpenDevice("cam0", 1, 1)
	cam.Tick(fake.NowNS())
	if len(cb.opened) != 0 {
		t.Fatal("callback fired before its scheduled latency elapsed")
	}

	fake.Advance(1_000_000_000)
	cam.Tick(fake.NowNS())
	if len(cb.opened) != 1 {
		t.Fatalf("expected callback after latency elapsed, got %v", cb.opened)
	}
}

func TestTickPanicsOnDueCallbackBeforeInitialize(t *testing.T) {
	fake := clock.NewFake(0)
	cam := New(fake, nil)
	cam.OpenDevice("cam0", 1, 1)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for due callback with no callbacks sink")
		}
	}()
	cam.Tick(fake.NowNS())
}
