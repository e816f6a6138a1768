package registry

import (
	"testing"

	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

type fakeOwner struct {
	liveRigs    map[uint64]bool
	liveDevices map[uint64]bool
}

func (f fakeOwner) RigLive(id uint64) bool            { return f.liveRigs[id] }
func (f fakeOwner) DeviceInstanceLive(id uint64) bool { return f.liveDevices[id] }

func TestOnCreatedDuplicatePanics(t *testing.T) {
	r := New()
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 1, RootID: 1}, model.PhaseLive)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate native_id")
		}
	}()
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 1, RootID: 1}, model.PhaseLive)
}

func TestSweepRemovesOnlyExpiredDestroyedRecords(t *testing.T) {
	r := New()
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 1, RootID: 1}, model.PhaseLive)
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 2, RootID: 2}, model.PhaseLive)

	r.OnDestroyed(1, 1000)

	removed := r.Sweep(1000+500, 1000) // retentionMS=1000 -> retentionNS=1e9, not yet due
	if removed != 0 {
		t.Fatalf("Sweep removed %d records before retention elapsed, want 0", removed)
	}

	removed = r.Sweep(1000+1_000_000_000, 1000)
	if removed != 1 {
		t.Fatalf("Sweep removed %d records, want 1", removed)
	}
	if _, ok := r.Get(1); ok {
		t.Fatal("expired record still present after Sweep")
	}
	if _, ok := r.Get(2); !ok {
		t.Fatal("live record 2 incorrectly removed by Sweep")
	}
}

func TestDetachedRootsRequiresLiveOwner(t *testing.T) {
	r := New()
	r.OnCreated(provider.NativeObjectCreateInfo{
		NativeID:              1,
		RootID:                10,
		OwnerDeviceInstanceID: 100,
	}, model.PhaseLive)

	owner := fakeOwner{liveDevices: map[uint64]bool{100: true}}
	detached := r.DetachedRoots(owner)
	if len(detached) != 0 {
		t.Fatalf("expected no detached roots while owner is live, got %v", detached)
	}

	owner = fakeOwner{liveDevices: map[uint64]bool{}}
	detached = r.DetachedRoots(owner)
	if _, ok := detached[10]; !ok {
		t.Fatalf("expected root 10 detached once owner is gone, got %v", detached)
	}
}

func TestByOwnerDeviceInstanceIndex(t *testing.T) {
	r := New()
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 1, RootID: 1, OwnerDeviceInstanceID: 5}, model.PhaseLive)
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 2, RootID: 1, OwnerDeviceInstanceID: 5}, model.PhaseLive)
	r.OnCreated(provider.NativeObjectCreateInfo{NativeID: 3, RootID: 1, OwnerDeviceInstanceID: 6}, model.PhaseLive)

	recs := r.ByOwnerDeviceInstance(5)
	if len(recs) != 2 {
		t.Fatalf("ByOwnerDeviceInstance(5) returned %d records, want 2", len(recs))
	}
}
