// Package registry implements the lifecycle registry: the store and
// indexes of provider-reported native-object records, with retention
// windows, detached-lineage detection, and the missing-destroy semantics
// that keep leaked objects visible instead of silently reaping them
// (§4.D).
package registry

import (
	"fmt"

	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

// Owner identifies who currently "controls" a lineage: a rig or a device
// instance. Registry consults this to compute detached roots without
// owning any rig/device state itself (§4.H: "owner ... is not
// currently present-and-alive in core state").
type Owner interface {
	RigLive(rigID uint64) bool
	DeviceInstanceLive(instanceID uint64) bool
}

// Registry stores NativeObjectRecords keyed by native_id, with auxiliary
// indexes by root_id and by owner device instance. There is no index by
// phase; Sweep scans every record.
//
// Registry is core-thread-only; it holds no lock.
type Registry struct {
	byID      map[uint64]*model.NativeObjectRecord
	byRoot    map[uint64]map[uint64]struct{}
	byOwnerDI map[uint64]map[uint64]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[uint64]*model.NativeObjectRecord),
		byRoot:    make(map[uint64]map[uint64]struct{}),
		byOwnerDI: make(map[uint64]map[uint64]struct{}),
	}
}

// OnCreated inserts a new record reported by the provider. A duplicate
// native_id is a provider/core bug, not a runtime error — §4.D says
// to "reject duplicate native_id as a bug", so this panics rather than
// returning an error a caller might swallow.
func (r *Registry) OnCreated(info provider.NativeObjectCreateInfo, phase model.Phase) {
	if _, exists := r.byID[info.NativeID]; exists {
		panic(fmt.Sprintf("registry: duplicate native_id %d reported by provider", info.NativeID))
	}

	rec := &model.NativeObjectRecord{
		NativeID:              info.NativeID,
		Type:                  info.Type,
		Phase:                 phase,
		OwnerRigID:             info.OwnerRigID,
		OwnerDeviceInstanceID: info.OwnerDeviceInstanceID,
		OwnerStreamID:         info.OwnerStreamID,
		RootID:                info.RootID,
		CreatedNS:             info.CreatedNS,
		BytesAllocated:        info.BytesAllocated,
		BuffersInUse:          info.BuffersInUse,
	}
	r.byID[info.NativeID] = rec
	r.indexInsert(rec)
}

// OnDestroyed transitions a record to DESTROYED and stamps destroyed_ns.
// The caller is responsible for scheduling the retention-expiry timer at
// ts + RETENTION_MS; Registry only tracks the stamp Sweep later checks.
func (r *Registry) OnDestroyed(nativeID uint64, ts int64) {
	rec, ok := r.byID[nativeID]
	if !ok {
		return
	}
	rec.Phase = model.PhaseDestroyed
	rec.DestroyedNS = ts
}

// Sweep removes every record whose destroyed_ns + retentionMS has
// elapsed as of now. Returns the number of records removed.
func (r *Registry) Sweep(now int64, retentionMS int64) int {
	retentionNS := retentionMS * int64(1_000_000)
	removed := 0
	for id, rec := range r.byID {
		if rec.Phase != model.PhaseDestroyed {
			continue
		}
		if rec.DestroyedNS+retentionNS <= now {
			r.indexRemove(rec)
			delete(r.byID, id)
			removed++
		}
	}
	return removed
}

// Get returns the record for nativeID, if present.
func (r *Registry) Get(nativeID uint64) (model.NativeObjectRecord, bool) {
	rec, ok := r.byID[nativeID]
	if !ok {
		return model.NativeObjectRecord{}, false
	}
	return *rec, true
}

// ByOwnerDeviceInstance returns every retained record owned by the given
// device instance, including DESTROYED records not yet swept.
func (r *Registry) ByOwnerDeviceInstance(instanceID uint64) []model.NativeObjectRecord {
	ids := r.byOwnerDI[instanceID]
	out := make([]model.NativeObjectRecord, 0, len(ids))
	for id := range ids {
		out = append(out, *r.byID[id])
	}
	return out
}

// All returns every record currently retained, in no particular order.
// Callers that need a stable order (e.g. the snapshot builder) sort it.
func (r *Registry) All() []model.NativeObjectRecord {
	out := make([]model.NativeObjectRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, *rec)
	}
	return out
}

// DetachedRoots returns the set of root_ids that still have at least one
// retained record but whose controlling owner (rig or device instance) has
// ended (§4.D, §4.H, GLOSSARY "Detached root").
func (r *Registry) DetachedRoots(owner Owner) map[uint64]struct{} {
	detached := make(map[uint64]struct{})
	for root, members := range r.byRoot {
		if len(members) == 0 {
			continue
		}
		if r.rootOwnerLive(root, members, owner) {
			continue
		}
		detached[root] = struct{}{}
	}
	return detached
}

func (r *Registry) rootOwnerLive(root uint64, members map[uint64]struct{}, owner Owner) bool {
	for id := range members {
		rec, ok := r.byID[id]
		if !ok {
			continue
		}
		if rec.OwnerRigID != 0 && owner.RigLive(rec.OwnerRigID) {
			return true
		}
		if rec.OwnerDeviceInstanceID != 0 && owner.DeviceInstanceLive(rec.OwnerDeviceInstanceID) {
			return true
		}
	}
	return false
}

func (r *Registry) indexInsert(rec *model.NativeObjectRecord) {
	if r.byRoot[rec.RootID] == nil {
		r.byRoot[rec.RootID] = make(map[uint64]struct{})
	}
	r.byRoot[rec.RootID][rec.NativeID] = struct{}{}

	if rec.OwnerDeviceInstanceID != 0 {
		if r.byOwnerDI[rec.OwnerDeviceInstanceID] == nil {
			r.byOwnerDI[rec.OwnerDeviceInstanceID] = make(map[uint64]struct{})
		}
		r.byOwnerDI[rec.OwnerDeviceInstanceID][rec.NativeID] = struct{}{}
	}
}

func (r *Registry) indexRemove(rec *model.NativeObjectRecord) {
	if set, ok := r.byRoot[rec.RootID]; ok {
		delete(set, rec.NativeID)
		if len(set) == 0 {
			delete(r.byRoot, rec.RootID)
		}
	}
	if rec.OwnerDeviceInstanceID != 0 {
		if set, ok := r.byOwnerDI[rec.OwnerDeviceInstanceID]; ok {
			delete(set, rec.NativeID)
			if len(set) == 0 {
				delete(r.byOwnerDI, rec.OwnerDeviceInstanceID)
			}
		}
	}
}
