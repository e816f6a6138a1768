// Package snapshotbuild assembles the immutable Snapshot the core
// publishes after each dirty loop iteration (§4.H): gen and
// topology_gen bookkeeping, detached-root computation, and the
// warm_remaining_ms projection.
package snapshotbuild

import (
	"sort"

	"github.com/cambang/cambang/internal/registry"
	"github.com/cambang/cambang/model"
)

// Builder accumulates gen/topology_gen state across successive builds.
// It is core-thread-only, like every other module here.
type Builder struct {
	gen         uint64
	topologyGen uint64
	lastTopo    string // canonicalized fingerprint of the previous Topology
}

// New returns a fresh builder with gen=0, topology_gen=0. The first
// Build call always bumps both, since there is no prior topology to
// compare against.
func New() *Builder {
	return &Builder{}
}

// Input bundles every live entity the snapshot reflects.
type Input struct {
	TimestampNS       int64
	ImagingSpecVersion uint64
	Rigs              []model.Rig
	Devices           []model.Device
	Streams           []model.Stream
	Registry          *registry.Registry
	DetachedRootIDs   map[uint64]struct{}

	// WarmDeadlineNS maps a device instance id to its armed warm-expiry
	// deadline, for devices that currently have one scheduled. Absent
	// entries mean no warm hold is armed (the device is in use, or
	// warm_hold_ms is 0).
	WarmDeadlineNS map[uint64]int64
}

const schemaVersion = 1

// Build produces the next immutable Snapshot, bumping gen
// unconditionally and topology_gen iff the topology fingerprint
// changed since the last Build.
func (b *Builder) Build(in Input) *model.Snapshot {
	b.gen++

	rigs := append([]model.Rig(nil), in.Rigs...)
	sort.Slice(rigs, func(i, j int) bool { return rigs[i].RigID < rigs[j].RigID })

	devices := append([]model.Device(nil), in.Devices...)
	sort.Slice(devices, func(i, j int) bool { return devices[i].InstanceID < devices[j].InstanceID })
	for i := range devices {
		deadline, armed := in.WarmDeadlineNS[devices[i].InstanceID]
		devices[i].WarmRemainingMS = warmRemainingMS(deadline, armed, in.TimestampNS)
	}

	streams := append([]model.Stream(nil), in.Streams...)
	sort.Slice(streams, func(i, j int) bool { return streams[i].StreamID < streams[j].StreamID })

	var natives []model.NativeObjectRecord
	var rootIDs []uint64
	if in.Registry != nil {
		natives = in.Registry.All()
		sort.Slice(natives, func(i, j int) bool { return natives[i].NativeID < natives[j].NativeID })
		seen := make(map[uint64]struct{})
		for _, n := range natives {
			if _, ok := seen[n.RootID]; !ok {
				seen[n.RootID] = struct{}{}
				rootIDs = append(rootIDs, n.RootID)
			}
		}
		sort.Slice(rootIDs, func(i, j int) bool { return rootIDs[i] < rootIDs[j] })
	}

	topo := fingerprint(rigs, devices, streams, rootIDs)
	if topo != b.lastTopo || b.gen == 1 {
		b.topologyGen++
		b.lastTopo = topo
	}

	detached := make([]uint64, 0, len(in.DetachedRootIDs))
	for id := range in.DetachedRootIDs {
		detached = append(detached, id)
	}
	sort.Slice(detached, func(i, j int) bool { return detached[i] < detached[j] })

	return &model.Snapshot{
		SchemaVersion:      schemaVersion,
		Gen:                b.gen,
		TopologyGen:        b.topologyGen,
		TimestampNS:        in.TimestampNS,
		ImagingSpecVersion: in.ImagingSpecVersion,
		Rigs:               rigs,
		Devices:            devices,
		Streams:            streams,
		NativeObjects:      natives,
		DetachedRootIDs:    detached,
	}
}

// warmRemainingMS computes max(0, warm_deadline - timestamp_ns) / 1e6
// (§4.H). armed false (no scheduled warm-expiry timer) means 0.
func warmRemainingMS(deadlineNS int64, armed bool, nowNS int64) int64 {
	if !armed {
		return 0
	}
	remainingNS := deadlineNS - nowNS
	if remainingNS < 0 {
		remainingNS = 0
	}
	return remainingNS / 1_000_000
}

// fingerprint renders a deterministic string identity for the topology
// fields §4.H calls out, independent of field order or other
// state (counters, error codes) that must not bump topology_gen.
func fingerprint(rigs []model.Rig, devices []model.Device, streams []model.Stream, rootIDs []uint64) string {
	rigIDs := make([]uint64, len(rigs))
	for i, r := range rigs {
		rigIDs[i] = r.RigID
	}
	sort.Slice(rigIDs, func(i, j int) bool { return rigIDs[i] < rigIDs[j] })

	devKeys := make([]string, len(devices))
	for i, d := range devices {
		devKeys[i] = d.HardwareID + "#" + itoa(d.InstanceID) + "@" + itoa(d.RigID)
	}
	sort.Strings(devKeys)

	streamIDs := make([]uint64, len(streams))
	for i, s := range streams {
		streamIDs[i] = s.StreamID
	}
	sort.Slice(streamIDs, func(i, j int) bool { return streamIDs[i] < streamIDs[j] })

	buf := make([]byte, 0, 256)
	for _, id := range rigIDs {
		buf = append(buf, 'R')
		buf = appendUint(buf, id)
	}
	for _, k := range devKeys {
		buf = append(buf, 'D')
		buf = append(buf, k...)
	}
	for _, id := range streamIDs {
		buf = append(buf, 'S')
		buf = appendUint(buf, id)
	}
	for _, id := range rootIDs {
		buf = append(buf, 'X')
		buf = appendUint(buf, id)
	}
	return string(buf)
}

func itoa(v uint64) string {
	return string(appendUint(nil, v))
}

func appendUint(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for v > 0 {
		buf = append(buf, byte('0'+v%10))
		v /= 10
	}
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}
