package model

// Snapshot is an immutable, point-in-time composite of core state,
// published atomically by the Publisher (§3 "Snapshot", §4.H, §4.I).
// Once published, a Snapshot and every slice inside it are never mutated
// again — readers may retain a reference indefinitely without affecting
// the writer, and the writer never retains a reference a reader could
// observe mutate.
type Snapshot struct {
	SchemaVersion uint32
	Gen           uint64
	TopologyGen   uint64
	TimestampNS   int64

	ImagingSpecVersion uint64

	Rigs            []Rig
	Devices         []Device
	Streams         []Stream
	NativeObjects   []NativeObjectRecord

	// DetachedRootIDs holds every root_id with at least one retained
	// record whose owning rig or device instance is no longer live
	// (§4.H, GLOSSARY "Detached root").
	DetachedRootIDs []uint64
}
