// Package ids provides monotonic 64-bit identity allocation for the core
// thread's identity spaces: device instances, streams, captures, native
// objects, rigs, and lineage roots.
//
// Zero is reserved as the documented sentinel ("no id") across every space;
// Next never returns it.
package ids

import "sync/atomic"

// Allocator issues monotonic uint64 values for a single identity space.
//
// Allocator is safe for concurrent use, but in CamBANG only the core thread
// ever calls Next — the atomic is defensive, not load-bearing.
type Allocator struct {
	counter uint64
}

// Next returns the next id in the space, starting at 1.
func (a *Allocator) Next() uint64 {
	return atomic.AddUint64(&a.counter, 1)
}

// Peek returns the most recently issued id without allocating, or 0 if
// none has been issued yet.
func (a *Allocator) Peek() uint64 {
	return atomic.LoadUint64(&a.counter)
}

// Set of allocators for every identity space the core owns. Grouped so a
// Core can own exactly one Spaces value and never mix spaces by accident.
type Spaces struct {
	DeviceInstance Allocator
	Stream         Allocator
	Capture        Allocator
	NativeObject   Allocator
	Rig            Allocator
	Root           Allocator
}
