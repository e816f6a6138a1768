// Package publish implements the Publisher (§4.I): an atomic
// reference cell holding the current immutable Snapshot, with
// synchronous observer fan-out on every swap.
package publish

import (
	"sync/atomic"

	"github.com/cambang/cambang/model"
)

// Observer is notified after every successful publish. It runs
// synchronously on the publishing thread (the core loop) and must not
// call back into the Publisher or block (§4.I: "must not reenter").
type Observer func(gen, topologyGen uint64)

// Publisher holds the current Snapshot behind an atomic pointer and
// fans out state_published notifications on every swap.
type Publisher struct {
	current   atomic.Pointer[model.Snapshot]
	observers []Observer
}

// New returns a Publisher with no snapshot yet published; Load returns
// nil until the first Publish.
func New() *Publisher {
	return &Publisher{}
}

// Subscribe registers an observer. Not safe to call concurrently with
// Publish; both run on the core thread in practice.
func (p *Publisher) Subscribe(obs Observer) {
	p.observers = append(p.observers, obs)
}

// Publish stores snap with release ordering (atomic.Pointer.Store
// already provides this) and synchronously invokes every observer in
// registration order.
func (p *Publisher) Publish(snap *model.Snapshot) {
	p.current.Store(snap)
	for _, obs := range p.observers {
		obs(snap.Gen, snap.TopologyGen)
	}
}

// Load returns the most recently published snapshot with acquire
// ordering, or nil if nothing has been published yet. Safe to call from
// any thread (§5: "only snapshots cross thread boundaries, and
// they are immutable").
func (p *Publisher) Load() *model.Snapshot {
	return p.current.Load()
}
