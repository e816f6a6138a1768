package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when Advance is called explicitly.
// It exists so the end-to-end scenarios in §8 (warm expiry, retention
// sweep) can be driven deterministically instead of sleeping on the wall
// clock.
type Fake struct {
	mu     sync.Mutex
	now    int64
	timers []*fakeTimer
}

// NewFake returns a Fake clock starting at the given nanosecond instant.
func NewFake(startNS int64) *Fake {
	return &Fake{now: startNS}
}

func (f *Fake) NowNS() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d nanoseconds and fires (synchronously,
// in deadline order) every pending timer whose deadline has now passed.
func (f *Fake) Advance(d int64) {
	f.mu.Lock()
	f.now += d
	now := f.now
	var due []*fakeTimer
	remaining := f.timers[:0]
	for _, t := range f.timers {
		if t.stopped {
			continue
		}
		if t.deadline <= now {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })
	for _, t := range due {
		select {
		case t.c <- struct{}{}:
		default:
		}
	}
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns := d.Nanoseconds()
	if ns < 0 {
		ns = 0
	}
	t := &fakeTimer{c: make(chan struct{}, 1), deadline: f.now + ns, owner: f}
	f.timers = append(f.timers, t)
	return t
}

type fakeTimer struct {
	c        chan struct{}
	deadline int64
	stopped  bool
	owner    *Fake
}

func (t *fakeTimer) C() <-chan struct{} { return t.c }

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	already := t.stopped
	t.stopped = true
	return !already
}
