// Package clock abstracts monotonic time for the core loop and timer heap,
// so end-to-end tests can advance time deterministically instead of relying
// on wall-clock sleeps (§8 requires "time advanced deterministically").
package clock

import "time"

// Clock supplies monotonic nanosecond timestamps and deadline timers.
// Core state never calls time.Now directly; everything flows through a
// Clock so Fake can stand in during tests.
type Clock interface {
	// NowNS returns the current monotonic time in nanoseconds, relative to
	// an arbitrary fixed epoch established when the Clock was created.
	NowNS() int64

	// NewTimer returns a Timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer fires once on C and can be stopped before firing.
type Timer interface {
	C() <-chan struct{}
	Stop() bool
}

// System returns a Clock backed by the real wall clock.
func System() Clock {
	return &systemClock{epoch: time.Now()}
}

type systemClock struct {
	epoch time.Time
}

func (s *systemClock) NowNS() int64 {
	return time.Since(s.epoch).Nanoseconds()
}

func (s *systemClock) NewTimer(d time.Duration) Timer {
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	c := make(chan struct{}, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-t.C:
			c <- struct{}{}
		case <-stop:
		}
	}()
	return &systemTimer{t: t, c: c, stop: stop}
}

type systemTimer struct {
	t    *time.Timer
	c    chan struct{}
	stop chan struct{}
}

func (st *systemTimer) C() <-chan struct{} {
	return st.c
}

func (st *systemTimer) Stop() bool {
	stopped := st.t.Stop()
	close(st.stop)
	return stopped
}
