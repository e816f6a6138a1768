package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(0)
	timer := f.NewTimer(500 * time.Millisecond)

	select {
	case <-timer.C():
		t.Fatal("timer fired before Advance")
	default:
	}

	f.Advance((400 * time.Millisecond).Nanoseconds())
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	f.Advance((101 * time.Millisecond).Nanoseconds())
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire after its deadline passed")
	}
}

func TestFakeStopPreventsFiring(t *testing.T) {
	f := NewFake(0)
	timer := f.NewTimer(10 * time.Millisecond)
	if !timer.Stop() {
		t.Fatal("expected Stop to report success on first call")
	}
	f.Advance((100 * time.Millisecond).Nanoseconds())
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFakeNowNSMonotonic(t *testing.T) {
	f := NewFake(1000)
	if f.NowNS() != 1000 {
		t.Fatalf("NowNS() = %d, want 1000", f.NowNS())
	}
	f.Advance(500)
	if f.NowNS() != 1500 {
		t.Fatalf("NowNS() = %d, want 1500", f.NowNS())
	}
}
