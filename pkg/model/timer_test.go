package model

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

type timerOwner struct {
	fired atomic.Int64

	// Keep the struct larger than 16 bytes so it bypasses the runtime's
	// tiny allocator; tiny-allocated objects share a block with their
	// neighbors and are never individually collectable, which would keep
	// the weak reference alive indefinitely.
	_ [16]byte
}

func TestTimerSlotFiresOnce(t *testing.T) {
	owner := &timerOwner{}
	var slot TimerSlot[timerOwner]

	slot.Arm(owner, 10*time.Millisecond, func(o *timerOwner) {
		o.fired.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for owner.fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := owner.fired.Load(); got != 1 {
		t.Fatalf("fired %d times", got)
	}
	if _, pending := slot.Deadline(); pending {
		t.Fatal("slot still pending after firing")
	}
}

func TestTimerSlotReplacementCancelsOld(t *testing.T) {
	owner := &timerOwner{}
	var slot TimerSlot[timerOwner]
	var oldFired, newFired atomic.Int64

	slot.Arm(owner, 30*time.Millisecond, func(*timerOwner) {
		oldFired.Add(1)
	})
	slot.Arm(owner, 10*time.Millisecond, func(*timerOwner) {
		newFired.Add(1)
	})

	time.Sleep(150 * time.Millisecond)
	if got := oldFired.Load(); got != 0 {
		t.Fatalf("replaced deadline fired %d times", got)
	}
	if got := newFired.Load(); got != 1 {
		t.Fatalf("new deadline fired %d times", got)
	}
}

func TestTimerSlotStopPreventsFiring(t *testing.T) {
	owner := &timerOwner{}
	var slot TimerSlot[timerOwner]

	slot.Arm(owner, 20*time.Millisecond, func(o *timerOwner) {
		o.fired.Add(1)
	})
	slot.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := owner.fired.Load(); got != 0 {
		t.Fatalf("stopped deadline fired %d times", got)
	}
	if _, pending := slot.Deadline(); pending {
		t.Fatal("slot pending after stop")
	}
}

func TestTimerSlotCollectedOwnerDoesNotFire(t *testing.T) {
	var slot TimerSlot[timerOwner]
	var fired atomic.Int64

	func() {
		owner := &timerOwner{}
		slot.Arm(owner, 100*time.Millisecond, func(*timerOwner) {
			fired.Add(1)
		})
	}()

	// Without a strong reference the owner is collectable; the deadline
	// still elapses but the firing must be a no-op.
	runtime.GC()
	runtime.GC()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, pending := slot.Deadline(); !pending {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, pending := slot.Deadline(); pending {
		t.Fatal("slot still pending after deadline elapsed")
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("deadline fired %d times for a collected owner", got)
	}
}

func TestTimerSlotRearmAfterFire(t *testing.T) {
	owner := &timerOwner{}
	var slot TimerSlot[timerOwner]

	for i := 0; i < 2; i++ {
		slot.Arm(owner, 5*time.Millisecond, func(o *timerOwner) {
			o.fired.Add(1)
		})
		deadline := time.Now().Add(2 * time.Second)
		for owner.fired.Load() <= int64(i) && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
	}
	if got := owner.fired.Load(); got != 2 {
		t.Fatalf("fired %d times across two arms", got)
	}
}
