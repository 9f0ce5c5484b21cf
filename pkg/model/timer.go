package model

import (
	"context"
	"sync"
	"time"
	"weak"
)

// TimerSlot holds at most one pending deadline for an owner of type T.
// Arming the slot cancels any previously pending deadline, so exactly
// one deadline is ever pending per owner. The firing goroutine reaches
// the owner through a weak reference: a collected owner makes the
// firing a harmless no-op.
//
// The zero value is ready to use.
type TimerSlot[T any] struct {
	mu       sync.Mutex
	pending  *pendingTimer
	deadline time.Time
}

// pendingTimer identifies one armed deadline. The pointer doubles as a
// generation token so a stale firing cannot clear a newer deadline.
type pendingTimer struct {
	cancel context.CancelFunc
}

// Arm schedules fire(owner) after d, replacing any pending deadline.
// A replaced deadline never fires.
func (s *TimerSlot[T]) Arm(owner *T, d time.Duration, fire func(*T)) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingTimer{cancel: cancel}
	wp := weak.Make(owner)

	s.mu.Lock()
	if s.pending != nil {
		s.pending.cancel()
	}
	s.pending = p
	s.deadline = time.Now().Add(d)
	s.mu.Unlock()

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Clear the slot only if this deadline is still the armed one.
		s.mu.Lock()
		stale := s.pending != p
		if !stale {
			s.pending = nil
		}
		s.mu.Unlock()
		if stale {
			return
		}
		cancel()

		if o := wp.Value(); o != nil {
			fire(o)
		}
	}()
}

// Stop cancels the pending deadline, if any.
func (s *TimerSlot[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.cancel()
		s.pending = nil
	}
}

// Deadline returns the pending deadline. The second return is false
// when no deadline is pending.
func (s *TimerSlot[T]) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.pending != nil
}
