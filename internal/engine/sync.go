package engine

import "sync"

// Sync is the mutex+condvar pair spec §3/§5 calls for: the I/O worker holds
// the mutex only while waiting (inside Wait), and the real-time side only
// ever attempts TryLock, so a missed signal can never stall the RT thread.
type Sync struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewSync builds a ready-to-use Sync.
func NewSync() *Sync {
	s := &Sync{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// TrySignal wakes the worker if the mutex is free right now, and does
// nothing otherwise. Called from the real-time callback; never blocks.
func (s *Sync) TrySignal() {
	if s.mu.TryLock() {
		s.cond.Signal()
		s.mu.Unlock()
	}
}

// Wait blocks the caller (the I/O worker) until the next TrySignal. The
// worker is expected to re-check its own predicates (ring space,
// can_capture, run) on every wakeup rather than rely on a condition baked
// into Sync, matching spec §9's "liveness does not depend on any single
// signal delivery."
func (s *Sync) Wait() {
	s.mu.Lock()
	s.cond.Wait()
	s.mu.Unlock()
}

// WakeAll unconditionally wakes any worker blocked in Wait. Called from
// non-real-time shutdown code (never from the RT callback, which must use
// TrySignal instead) so a stopped worker is not left waiting forever for a
// process period that will never come.
func (s *Sync) WakeAll() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}
