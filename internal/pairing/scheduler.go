package pairing

import "time"

// stopper is the part of *time.Timer the scheduler needs.
type stopper interface {
	Stop() bool
}

// afterFunc schedules f after d. Overridden in tests.
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// scheduler is a single-slot renewal timer. It is not safe for concurrent
// use on its own; the controller calls it with its mutex held.
//
// Each arm gets a sequence number. A fire whose sequence is no longer
// current (the slot was re-armed or disarmed while the callback was already
// on its way) is recognised by current() and dropped.
type scheduler struct {
	afterFunc afterFunc
	timer     stopper
	seq       uint64
	onFire    func(seq uint64)
}

func newScheduler(onFire func(seq uint64)) *scheduler {
	return &scheduler{afterFunc: realAfterFunc, onFire: onFire}
}

// arm disarms any pending timer and schedules a fire after ttlSeconds.
// A TTL of 0 (or less) fires on the next tick.
func (s *scheduler) arm(ttlSeconds int) {
	s.disarm()
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	s.seq++
	seq := s.seq
	s.timer = s.afterFunc(time.Duration(ttlSeconds)*time.Second, func() { s.onFire(seq) })
}

// disarm cancels the pending timer. Idempotent.
func (s *scheduler) disarm() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}

// current reports whether seq belongs to the timer still armed in the slot.
func (s *scheduler) current(seq uint64) bool {
	return s.timer != nil && seq == s.seq
}

// fired clears the slot after the armed timer has gone off.
func (s *scheduler) fired() {
	s.timer = nil
}

func (s *scheduler) armed() bool {
	return s.timer != nil
}
