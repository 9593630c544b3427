package pairing

import (
	"testing"
	"time"
)

func TestScheduler_ArmReplacesPending(t *testing.T) {
	clock := &fakeClock{}
	var fired []uint64
	s := newScheduler(func(seq uint64) { fired = append(fired, seq) })
	s.afterFunc = clock.AfterFunc

	s.arm(5)
	s.arm(10)
	if clock.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", clock.Pending())
	}
	if !s.armed() {
		t.Error("expected armed")
	}

	clock.Advance(10 * time.Second)
	if len(fired) != 1 || !s.current(fired[0]) {
		t.Errorf("fired = %v, want the latest sequence only", fired)
	}
}

func TestScheduler_DisarmIdempotent(t *testing.T) {
	clock := &fakeClock{}
	s := newScheduler(func(uint64) {})
	s.afterFunc = clock.AfterFunc

	s.disarm()
	s.arm(1)
	s.disarm()
	s.disarm()

	if s.armed() {
		t.Error("expected disarmed")
	}
	if clock.Pending() != 0 {
		t.Errorf("pending = %d, want 0", clock.Pending())
	}
}

func TestScheduler_CurrentAfterDisarm(t *testing.T) {
	clock := &fakeClock{}
	var seq uint64
	s := newScheduler(func(n uint64) { seq = n })
	s.afterFunc = clock.AfterFunc

	s.arm(0)
	clock.Advance(0)
	if !s.current(seq) {
		t.Fatal("fire of armed timer should be current")
	}
	s.fired()
	if s.current(seq) || s.armed() {
		t.Error("slot should be empty after fired()")
	}
}

func TestScheduler_NegativeTTL(t *testing.T) {
	clock := &fakeClock{}
	s := newScheduler(func(uint64) {})
	s.afterFunc = clock.AfterFunc

	s.arm(-7)
	if clock.Last().delay != 0 {
		t.Errorf("delay = %v, want 0", clock.Last().delay)
	}
}

func TestScheduler_RealTimer(t *testing.T) {
	done := make(chan uint64, 1)
	s := newScheduler(func(seq uint64) { done <- seq })

	s.arm(0)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real timer did not fire")
	}
}
