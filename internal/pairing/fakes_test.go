package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

// fakeClock hands out timers that only fire on Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs due callbacks on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Pending counts timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) Last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// fakeRemote records calls and answers from per-operation funcs.
type fakeRemote struct {
	mu    sync.Mutex
	calls map[string]int

	lastToken    string
	lastDeviceID string
	lastDevice   protocol.Device

	initialize func(ctx context.Context, deviceID string) (protocol.PairObject, error)
	complete   func(ctx context.Context, token string) (protocol.PairObject, error)
	refresh    func(ctx context.Context, token string) (protocol.PairObject, error)
	remaining  func(ctx context.Context, token string) (protocol.PairObject, error)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: make(map[string]int)}
}

func (f *fakeRemote) record(op, token, deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.lastToken = token
	f.lastDeviceID = deviceID
}

func (f *fakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) Initialize(ctx context.Context, deviceID string) (protocol.PairObject, error) {
	f.record("initialize", "", deviceID)
	if f.initialize == nil {
		return protocol.PairObject{}, errors.New("initialize not stubbed")
	}
	return f.initialize(ctx, deviceID)
}

func (f *fakeRemote) Complete(ctx context.Context, token string, dev protocol.Device) (protocol.PairObject, error) {
	f.record("complete", token, dev.DeviceID)
	f.mu.Lock()
	f.lastDevice = dev
	f.mu.Unlock()
	if f.complete == nil {
		return protocol.PairObject{}, errors.New("complete not stubbed")
	}
	return f.complete(ctx, token)
}

func (f *fakeRemote) Refresh(ctx context.Context, token, deviceID string) (protocol.PairObject, error) {
	f.record("refresh", token, deviceID)
	if f.refresh == nil {
		return protocol.PairObject{}, errors.New("refresh not stubbed")
	}
	return f.refresh(ctx, token)
}

func (f *fakeRemote) Remaining(ctx context.Context, token string) (protocol.PairObject, error) {
	f.record("remaining", token, "")
	if f.remaining == nil {
		return protocol.PairObject{}, errors.New("remaining not stubbed")
	}
	return f.remaining(ctx, token)
}

func okPair(token string, ttl int) func(context.Context, string) (protocol.PairObject, error) {
	return func(context.Context, string) (protocol.PairObject, error) {
		return protocol.PairObject{Token: token, TTL: ttl}, nil
	}
}

func failWith(err error) func(context.Context, string) (protocol.PairObject, error) {
	return func(context.Context, string) (protocol.PairObject, error) {
		return protocol.PairObject{}, err
	}
}

// newTestController wires a controller to a fake remote, memory store and
// fake clock.
func newTestController(t *testing.T, available bool) (*Controller, *fakeRemote, *store.MemoryKV, *fakeClock) {
	t.Helper()
	rem := newFakeRemote()
	kv := store.NewMemory()
	ctrl, err := NewController(Config{Remote: rem, Store: kv, DeviceID: "d1", Available: available})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	clock := &fakeClock{}
	ctrl.sched.afterFunc = clock.AfterFunc
	t.Cleanup(func() { ctrl.Close() })
	return ctrl, rem, kv, clock
}
