// Package pairing owns the local lifecycle of a device pairing session.
//
// A Controller starts a pairing (initiate), joins one from a scanned token
// (complete), keeps it alive by renewing it when its TTL elapses (refresh),
// and drops it when the device is no longer available for pairing. The
// session token is persisted so a restart can resume; the TTL is not and is
// refetched from the service.
//
// Lifecycle:
//
//	UNPAIRED --Initiate--> PENDING
//	UNPAIRED --Complete--> PAIRED
//	PENDING/PAIRED --timer, available--> EXPIRING --Refresh ok--> PENDING/PAIRED
//	EXPIRING --Refresh failed--> UNPAIRED
//	PENDING/PAIRED --timer, unavailable--> UNPAIRED
//	any --SetAvailable(false)--> UNPAIRED
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/mirrorpair/internal/device"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

// DefaultRefreshTimeout bounds a refresh started by the renewal timer.
const DefaultRefreshTimeout = 15 * time.Second

// Remote is the pairing service as seen by the controller.
// *remote.Client satisfies it.
type Remote interface {
	Initialize(ctx context.Context, deviceID string) (protocol.PairObject, error)
	Complete(ctx context.Context, token string, dev protocol.Device) (protocol.PairObject, error)
	Refresh(ctx context.Context, token, deviceID string) (protocol.PairObject, error)
	Remaining(ctx context.Context, token string) (protocol.PairObject, error)
}

// Config configures a Controller.
type Config struct {
	Remote Remote
	Store  store.KV

	// DeviceID identifies this device. Empty means load-or-create from Store.
	DeviceID string

	// Available is the initial availability flag. The zero value starts
	// the controller unavailable, matching a fresh install.
	Available bool

	// RefreshTimeout bounds timer-driven refreshes. Default DefaultRefreshTimeout.
	RefreshTimeout time.Duration
}

// Controller is safe for concurrent use.
type Controller struct {
	remote         Remote
	kv             store.KV
	deviceID       string
	refreshTimeout time.Duration

	// opMu serializes the mutating network operations; flight collapses
	// concurrent Refresh calls into one request.
	opMu   sync.Mutex
	flight singleflight.Group

	mu        sync.Mutex
	available bool
	session   *Session
	state     State
	origin    State // PENDING or PAIRED: what a successful refresh returns to
	gen       uint64
	sched     *scheduler
	closed    bool
	observers map[int]func(Snapshot)
	nextObsID int
}

// NewController builds a controller. No network call is made.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Remote == nil {
		return nil, errors.New("pairing: remote is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("pairing: store is required")
	}
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = device.GetOrCreateID(context.Background(), cfg.Store)
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}

	c := &Controller{
		remote:         cfg.Remote,
		kv:             cfg.Store,
		deviceID:       deviceID,
		refreshTimeout: timeout,
		available:      cfg.Available,
		state:          StateUnpaired,
		origin:         StatePaired,
		observers:      make(map[int]func(Snapshot)),
	}
	c.sched = newScheduler(c.onTimer)
	return c, nil
}

// DeviceID returns the identifier this controller pairs as.
func (c *Controller) DeviceID() string { return c.deviceID }

// Initiate asks the service for a new pairing session for this device.
// On failure the local state is left untouched.
func (c *Controller) Initiate(ctx context.Context) error {
	ch, err := c.initiate(ctx)
	ch.fire()
	return err
}

func (c *Controller) initiate(ctx context.Context) (*change, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	gen, err := c.beginOp()
	if err != nil {
		return nil, err
	}

	obj, err := c.remote.Initialize(ctx, c.deviceID)
	if err != nil {
		slog.Warn("pairing initiate failed", "device_id", c.deviceID, "error", err)
		return nil, fmt.Errorf("initiate pairing: %w", err)
	}

	return c.apply(ctx, gen, obj, StatePending, protocol.EventPairingInitiated)
}

// Complete joins the pairing identified by token. An empty token falls back
// to the persisted one; with neither, ErrNoToken is returned without a
// network call. No prior Initiate is required.
func (c *Controller) Complete(ctx context.Context, token string) error {
	ch, err := c.complete(ctx, token)
	ch.fire()
	return err
}

func (c *Controller) complete(ctx context.Context, token string) (*change, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	gen, err := c.beginOp()
	if err != nil {
		return nil, err
	}

	if token == "" {
		token, err = c.kv.Get(ctx, store.KeyPairToken)
		if errors.Is(err, store.ErrNotFound) || (err == nil && token == "") {
			return nil, ErrNoToken
		}
		if err != nil {
			return nil, fmt.Errorf("load pairing token: %w", err)
		}
	}

	dev := protocol.Device{DeviceID: c.deviceID, Available: true}
	obj, err := c.remote.Complete(ctx, token, dev)
	if err != nil {
		slog.Warn("pairing complete failed", "device_id", c.deviceID, "error", err)
		return nil, fmt.Errorf("complete pairing: %w", err)
	}

	return c.apply(ctx, gen, obj, StatePaired, protocol.EventPairingCompleted)
}

// Resume restores the session from the persisted token after a restart.
// The TTL is fetched from the service; if the service no longer knows the
// token nothing is restored and an error wrapping ErrSessionLost is returned.
func (c *Controller) Resume(ctx context.Context) error {
	ch, err := c.resume(ctx)
	ch.fire()
	return err
}

func (c *Controller) resume(ctx context.Context) (*change, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	gen, err := c.beginOp()
	if err != nil {
		return nil, err
	}

	token, err := c.kv.Get(ctx, store.KeyPairToken)
	if errors.Is(err, store.ErrNotFound) || (err == nil && token == "") {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("load pairing token: %w", err)
	}

	obj, err := c.remote.Remaining(ctx, token)
	if err != nil {
		slog.Info("pairing resume failed", "device_id", c.deviceID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSessionLost, err)
	}
	if obj.Token == "" {
		obj.Token = token
	}

	return c.apply(ctx, gen, obj, StatePaired, protocol.EventPairingResumed)
}

// Refresh renews the current session. It is a no-op without a session.
// Any failure discards the session and returns an error wrapping
// ErrSessionLost; there is no retry.
func (c *Controller) Refresh(ctx context.Context) error {
	// Only the caller that ran the request fires the change, and it does so
	// after leaving the flight so observers may call Refresh again.
	var ch *change
	_, err, _ := c.flight.Do("refresh", func() (any, error) {
		var err error
		ch, err = c.refresh(ctx, 0, false)
		return nil, err
	})
	ch.fire()
	return err
}

// refresh runs one renewal. When fenced, it only proceeds if the
// generation is still wantGen once the operation lock is held.
func (c *Controller) refresh(ctx context.Context, wantGen uint64, fenced bool) (*change, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if fenced && c.gen != wantGen {
		c.mu.Unlock()
		return nil, nil
	}
	if c.session == nil {
		c.mu.Unlock()
		return nil, nil
	}
	token := c.session.Token
	gen := c.gen
	c.mu.Unlock()

	obj, err := c.remote.Refresh(ctx, token, c.deviceID)
	if err != nil {
		c.mu.Lock()
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			return nil, ErrSuperseded
		}
		c.discardLocked()
		ch := c.changeLocked(protocol.EventPairingLost)
		c.mu.Unlock()

		slog.Warn("pairing refresh failed, session discarded", "device_id", c.deviceID, "error", err)
		return ch, fmt.Errorf("%w: %w", ErrSessionLost, err)
	}

	c.mu.Lock()
	next := c.origin
	c.mu.Unlock()
	return c.apply(ctx, gen, obj, next, protocol.EventPairingRefreshed)
}

// SetAvailable sets whether this device may hold a pairing. Switching it
// off discards the session and cancels renewal; switching it on only
// flips the flag.
func (c *Controller) SetAvailable(available bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.available = available
	if !available {
		c.discardLocked()
	}
	snap, obs := c.snapshotLocked(protocol.EventAvailabilityChanged)
	c.mu.Unlock()

	slog.Info("pairing availability changed", "available", available)
	notify(obs, snap)
}

// Available reports the availability flag.
func (c *Controller) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// RemainingTTL asks the service how many seconds the persisted token has
// left. It returns -1 on any failure or when no token is stored; 0 is a
// real answer. Local state is not touched.
func (c *Controller) RemainingTTL(ctx context.Context) int {
	token, err := c.kv.Get(ctx, store.KeyPairToken)
	if err != nil || token == "" {
		return -1
	}
	obj, err := c.remote.Remaining(ctx, token)
	if err != nil {
		slog.Debug("pairing remaining ttl failed", "error", err)
		return -1
	}
	return obj.TTL
}

// IsPaired reports whether a session is present.
func (c *Controller) IsPaired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, _ := c.snapshotLocked("")
	return snap
}

// OnChange registers fn to be called after every state change. Observers
// run on the goroutine that made the change once all controller locks are
// released, so they may call back into the controller (for example to
// Initiate again after EventPairingLost). The returned func unregisters fn.
func (c *Controller) OnChange(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Close disarms the renewal timer. Pending fires are ignored and further
// operations return ErrClosed. The persisted token is kept.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.sched.disarm()
	c.gen++
	snap, obs := c.snapshotLocked(protocol.EventControllerClosed)
	c.mu.Unlock()

	notify(obs, snap)
	return nil
}

// --- Internal ---

// beginOp checks the controller is open and returns the generation the
// operation starts from.
func (c *Controller) beginOp() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	return c.gen, nil
}

// apply installs a session returned by the service, unless the state moved
// on while the request was in flight.
func (c *Controller) apply(ctx context.Context, gen uint64, obj protocol.PairObject, next State, event string) (*change, error) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		slog.Info("pairing response discarded", "event", event, "device_id", c.deviceID)
		return nil, ErrSuperseded
	}
	ttl := obj.TTL
	if ttl < 0 {
		ttl = 0
	}
	c.session = &Session{Token: obj.Token, TTL: ttl}
	c.state = next
	c.origin = next
	c.gen++
	c.sched.arm(ttl)
	ch := c.changeLocked(event)
	c.mu.Unlock()

	if err := c.kv.Set(ctx, store.KeyPairToken, obj.Token); err != nil {
		slog.Warn("pairing token not persisted", "error", err)
	}
	slog.Info("pairing session updated", "event", event, "state", next.String(), "ttl", ttl)
	return ch, nil
}

// discardLocked drops the session and disarms renewal. c.mu must be held.
func (c *Controller) discardLocked() {
	c.sched.disarm()
	c.session = nil
	c.state = StateUnpaired
	c.gen++
}

// onTimer is the scheduler callback.
func (c *Controller) onTimer(seq uint64) {
	c.mu.Lock()
	if c.closed || !c.sched.current(seq) {
		c.mu.Unlock()
		return
	}
	c.sched.fired()

	if !c.available {
		c.discardLocked()
		snap, obs := c.snapshotLocked(protocol.EventPairingExpired)
		c.mu.Unlock()

		slog.Info("pairing expired while unavailable", "device_id", c.deviceID)
		notify(obs, snap)
		return
	}

	c.state = StateExpiring
	gen := c.gen
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()
	ch, err := c.refresh(ctx, gen, true)
	ch.fire()
	if err != nil && !errors.Is(err, ErrSuperseded) {
		slog.Debug("pairing timer refresh", "error", err)
	}
}

// snapshotLocked copies state and observers. c.mu must be held.
func (c *Controller) snapshotLocked(event string) (Snapshot, []func(Snapshot)) {
	snap := Snapshot{
		State:      c.state,
		Available:  c.available,
		DeviceID:   c.deviceID,
		TimerArmed: c.sched.armed(),
		Event:      event,
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	if len(c.observers) == 0 {
		return snap, nil
	}
	obs := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	return snap, obs
}

// change is a notification held back until the operation lock is released.
type change struct {
	snap Snapshot
	obs  []func(Snapshot)
}

// changeLocked captures the current state for a later fire. c.mu must be held.
func (c *Controller) changeLocked(event string) *change {
	snap, obs := c.snapshotLocked(event)
	return &change{snap: snap, obs: obs}
}

// fire notifies observers. A nil change is a no-op.
func (ch *change) fire() {
	if ch == nil {
		return
	}
	notify(ch.obs, ch.snap)
}

func notify(obs []func(Snapshot), snap Snapshot) {
	for _, fn := range obs {
		fn(snap)
	}
}
