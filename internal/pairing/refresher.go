package pairing

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

// DefaultPollInterval is the pause between a refresh and the TTL read.
const DefaultPollInterval = time.Second

// QRRenderer displays the landing URL a peer scans to join.
type QRRenderer interface {
	Render(url string) error
}

// LandingURL builds the URL encoded in the pairing QR code.
// An empty token yields a URL with an empty token parameter.
func LandingURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + protocol.PathLanding + "?token=" + url.QueryEscape(token)
}

// Refresher drives the display side of a pairing: it keeps the QR code in
// sync with the controller's token and tracks the remaining TTL.
type Refresher struct {
	ctrl     *Controller
	baseURL  string
	renderer QRRenderer
	interval time.Duration // guarded by mu

	// OnTTL, if set, is called with every TTL reading.
	OnTTL func(ttl int)

	remaining atomic.Int64

	mu         sync.Mutex
	lastToken  string
	rendered   bool
	intervalCh chan time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRefresher returns a Refresher. interval <= 0 means DefaultPollInterval.
func NewRefresher(ctrl *Controller, baseURL string, renderer QRRenderer, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	r := &Refresher{
		ctrl:       ctrl,
		baseURL:    baseURL,
		renderer:   renderer,
		interval:   interval,
		intervalCh: make(chan time.Duration, 1),
		sleep:      sleepCtx,
	}
	r.remaining.Store(-1)
	return r
}

// SetInterval changes the poll interval, including for a running Run loop.
func (r *Refresher) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = d

	// Keep only the latest value for Run.
	select {
	case <-r.intervalCh:
	default:
	}
	r.intervalCh <- d
}

// Interval returns the current poll interval.
func (r *Refresher) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Remaining returns the last TTL reading, -1 before the first one.
func (r *Refresher) Remaining() int {
	return int(r.remaining.Load())
}

// Cycle runs one refresh, renders the QR for the resulting token, waits one
// poll interval and then records the remaining TTL. A failed refresh is
// logged and the cycle continues with whatever state is left.
func (r *Refresher) Cycle(ctx context.Context) error {
	if err := r.ctrl.Refresh(ctx); err != nil {
		slog.Warn("pairing qr refresh failed", "error", err)
	}
	r.render(r.ctrl.Snapshot().Token(), true)

	if err := r.sleep(ctx, r.Interval()); err != nil {
		return err
	}
	r.readTTL(ctx)
	return nil
}

// Run re-renders the QR whenever the token changes and polls the remaining
// TTL every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	cancel := r.ctrl.OnChange(func(Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	r.render(r.ctrl.Snapshot().Token(), false)
	r.readTTL(ctx)

	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			r.render(r.ctrl.Snapshot().Token(), false)
		case d := <-r.intervalCh:
			ticker.Reset(d)
		case <-ticker.C:
			r.readTTL(ctx)
		}
	}
}

// render draws the QR for token. Without force, an unchanged token is skipped.
func (r *Refresher) render(token string, force bool) {
	r.mu.Lock()
	if !force && r.rendered && token == r.lastToken {
		r.mu.Unlock()
		return
	}
	r.lastToken = token
	r.rendered = true
	r.mu.Unlock()

	if r.renderer == nil {
		return
	}
	if err := r.renderer.Render(LandingURL(r.baseURL, token)); err != nil {
		slog.Warn("pairing qr render failed", "error", err)
	}
}

func (r *Refresher) readTTL(ctx context.Context) {
	ttl := r.ctrl.RemainingTTL(ctx)
	r.remaining.Store(int64(ttl))
	if r.OnTTL != nil {
		r.OnTTL(ttl)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
