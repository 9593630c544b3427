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

type recordingRenderer struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (r *recordingRenderer) Render(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return r.err
}

func (r *recordingRenderer) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func TestLandingURL(t *testing.T) {
	tests := []struct {
		base, token, want string
	}{
		{"http://127.0.0.1:8000", "abc", "http://127.0.0.1:8000/pairing/?token=abc"},
		{"http://127.0.0.1:8000/", "abc", "http://127.0.0.1:8000/pairing/?token=abc"},
		{"https://mirror.example", "", "https://mirror.example/pairing/?token="},
		{"https://mirror.example", "a+b/c=", "https://mirror.example/pairing/?token=a%2Bb%2Fc%3D"},
	}
	for _, tt := range tests {
		if got := LandingURL(tt.base, tt.token); got != tt.want {
			t.Errorf("LandingURL(%q, %q) = %q, want %q", tt.base, tt.token, got, tt.want)
		}
	}
}

func TestRefresher_Cycle(t *testing.T) {
	ctrl, rem, kv, _ := newTestController(t, true)
	rem.complete = okPair("tok1", 60)
	rem.refresh = okPair("tok2", 60)
	rem.remaining = okPair("tok2", 59)
	if err := ctrl.Complete(context.Background(), "tok1"); err != nil {
		t.Fatal(err)
	}

	rr := &recordingRenderer{}
	r := NewRefresher(ctrl, "http://svc", rr, time.Second)
	var slept time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	var reported []int
	r.OnTTL = func(ttl int) { reported = append(reported, ttl) }

	if r.Remaining() != -1 {
		t.Errorf("initial Remaining = %d, want -1", r.Remaining())
	}
	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if urls := rr.URLs(); len(urls) != 1 || urls[0] != "http://svc/pairing/?token=tok2" {
		t.Errorf("rendered = %v", urls)
	}
	if slept != time.Second {
		t.Errorf("slept %v, want 1s", slept)
	}
	if r.Remaining() != 59 {
		t.Errorf("Remaining = %d, want 59", r.Remaining())
	}
	if len(reported) != 1 || reported[0] != 59 {
		t.Errorf("reported = %v", reported)
	}
	if tok, _ := kv.Get(context.Background(), store.KeyPairToken); tok != "tok2" {
		t.Errorf("persisted token = %q", tok)
	}
}

func TestRefresher_CycleAfterFailedRefresh(t *testing.T) {
	ctrl, rem, _, _ := newTestController(t, true)
	rem.complete = okPair("tok1", 60)
	rem.refresh = failWith(errors.New("403"))
	rem.remaining = failWith(errors.New("404"))
	if err := ctrl.Complete(context.Background(), "tok1"); err != nil {
		t.Fatal(err)
	}

	rr := &recordingRenderer{}
	r := NewRefresher(ctrl, "http://svc", rr, time.Second)
	r.sleep = func(context.Context, time.Duration) error { return nil }

	if err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if urls := rr.URLs(); len(urls) != 1 || urls[0] != "http://svc/pairing/?token=" {
		t.Errorf("rendered = %v, want empty-token url", urls)
	}
	if r.Remaining() != -1 {
		t.Errorf("Remaining = %d, want -1", r.Remaining())
	}
}

func TestRefresher_CycleCancelled(t *testing.T) {
	ctrl, _, _, _ := newTestController(t, true)
	r := NewRefresher(ctrl, "http://svc", nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Cycle(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Cycle err = %v, want context.Canceled", err)
	}
}

func TestRefresher_RunRendersOnTokenChange(t *testing.T) {
	ctrl, rem, _, _ := newTestController(t, true)
	rem.initialize = func(context.Context, string) (protocol.PairObject, error) {
		return protocol.PairObject{Token: "tok1", TTL: 60}, nil
	}
	rem.remaining = okPair("tok1", 60)

	rr := &recordingRenderer{}
	r := NewRefresher(ctrl, "http://svc", rr, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	waitFor(t, func() bool { return len(rr.URLs()) == 1 })
	if err := ctrl.Initiate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rr.URLs()) == 2 })

	// Availability change without a token change does not redraw.
	ctrl.SetAvailable(true)
	time.Sleep(30 * time.Millisecond)

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}

	urls := rr.URLs()
	if len(urls) != 2 {
		t.Fatalf("rendered = %v, want 2 urls", urls)
	}
	if urls[0] != "http://svc/pairing/?token=" || urls[1] != "http://svc/pairing/?token=tok1" {
		t.Errorf("rendered = %v", urls)
	}
	if r.Remaining() != 60 {
		t.Errorf("Remaining = %d, want 60", r.Remaining())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRefresher_SetInterval(t *testing.T) {
	ctrl, _, _, _ := newTestController(t, true)
	r := NewRefresher(ctrl, "http://svc", nil, 0)
	if r.Interval() != DefaultPollInterval {
		t.Errorf("default interval = %v", r.Interval())
	}

	// Repeated calls without a running loop must not block.
	r.SetInterval(50 * time.Millisecond)
	r.SetInterval(20 * time.Millisecond)
	if r.Interval() != 20*time.Millisecond {
		t.Errorf("interval = %v, want 20ms", r.Interval())
	}
	r.SetInterval(-1)
	if r.Interval() != DefaultPollInterval {
		t.Errorf("interval = %v, want default", r.Interval())
	}
}
