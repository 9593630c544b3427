package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/mirrorpair/internal/pairing"
	"github.com/nextlevelbuilder/mirrorpair/internal/remote"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Options{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			rd = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func reasonOf(t *testing.T, data []byte) string {
	t.Helper()
	var eb protocol.ErrorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		t.Fatalf("decode error body %q: %v", data, err)
	}
	return eb.Reason
}

func TestServer_StatusCodes(t *testing.T) {
	_, ts := newTestServer(t)

	status, data := doJSON(t, http.MethodPost, ts.URL+protocol.PathInitialize, protocol.InitializeRequest{DeviceID: devA})
	if status != http.StatusOK {
		t.Fatalf("initialize status = %d body=%s", status, data)
	}
	var obj protocol.PairObject
	json.Unmarshal(data, &obj)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantReason string
	}{
		{"initialize bad json", http.MethodPost, protocol.PathInitialize, "{", http.StatusBadRequest, ""},
		{"initialize missing id", http.MethodPost, protocol.PathInitialize, map[string]any{}, http.StatusBadRequest, protocol.ReasonMissingDeviceID},
		{"initialize non-uuid", http.MethodPost, protocol.PathInitialize, protocol.InitializeRequest{DeviceID: "d1"}, http.StatusBadRequest, protocol.ReasonInvalidDeviceID},
		{"initialize busy", http.MethodPost, protocol.PathInitialize, protocol.InitializeRequest{DeviceID: devA}, http.StatusConflict, protocol.ReasonDeviceBusy},
		{"complete unknown", http.MethodPost, protocol.PathComplete, protocol.CompleteRequest{Token: "nope", Device: protocol.Device{DeviceID: devB}}, http.StatusNotFound, protocol.ReasonTokenNotFound},
		{"complete no token", http.MethodPost, protocol.PathComplete, protocol.CompleteRequest{Device: protocol.Device{DeviceID: devB}}, http.StatusBadRequest, protocol.ReasonTokenRequired},
		{"refresh unknown", http.MethodPost, protocol.PathRefresh, protocol.RefreshRequest{Token: "nope", DeviceID: devA}, http.StatusNotFound, protocol.ReasonTokenNotFound},
		{"refresh not member", http.MethodPost, protocol.PathRefresh, protocol.RefreshRequest{Token: obj.Token, DeviceID: devC}, http.StatusForbidden, protocol.ReasonNotMember},
		{"remaining missing", http.MethodGet, protocol.PathRemaining, nil, http.StatusBadRequest, protocol.ReasonMissingToken},
		{"remaining unknown", http.MethodGet, protocol.PathRemaining + "?token=nope", nil, http.StatusNotFound, protocol.ReasonTokenNotFound},
		{"toggle unknown", http.MethodPut, protocol.PathDeviceToggle, protocol.ToggleRequest{DeviceID: devC}, http.StatusNotFound, protocol.ReasonDeviceNotFound},
		{"wrong method", http.MethodGet, protocol.PathInitialize, nil, http.StatusMethodNotAllowed, protocol.ReasonMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body=%s)", status, tt.wantStatus, data)
			}
			if tt.wantReason != "" {
				if got := reasonOf(t, data); got != tt.wantReason {
					t.Errorf("reason = %q, want %q", got, tt.wantReason)
				}
			}
		})
	}
}

func TestServer_CompleteThenToggle(t *testing.T) {
	_, ts := newTestServer(t)

	_, data := doJSON(t, http.MethodPost, ts.URL+protocol.PathInitialize, protocol.InitializeRequest{DeviceID: devA})
	var obj protocol.PairObject
	json.Unmarshal(data, &obj)

	status, data := doJSON(t, http.MethodPost, ts.URL+protocol.PathComplete,
		protocol.CompleteRequest{Token: obj.Token, Device: protocol.Device{DeviceID: devB, Available: true}})
	if status != http.StatusOK {
		t.Fatalf("complete status = %d body=%s", status, data)
	}

	status, data = doJSON(t, http.MethodPost, ts.URL+protocol.PathComplete,
		protocol.CompleteRequest{Token: obj.Token, Device: protocol.Device{DeviceID: devC}})
	if status != http.StatusConflict || reasonOf(t, data) != protocol.ReasonNotOpen {
		t.Errorf("second complete = %d %s", status, data)
	}

	status, data = doJSON(t, http.MethodPut, ts.URL+protocol.PathDeviceToggle, protocol.ToggleRequest{DeviceID: devB})
	if status != http.StatusOK {
		t.Fatalf("toggle status = %d body=%s", status, data)
	}
	var dev protocol.Device
	json.Unmarshal(data, &dev)
	if dev.DeviceID != devB || dev.Available {
		t.Errorf("toggle response = %+v", dev)
	}
}

func TestServer_Options(t *testing.T) {
	_, ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+protocol.PathRefresh, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != "OPTIONS, POST" {
		t.Errorf("Allow = %q", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	_, ts := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+protocol.PathInitialize, protocol.InitializeRequest{DeviceID: devA})
	doJSON(t, http.MethodPost, ts.URL+protocol.PathInitialize, protocol.InitializeRequest{DeviceID: devA})

	status, data := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	body := string(data)
	for _, want := range []string{
		`mirrorpair_pairing_requests_total{op="initialize",outcome="ok"} 1`,
		`mirrorpair_pairing_requests_total{op="initialize",outcome="rejected"} 1`,
		`mirrorpair_pairing_live 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServer_Landing(t *testing.T) {
	_, ts := newTestServer(t)
	_, data := doJSON(t, http.MethodPost, ts.URL+protocol.PathInitialize, protocol.InitializeRequest{DeviceID: devA})
	var obj protocol.PairObject
	json.Unmarshal(data, &obj)

	status, page := doJSON(t, http.MethodGet, ts.URL+pairing.LandingURL("", obj.Token), nil)
	if status != http.StatusOK {
		t.Fatalf("landing status = %d", status)
	}
	html := string(page)
	if !strings.Contains(html, obj.Token) {
		t.Error("landing page should show the token")
	}
	if !strings.Contains(html, "data:image/png;base64,") {
		t.Error("landing page should embed the QR image")
	}
	if !strings.Contains(html, "Expires in ") {
		t.Error("landing page should show the remaining ttl")
	}
}

func TestServer_Sweeper(t *testing.T) {
	s := New(Options{TTL: time.Second})
	s.registry.nowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	s.registry.pairings["tok"] = &pairingEntry{Token: "tok", ExpiresAt: time.Now()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunSweeper(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for s.registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove expired pairing")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestServer_ControllerEndToEnd drives two controllers through the real
// HTTP client against the in-memory service.
func TestServer_ControllerEndToEnd(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	newCtrl := func(id string) (*pairing.Controller, store.KV) {
		kv := store.NewMemory()
		client := remote.New(remote.Options{BaseURL: ts.URL, Signer: remote.CSRFSigner{Token: "csrf"}})
		ctrl, err := pairing.NewController(pairing.Config{Remote: client, Store: kv, DeviceID: id, Available: true})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { ctrl.Close() })
		return ctrl, kv
	}

	host, _ := newCtrl(devA)
	guest, _ := newCtrl(devB)

	if err := host.Initiate(ctx); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	token := host.Snapshot().Token()
	if ttl := host.RemainingTTL(ctx); ttl < 599 || ttl > 600 {
		t.Errorf("host RemainingTTL = %d", ttl)
	}

	if err := guest.Complete(ctx, token); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if guest.State() != pairing.StatePaired {
		t.Errorf("guest state = %v", guest.State())
	}

	if err := guest.Refresh(ctx); err != nil {
		t.Fatalf("guest Refresh: %v", err)
	}
	if guest.Snapshot().Token() == token {
		t.Error("refresh should rotate the token")
	}

	// The host still holds the retired token; its refresh is rejected and
	// the session is dropped.
	err := host.Refresh(ctx)
	if status, ok := remote.IsRejected(err); !ok || status != http.StatusNotFound {
		t.Errorf("host Refresh err = %v, want 404 rejection", err)
	}
	if host.IsPaired() {
		t.Error("host session should be discarded")
	}
	if host.RemainingTTL(ctx) != -1 {
		t.Error("retired token should report -1")
	}
}
