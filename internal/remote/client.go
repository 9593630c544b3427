// Package remote is the HTTP client for the remote pairing service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

const (
	tracerName = "github.com/nextlevelbuilder/mirrorpair/internal/remote"

	// maxResponseBytes caps how much of a response body is read (64KB).
	maxResponseBytes = 64 * 1024
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client  // nil → a client with Timeout
	Timeout      time.Duration // default 10s
	RateLimitRPM int           // <= 0 disables limiting
	Burst        int           // default 5
	Signer       Signer        // nil → unsigned requests
	UserAgent    string
}

// Client talks to the pairing service. Safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	signer    Signer
	userAgent string
	tracer    trace.Tracer
}

// New creates a client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPM > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimitRPM)/60.0), burst)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "mirrorpair"
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      hc,
		limiter:   limiter,
		signer:    opts.Signer,
		userAgent: ua,
		tracer:    otel.Tracer(tracerName),
	}
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Initialize opens a new pairing for deviceID.
func (c *Client) Initialize(ctx context.Context, deviceID string) (protocol.PairObject, error) {
	var out protocol.PairObject
	err := c.do(ctx, "initialize", http.MethodPost, protocol.PathInitialize,
		protocol.InitializeRequest{DeviceID: deviceID}, &out)
	return out, err
}

// Complete joins the pairing identified by token.
func (c *Client) Complete(ctx context.Context, token string, dev protocol.Device) (protocol.PairObject, error) {
	var out protocol.PairObject
	err := c.do(ctx, "complete", http.MethodPost, protocol.PathComplete,
		protocol.CompleteRequest{Token: token, Device: dev}, &out)
	return out, err
}

// Refresh trades token for a fresh one.
func (c *Client) Refresh(ctx context.Context, token, deviceID string) (protocol.PairObject, error) {
	var out protocol.PairObject
	err := c.do(ctx, "refresh", http.MethodPost, protocol.PathRefresh,
		protocol.RefreshRequest{
			Token:    token,
			DeviceID: deviceID,
			Device:   protocol.Device{DeviceID: deviceID, Available: true},
		}, &out)
	return out, err
}

// Remaining asks how many seconds token has left.
func (c *Client) Remaining(ctx context.Context, token string) (protocol.PairObject, error) {
	var out protocol.PairObject
	path := protocol.PathRemaining + "?" + url.Values{"token": {token}}.Encode()
	err := c.do(ctx, "remaining", http.MethodGet, path, nil, &out)
	return out, err
}

// ToggleDevice withdraws deviceID from every pairing it belongs to.
func (c *Client) ToggleDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, "toggle", http.MethodPut, protocol.PathDeviceToggle,
		protocol.ToggleRequest{DeviceID: deviceID}, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "pairing."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("pairing.op", op),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		if err := c.signer.Sign(req); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("sign request: %w", err)}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	slog.Debug("pairing request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb protocol.ErrorBody
		_ = json.Unmarshal(raw, &eb)
		return &RejectedError{Op: op, Status: resp.StatusCode, Reason: eb.Reason}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
