package devserver

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/mirrorpair/pkg/protocol"
)

const (
	// TokenBytes is the amount of randomness in a pairing token.
	TokenBytes = 36

	// DefaultTTL is how long a pairing stays valid without a refresh.
	DefaultTTL = protocol.DefaultTTL * time.Second
)

var (
	ErrDeviceBusy     = errors.New("device already in another pairing session")
	ErrTokenNotFound  = errors.New("pairing token not found")
	ErrNotOpen        = errors.New("pairing not open to join")
	ErrNotMember      = errors.New("device not part of pairing")
	ErrDeviceNotFound = errors.New("device id not found")
)

// pairingEntry is one live pairing.
type pairingEntry struct {
	Token      string
	TTL        int
	ExpiresAt  time.Time
	OpenToJoin bool
	Nodes      []protocol.Device
}

func (p *pairingEntry) hasNode(deviceID string) bool {
	for _, n := range p.Nodes {
		if n.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// Registry holds live pairings in memory, indexed by token and by device.
type Registry struct {
	mu       sync.Mutex
	pairings map[string]*pairingEntry
	devices  map[string]string // deviceID → token
	ttl      time.Duration

	nowFunc  func() time.Time
	newToken func() (string, error)
}

// NewRegistry creates an empty registry. ttl <= 0 means DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		pairings: make(map[string]*pairingEntry),
		devices:  make(map[string]string),
		ttl:      ttl,
		nowFunc:  time.Now,
		newToken: generateToken,
	}
}

// Initialize opens a new pairing with dev as its first node.
func (r *Registry) Initialize(dev protocol.Device) (protocol.PairObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneExpired()

	if _, busy := r.devices[dev.DeviceID]; busy {
		return protocol.PairObject{}, ErrDeviceBusy
	}

	p, err := r.newEntry()
	if err != nil {
		return protocol.PairObject{}, err
	}
	p.OpenToJoin = true
	p.Nodes = []protocol.Device{dev}
	r.pairings[p.Token] = p
	r.devices[dev.DeviceID] = p.Token

	slog.Info("pairing initialized", "device_id", dev.DeviceID, "ttl", p.TTL)
	return protocol.PairObject{Token: p.Token, TTL: p.TTL}, nil
}

// Complete joins dev to the pairing and closes it to further joins.
func (r *Registry) Complete(token string, dev protocol.Device) (protocol.PairObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneExpired()

	if _, busy := r.devices[dev.DeviceID]; busy {
		return protocol.PairObject{}, ErrDeviceBusy
	}
	p, ok := r.pairings[token]
	if !ok {
		return protocol.PairObject{}, ErrTokenNotFound
	}
	if !p.OpenToJoin {
		return protocol.PairObject{}, ErrNotOpen
	}

	p.Nodes = append(p.Nodes, dev)
	p.OpenToJoin = false
	r.devices[dev.DeviceID] = token

	slog.Info("pairing completed", "device_id", dev.DeviceID, "nodes", len(p.Nodes))
	return protocol.PairObject{Token: p.Token, TTL: r.remaining(p)}, nil
}

// Refresh replaces token with a fresh one carrying the same nodes and a
// full TTL. The old token stops working.
func (r *Registry) Refresh(token, deviceID string) (protocol.PairObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneExpired()

	old, ok := r.pairings[token]
	if !ok {
		return protocol.PairObject{}, ErrTokenNotFound
	}
	if !old.hasNode(deviceID) {
		return protocol.PairObject{}, ErrNotMember
	}

	p, err := r.newEntry()
	if err != nil {
		return protocol.PairObject{}, err
	}
	p.OpenToJoin = old.OpenToJoin
	p.Nodes = old.Nodes

	delete(r.pairings, token)
	r.pairings[p.Token] = p
	for _, n := range p.Nodes {
		r.devices[n.DeviceID] = p.Token
	}

	slog.Info("pairing refreshed", "device_id", deviceID, "nodes", len(p.Nodes))
	return protocol.PairObject{Token: p.Token, TTL: p.TTL}, nil
}

// Remaining returns the whole seconds left on token.
func (r *Registry) Remaining(token string) (protocol.PairObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneExpired()

	p, ok := r.pairings[token]
	if !ok {
		return protocol.PairObject{}, ErrTokenNotFound
	}
	return protocol.PairObject{Token: p.Token, TTL: r.remaining(p)}, nil
}

// RemoveDevice drops deviceID from its pairing. A pairing left without
// nodes is removed.
func (r *Registry) RemoveDevice(deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	delete(r.devices, deviceID)

	if p, ok := r.pairings[token]; ok {
		nodes := p.Nodes[:0:0]
		for _, n := range p.Nodes {
			if n.DeviceID != deviceID {
				nodes = append(nodes, n)
			}
		}
		p.Nodes = nodes
		if len(nodes) == 0 {
			delete(r.pairings, token)
		}
	}

	slog.Info("pairing device removed", "device_id", deviceID)
	return nil
}

// Nodes returns a copy of the devices in the pairing, or nil if unknown.
func (r *Registry) Nodes(token string) []protocol.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairings[token]
	if !ok {
		return nil
	}
	out := make([]protocol.Device, len(p.Nodes))
	copy(out, p.Nodes)
	return out
}

// Len returns the number of live pairings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairings)
}

// Sweep removes expired pairings and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneExpired()
}

// --- Internal ---

func (r *Registry) newEntry() (*pairingEntry, error) {
	token, err := r.newToken()
	if err != nil {
		return nil, err
	}
	return &pairingEntry{
		Token:     token,
		TTL:       int(r.ttl / time.Second),
		ExpiresAt: r.nowFunc().Add(r.ttl),
	}, nil
}

func (r *Registry) remaining(p *pairingEntry) int {
	left := int(p.ExpiresAt.Sub(r.nowFunc()) / time.Second)
	if left < 0 {
		return 0
	}
	return left
}

func (r *Registry) pruneExpired() int {
	now := r.nowFunc()
	n := 0
	for token, p := range r.pairings {
		if now.Before(p.ExpiresAt) {
			continue
		}
		for _, node := range p.Nodes {
			if r.devices[node.DeviceID] == token {
				delete(r.devices, node.DeviceID)
			}
		}
		delete(r.pairings, token)
		n++
		slog.Info("pairing expired", "nodes", len(p.Nodes))
	}
	return n
}

func generateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
