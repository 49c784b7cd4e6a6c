// Package oauth implements the authorization-code+PKCE and device-auth
// login flows for the OAuth-gated upstreams (claude_code, codex,
// gemini_cli): an opaque state_id keyed map instead of the teacher's
// local-callback-listener model, since this gateway's OAuth endpoints are
// routes on the same HTTP server every inbound request already reaches
// (internal/api), not a separate short-lived localhost server per login.
//
// PKCE generation follows internal/auth/claude/pkce.go's RFC 7636 shape;
// the state map follows internal/auth/codex/oauth_server.go's
// code/state/error result fields, generalized from a channel handoff to a
// TTL-pruned map so multiple concurrent logins (and restarts mid-flow)
// don't share one callback channel.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PKCE holds one authorization-code flow's verifier/challenge pair.
type PKCE struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCE produces a verifier/challenge pair per RFC 7636 §4.1/4.2,
// mirroring the teacher's GeneratePKCECodes byte-for-byte (96 random
// bytes, URL-safe base64 verifier, SHA-256 S256 challenge).
func GeneratePKCE() (PKCE, error) {
	raw := make([]byte, 96)
	if _, err := rand.Read(raw); err != nil {
		return PKCE{}, err
	}
	verifier := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
	return PKCE{CodeVerifier: verifier, CodeChallenge: challenge}, nil
}

// FlowKind distinguishes the two login shapes the providers need.
type FlowKind int

const (
	FlowAuthorizationCode FlowKind = iota
	FlowDevice
)

// PendingLogin is one in-flight login, keyed by an opaque state_id the
// caller hands to the provider's authorize URL (or receives back as a
// device_code) and must present again on callback/poll.
type PendingLogin struct {
	StateID      string
	Provider     string
	Kind         FlowKind
	PKCE         PKCE
	DeviceCode   string
	PollInterval time.Duration
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (p *PendingLogin) expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// StateStore is the TTL-pruned map of pending logins, guarded by a single
// mutex per SPEC_FULL.md §5 (matching the teacher's RoundRobinSelector's
// single-mutex-plus-map shape rather than a sharded or lock-free design,
// since login volume is orders of magnitude lower than request volume).
type StateStore struct {
	mu      sync.Mutex
	entries map[string]*PendingLogin
	ttl     time.Duration
}

// NewStateStore builds a store pruning entries older than ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{entries: make(map[string]*PendingLogin), ttl: ttl}
}

// newStateID generates a fresh opaque id: 32 random bytes as unpadded
// URL-safe base64, falling back to a random UUID if reading the system
// randomness source fails.
func newStateID() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Start registers a new pending login and returns its state_id.
func (s *StateStore) Start(provider string, kind FlowKind, pkce PKCE) *PendingLogin {
	now := time.Now()
	p := &PendingLogin{
		StateID:   newStateID(),
		Provider:  provider,
		Kind:      kind,
		PKCE:      pkce,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	s.entries[p.StateID] = p
	return p
}

// StartDevice registers a device-auth pending login, the device_code
// itself doubling as the lookup key since the polling client never
// receives a separate state_id in that flow.
func (s *StateStore) StartDevice(provider, deviceCode string, pollInterval time.Duration) *PendingLogin {
	now := time.Now()
	p := &PendingLogin{
		StateID:      newStateID(),
		Provider:     provider,
		Kind:         FlowDevice,
		DeviceCode:   deviceCode,
		PollInterval: pollInterval,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	s.entries[deviceCode] = p
	return p
}

// Take removes and returns the pending login for id, if present and not
// expired; a login is single-use, matching the teacher's one-shot result
// channel semantics.
func (s *StateStore) Take(id string) (*PendingLogin, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	p, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	return p, true
}

// Peek looks up a pending login without consuming it, used by device-auth
// polling where the same device_code is checked repeatedly until the user
// completes the browser step.
func (s *StateStore) Peek(id string) (*PendingLogin, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	p, ok := s.entries[id]
	return p, ok
}

// PendingAuthorizationCodeStates returns every non-expired
// authorization-code login currently in flight, used to resolve a
// callback whose redirect omitted state entirely.
func (s *StateStore) PendingAuthorizationCodeStates() []*PendingLogin {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	var out []*PendingLogin
	for _, p := range s.entries {
		if p.Kind == FlowAuthorizationCode {
			out = append(out, p)
		}
	}
	return out
}

// Complete removes id after a successful device-auth poll.
func (s *StateStore) Complete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *StateStore) prune(now time.Time) {
	for id, p := range s.entries {
		if p.expired(now) {
			delete(s.entries, id)
		}
	}
}
