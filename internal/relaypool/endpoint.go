// Package relaypool implements C4: a multi-relay WebSocket client with
// connection monitoring and exponential-backoff auto-reconnection,
// modeled on the teacher's per-relay circuit breaker but built around an
// explicit per-endpoint state machine instead of a publish-only breaker,
// since spec requires the connection states themselves to be observable.
package relaypool

import (
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// State is a relay endpoint's position in the connection state machine
// described by spec §4.4.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// backoffSchedule is the fixed reconnect delay sequence: 1s, 2s, 4s, 8s,
// 16s, then capped at 30s for every attempt after.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// backoffDelay returns the delay before the k-th reconnection attempt
// (k >= 1), capped at cap once the fixed schedule is exhausted.
func backoffDelay(k int, cap time.Duration) time.Duration {
	if k < 1 {
		k = 1
	}
	idx := k - 1
	if idx >= len(backoffSchedule) {
		return cap
	}
	d := backoffSchedule[idx]
	if d > cap {
		return cap
	}
	return d
}

// Endpoint tracks one relay's desired and observed connection state.
type Endpoint struct {
	mu              sync.Mutex
	url             string // normalized, always ends with "/"
	desiredConnect  bool
	state           State
	relay           *nostr.Relay
	lastFailureAt   time.Time
	failureCount    int
	cancelReconnect func()
}

func newEndpoint(url string) *Endpoint {
	return &Endpoint{
		url:            normalizeURL(url),
		desiredConnect: true,
		state:          StateDisconnected,
	}
}

// normalizeURL appends a trailing slash to the path if the URL has none,
// per spec §4.4's "status_map keys always end with '/'" invariant.
func normalizeURL(url string) string {
	if url == "" {
		return url
	}
	if url[len(url)-1] == '/' {
		return url
	}
	return url + "/"
}

func (e *Endpoint) snapshot() EndpointStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointStatus{
		URL:           e.url,
		State:         e.state,
		DesiredOpen:   e.desiredConnect,
		FailureCount:  e.failureCount,
		LastFailureAt: e.lastFailureAt,
	}
}

// EndpointStatus is the externally observable view of an Endpoint, used by
// the ambient status surface (internal/statusapi).
type EndpointStatus struct {
	URL           string
	State         State
	DesiredOpen   bool
	FailureCount  int
	LastFailureAt time.Time
}

func (e *Endpoint) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Endpoint) isConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateConnected && e.relay != nil
}

func (e *Endpoint) recordFailure() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureCount++
	e.lastFailureAt = time.Now()
	return e.failureCount
}

func (e *Endpoint) resetFailures() {
	e.mu.Lock()
	e.failureCount = 0
	e.mu.Unlock()
}
