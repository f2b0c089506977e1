package relaypool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// EventHandler processes an event delivered by a subscription.
type EventHandler func(relayURL string, event *nostr.Event)

// Config tunes the pool's connection monitor and reconnection behavior.
// Zero-value fields fall back to the spec-mandated defaults.
type Config struct {
	MonitorInterval time.Duration // default 2s
	ConnectTimeout  time.Duration // default 5s
	BackoffCap      time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Pool maintains WebSocket connections to N relays, publishing events to
// and subscribing across all of them, per spec §4.4.
type Pool struct {
	cfg Config

	mu        sync.RWMutex
	endpoints map[string]*Endpoint

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

// New creates a pool for the given relay URLs. Connect must be called to
// begin connecting.
func New(relayURLs []string, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:       cfg,
		endpoints: make(map[string]*Endpoint, len(relayURLs)),
	}
	for _, url := range relayURLs {
		ep := newEndpoint(url)
		p.endpoints[ep.url] = ep
	}
	return p
}

// AddRelay adds a relay to the pool. If the pool is already connected, the
// new endpoint starts connecting immediately. Returns false if the
// (normalized) URL is already present.
func (p *Pool) AddRelay(url string) bool {
	normalized := normalizeURL(url)

	p.mu.Lock()
	if _, exists := p.endpoints[normalized]; exists {
		p.mu.Unlock()
		return false
	}
	ep := newEndpoint(url)
	p.endpoints[normalized] = ep
	started := p.started
	ctx := p.ctx
	p.mu.Unlock()

	if started {
		p.wg.Add(1)
		go p.runEndpoint(ctx, ep)
	}
	return true
}

// RemoveRelay marks an endpoint as no longer desired and removes it from
// the pool. Returns false if not present.
func (p *Pool) RemoveRelay(url string) bool {
	normalized := normalizeURL(url)

	p.mu.Lock()
	ep, exists := p.endpoints[normalized]
	if exists {
		delete(p.endpoints, normalized)
	}
	p.mu.Unlock()

	if !exists {
		return false
	}
	ep.mu.Lock()
	ep.desiredConnect = false
	relay := ep.relay
	ep.mu.Unlock()
	if relay != nil {
		relay.Close()
	}
	return true
}

// Connect starts the connection-monitor goroutines for every configured
// endpoint. It returns immediately; connections happen in the background.
// Connect blocks only long enough to register state — call Disconnect or
// cancel ctx to stop.
func (p *Pool) Connect(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.ctx = runCtx
	p.cancel = cancel
	p.started = true
	endpoints := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.mu.Unlock()

	for _, ep := range endpoints {
		p.wg.Add(1)
		go p.runEndpoint(runCtx, ep)
	}
}

// Disconnect transitions every endpoint to closed, cancels pending
// back-off timers, and closes open relay connections. Idempotent.
func (p *Pool) Disconnect() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	endpoints := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.mu.Unlock()

	for _, ep := range endpoints {
		ep.mu.Lock()
		ep.desiredConnect = false
		relay := ep.relay
		ep.state = StateClosed
		ep.mu.Unlock()
		if relay != nil {
			relay.Close()
		}
	}
	p.wg.Wait()
}

// Statuses returns a snapshot of every endpoint's connection state, for
// the ambient status surface.
func (p *Pool) Statuses() []EndpointStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	statuses := make([]EndpointStatus, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		statuses = append(statuses, ep.snapshot())
	}
	return statuses
}

// connectedRelays returns the live *nostr.Relay handles for endpoints
// currently in StateConnected.
func (p *Pool) connectedRelays() map[string]*nostr.Relay {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]*nostr.Relay, len(p.endpoints))
	for url, ep := range p.endpoints {
		ep.mu.Lock()
		if ep.state == StateConnected && ep.relay != nil {
			out[url] = ep.relay
		}
		ep.mu.Unlock()
	}
	return out
}

// runEndpoint drives a single endpoint's state machine: connect, monitor
// liveness, back off and retry after a failed connect, and reconnect
// without back-off after an observed disconnection, until ctx is cancelled
// or the endpoint is marked no longer desired.
func (p *Pool) runEndpoint(ctx context.Context, ep *Endpoint) {
	defer p.wg.Done()

	attempt := 0
	for {
		ep.mu.Lock()
		desired := ep.desiredConnect
		ep.mu.Unlock()
		if !desired {
			ep.setState(StateClosed)
			return
		}

		select {
		case <-ctx.Done():
			ep.setState(StateClosed)
			return
		default:
		}

		ep.setState(StateConnecting)
		connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		relay, err := nostr.RelayConnect(connectCtx, ep.url)
		cancel()

		if err != nil {
			attempt = ep.recordFailure()
			ep.setState(StateBackoff)
			delay := backoffDelay(attempt, p.cfg.BackoffCap)
			slog.Warn("relay connect failed", "relay", ep.url, "attempt", attempt, "retry_in", delay, "error", err)
			if !p.sleep(ctx, delay) {
				ep.setState(StateClosed)
				return
			}
			continue
		}

		ep.mu.Lock()
		ep.relay = relay
		ep.mu.Unlock()
		ep.setState(StateConnected)
		ep.resetFailures()
		attempt = 0
		slog.Info("relay connected", "relay", ep.url)

		p.monitorUntilDisconnected(ctx, ep)

		ep.mu.Lock()
		desired = ep.desiredConnect
		ep.mu.Unlock()
		if !desired {
			ep.setState(StateClosed)
			return
		}
	}
}

// monitorUntilDisconnected polls the endpoint's liveness every
// MonitorInterval while connected, returning once a disconnection is
// observed or ctx is cancelled.
func (p *Pool) monitorUntilDisconnected(ctx context.Context, ep *Endpoint) {
	ticker := time.NewTicker(p.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ep.mu.Lock()
			relay := ep.relay
			ep.mu.Unlock()
			if relay == nil || !relay.IsConnected() {
				ep.mu.Lock()
				ep.relay = nil
				ep.mu.Unlock()
				slog.Warn("relay connection lost", "relay", ep.url)
				return
			}
		}
	}
}

// sleep blocks for d or until ctx is cancelled, returning false on
// cancellation.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
