package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/941design/nostling/internal/relaypool"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
)

// WebRTCEngine is the external collaborator that actually negotiates
// media. Per spec §4.5 and §1 Non-goals, only the signaling envelope is in
// scope here — the coordinator drives this interface but never implements
// ICE/SDP itself.
type WebRTCEngine interface {
	// Initiate asks the engine to create an offer for sessionID. The
	// engine later calls HandleLocalSignalReady with the resulting SDP.
	Initiate(sessionID string) error
	// HandleRemoteOffer/Answer/ICE deliver an inbound signal to the
	// engine for sessionID.
	HandleRemoteOffer(sessionID, sdp string) error
	HandleRemoteAnswer(sessionID, sdp string) error
	HandleRemoteICE(sessionID, candidate string) error
	// Teardown tells the engine to close sessionID's connection.
	Teardown(sessionID string) error
}

// AttemptResult is returned by Attempt.
type AttemptResult struct {
	SessionID   string
	Unavailable bool // true when P2P is globally disabled
}

// Coordinator drives one per-session state machine each, per spec §4.5.
type Coordinator struct {
	store     *Store
	publisher *relaypool.Publisher
	engine    WebRTCEngine
	enabled   bool
	nowFunc   func() time.Time

	mu sync.Mutex
}

// Config configures a Coordinator.
type Config struct {
	Enabled bool
	NowFunc func() time.Time
}

// NewCoordinator wires a session store, the relay pool's publisher, and an
// external WebRTC engine into a Coordinator.
func NewCoordinator(store *Store, publisher *relaypool.Publisher, engine WebRTCEngine, cfg Config) *Coordinator {
	nowFunc := cfg.NowFunc
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Coordinator{
		store:     store,
		publisher: publisher,
		engine:    engine,
		enabled:   cfg.Enabled,
		nowFunc:   nowFunc,
	}
}

// Attempt allocates a session id, records the session as offerer/initiating,
// and asks the WebRTC engine to produce an offer. When P2P is disabled, it
// returns a synthetic unavailable result without touching transport, per
// spec §4.5's gating clause.
func (c *Coordinator) Attempt(ctx context.Context, identityPubkeyHex, contactPubkeyHex string) (AttemptResult, error) {
	if !c.enabled {
		return AttemptResult{Unavailable: true}, nil
	}

	sessionID := uuid.NewString()
	now := c.nowFunc()
	sess := &Session{
		SessionID:      sessionID,
		IdentityPubkey: identityPubkeyHex,
		ContactPubkey:  contactPubkeyHex,
		Role:           RoleOfferer,
		Status:         StatusInitiating,
		LastAttemptAt:  now,
		UpdatedAt:      now,
	}
	if err := c.store.Upsert(sess); err != nil {
		return AttemptResult{}, fmt.Errorf("p2p: persist session: %w", err)
	}

	if err := c.engine.Initiate(sessionID); err != nil {
		sess.Status = StatusFailed
		sess.LastFailureReason = err.Error()
		sess.UpdatedAt = c.nowFunc()
		_ = c.store.Upsert(sess)
		return AttemptResult{}, fmt.Errorf("p2p: initiate: %w", err)
	}

	return AttemptResult{SessionID: sessionID}, nil
}

// RouteInboundSignal unwraps a gift-wrapped signal addressed to
// identitySecretKeyHex and forwards it to the session it names, creating a
// fresh answerer session when the signal is an unsolicited offer. Inbound
// signals are dropped silently when P2P is disabled.
func (c *Coordinator) RouteInboundSignal(identitySecretKeyHex, identityPubkeyHex string, giftWrap *nostr.Event) error {
	if !c.enabled {
		return nil
	}

	payload, senderPubkeyHex, ok := unwrapSignal(identitySecretKeyHex, giftWrap)
	if !ok {
		return nil
	}

	sess, found, err := c.store.FindBySessionID(payload.SessionID)
	if err != nil {
		return fmt.Errorf("p2p: find session: %w", err)
	}

	if !found {
		if payload.Kind != SignalOffer {
			// An inbound non-offer signal for an unknown session has no
			// session to route to; nothing to do.
			return nil
		}
		now := c.nowFunc()
		sess = &Session{
			SessionID:      payload.SessionID,
			IdentityPubkey: identityPubkeyHex,
			ContactPubkey:  senderPubkeyHex,
			Role:           RoleAnswerer,
			Status:         StatusReceived,
			LastAttemptAt:  now,
			UpdatedAt:      now,
		}
		if err := c.store.Upsert(sess); err != nil {
			return fmt.Errorf("p2p: persist answerer session: %w", err)
		}
	}

	switch payload.Kind {
	case SignalOffer:
		if payload.SDP == nil {
			return nil
		}
		return c.engine.HandleRemoteOffer(payload.SessionID, *payload.SDP)
	case SignalAnswer:
		if payload.SDP == nil {
			return nil
		}
		return c.engine.HandleRemoteAnswer(payload.SessionID, *payload.SDP)
	case SignalICE:
		if payload.ICECandidate == nil {
			return nil
		}
		return c.engine.HandleRemoteICE(payload.SessionID, *payload.ICECandidate)
	default:
		slog.Warn("p2p: unrecognized signal kind", "session_id", payload.SessionID, "kind", payload.Kind)
		return nil
	}
}

// HandleLocalSignalReady publishes a locally produced signal (SDP and/or
// an ICE candidate) to the session's contact, using senderSecretKeyHex to
// gift-wrap it and the relay pool's publisher to transport it.
func (c *Coordinator) HandleLocalSignalReady(ctx context.Context, senderSecretKeyHex, identityPubkeyHex, contactPubkeyHex string, payload SignalPayload) error {
	event, err := wrapSignal(senderSecretKeyHex, contactPubkeyHex, payload)
	if err != nil {
		return fmt.Errorf("p2p: wrap signal: %w", err)
	}
	// The signal is published once: per-relay publish failures are
	// discarded here and neither the coordinator nor the relay pool
	// re-publishes it. Only an error from the publisher itself (its
	// rate-limit wait) is returned.
	if _, err := c.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("p2p: publish signal: %w", err)
	}

	sess, found, err := c.store.Get(payload.SessionID, identityPubkeyHex, contactPubkeyHex)
	if err != nil {
		return fmt.Errorf("p2p: load session: %w", err)
	}
	if !found {
		return nil
	}
	switch payload.Kind {
	case SignalOffer:
		sess.Status = StatusOffered
	case SignalAnswer:
		sess.Status = StatusAnswered
	case SignalICE:
		sess.Status = StatusICEExchange
	}
	sess.UpdatedAt = c.nowFunc()
	return c.store.Upsert(sess)
}

// HandleStatusChange records a connected/failed transition reported by the
// WebRTC engine.
func (c *Coordinator) HandleStatusChange(identityPubkeyHex, contactPubkeyHex, sessionID string, status Status, failureReason string) error {
	sess, found, err := c.store.Get(sessionID, identityPubkeyHex, contactPubkeyHex)
	if err != nil {
		return fmt.Errorf("p2p: load session: %w", err)
	}
	if !found {
		return nil
	}
	now := c.nowFunc()
	sess.Status = status
	sess.UpdatedAt = now
	if status == StatusConnected {
		sess.LastSuccessAt = now
	}
	if status == StatusFailed {
		sess.LastFailureReason = failureReason
	}
	return c.store.Upsert(sess)
}

// Close instructs the engine to tear down sessionID and marks it failed
// with reason "user". Idempotent.
func (c *Coordinator) Close(identityPubkeyHex, contactPubkeyHex, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.engine.Teardown(sessionID)

	sess, found, err := c.store.Get(sessionID, identityPubkeyHex, contactPubkeyHex)
	if err != nil {
		return fmt.Errorf("p2p: load session: %w", err)
	}
	if !found {
		return nil
	}
	if sess.Status.IsTerminal() {
		return nil
	}
	sess.Status = StatusFailed
	sess.LastFailureReason = FailureReasonUser
	sess.UpdatedAt = c.nowFunc()
	return c.store.Upsert(sess)
}
