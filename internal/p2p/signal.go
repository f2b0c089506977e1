package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/941design/nostling/internal/identity"
	"github.com/nbd-wtf/go-nostr"
)

// KindP2PSignal is the private kind reserved for P2P signaling rumors
// carried inside a NIP-17 gift wrap. The coordinator discriminates signals
// by session id, not by kind — this single kind value is the namespace
// spec §6 asks for.
const KindP2PSignal = 30078

// SignalKind discriminates the three message shapes a signaling session
// exchanges.
type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
	SignalICE    SignalKind = "ice"
)

// SignalPayload is the typed content carried by a signaling rumor. SDP is
// set for offer/answer; ICECandidate is set for ice signals. Per the OPEN
// QUESTION DECISIONS, ICECandidate is a typed nullable field rather than a
// magic empty string.
type SignalPayload struct {
	SessionID    string     `json:"session_id"`
	Kind         SignalKind `json:"kind"`
	SDP          *string    `json:"sdp,omitempty"`
	ICECandidate *string    `json:"candidate,omitempty"`
}

// wrapSignal gift-wraps a signal payload addressed to recipientPubkeyHex.
func wrapSignal(senderSecretKeyHex, recipientPubkeyHex string, payload SignalPayload) (*nostr.Event, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("p2p: marshal signal payload: %w", err)
	}
	tags := nostr.Tags{{"p", recipientPubkeyHex}}
	return identity.Wrap(senderSecretKeyHex, recipientPubkeyHex, KindP2PSignal, tags, string(content))
}

// unwrapSignal reverses wrapSignal. ok is false on any gift-wrap failure
// or on a rumor that isn't a well-formed signal payload.
func unwrapSignal(recipientSecretKeyHex string, giftWrap *nostr.Event) (payload SignalPayload, senderPubkeyHex string, ok bool) {
	rumor, sender, ok := identity.Unwrap(recipientSecretKeyHex, giftWrap)
	if !ok || rumor.Kind != KindP2PSignal {
		return SignalPayload{}, "", false
	}
	if err := json.Unmarshal([]byte(rumor.Content), &payload); err != nil {
		return SignalPayload{}, "", false
	}
	return payload, sender, true
}
