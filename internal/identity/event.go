package identity

import (
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// BuildAndSign constructs a NIP-01 event with the given kind, tags and
// content, stamps it with createdAt, and signs it with secretKeyHex. This is
// the one place event id computation and Schnorr signing happen; everything
// above it (envelopes, gift wraps, DMs) goes through here.
func BuildAndSign(secretKeyHex string, kind int, tags nostr.Tags, content string, createdAt time.Time) (*nostr.Event, error) {
	pubkeyHex, err := nostr.GetPublicKey(secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("identity: derive pubkey for signing: %w", err)
	}
	event := &nostr.Event{
		PubKey:    pubkeyHex,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := event.Sign(secretKeyHex); err != nil {
		return nil, fmt.Errorf("identity: sign event: %w", err)
	}
	return event, nil
}

// VerifyEvent checks an event's id and signature per NIP-01.
func VerifyEvent(event *nostr.Event) (bool, error) {
	return event.CheckSignature()
}
