package identity

import (
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
)

// KindEncryptedDM is the legacy NIP-04 direct message kind.
const KindEncryptedDM = 4

// EncryptDM builds and signs a legacy NIP-04 kind-4 event addressed to
// recipientPubkeyHex, per spec §4.2. The shared secret is computed via ECDH
// between senderSecretKeyHex and recipientPubkeyHex exactly as
// nip04.ComputeSharedSecret does for klistr's self-DM notifications.
func EncryptDM(senderSecretKeyHex, recipientPubkeyHex, plaintext string) (*nostr.Event, error) {
	if plaintext == "" {
		return nil, ErrEmptyContent
	}
	if len(recipientPubkeyHex) != 64 {
		return nil, ErrInvalidRecipient
	}
	sharedSecret, err := nip04.ComputeSharedSecret(recipientPubkeyHex, senderSecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("identity: nip04 shared secret: %w", err)
	}
	encrypted, err := nip04.Encrypt(plaintext, sharedSecret)
	if err != nil {
		return nil, fmt.Errorf("identity: nip04 encrypt: %w", err)
	}
	tags := nostr.Tags{{"p", recipientPubkeyHex}}
	return BuildAndSign(senderSecretKeyHex, KindEncryptedDM, tags, encrypted, time.Now())
}

// DecryptDM recovers the plaintext of a NIP-04 event. counterpartyPubkeyHex
// is the other party's pubkey — the sender's, when the viewer is the
// recipient, or the recipient's (from the event's "p" tag), when the viewer
// is the sender re-reading their own sent message.
//
// Per spec §4.1, decryption is a graceful-miss operation: any failure
// (wrong kind, wrong key, corrupt ciphertext) reports ok=false rather than
// an error. Callers that need to log a failed attempt should log only the
// counterparty pubkey, never the ciphertext or any derived key material.
func DecryptDM(viewerSecretKeyHex, counterpartyPubkeyHex string, event *nostr.Event) (plaintext string, ok bool) {
	if event.Kind != KindEncryptedDM {
		return "", false
	}
	sharedSecret, err := nip04.ComputeSharedSecret(counterpartyPubkeyHex, viewerSecretKeyHex)
	if err != nil {
		return "", false
	}
	plaintext, err = nip04.Decrypt(event.Content, sharedSecret)
	if err != nil {
		return "", false
	}
	return plaintext, true
}
