package identity

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// Nostr kinds used by the NIP-17/NIP-59 gift-wrap envelope.
const (
	KindChatRumor = 14   // unsigned rumor carried inside the seal
	KindSeal      = 13   // sender-signed, encrypted rumor
	KindGiftWrap  = 1059 // ephemeral-key-signed, encrypted seal
)

// maxPastSkew bounds how far into the past seal/wrap timestamps are
// randomized, per NIP-59's timestamp-obfuscation recommendation.
const maxPastSkew = 2 * 24 * time.Hour

// Rumor is the unsigned inner message a gift wrap carries. It is never
// transmitted or signed on its own.
type Rumor struct {
	PubKey    string      `json:"pubkey"`
	CreatedAt int64       `json:"created_at"`
	Kind      int         `json:"kind"`
	Tags      nostr.Tags  `json:"tags"`
	Content   string      `json:"content"`
	ID        string      `json:"id,omitempty"`
}

// Wrap builds a NIP-17-style gift-wrapped message: an unsigned rumor, sealed
// (encrypted + signed by the sender's real key), then gift-wrapped (encrypted
// again + signed by a disposable one-time key), per spec §4.2.
func Wrap(senderSecretKeyHex, recipientPubkeyHex string, rumorKind int, tags nostr.Tags, content string) (*nostr.Event, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(recipientPubkeyHex) != 64 {
		return nil, ErrInvalidRecipient
	}

	senderPubkeyHex, err := nostr.GetPublicKey(senderSecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("identity: derive sender pubkey: %w", err)
	}

	rumor := Rumor{
		PubKey:    senderPubkeyHex,
		CreatedAt: time.Now().Unix(),
		Kind:      rumorKind,
		Tags:      tags,
		Content:   content,
	}
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal rumor: %w", err)
	}

	sealKey, err := nip44.GenerateConversationKey(recipientPubkeyHex, senderSecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("identity: nip44 seal key: %w", err)
	}
	sealedContent, err := nip44.Encrypt(string(rumorJSON), sealKey)
	if err != nil {
		return nil, fmt.Errorf("identity: nip44 seal encrypt: %w", err)
	}
	seal, err := BuildAndSign(senderSecretKeyHex, KindSeal, nostr.Tags{}, sealedContent, randomizedPast())
	if err != nil {
		return nil, fmt.Errorf("identity: sign seal: %w", err)
	}
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal seal: %w", err)
	}

	ephemeral, err := GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate one-time wrap key: %w", err)
	}
	wrapKey, err := nip44.GenerateConversationKey(recipientPubkeyHex, ephemeral.SecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("identity: nip44 wrap key: %w", err)
	}
	wrappedContent, err := nip44.Encrypt(string(sealJSON), wrapKey)
	if err != nil {
		return nil, fmt.Errorf("identity: nip44 wrap encrypt: %w", err)
	}
	wrapTags := nostr.Tags{{"p", recipientPubkeyHex}}
	giftWrap, err := BuildAndSign(ephemeral.SecretKeyHex, KindGiftWrap, wrapTags, wrappedContent, randomizedPast())
	if err != nil {
		return nil, fmt.Errorf("identity: sign gift wrap: %w", err)
	}
	return giftWrap, nil
}

// Unwrap reverses Wrap: it decrypts the gift wrap with the recipient's real
// key, then decrypts the seal inside it, returning the original rumor and
// the authenticated sender pubkey (from the seal's signature, never from the
// rumor's own unsigned claim).
//
// Per spec §4.1/§4.5, this is a graceful-miss operation: any verification or
// decryption failure — wrong recipient key, tampered ciphertext, a seal
// signature that doesn't check out, a rumor whose pubkey doesn't match the
// seal's signer — reports ok=false rather than an error. Determinism of the
// wrap (ephemeral key, jittered timestamp) never affects this outcome.
func Unwrap(recipientSecretKeyHex string, giftWrap *nostr.Event) (rumor *Rumor, senderPubkeyHex string, ok bool) {
	if giftWrap.Kind != KindGiftWrap {
		return nil, "", false
	}
	wrapKey, err := nip44.GenerateConversationKey(giftWrap.PubKey, recipientSecretKeyHex)
	if err != nil {
		return nil, "", false
	}
	sealJSON, err := nip44.Decrypt(giftWrap.Content, wrapKey)
	if err != nil {
		return nil, "", false
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, "", false
	}
	if seal.Kind != KindSeal {
		return nil, "", false
	}
	sigOK, err := seal.CheckSignature()
	if err != nil || !sigOK {
		return nil, "", false
	}

	sealKey, err := nip44.GenerateConversationKey(seal.PubKey, recipientSecretKeyHex)
	if err != nil {
		return nil, "", false
	}
	rumorJSON, err := nip44.Decrypt(seal.Content, sealKey)
	if err != nil {
		return nil, "", false
	}

	var r Rumor
	if err := json.Unmarshal([]byte(rumorJSON), &r); err != nil {
		return nil, "", false
	}
	if r.PubKey != seal.PubKey {
		return nil, "", false
	}
	return &r, seal.PubKey, true
}

// randomizedPast returns a time between now and maxPastSkew ago, so gift
// wrap and seal timestamps don't leak the real send time.
func randomizedPast() time.Time {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxPastSkew.Seconds())))
	if err != nil {
		return time.Now()
	}
	return time.Now().Add(-time.Duration(n.Int64()) * time.Second)
}
