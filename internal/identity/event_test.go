package identity

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

func TestBuildAndSignVerifies(t *testing.T) {
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	kp, err := DeriveFromMnemonic(mnemonic, "", 0, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	event, err := BuildAndSign(kp.SecretKeyHex, KindEncryptedDM, nostr.Tags{{"p", kp.PubkeyHex}}, "x", time.Now())
	if err != nil {
		t.Fatalf("build and sign: %v", err)
	}
	if event.PubKey != kp.PubkeyHex {
		t.Fatalf("event.PubKey = %q, want %q", event.PubKey, kp.PubkeyHex)
	}
	ok, err := VerifyEvent(event)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("signature did not verify")
	}
}
