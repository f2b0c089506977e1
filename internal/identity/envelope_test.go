package identity

import "testing"

func TestEncryptDecryptDMRoundTrip(t *testing.T) {
	alice, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate alice: %v", err)
	}
	bob, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate bob: %v", err)
	}

	event, err := EncryptDM(alice.SecretKeyHex, bob.PubkeyHex, "Hello")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	plaintext, ok := DecryptDM(bob.SecretKeyHex, alice.PubkeyHex, event)
	if !ok {
		t.Fatalf("decrypt: ok = false, want true")
	}
	if plaintext != "Hello" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "Hello")
	}
}

func TestDecryptDMFailsForThirdParty(t *testing.T) {
	alice, _ := GenerateKeypair()
	bob, _ := GenerateKeypair()
	mallory, _ := GenerateKeypair()

	event, err := EncryptDM(alice.SecretKeyHex, bob.PubkeyHex, "Hello")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, ok := DecryptDM(mallory.SecretKeyHex, alice.PubkeyHex, event); ok {
		t.Fatalf("decrypt by third party succeeded, want graceful failure")
	}
}

func TestEncryptDMRejectsEmptyContent(t *testing.T) {
	alice, _ := GenerateKeypair()
	bob, _ := GenerateKeypair()
	if _, err := EncryptDM(alice.SecretKeyHex, bob.PubkeyHex, ""); err != ErrEmptyContent {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
}

func TestEncryptDMRejectsInvalidRecipient(t *testing.T) {
	alice, _ := GenerateKeypair()
	if _, err := EncryptDM(alice.SecretKeyHex, "not-a-pubkey", "hi"); err != ErrInvalidRecipient {
		t.Fatalf("err = %v, want ErrInvalidRecipient", err)
	}
}
