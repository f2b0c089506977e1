package seedstore

import (
	"strings"
	"testing"

	"github.com/941design/nostling/internal/secretstore"
)

func newTestStore(t *testing.T) *SeedStore {
	t.Helper()
	backing, err := secretstore.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return New(backing)
}

func TestSaveAndGetSeedRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seed := strings.Repeat("ab", 64)

	if err := store.SaveSeed("alice", seed); err != nil {
		t.Fatalf("save seed: %v", err)
	}
	got, ok, err := store.GetSeed("alice")
	if err != nil {
		t.Fatalf("get seed: %v", err)
	}
	if !ok {
		t.Fatalf("get seed: ok = false, want true")
	}
	if got != seed {
		t.Fatalf("seed = %q, want %q", got, seed)
	}
}

func TestSaveSeedRejectsWrongLength(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSeed("alice", "abcd"); err != ErrInvalidSeed {
		t.Fatalf("err = %v, want ErrInvalidSeed", err)
	}
}

func TestHasSeedMatchesGetSeed(t *testing.T) {
	store := newTestStore(t)

	has, err := store.HasSeed("alice")
	if err != nil {
		t.Fatalf("has seed: %v", err)
	}
	if has {
		t.Fatalf("has seed = true before any seed saved")
	}

	seed := strings.Repeat("cd", 64)
	if err := store.SaveSeed("alice", seed); err != nil {
		t.Fatalf("save seed: %v", err)
	}
	has, err = store.HasSeed("alice")
	if err != nil {
		t.Fatalf("has seed: %v", err)
	}
	if !has {
		t.Fatalf("has seed = false after saving a seed")
	}
}

func TestLegacyMnemonicRefMigratesForward(t *testing.T) {
	backing, err := secretstore.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	legacySeed := strings.Repeat("ef", 64)
	if _, err := backing.Save("nostr-mnemonic:alice", legacySeed); err != nil {
		t.Fatalf("seed legacy ref: %v", err)
	}

	store := New(backing)
	got, ok, err := store.GetSeed("alice")
	if err != nil {
		t.Fatalf("get seed: %v", err)
	}
	if !ok || got != legacySeed {
		t.Fatalf("get seed = (%q, %v), want (%q, true)", got, ok, legacySeed)
	}

	// After the first successful read, the record lives at the seed-keyed
	// reference and the legacy reference is gone.
	if _, ok, _ := backing.Get("nostr-seed:alice"); !ok {
		t.Fatalf("seed-keyed reference was not populated by migration")
	}
	if _, ok, _ := backing.Get("nostr-mnemonic:alice"); ok {
		t.Fatalf("legacy reference still present after migration")
	}
}

func TestDeleteSeedRemovesBothReferences(t *testing.T) {
	backing, err := secretstore.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	store := New(backing)
	seed := strings.Repeat("11", 64)
	if err := store.SaveSeed("alice", seed); err != nil {
		t.Fatalf("save seed: %v", err)
	}
	if err := store.DeleteSeed("alice"); err != nil {
		t.Fatalf("delete seed: %v", err)
	}
	has, err := store.HasSeed("alice")
	if err != nil {
		t.Fatalf("has seed: %v", err)
	}
	if has {
		t.Fatalf("has seed = true after delete")
	}
}
