package secretstore

import (
	"sort"
	"testing"
)

func TestFileStoreSaveGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if _, err := store.Save("nostr-secret:alice", "nsec1deadbeef"); err != nil {
		t.Fatalf("save: %v", err)
	}

	plaintext, ok, err := store.Get("nostr-secret:alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("get: ok = false, want true")
	}
	if plaintext != "nsec1deadbeef" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "nsec1deadbeef")
	}
}

func TestFileStoreGetMissingRefIsNotAnError(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	_, ok, err := store.Get("nostr-secret:nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("get: ok = true for missing ref, want false")
	}
}

func TestFileStoreSaveIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.Save("nostr-secret:alice", "same-value"); err != nil {
			t.Fatalf("save #%d: %v", i, err)
		}
	}
	plaintext, ok, err := store.Get("nostr-secret:alice")
	if err != nil || !ok {
		t.Fatalf("get after repeated save: ok=%v err=%v", ok, err)
	}
	if plaintext != "same-value" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "same-value")
	}
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Save("nostr-secret:alice", "x"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete("nostr-secret:alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete("nostr-secret:alice"); err != nil {
		t.Fatalf("delete missing ref: %v", err)
	}
	_, ok, err := store.Get("nostr-secret:alice")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if ok {
		t.Fatalf("get after delete: ok = true, want false")
	}
}

func TestFileStoreListRefs(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	want := []string{"nostr-secret:alice", "nostr-secret:bob", "nostr-seed:alice"}
	for _, ref := range want {
		if _, err := store.Save(ref, "value-for-"+ref); err != nil {
			t.Fatalf("save %q: %v", ref, err)
		}
	}
	got, err := store.ListRefs()
	if err != nil {
		t.Fatalf("list refs: %v", err)
	}
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("list refs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list refs = %v, want %v", got, want)
		}
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store1, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store1.Save("nostr-secret:alice", "persisted"); err != nil {
		t.Fatalf("save: %v", err)
	}

	store2, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	plaintext, ok, err := store2.Get("nostr-secret:alice")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if plaintext != "persisted" {
		t.Fatalf("plaintext = %q, want %q", plaintext, "persisted")
	}
}
