package imagecache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxBytes int64) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "files"), maxBytes, "")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, 1024)
	entry, err := c.Cache("https://example.com/a.png", []byte("hello"))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	if entry.SizeBytes != 5 {
		t.Fatalf("size = %d, want 5", entry.SizeBytes)
	}

	got, ok, err := c.Get("https://example.com/a.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("get: ok = false, want true")
	}
	contents, err := os.ReadFile(got.FilePath)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(contents) != "hello" {
		t.Fatalf("contents = %q, want %q", contents, "hello")
	}
}

func TestCacheUniquenessDeterminesPath(t *testing.T) {
	c := newTestCache(t, 1024)
	entryA, err := c.Cache("https://example.com/a.png", []byte("A"))
	if err != nil {
		t.Fatalf("cache a: %v", err)
	}
	entryA2, err := c.Cache("https://example.com/a.png", []byte("AA"))
	if err != nil {
		t.Fatalf("cache a again: %v", err)
	}
	if entryA.FilePath != entryA2.FilePath {
		t.Fatalf("file path changed across re-caches of the same url: %q != %q", entryA.FilePath, entryA2.FilePath)
	}
	if c.Stats().EntryCount != 1 {
		t.Fatalf("entry count = %d, want 1 after re-caching the same url", c.Stats().EntryCount)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	clock := time.Unix(1, 0)
	c, err := Open(t.TempDir(), 200, "", WithNowFunc(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	clock = time.Unix(1, 0)
	if _, err := c.Cache("A", make([]byte, 100)); err != nil {
		t.Fatalf("cache A: %v", err)
	}
	clock = time.Unix(2, 0)
	if _, err := c.Cache("B", make([]byte, 100)); err != nil {
		t.Fatalf("cache B: %v", err)
	}
	clock = time.Unix(3, 0)
	if _, err := c.Cache("C", make([]byte, 100)); err != nil {
		t.Fatalf("cache C: %v", err)
	}

	stats := c.Stats()
	if stats.TotalSizeBytes != 200 {
		t.Fatalf("total size = %d, want 200", stats.TotalSizeBytes)
	}
	if stats.EntryCount != 2 {
		t.Fatalf("entry count = %d, want 2", stats.EntryCount)
	}

	if _, ok, _ := c.Get("A"); ok {
		t.Fatalf("A should have been evicted")
	}
	if _, ok, _ := c.Get("B"); !ok {
		t.Fatalf("B should still be present")
	}
	if _, ok, _ := c.Get("C"); !ok {
		t.Fatalf("C should still be present")
	}

	invalidated, err := c.Invalidate("A")
	if err != nil {
		t.Fatalf("invalidate A: %v", err)
	}
	if invalidated {
		t.Fatalf("invalidate A returned true, want false for an already-evicted entry")
	}
}

func TestCacheRejectsOversizedItem(t *testing.T) {
	c := newTestCache(t, 10)
	if _, err := c.Cache("https://example.com/big.png", make([]byte, 11)); err != ErrEvictionOverflow {
		t.Fatalf("err = %v, want ErrEvictionOverflow", err)
	}
	if c.Stats().EntryCount != 0 {
		t.Fatalf("entry count = %d, want 0 after a rejected oversized item", c.Stats().EntryCount)
	}
}

func TestGetPrunesStaleMetadataOnMissingFile(t *testing.T) {
	c := newTestCache(t, 1024)
	entry, err := c.Cache("https://example.com/a.png", []byte("hello"))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	if err := os.Remove(entry.FilePath); err != nil {
		t.Fatalf("remove underlying file: %v", err)
	}

	if _, ok, err := c.Get("https://example.com/a.png"); err != nil || ok {
		t.Fatalf("get after file removed: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if c.Stats().EntryCount != 0 {
		t.Fatalf("entry count = %d, want 0 after the stale metadata was pruned", c.Stats().EntryCount)
	}

	// A subsequent cache() performs a fresh insert, not an overwrite of a
	// row that no longer exists.
	if _, err := c.Cache("https://example.com/a.png", []byte("fresh")); err != nil {
		t.Fatalf("re-cache after prune: %v", err)
	}
	if c.Stats().EntryCount != 1 {
		t.Fatalf("entry count = %d, want 1 after re-caching", c.Stats().EntryCount)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	c := newTestCache(t, 1024)
	if _, err := c.Cache("https://example.com/a.png", []byte("hello")); err != nil {
		t.Fatalf("cache: %v", err)
	}
	first, err := c.Invalidate("https://example.com/a.png")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if !first {
		t.Fatalf("first invalidate = false, want true")
	}
	second, err := c.Invalidate("https://example.com/a.png")
	if err != nil {
		t.Fatalf("invalidate again: %v", err)
	}
	if second {
		t.Fatalf("second invalidate = true, want false")
	}
}

func TestExtensionInference(t *testing.T) {
	cases := map[string]string{
		"https://example.com/a.png":        ".png",
		"https://example.com/a.jpeg":       ".jpeg",
		"https://example.com/noextension":  ".img",
		"https://example.com/a.toolongext": ".img",
		"https://example.com/a.":           ".img",
	}
	for url, want := range cases {
		if got := extensionFor(url); got != want {
			t.Fatalf("extensionFor(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestEmptyBytesAreAcceptedAndStored(t *testing.T) {
	c := newTestCache(t, 1024)
	entry, err := c.Cache("https://example.com/empty", nil)
	if err != nil {
		t.Fatalf("cache empty bytes: %v", err)
	}
	if entry.SizeBytes != 0 {
		t.Fatalf("size = %d, want 0", entry.SizeBytes)
	}
	if _, ok, err := c.Get("https://example.com/empty"); err != nil || !ok {
		t.Fatalf("get empty entry: ok=%v err=%v", ok, err)
	}
}
