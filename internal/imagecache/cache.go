package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrEvictionOverflow is returned by Cache when a single incoming item is
// larger than MaxCacheSizeBytes. Per the OPEN QUESTION DECISIONS this
// implementation rejects rather than stores an oversized entry, so the
// cache-bound invariant holds unconditionally.
var ErrEvictionOverflow = errors.New("imagecache: item exceeds max cache size")

// Entry is a cache entry's persisted metadata, per spec §3.
type Entry struct {
	URL            string
	FilePath       string
	SizeBytes      int64
	CreatedAt      int64
	LastAccessedAt int64
}

// Stats summarizes the cache's current contents.
type Stats struct {
	EntryCount     int
	TotalSizeBytes int64
	OldestCreated  int64
	NewestCreated  int64
	EvictionCount  int64
	BytesEvicted   int64
}

// Cache is a SHA-256-keyed, disk-backed, LRU-evicting image cache. All
// mutating operations (Get's stale-metadata prune, Cache, Invalidate) are
// serialized by mu, matching spec §4.6's "single asynchronous mutex"
// requirement; the decide-to-evict / write-new-file sequence in Cache never
// interleaves with another mutating call.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	meta     *metaStore
	entries  map[string]*Entry
	nowFunc  func() time.Time

	evictionCount int64
	bytesEvicted  int64
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithNowFunc overrides the clock used for created_at/last_accessed_at
// stamps, for deterministic tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = fn }
}

// Open initializes a cache rooted at dir with the given byte budget and an
// optional SQLite metadata path (empty for in-memory mode). Idempotent:
// calling Open again against the same dir/dbPath simply reloads the same
// state.
func Open(dir string, maxCacheSizeBytes int64, dbPath string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("imagecache: create cache dir: %w", err)
	}

	meta, err := openMetaStore(dbPath)
	if err != nil {
		return nil, err
	}

	entries, err := meta.loadAll()
	if err != nil {
		return nil, err
	}

	c := &Cache{
		dir:      dir,
		maxBytes: maxCacheSizeBytes,
		meta:     meta,
		entries:  entries,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the underlying metadata database handle.
func (c *Cache) Close() error {
	return c.meta.close()
}

func keyFor(url string) string {
	digest := sha256.Sum256([]byte(url))
	return hex.EncodeToString(digest[:])
}

// extensionFor returns the last path component's dot-suffix when it's
// between 1 and 5 characters, else ".img", per spec §4.6.
func extensionFor(url string) string {
	last := url
	if idx := strings.LastIndexByte(url, '/'); idx >= 0 {
		last = url[idx+1:]
	}
	dot := strings.LastIndexByte(last, '.')
	if dot < 0 {
		return ".img"
	}
	ext := last[dot:]
	suffixLen := len(ext) - 1
	if suffixLen < 1 || suffixLen > 5 {
		return ".img"
	}
	return ext
}

func (c *Cache) pathFor(url string) string {
	return filepath.Join(c.dir, keyFor(url)+extensionFor(url))
}

// Get looks up url. If metadata exists but the backing file is missing,
// this implementation prunes the stale metadata row before reporting a
// miss — the prune-on-read choice recorded in the OPEN QUESTION DECISIONS.
func (c *Cache) Get(url string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return nil, false, nil
	}

	if _, err := os.Stat(entry.FilePath); err != nil {
		if os.IsNotExist(err) {
			delete(c.entries, url)
			if delErr := c.meta.delete(url); delErr != nil {
				return nil, false, delErr
			}
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("imagecache: stat cached file: %w", err)
	}

	entry.LastAccessedAt = c.nowFunc().Unix()
	if err := c.meta.updateLastAccessed(url, entry.LastAccessedAt); err != nil {
		return nil, false, err
	}

	entryCopy := *entry
	return &entryCopy, true, nil
}

// Cache stores bytes under url, evicting least-recently-used entries if
// necessary to stay within the byte budget. A single item larger than the
// budget is rejected with ErrEvictionOverflow rather than stored.
func (c *Cache) Cache(url string, data []byte) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if size > c.maxBytes {
		return nil, ErrEvictionOverflow
	}

	if existing, ok := c.entries[url]; ok {
		if err := os.Remove(existing.FilePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("imagecache: remove prior file: %w", err)
		}
		delete(c.entries, url)
	}

	currentTotal := c.totalSizeLocked()
	if currentTotal+size > c.maxBytes {
		if err := c.evictLocked(c.maxBytes - size); err != nil {
			return nil, err
		}
	}

	path := c.pathFor(url)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("imagecache: write file: %w", err)
	}

	now := c.nowFunc().Unix()
	entry := &Entry{
		URL:            url,
		FilePath:       path,
		SizeBytes:      size,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := c.meta.upsert(entry); err != nil {
		return nil, err
	}
	c.entries[url] = entry

	entryCopy := *entry
	return &entryCopy, nil
}

// Invalidate removes url's entry and file, if present. Idempotent.
func (c *Cache) Invalidate(url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return false, nil
	}
	if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("imagecache: remove file: %w", err)
	}
	if err := c.meta.delete(url); err != nil {
		return false, err
	}
	delete(c.entries, url)
	return true, nil
}

// Stats summarizes the cache's current state. It holds c.mu, the same
// mutex the mutating operations take, matching spec §4.6's "uniform
// mutex-held execution is acceptable" allowance.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		EvictionCount: c.evictionCount,
		BytesEvicted:  c.bytesEvicted,
	}
	for _, e := range c.entries {
		stats.EntryCount++
		stats.TotalSizeBytes += e.SizeBytes
		if stats.OldestCreated == 0 || e.CreatedAt < stats.OldestCreated {
			stats.OldestCreated = e.CreatedAt
		}
		if e.CreatedAt > stats.NewestCreated {
			stats.NewestCreated = e.CreatedAt
		}
	}
	return stats
}

func (c *Cache) totalSizeLocked() int64 {
	var total int64
	for _, e := range c.entries {
		total += e.SizeBytes
	}
	return total
}

// evictLocked removes least-recently-used entries until the total is at
// most targetSize. Caller must hold c.mu.
func (c *Cache) evictLocked(targetSize int64) error {
	ordered := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LastAccessedAt < ordered[j].LastAccessedAt
	})

	total := c.totalSizeLocked()
	for _, e := range ordered {
		if total <= targetSize {
			break
		}
		if err := os.Remove(e.FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("imagecache: evict remove file: %w", err)
		}
		if err := c.meta.delete(e.URL); err != nil {
			return err
		}
		delete(c.entries, e.URL)
		total -= e.SizeBytes
		c.evictionCount++
		c.bytesEvicted += e.SizeBytes
	}
	return nil
}
