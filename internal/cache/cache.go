// Package cache provides a persistent, size- and time-bounded store for
// reference content plus an independent bookmark list.
//
// Storage failures never reach callers: they are logged and the operation
// degrades to a miss or a no-op, so every caller keeps a non-cached path.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
)

const (
	// MaxSizeBytes is the budget for the serialized size of all content entries.
	MaxSizeBytes int64 = 50 * 1024 * 1024
	// EntryTTL is the age after which a content entry is logically absent.
	EntryTTL = 7 * 24 * time.Hour
)

var (
	contentBucket  = []byte("content")
	bookmarkBucket = []byte("bookmarks")
	metadataBucket = []byte("metadata")
	metadataKey    = []byte("metadata")
)

// Entry is the stored form of a content item.
type Entry struct {
	Data      json.RawMessage   `json:"data"`
	Timestamp int64             `json:"timestamp"`
	Category  category.Category `json:"category"`
}

// Metadata tracks aggregate size across all live content entries.
type Metadata struct {
	TotalSizeBytes       int64 `json:"totalSizeBytes"`
	LastCleanupTimestamp int64 `json:"lastCleanupTimestamp"`
}

// Stats is a read-only view of the cache for display.
type Stats struct {
	TotalSizeBytes       int64
	MaxSizeBytes         int64
	PercentUsed          float64
	ContentCount         int
	BookmarkCount        int
	LastCleanupTimestamp int64
}

// Cache is safe for concurrent use. A nil *Cache behaves as an always-empty
// cache.
type Cache struct {
	db      *bolt.DB
	mu      sync.Mutex
	now     func() time.Time
	maxSize int64
	ttl     time.Duration
}

type Option func(*Cache)

// WithClock replaces the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Open opens or creates the cache database at path.
func Open(path string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll(%s) > %w", filepath.Dir(path), err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%s) > %w", path, err)
	}

	c := &Cache{
		db:      db,
		now:     time.Now,
		maxSize: MaxSizeBytes,
		ttl:     EntryTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{contentBucket, bookmarkBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("tx.CreateBucketIfNotExists(%s) > %w", name, err)
			}
		}
		return c.reconcile(tx)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func entryKey(cat category.Category, slug string) []byte {
	return []byte(string(cat) + ":" + slug)
}

func (c *Cache) expired(timestamp int64) bool {
	return c.now().UnixMilli()-timestamp > c.ttl.Milliseconds()
}

// Get returns the data stored for (cat, slug). Expired entries are deleted
// and reported as absent.
func (c *Cache) Get(cat category.Category, slug string) (json.RawMessage, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}
	key := entryKey(cat, slug)

	var entry *Entry
	if err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(contentBucket).Get(key)
		if v == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("json.Unmarshal(%s) > %w", key, err)
		}
		entry = &e
		return nil
	}); err != nil {
		warn("failed to read a cache entry", err, slog.String("key", string(key)))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if c.expired(entry.Timestamp) {
		c.purgeIfExpired(key)
		return nil, false
	}
	return entry.Data, true
}

// purgeIfExpired re-checks the entry under the write lock so that a fresh
// entry written since the read is kept.
func (c *Cache) purgeIfExpired(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.Update(func(tx *bolt.Tx) error {
		content := tx.Bucket(contentBucket)
		v := content.Get(key)
		if v == nil || !c.expired(entryTimestamp(v)) {
			return nil
		}
		meta, err := readMetadata(tx)
		if err != nil {
			return err
		}
		meta.subtract(int64(len(v)))
		if err := content.Delete(key); err != nil {
			return fmt.Errorf("content.Delete(%s) > %w", key, err)
		}
		return writeMetadata(tx, meta)
	}); err != nil {
		warn("failed to purge an expired cache entry", err, slog.String("key", string(key)))
	}
}

// Set stores data for (cat, slug), making room first. A write that cannot be
// made is skipped with a warning. An entry larger than the whole budget is
// skipped before any cleanup or eviction, leaving stored entries untouched.
func (c *Cache) Set(cat category.Category, slug string, data any) {
	if c == nil || c.db == nil {
		return
	}
	key := entryKey(cat, slug)

	raw, err := json.Marshal(data)
	if err != nil {
		warn("failed to serialize cache data", err, slog.String("key", string(key)))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := json.Marshal(Entry{Data: raw, Timestamp: c.now().UnixMilli(), Category: cat})
	if err != nil {
		warn("failed to serialize a cache entry", err, slog.String("key", string(key)))
		return
	}
	size := int64(len(buf))
	if size > c.maxSize {
		slog.Default().Warn("cache entry exceeds the size budget, skipping",
			slog.String("key", string(key)),
			slog.Int64("size", size),
			slog.Int64("maxSize", c.maxSize),
		)
		return
	}

	if err := c.db.Update(func(tx *bolt.Tx) error {
		content := tx.Bucket(contentBucket)
		meta, err := readMetadata(tx)
		if err != nil {
			return err
		}
		if old := content.Get(key); old != nil {
			meta.subtract(int64(len(old)))
			if err := content.Delete(key); err != nil {
				return fmt.Errorf("content.Delete(%s) > %w", key, err)
			}
		}
		if err := c.reserve(tx, &meta, size); err != nil {
			return fmt.Errorf("reserve(%d) > %w", size, err)
		}
		if err := content.Put(key, buf); err != nil {
			return fmt.Errorf("content.Put(%s) > %w", key, err)
		}
		meta.TotalSizeBytes += size
		return writeMetadata(tx, meta)
	}); err != nil {
		warn("failed to write a cache entry, skipping", err, slog.String("key", string(key)))
	}
}

// Delete removes the entry for (cat, slug) if present.
func (c *Cache) Delete(cat category.Category, slug string) {
	if c == nil || c.db == nil {
		return
	}
	key := entryKey(cat, slug)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.Update(func(tx *bolt.Tx) error {
		content := tx.Bucket(contentBucket)
		v := content.Get(key)
		if v == nil {
			return nil
		}
		meta, err := readMetadata(tx)
		if err != nil {
			return err
		}
		meta.subtract(int64(len(v)))
		if err := content.Delete(key); err != nil {
			return fmt.Errorf("content.Delete(%s) > %w", key, err)
		}
		return writeMetadata(tx, meta)
	}); err != nil {
		warn("failed to delete a cache entry", err, slog.String("key", string(key)))
	}
}

// GetByCategory returns the data of every non-expired entry in cat. It never
// modifies the store; the order of the result is unspecified.
func (c *Cache) GetByCategory(cat category.Category) []json.RawMessage {
	if c == nil || c.db == nil {
		return nil
	}
	prefix := entryKey(cat, "")

	var out []json.RawMessage
	if err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(contentBucket).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				slog.Default().Debug("skipping an unreadable cache entry", slog.String("key", string(k)))
				continue
			}
			if c.expired(e.Timestamp) {
				continue
			}
			out = append(out, e.Data)
		}
		return nil
	}); err != nil {
		warn("failed to scan cache entries", err, slog.String("category", string(cat)))
		return nil
	}
	return out
}

// PruneExpired deletes every expired entry and returns how many were removed.
func (c *Cache) PruneExpired() int {
	if c == nil || c.db == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	if err := c.db.Update(func(tx *bolt.Tx) error {
		meta, err := readMetadata(tx)
		if err != nil {
			return err
		}
		removed, err = c.cleanupExpired(tx, &meta)
		if err != nil {
			return err
		}
		return writeMetadata(tx, meta)
	}); err != nil {
		warn("failed to prune expired cache entries", err)
		return 0
	}
	return removed
}

// Stats reports usage for display.
func (c *Cache) Stats() Stats {
	stats := Stats{MaxSizeBytes: MaxSizeBytes}
	if c == nil || c.db == nil {
		return stats
	}
	stats.MaxSizeBytes = c.maxSize
	if err := c.db.View(func(tx *bolt.Tx) error {
		meta, err := readMetadata(tx)
		if err != nil {
			return err
		}
		stats.TotalSizeBytes = meta.TotalSizeBytes
		stats.LastCleanupTimestamp = meta.LastCleanupTimestamp
		stats.ContentCount = tx.Bucket(contentBucket).Stats().KeyN
		stats.BookmarkCount = tx.Bucket(bookmarkBucket).Stats().KeyN
		return nil
	}); err != nil {
		warn("failed to read cache stats", err)
		return stats
	}
	if stats.MaxSizeBytes > 0 {
		stats.PercentUsed = float64(stats.TotalSizeBytes) / float64(stats.MaxSizeBytes) * 100
	}
	return stats
}

// Clear empties content and bookmarks and resets metadata in one transaction.
func (c *Cache) Clear() {
	if c == nil || c.db == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{contentBucket, bookmarkBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("tx.DeleteBucket(%s) > %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("tx.CreateBucket(%s) > %w", name, err)
			}
		}
		return writeMetadata(tx, Metadata{LastCleanupTimestamp: c.now().UnixMilli()})
	}); err != nil {
		warn("failed to clear the cache", err)
	}
}

// reserve makes room for need more bytes: first by dropping expired entries,
// then by evicting the oldest entries. It is best effort and only fails on
// storage errors.
func (c *Cache) reserve(tx *bolt.Tx, meta *Metadata, need int64) error {
	if meta.TotalSizeBytes+need <= c.maxSize {
		return nil
	}
	if _, err := c.cleanupExpired(tx, meta); err != nil {
		return fmt.Errorf("cleanupExpired() > %w", err)
	}
	if meta.TotalSizeBytes+need <= c.maxSize {
		return nil
	}
	if err := c.evictOldest(tx, meta, need); err != nil {
		return fmt.Errorf("evictOldest() > %w", err)
	}
	return nil
}

type storedEntry struct {
	key       []byte
	timestamp int64
	size      int64
}

func scanEntries(content *bolt.Bucket) ([]storedEntry, error) {
	var entries []storedEntry
	err := content.ForEach(func(k, v []byte) error {
		entries = append(entries, storedEntry{
			key:       append([]byte(nil), k...),
			timestamp: entryTimestamp(v),
			size:      int64(len(v)),
		})
		return nil
	})
	return entries, err
}

func (c *Cache) cleanupExpired(tx *bolt.Tx, meta *Metadata) (int, error) {
	content := tx.Bucket(contentBucket)
	entries, err := scanEntries(content)
	if err != nil {
		return 0, fmt.Errorf("scanEntries() > %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !c.expired(e.timestamp) {
			continue
		}
		if err := content.Delete(e.key); err != nil {
			return removed, fmt.Errorf("content.Delete(%s) > %w", e.key, err)
		}
		meta.subtract(e.size)
		removed++
	}
	meta.LastCleanupTimestamp = c.now().UnixMilli()
	if removed > 0 {
		slog.Default().Debug("removed expired cache entries", slog.Int("count", removed))
	}
	return removed, nil
}

func (c *Cache) evictOldest(tx *bolt.Tx, meta *Metadata, need int64) error {
	content := tx.Bucket(contentBucket)
	entries, err := scanEntries(content)
	if err != nil {
		return fmt.Errorf("scanEntries() > %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].timestamp < entries[j].timestamp
	})

	evicted := 0
	for _, e := range entries {
		if meta.TotalSizeBytes+need <= c.maxSize {
			break
		}
		if err := content.Delete(e.key); err != nil {
			return fmt.Errorf("content.Delete(%s) > %w", e.key, err)
		}
		meta.subtract(e.size)
		evicted++
	}
	slog.Default().Debug("evicted cache entries", slog.Int("count", evicted))
	return nil
}

// reconcile repairs a size total that does not match the stored entries,
// e.g. after an interrupted write by an older version.
func (c *Cache) reconcile(tx *bolt.Tx) error {
	meta, err := readMetadata(tx)
	if err != nil {
		return err
	}
	var total int64
	if err := tx.Bucket(contentBucket).ForEach(func(_, v []byte) error {
		total += int64(len(v))
		return nil
	}); err != nil {
		return fmt.Errorf("content.ForEach() > %w", err)
	}
	if tx.Bucket(metadataBucket).Get(metadataKey) != nil && meta.TotalSizeBytes == total {
		return nil
	}
	if meta.TotalSizeBytes != total {
		slog.Default().Warn("cache size total drifted, repairing",
			slog.Int64("recorded", meta.TotalSizeBytes),
			slog.Int64("actual", total),
		)
	}
	meta.TotalSizeBytes = total
	if meta.LastCleanupTimestamp == 0 {
		meta.LastCleanupTimestamp = c.now().UnixMilli()
	}
	return writeMetadata(tx, meta)
}

// entryTimestamp returns 0 for unreadable entries so they sort first and
// count as expired.
func entryTimestamp(v []byte) int64 {
	var e struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(v, &e); err != nil {
		return 0
	}
	return e.Timestamp
}

func (m *Metadata) subtract(n int64) {
	m.TotalSizeBytes -= n
	if m.TotalSizeBytes < 0 {
		m.TotalSizeBytes = 0
	}
}

func readMetadata(tx *bolt.Tx) (Metadata, error) {
	var meta Metadata
	v := tx.Bucket(metadataBucket).Get(metadataKey)
	if v == nil {
		return meta, nil
	}
	if err := json.Unmarshal(v, &meta); err != nil {
		return meta, fmt.Errorf("json.Unmarshal(metadata) > %w", err)
	}
	return meta, nil
}

func writeMetadata(tx *bolt.Tx, meta Metadata) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("json.Marshal(metadata) > %w", err)
	}
	if err := tx.Bucket(metadataBucket).Put(metadataKey, buf); err != nil {
		return fmt.Errorf("metadata.Put() > %w", err)
	}
	return nil
}

func warn(msg string, err error, attrs ...any) {
	slog.Default().Warn(msg, append(attrs, slog.Any("error", err))...)
}
