package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type spell struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

func openTestCache(t *testing.T, clock *fakeClock) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.bbolt")
	c, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

// storedSize sums the serialized size of every content entry on disk.
func storedSize(t *testing.T, c *Cache) int64 {
	t.Helper()
	var total int64
	require.NoError(t, c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(contentBucket).ForEach(func(_, v []byte) error {
			total += int64(len(v))
			return nil
		})
	}))
	return total
}

func storedMetadata(t *testing.T, c *Cache) Metadata {
	t.Helper()
	var meta Metadata
	require.NoError(t, c.db.View(func(tx *bolt.Tx) error {
		var err error
		meta, err = readMetadata(tx)
		return err
	}))
	return meta
}

func rawEntry(t *testing.T, c *Cache, cat category.Category, slug string) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(contentBucket).Get(entryKey(cat, slug)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	}))
	return out
}

func entrySize(t *testing.T, clock *fakeClock, cat category.Category, data any) int64 {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	buf, err := json.Marshal(Entry{Data: raw, Timestamp: clock.Now().UnixMilli(), Category: cat})
	require.NoError(t, err)
	return int64(len(buf))
}

func TestCache_SetGet(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	want := spell{Slug: "fireball", Name: "Fireball", Level: 3}
	c.Set(category.Spells, "fireball", want)

	got, ok := GetAs[spell](c, category.Spells, "fireball")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = c.Get(category.Monsters, "fireball")
	assert.False(t, ok, "categories partition the key space")

	_, ok = c.Get(category.Spells, "missing")
	assert.False(t, ok)
}

func TestCache_GetExpiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantHit bool
	}{
		{name: "fresh entry", advance: time.Hour, wantHit: true},
		{name: "exactly at the ttl", advance: EntryTTL, wantHit: true},
		{name: "one millisecond past the ttl", advance: EntryTTL + time.Millisecond, wantHit: false},
		{name: "long expired", advance: 30 * 24 * time.Hour, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c, _ := openTestCache(t, clock)
			c.Set(category.Spells, "shield", spell{Slug: "shield"})

			clock.Advance(tt.advance)
			_, ok := c.Get(category.Spells, "shield")
			assert.Equal(t, tt.wantHit, ok)

			if tt.wantHit {
				assert.NotNil(t, rawEntry(t, c, category.Spells, "shield"))
				return
			}
			assert.Nil(t, rawEntry(t, c, category.Spells, "shield"), "expired entry must be purged on read")
			assert.Equal(t, int64(0), storedMetadata(t, c).TotalSizeBytes)
		})
	}
}

func TestCache_Overwrite(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	c.Set(category.Spells, "light", spell{Slug: "light", Name: "Light"})
	clock.Advance(time.Minute)
	c.Set(category.Spells, "light", spell{Slug: "light", Name: "Light (revised)", Level: 0})

	got, ok := GetAs[spell](c, category.Spells, "light")
	require.True(t, ok)
	assert.Equal(t, "Light (revised)", got.Name)
	assert.Equal(t, storedSize(t, c), storedMetadata(t, c).TotalSizeBytes)
	assert.Equal(t, 1, c.Stats().ContentCount)
}

func TestCache_Delete(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	c.Set(category.Monsters, "goblin", map[string]string{"slug": "goblin"})
	c.Set(category.Monsters, "orc", map[string]string{"slug": "orc"})

	c.Delete(category.Monsters, "goblin")
	c.Delete(category.Monsters, "does-not-exist")

	_, ok := c.Get(category.Monsters, "goblin")
	assert.False(t, ok)
	_, ok = c.Get(category.Monsters, "orc")
	assert.True(t, ok)
	assert.Equal(t, storedSize(t, c), storedMetadata(t, c).TotalSizeBytes)
}

func TestCache_GetByCategory(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	c.Set(category.Spells, "old", spell{Slug: "old"})
	clock.Advance(EntryTTL)
	c.Set(category.Spells, "fresh-a", spell{Slug: "fresh-a"})
	c.Set(category.Spells, "fresh-b", spell{Slug: "fresh-b"})
	c.Set(category.Monsters, "kobold", spell{Slug: "kobold"})
	clock.Advance(time.Millisecond)

	got := ListAs[spell](c, category.Spells)
	slugs := make([]string, 0, len(got))
	for _, s := range got {
		slugs = append(slugs, s.Slug)
	}
	assert.ElementsMatch(t, []string{"fresh-a", "fresh-b"}, slugs)

	assert.NotNil(t, rawEntry(t, c, category.Spells, "old"), "listing must not purge expired entries")
	assert.Empty(t, c.GetByCategory(category.Races))
}

func TestCache_SizeInvariant(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	ops := []struct {
		del  bool
		slug string
		body string
	}{
		{slug: "a", body: "short"},
		{slug: "b", body: strings.Repeat("b", 500)},
		{slug: "a", body: strings.Repeat("a", 50)},
		{del: true, slug: "b"},
		{del: true, slug: "b"},
		{slug: "c", body: ""},
		{slug: "a", body: "x"},
		{del: true, slug: "zzz"},
	}
	for i, op := range ops {
		if op.del {
			c.Delete(category.Equipment, op.slug)
		} else {
			c.Set(category.Equipment, op.slug, op.body)
		}
		meta := storedMetadata(t, c)
		assert.GreaterOrEqual(t, meta.TotalSizeBytes, int64(0))
		assert.Equal(t, storedSize(t, c), meta.TotalSizeBytes, "after op %d", i)
	}
}

func TestCache_ConcurrentWrites(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)
	c.maxSize = 4 * 1024

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				slug := fmt.Sprintf("item-%d", (w*7+i)%30)
				if i%5 == 4 {
					c.Delete(category.MagicItems, slug)
					continue
				}
				c.Set(category.MagicItems, slug, strings.Repeat("m", 20+i*3))
			}
		}(w)
	}
	wg.Wait()

	meta := storedMetadata(t, c)
	assert.Equal(t, storedSize(t, c), meta.TotalSizeBytes)
	assert.LessOrEqual(t, meta.TotalSizeBytes, c.maxSize)
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	body := strings.Repeat("z", 100)
	size := entrySize(t, clock, category.Spells, body)
	c.maxSize = 2*size + size/2

	c.Set(category.Spells, "a", body)
	clock.Advance(time.Second)
	c.Set(category.Spells, "b", body)
	clock.Advance(time.Second)
	c.Set(category.Spells, "c", body)

	_, ok := c.Get(category.Spells, "a")
	assert.False(t, ok, "oldest entry is evicted")
	_, ok = c.Get(category.Spells, "b")
	assert.True(t, ok)
	_, ok = c.Get(category.Spells, "c")
	assert.True(t, ok)

	meta := storedMetadata(t, c)
	assert.Equal(t, 2*size, meta.TotalSizeBytes)
	assert.LessOrEqual(t, meta.TotalSizeBytes, c.maxSize)
}

func TestCache_CleansExpiredBeforeEvicting(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	body := strings.Repeat("q", 100)
	size := entrySize(t, clock, category.Classes, body)
	c.maxSize = 2*size + size/2

	c.Set(category.Classes, "stale", body)
	clock.Advance(EntryTTL + time.Hour)
	c.Set(category.Classes, "kept", body)
	clock.Advance(time.Second)
	c.Set(category.Classes, "new", body)

	assert.Nil(t, rawEntry(t, c, category.Classes, "stale"))
	assert.NotNil(t, rawEntry(t, c, category.Classes, "kept"), "a fresh entry survives when cleanup frees enough")
	assert.NotNil(t, rawEntry(t, c, category.Classes, "new"))

	meta := storedMetadata(t, c)
	assert.Equal(t, clock.Now().UnixMilli(), meta.LastCleanupTimestamp)
	assert.Equal(t, storedSize(t, c), meta.TotalSizeBytes)
}

func TestCache_OversizedEntry(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)
	c.maxSize = 200

	c.Set(category.Conditions, "prone", "x")
	before := storedMetadata(t, c)
	assert.NotPanics(t, func() {
		c.Set(category.Conditions, "huge", strings.Repeat("h", 1000))
	})

	_, ok := c.Get(category.Conditions, "huge")
	assert.False(t, ok)
	assert.NotNil(t, rawEntry(t, c, category.Conditions, "prone"), "stored entries are not evicted for an entry that cannot fit")
	meta := storedMetadata(t, c)
	assert.Equal(t, before, meta)
	assert.LessOrEqual(t, meta.TotalSizeBytes, c.maxSize)
	assert.Equal(t, storedSize(t, c), meta.TotalSizeBytes)
}

func TestCache_PruneExpired(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	c.Set(category.Races, "elf", "elf")
	c.Set(category.Races, "dwarf", "dwarf")
	clock.Advance(EntryTTL + time.Second)
	c.Set(category.Races, "halfling", "halfling")

	assert.Equal(t, 2, c.PruneExpired())
	assert.Equal(t, 1, c.Stats().ContentCount)
	assert.Equal(t, storedSize(t, c), storedMetadata(t, c).TotalSizeBytes)
}

func TestCache_StatsAndClear(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	c.Set(category.Spells, "fireball", spell{Slug: "fireball"})
	c.Set(category.Spells, "shield", spell{Slug: "shield"})
	c.AddBookmark(Bookmark{DisplayName: "Fireball", Category: category.Spells, Slug: "fireball"})

	stats := c.Stats()
	assert.Equal(t, 2, stats.ContentCount)
	assert.Equal(t, 1, stats.BookmarkCount)
	assert.Equal(t, MaxSizeBytes, stats.MaxSizeBytes)
	assert.Equal(t, storedSize(t, c), stats.TotalSizeBytes)
	assert.InDelta(t, float64(stats.TotalSizeBytes)/float64(MaxSizeBytes)*100, stats.PercentUsed, 1e-9)

	clock.Advance(time.Hour)
	c.Clear()

	stats = c.Stats()
	assert.Equal(t, 0, stats.ContentCount)
	assert.Equal(t, 0, stats.BookmarkCount)
	assert.Equal(t, int64(0), stats.TotalSizeBytes)
	assert.Equal(t, clock.Now().UnixMilli(), stats.LastCleanupTimestamp)
}

func TestCache_Bookmarks(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)

	c.AddBookmark(Bookmark{DisplayName: "Goblin", Category: category.Monsters, Slug: "goblin"})
	clock.Advance(time.Second)
	c.AddBookmark(Bookmark{ID: "custom", DisplayName: "Rope", Category: category.Equipment, Slug: "rope"})

	assert.True(t, c.IsBookmarked(BookmarkID(category.Monsters, "goblin")))
	assert.True(t, c.IsBookmarked("custom"))
	assert.False(t, c.IsBookmarked("nope"))

	list := c.ListBookmarks()
	require.Len(t, list, 2)
	assert.Equal(t, "custom", list[0].ID, "newest first")
	assert.Equal(t, "monsters-goblin", list[1].ID)
	assert.Equal(t, clock.Now().Add(-time.Second).UnixMilli(), list[1].Timestamp)

	assert.Equal(t, int64(0), storedMetadata(t, c).TotalSizeBytes, "bookmarks are not size-accounted")

	c.RemoveBookmark("custom")
	c.RemoveBookmark("custom")
	assert.False(t, c.IsBookmarked("custom"))
	assert.Len(t, c.ListBookmarks(), 1)
}

func TestCache_PersistsAcrossReopen(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "nested", "cache.bbolt")

	c, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	c.Set(category.MagicItems, "bag-of-holding", "bag")
	c.AddBookmark(Bookmark{Category: category.MagicItems, Slug: "bag-of-holding"})
	require.NoError(t, c.Close())

	reopened, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := GetAs[string](reopened, category.MagicItems, "bag-of-holding")
	require.True(t, ok)
	assert.Equal(t, "bag", got)
	assert.True(t, reopened.IsBookmarked("magicitems-bag-of-holding"))
	assert.Equal(t, storedSize(t, reopened), storedMetadata(t, reopened).TotalSizeBytes)
}

func TestCache_ReconcilesDriftOnOpen(t *testing.T) {
	clock := newFakeClock()
	c, path := openTestCache(t, clock)
	c.Set(category.Spells, "light", "light")
	require.NoError(t, c.db.Update(func(tx *bolt.Tx) error {
		return writeMetadata(tx, Metadata{TotalSizeBytes: 999999})
	}))
	require.NoError(t, c.Close())

	reopened, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, storedSize(t, reopened), storedMetadata(t, reopened).TotalSizeBytes)
}

func TestCache_NilDegrades(t *testing.T) {
	var c *Cache

	assert.NotPanics(t, func() {
		c.Set(category.Spells, "x", "y")
		c.Delete(category.Spells, "x")
		c.Clear()
		c.AddBookmark(Bookmark{Slug: "x"})
		c.RemoveBookmark("x")
	})
	_, ok := c.Get(category.Spells, "x")
	assert.False(t, ok)
	assert.Empty(t, c.GetByCategory(category.Spells))
	assert.Empty(t, c.ListBookmarks())
	assert.False(t, c.IsBookmarked("x"))
	assert.Equal(t, 0, c.PruneExpired())
	assert.Equal(t, MaxSizeBytes, c.Stats().MaxSizeBytes)
	assert.NoError(t, c.Close())
}

func TestCache_ClosedStoreDegrades(t *testing.T) {
	clock := newFakeClock()
	c, _ := openTestCache(t, clock)
	c.Set(category.Spells, "x", "y")
	require.NoError(t, c.Close())

	assert.NotPanics(t, func() {
		c.Set(category.Spells, "z", "y")
		c.Delete(category.Spells, "x")
	})
	_, ok := c.Get(category.Spells, "x")
	assert.False(t, ok)
	assert.Nil(t, c.GetByCategory(category.Spells))
}
